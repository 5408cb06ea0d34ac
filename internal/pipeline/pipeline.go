// Package pipeline runs the assistant's processing loop: frames from the
// capture queue flow through voice activity detection and utterance
// assembly, transcripts through trigger detection into the session state
// machine, and the resulting events out to the overlay and session log.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/meetscout/platform/internal/audio"
	"github.com/meetscout/platform/internal/metrics"
	"github.com/meetscout/platform/internal/recognizer"
	"github.com/meetscout/platform/internal/research"
	"github.com/meetscout/platform/internal/session"
	"github.com/meetscout/platform/internal/sessionlog"
	"github.com/meetscout/platform/internal/syncx"
	"github.com/meetscout/platform/internal/trace"
	"github.com/meetscout/platform/internal/trigger"
	"github.com/meetscout/platform/internal/utterance"
	"github.com/meetscout/platform/internal/vad"
)

// CommandKind identifies a user command.
type CommandKind string

const (
	CmdPause             CommandKind = "pause"
	CmdResume            CommandKind = "resume"
	CmdManualSearch      CommandKind = "manual_search"
	CmdDismiss           CommandKind = "dismiss"
	CmdSetMeetingContext CommandKind = "set_meeting_context"
)

// Command is a user request delivered into the processing loop.
type Command struct {
	Kind    CommandKind
	Topic   string // manual_search
	Context string // set_meeting_context
}

// Snapshot is a point-in-time view of the pipeline for the status API.
type Snapshot struct {
	State          string `json:"state"`
	Topic          string `json:"topic,omitempty"`
	SessionID      string `json:"session_id"`
	FramesDropped  uint64 `json:"frames_dropped"`
	MeetingContext string `json:"meeting_context,omitempty"`
}

// Options wires the pipeline's collaborators and tuning.
type Options struct {
	Queue         *audio.FrameQueue
	Detector      *vad.Detector
	Assembler     *utterance.Assembler
	Recognizer    recognizer.Recognizer
	Triggers      *trigger.Detector
	Engine        *research.Engine
	Machine       *session.Machine
	Store         *sessionlog.Store // optional
	MinConfidence float64
	OverlayTTL    time.Duration
}

type transcriptMsg struct {
	result recognizer.Result
	err    error
}

type answerMsg struct {
	generation uint64
	summary    string
	err        error
}

// Pipeline owns the single consumer goroutine. All state machine access
// happens on that goroutine; commands and research results are funneled in
// through channels.
type Pipeline struct {
	opts Options

	commands    chan Command
	utterances  chan *utterance.Utterance
	transcripts chan transcriptMsg
	answers     chan answerMsg
	events      chan session.Event

	snapshot  *syncx.RWGuard[Snapshot]
	sessionID string
	dismissAt time.Time
}

// New creates a pipeline.
func New(opts Options) *Pipeline {
	return &Pipeline{
		opts:        opts,
		commands:    make(chan Command, 16),
		utterances:  make(chan *utterance.Utterance, 4),
		transcripts: make(chan transcriptMsg, 4),
		answers:     make(chan answerMsg, 4),
		events:      make(chan session.Event, 64),
		snapshot:    syncx.NewGuard(Snapshot{State: session.Idle.String()}),
	}
}

// Events returns the stream of session events for the overlay bridge.
func (p *Pipeline) Events() <-chan session.Event {
	return p.events
}

// Send delivers a command to the loop without blocking; commands are
// dropped with a warning if the loop is wedged.
func (p *Pipeline) Send(cmd Command) {
	select {
	case p.commands <- cmd:
	default:
		slog.Warn("command queue full, dropping command", "kind", cmd.Kind)
	}
}

// Status returns the current snapshot.
func (p *Pipeline) Status() Snapshot {
	return p.snapshot.Get()
}

// Run processes until ctx is cancelled. It owns the session log session
// lifecycle.
func (p *Pipeline) Run(ctx context.Context) error {
	if p.opts.Store != nil {
		id, err := p.opts.Store.Begin(ctx)
		if err != nil {
			return err
		}
		p.sessionID = id
		defer func() {
			if err := p.opts.Store.End(context.Background(), id); err != nil {
				slog.Warn("closing session record", "error", err)
			}
		}()
	}
	p.updateSnapshot()

	go p.recognitionWorker(ctx)

	tick := time.NewTicker(200 * time.Millisecond)
	defer tick.Stop()

	slog.Info("pipeline running", "session_id", p.sessionID)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case f := <-p.opts.Queue.Frames():
			p.onFrame(f)

		case msg := <-p.transcripts:
			p.onTranscript(msg)

		case msg := <-p.answers:
			p.apply(p.opts.Machine.OnAnswer(msg.generation, msg.summary, msg.err))

		case cmd := <-p.commands:
			p.onCommand(cmd)

		case now := <-tick.C:
			p.onTick(now)
		}
	}
}

func (p *Pipeline) onFrame(f audio.Frame) {
	dec := p.opts.Detector.Process(f)
	u := p.opts.Assembler.Process(f, dec)
	if u == nil {
		return
	}

	// While paused the detector and assembler keep tracking speech so
	// resume picks up cleanly mid-conversation, but nothing is recognized.
	if p.opts.Machine.State() == session.Paused {
		return
	}

	select {
	case p.utterances <- u:
	default:
		// Recognition is backed up; newest audio matters more than a
		// transcript we cannot keep up with.
		slog.Warn("recognition backlog, dropping utterance", "duration", u.Duration())
		metrics.RecognitionRequests.WithLabelValues(metrics.OutcomeSkipped).Inc()
	}
}

// recognitionWorker transcribes utterances one at a time so transcripts
// reach the state machine in speaking order.
func (p *Pipeline) recognitionWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-p.utterances:
			result, err := p.opts.Recognizer.Recognize(ctx, u)
			select {
			case p.transcripts <- transcriptMsg{result: result, err: err}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (p *Pipeline) onTranscript(msg transcriptMsg) {
	if msg.err != nil {
		slog.Warn("recognition failed, dropping utterance", "error", msg.err)
		return
	}
	if msg.result.Text == "" {
		return
	}
	if msg.result.Confidence < p.opts.MinConfidence {
		slog.Debug("transcript below confidence floor",
			"confidence", msg.result.Confidence, "floor", p.opts.MinConfidence)
		metrics.RecognitionRequests.WithLabelValues(metrics.OutcomeSkipped).Inc()
		return
	}

	mode := trigger.ModeListen
	if p.opts.Machine.State() == session.RecordingNote {
		mode = trigger.ModeNote
	}

	var match *trigger.Match
	if m, ok := p.opts.Triggers.Detect(msg.result.Text, mode); ok {
		match = &m
	}
	p.apply(p.opts.Machine.OnTranscript(msg.result.Text, match))
}

func (p *Pipeline) onCommand(cmd Command) {
	slog.Debug("command received", "kind", cmd.Kind)
	switch cmd.Kind {
	case CmdPause:
		p.apply(p.opts.Machine.OnPause())
	case CmdResume:
		p.apply(p.opts.Machine.OnResume())
	case CmdManualSearch:
		p.apply(p.opts.Machine.OnManualSearch(cmd.Topic))
	case CmdDismiss:
		p.dismissAt = time.Time{}
		p.apply(p.opts.Machine.OnDismiss())
	case CmdSetMeetingContext:
		p.opts.Engine.SetMeetingContext(cmd.Context)
		p.updateSnapshot()
	}
}

func (p *Pipeline) onTick(now time.Time) {
	m := p.opts.Machine
	if d := m.TopicDeadline(); !d.IsZero() && now.After(d) {
		p.apply(m.OnTopicTimeout())
	}
	if d := m.NoteDeadline(); !d.IsZero() && now.After(d) {
		p.apply(m.OnNoteTimeout())
	}
	if !p.dismissAt.IsZero() && now.After(p.dismissAt) {
		p.dismissAt = time.Time{}
		p.apply(m.OnDismiss())
	}
}

// apply performs the side effects of a transition's events and forwards
// them to the overlay stream.
func (p *Pipeline) apply(evs []session.Event) {
	for _, ev := range evs {
		switch ev.Type {
		case session.EventStartResearch:
			p.launchResearch(ev.Topic, ev.Generation)
		case session.EventShowAnswer:
			p.record(sessionlog.KindAnswer, ev.Topic, ev.Answer)
			if p.opts.OverlayTTL > 0 {
				p.dismissAt = time.Now().Add(p.opts.OverlayTTL)
			}
		case session.EventShowError:
			p.record(sessionlog.KindError, ev.Topic, ev.Err.Error())
		case session.EventNoteSaved:
			p.record(sessionlog.KindNote, "", ev.Note)
		}
		p.publish(ev)
	}
	if len(evs) > 0 {
		p.updateSnapshot()
	}
}

// launchResearch runs the query off-loop. The generation travels with the
// result so answers that outlive their session moment are discarded.
func (p *Pipeline) launchResearch(topic string, generation uint64) {
	go func() {
		ctx, _ := trace.EnsureContext(context.Background())
		result, err := p.opts.Engine.Research(ctx, topic)
		p.answers <- answerMsg{generation: generation, summary: result.Summary, err: err}
	}()
}

func (p *Pipeline) record(kind sessionlog.EventKind, topic, body string) {
	if p.opts.Store == nil {
		return
	}
	if err := p.opts.Store.Record(context.Background(), p.sessionID, kind, topic, body); err != nil {
		slog.Warn("recording session event", "kind", kind, "error", err)
	}
}

func (p *Pipeline) publish(ev session.Event) {
	select {
	case p.events <- ev:
	default:
		slog.Debug("event stream full, dropping event", "type", ev.Type)
	}
}

func (p *Pipeline) updateSnapshot() {
	p.snapshot.Set(Snapshot{
		State:          p.opts.Machine.State().String(),
		Topic:          p.opts.Machine.Topic(),
		SessionID:      p.sessionID,
		FramesDropped:  p.opts.Queue.Dropped(),
		MeetingContext: p.opts.Engine.MeetingContext(),
	})
}
