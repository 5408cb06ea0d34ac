// Package session implements the assistant's state machine. Transitions
// are driven by recognized transcripts, trigger matches, research results
// and user commands, and each transition reports the events the rest of
// the system should act on.
package session

import (
	"log/slog"
	"strings"
	"time"

	"github.com/meetscout/platform/internal/metrics"
	"github.com/meetscout/platform/internal/trigger"
)

// State is the assistant's current mode.
type State int

const (
	Idle State = iota
	AwaitingTopic
	Researching
	RecordingNote
	Paused
)

func (s State) String() string {
	return [...]string{"idle", "awaiting_topic", "researching", "recording_note", "paused"}[s]
}

// EventType classifies a transition event.
type EventType string

const (
	EventStateChanged  EventType = "state_changed"
	EventStartResearch EventType = "start_research" // launch a query for Topic at Generation
	EventAwaitTopic    EventType = "await_topic"    // trigger heard, topic pending finalization
	EventShowAnswer    EventType = "show_answer"
	EventShowError     EventType = "show_error"
	EventNoteStarted   EventType = "note_started"
	EventNoteSaved     EventType = "note_saved"
	EventDismiss       EventType = "dismiss"
)

// Event is emitted by a transition for the pipeline to act on.
type Event struct {
	Type       EventType
	State      State
	Topic      string
	Answer     string
	Note       string
	Err        error
	Generation uint64
}

// Machine is the session state machine. It is driven from a single
// goroutine; callers own the synchronization.
type Machine struct {
	state      State
	generation uint64 // bumped per research launch and per pause
	topic      string

	noteParts   []string
	noteStart   time.Time
	noteLast    time.Time
	noteMax     time.Duration
	noteSilence time.Duration

	pendingTopic string
	awaitSince   time.Time
	topicGrace   time.Duration

	now func() time.Time
}

// NewMachine creates an idle machine. topicGrace is the window trailing
// speech has to extend a spoken topic; noteMax caps note recording and
// noteSilence auto-stops a note after that long without speech (zero
// disables the auto-stop).
func NewMachine(topicGrace, noteMax, noteSilence time.Duration) *Machine {
	return &Machine{
		topicGrace:  topicGrace,
		noteMax:     noteMax,
		noteSilence: noteSilence,
		now:         time.Now,
	}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Generation returns the current research generation. Answers carrying an
// older generation are discarded.
func (m *Machine) Generation() uint64 { return m.generation }

// Topic returns the topic of the in-flight query, or empty when not
// researching.
func (m *Machine) Topic() string {
	if m.state != Researching {
		return ""
	}
	return m.topic
}

// OnTranscript handles a recognized transcript. In note mode the text is
// appended unless it matched a stop trigger; in the topic grace window it
// extends the pending topic and launches the query.
func (m *Machine) OnTranscript(text string, match *trigger.Match) []Event {
	switch m.state {
	case Paused:
		return nil

	case RecordingNote:
		if match != nil && match.Kind == trigger.KindStop {
			return m.finalizeNote("stop phrase")
		}
		m.noteParts = append(m.noteParts, text)
		m.noteLast = m.now()
		if m.noteMax > 0 && m.now().Sub(m.noteStart) >= m.noteMax {
			return m.finalizeNote("max duration")
		}
		return nil

	case AwaitingTopic:
		// Trailing speech from the same breath extends the pending
		// topic, then the query launches without waiting out the rest
		// of the grace window.
		if tail := strings.TrimSpace(text); tail != "" && m.now().Sub(m.awaitSince) <= m.topicGrace {
			m.pendingTopic = m.pendingTopic + " " + tail
		}
		return m.startResearch(m.pendingTopic)

	case Researching:
		// Single-flight: new triggers are ignored until the answer
		// arrives or the query fails.
		return nil

	default: // Idle
		if match == nil {
			return nil
		}
		return m.onTrigger(*match)
	}
}

func (m *Machine) onTrigger(match trigger.Match) []Event {
	switch match.Kind {
	case trigger.KindResearch:
		metrics.TriggersDetected.WithLabelValues(string(match.Kind)).Inc()
		return m.awaitTopic(match.Topic)

	case trigger.KindNoteStart:
		metrics.TriggersDetected.WithLabelValues(string(match.Kind)).Inc()
		m.noteParts = m.noteParts[:0]
		m.noteStart = m.now()
		m.noteLast = m.noteStart
		evs := m.toState(RecordingNote)
		return append(evs, Event{Type: EventNoteStarted, State: m.state})

	default:
		return nil
	}
}

// awaitTopic opens the grace window during which trailing speech can
// still extend the topic before the query is dispatched.
func (m *Machine) awaitTopic(topic string) []Event {
	m.pendingTopic = topic
	m.awaitSince = m.now()
	evs := m.toState(AwaitingTopic)
	return append(evs, Event{Type: EventAwaitTopic, State: m.state, Topic: topic})
}

func (m *Machine) startResearch(topic string) []Event {
	m.generation++
	m.topic = topic
	evs := m.toState(Researching)
	slog.Info("research started", "topic", topic, "generation", m.generation)
	return append(evs, Event{
		Type:       EventStartResearch,
		State:      m.state,
		Topic:      topic,
		Generation: m.generation,
	})
}

// OnAnswer delivers a research result. Results from a superseded
// generation are dropped so a pause or timeout cannot resurface a stale
// answer.
func (m *Machine) OnAnswer(generation uint64, answer string, err error) []Event {
	if generation != m.generation || m.state != Researching {
		slog.Debug("discarding stale research result", "generation", generation, "current", m.generation)
		return nil
	}

	evs := m.toState(Idle)
	if err != nil {
		return append(evs, Event{Type: EventShowError, State: m.state, Topic: m.topic, Err: err})
	}
	return append(evs, Event{Type: EventShowAnswer, State: m.state, Topic: m.topic, Answer: answer})
}

// OnTopicTimeout finalizes the pending topic when the grace window
// elapses with no trailing speech.
func (m *Machine) OnTopicTimeout() []Event {
	if m.state != AwaitingTopic {
		return nil
	}
	return m.startResearch(m.pendingTopic)
}

// OnPause suspends the session. A partial note is saved, and any in-flight
// research is abandoned by bumping the generation.
func (m *Machine) OnPause() []Event {
	if m.state == Paused {
		return nil
	}

	var evs []Event
	if m.state == RecordingNote {
		evs = m.finalizeNote("paused")
	}
	m.generation++
	evs = append(evs, m.toState(Paused)...)
	return evs
}

// OnResume returns a paused session to idle listening.
func (m *Machine) OnResume() []Event {
	if m.state != Paused {
		return nil
	}
	return m.toState(Idle)
}

// OnManualSearch starts research for a topic supplied through the control
// API rather than speech. The grace window is skipped since there is no
// trailing speech to wait for. Ignored while paused, recording or already
// researching.
func (m *Machine) OnManualSearch(topic string) []Event {
	topic = strings.TrimSpace(topic)
	if topic == "" || m.state != Idle && m.state != AwaitingTopic {
		return nil
	}
	return m.startResearch(topic)
}

// OnDismiss acknowledges the overlay being closed by the user.
func (m *Machine) OnDismiss() []Event {
	return []Event{{Type: EventDismiss, State: m.state}}
}

// NoteDeadline returns when the active note must be force-finalized, the
// earlier of the max-duration cap and the silence auto-stop, or zero time
// when no note is recording.
func (m *Machine) NoteDeadline() time.Time {
	if m.state != RecordingNote {
		return time.Time{}
	}
	var d time.Time
	if m.noteMax > 0 {
		d = m.noteStart.Add(m.noteMax)
	}
	if m.noteSilence > 0 {
		if s := m.noteLast.Add(m.noteSilence); d.IsZero() || s.Before(d) {
			d = s
		}
	}
	return d
}

// OnNoteTimeout force-finalizes the active note when its deadline passes.
func (m *Machine) OnNoteTimeout() []Event {
	if m.state != RecordingNote {
		return nil
	}
	return m.finalizeNote("timeout")
}

// TopicDeadline returns when the topic grace window closes, or zero time
// when no topic is awaited.
func (m *Machine) TopicDeadline() time.Time {
	if m.state != AwaitingTopic {
		return time.Time{}
	}
	return m.awaitSince.Add(m.topicGrace)
}

func (m *Machine) finalizeNote(reason string) []Event {
	text := strings.TrimSpace(strings.Join(m.noteParts, " "))
	m.noteParts = m.noteParts[:0]
	evs := m.toState(Idle)
	if text == "" {
		slog.Debug("empty note discarded", "reason", reason)
		return evs
	}
	metrics.NotesRecorded.Inc()
	slog.Info("note saved", "chars", len(text), "reason", reason)
	return append(evs, Event{Type: EventNoteSaved, State: m.state, Note: text})
}

func (m *Machine) toState(s State) []Event {
	if m.state == s {
		return nil
	}
	from := m.state
	m.state = s
	metrics.SessionState.Set(float64(s))
	slog.Debug("session state changed", "from", from, "to", s)
	return []Event{{Type: EventStateChanged, State: s}}
}
