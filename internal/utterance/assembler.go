// Package utterance groups speech frames into utterances for recognition.
package utterance

import (
	"time"

	"github.com/meetscout/platform/internal/audio"
	"github.com/meetscout/platform/internal/metrics"
	"github.com/meetscout/platform/internal/vad"
)

// Utterance is a contiguous run of speech, including pre-roll audio from
// just before the detected onset.
type Utterance struct {
	Samples    []float32
	SampleRate int
	Start      time.Time
	End        time.Time
	Forced     bool // flushed by the max-duration cap rather than silence
}

// Duration returns the utterance length.
func (u Utterance) Duration() time.Duration {
	if u.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(u.Samples)) * time.Second / time.Duration(u.SampleRate)
}

// Assembler collects frames while the detector is active. A small pre-roll
// ring is kept during silence so the onset of speech is not clipped. The
// utterance is flushed when the detector goes inactive and no speech has
// been heard for the silence timeout, or unconditionally when it reaches
// the max duration. Not safe for concurrent use.
type Assembler struct {
	preRoll        int
	silenceTimeout time.Duration
	maxDuration    time.Duration

	ring       []audio.Frame
	collecting bool
	frames     []audio.Frame
	start      time.Time
	lastSpeech time.Time
	collected  time.Duration
}

// NewAssembler creates an assembler. preRoll is the number of silence
// frames retained before an onset.
func NewAssembler(preRoll int, silenceTimeout, maxDuration time.Duration) *Assembler {
	if preRoll < 0 {
		preRoll = 0
	}
	return &Assembler{
		preRoll:        preRoll,
		silenceTimeout: silenceTimeout,
		maxDuration:    maxDuration,
	}
}

// Process feeds one frame with its VAD decision. It returns a completed
// utterance, or nil while assembly is still in progress.
func (a *Assembler) Process(f audio.Frame, dec vad.Decision) *Utterance {
	if !a.collecting {
		// A fresh onset starts collection. Speech arriving while the
		// detector is already active means the previous utterance was
		// force-flushed mid-speech, so collection resumes immediately.
		if dec.Onset || (dec.Active && dec.Speech) {
			a.begin(f)
			return nil
		}
		a.pushRing(f)
		return nil
	}

	a.frames = append(a.frames, f)
	a.collected += f.Duration()
	if dec.Speech {
		a.lastSpeech = f.Timestamp
	}

	if a.maxDuration > 0 && a.collected >= a.maxDuration {
		return a.flush(f.Timestamp, true)
	}
	if !dec.Active && f.Timestamp.Sub(a.lastSpeech) >= a.silenceTimeout {
		return a.flush(f.Timestamp, false)
	}
	return nil
}

// Collecting reports whether an utterance is currently being assembled.
func (a *Assembler) Collecting() bool { return a.collecting }

// Reset discards any partial utterance and the pre-roll ring.
func (a *Assembler) Reset() {
	a.collecting = false
	a.frames = nil
	a.ring = nil
	a.collected = 0
}

func (a *Assembler) begin(f audio.Frame) {
	a.collecting = true
	a.frames = append(a.frames[:0], a.ring...)
	a.frames = append(a.frames, f)
	a.ring = a.ring[:0]

	a.start = f.Timestamp
	if len(a.frames) > 0 {
		a.start = a.frames[0].Timestamp
	}
	a.lastSpeech = f.Timestamp
	a.collected = 0
	for _, fr := range a.frames {
		a.collected += fr.Duration()
	}
}

func (a *Assembler) pushRing(f audio.Frame) {
	if a.preRoll == 0 {
		return
	}
	a.ring = append(a.ring, f)
	if len(a.ring) > a.preRoll {
		a.ring = a.ring[1:]
	}
}

func (a *Assembler) flush(end time.Time, forced bool) *Utterance {
	u := &Utterance{
		Start:  a.start,
		End:    end,
		Forced: forced,
	}
	var total int
	for _, fr := range a.frames {
		total += len(fr.Samples)
		if u.SampleRate == 0 {
			u.SampleRate = fr.SampleRate
		}
	}
	u.Samples = make([]float32, 0, total)
	for _, fr := range a.frames {
		u.Samples = append(u.Samples, fr.Samples...)
	}

	a.collecting = false
	a.frames = a.frames[:0]
	a.collected = 0
	metrics.UtterancesAssembled.Inc()
	return u
}
