package utterance

import (
	"testing"
	"time"

	"github.com/meetscout/platform/internal/audio"
	"github.com/meetscout/platform/internal/vad"
)

const (
	sampleRate = 16000
	frameLen   = 100 * time.Millisecond
)

// feed runs frames through a detector and assembler in lockstep, returning
// every utterance flushed along the way.
func feed(t *testing.T, det *vad.Detector, asm *Assembler, energies []float32) []*Utterance {
	t.Helper()
	var out []*Utterance
	ts := time.Unix(0, 0)
	for _, e := range energies {
		samples := make([]float32, sampleRate/10)
		for i := range samples {
			samples[i] = e
		}
		f := audio.Frame{Samples: samples, SampleRate: sampleRate, Timestamp: ts}
		if u := asm.Process(f, det.Process(f)); u != nil {
			out = append(out, u)
		}
		ts = ts.Add(frameLen)
	}
	return out
}

func repeat(e float32, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = e
	}
	return out
}

func TestSilenceProducesNoUtterance(t *testing.T) {
	det := vad.NewDetector(0.02, 3, 5)
	asm := NewAssembler(5, time.Second, 30*time.Second)

	got := feed(t, det, asm, repeat(0.001, 100))
	if len(got) != 0 {
		t.Errorf("got %d utterances from pure silence, want 0", len(got))
	}
}

func TestSpeechThenSilenceFlushesWithPreRoll(t *testing.T) {
	det := vad.NewDetector(0.02, 3, 5)
	asm := NewAssembler(5, time.Second, 30*time.Second)

	// 10 silence frames, 8 speech frames, then silence until flush.
	energies := append(repeat(0.001, 10), repeat(0.1, 8)...)
	energies = append(energies, repeat(0.001, 20)...)

	got := feed(t, det, asm, energies)
	if len(got) != 1 {
		t.Fatalf("got %d utterances, want 1", len(got))
	}

	u := got[0]
	// Onset fires on the 3rd speech frame (frame 12). The ring then
	// holds frames 7-11: three silence frames plus the two debounce
	// speech frames, so the utterance starts at frame 7.
	wantStart := time.Unix(0, 0).Add(7 * frameLen)
	if !u.Start.Equal(wantStart) {
		t.Errorf("Start = %v, want %v (pre-roll included)", u.Start, wantStart)
	}
	if u.Forced {
		t.Error("silence flush should not be marked forced")
	}
	if u.SampleRate != sampleRate {
		t.Errorf("SampleRate = %d, want %d", u.SampleRate, sampleRate)
	}
	if len(u.Samples) == 0 {
		t.Error("utterance should contain samples")
	}
}

func TestShortPauseDoesNotSplitUtterance(t *testing.T) {
	det := vad.NewDetector(0.02, 1, 12)
	asm := NewAssembler(2, time.Second, 30*time.Second)

	// Speech, a 400ms pause (under both hangover and silence timeout),
	// more speech, then a long silence.
	energies := append(repeat(0.1, 5), repeat(0.001, 4)...)
	energies = append(energies, repeat(0.1, 5)...)
	energies = append(energies, repeat(0.001, 30)...)

	got := feed(t, det, asm, energies)
	if len(got) != 1 {
		t.Fatalf("got %d utterances, want 1 (pause should not split)", len(got))
	}
}

func TestMaxDurationForcesFlush(t *testing.T) {
	det := vad.NewDetector(0.02, 1, 5)
	asm := NewAssembler(0, time.Second, 2*time.Second)

	// 50 frames = 5s of continuous speech against a 2s cap.
	got := feed(t, det, asm, repeat(0.1, 50))
	if len(got) < 2 {
		t.Fatalf("got %d utterances, want at least 2 forced flushes", len(got))
	}
	for i, u := range got {
		if !u.Forced {
			t.Errorf("utterance %d: Forced = false, want true", i)
		}
		if u.Duration() > 2*time.Second+frameLen {
			t.Errorf("utterance %d: duration %v exceeds cap", i, u.Duration())
		}
	}
}

func TestResetDiscardsPartialUtterance(t *testing.T) {
	det := vad.NewDetector(0.02, 1, 5)
	asm := NewAssembler(2, time.Second, 30*time.Second)

	feed(t, det, asm, repeat(0.1, 3))
	if !asm.Collecting() {
		t.Fatal("should be collecting mid-speech")
	}
	asm.Reset()
	det.Reset()
	if asm.Collecting() {
		t.Error("Reset() should discard partial utterance")
	}

	got := feed(t, det, asm, repeat(0.001, 30))
	if len(got) != 0 {
		t.Errorf("discarded speech should not flush, got %d", len(got))
	}
}
