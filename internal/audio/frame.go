// Package audio handles microphone capture and frame plumbing.
package audio

import (
	"math"
	"time"
)

// Frame is a fixed-duration chunk of mono PCM audio.
type Frame struct {
	Samples    []float32
	SampleRate int
	Timestamp  time.Time
}

// Duration returns the frame length in wall-clock time.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f.Samples)) * time.Second / time.Duration(f.SampleRate)
}

// RMS returns the root mean square energy of the frame, in [0, 1] for
// normalized samples.
func (f Frame) RMS() float64 {
	if len(f.Samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range f.Samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(f.Samples)))
}
