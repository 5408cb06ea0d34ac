// Package vad classifies audio frames as speech or silence using RMS
// energy with onset and hangover hysteresis.
package vad

import (
	"github.com/meetscout/platform/internal/audio"
)

// Decision is the classification of a single frame in stream context.
type Decision struct {
	Speech bool    // frame-level energy verdict
	Active bool    // detector state after hysteresis
	Onset  bool    // this frame started a speech run
	Offset bool    // this frame ended a speech run
	Energy float64 // RMS of the frame
}

// Detector applies a fixed energy threshold with debounce on both edges:
// speech is declared only after OnsetFrames consecutive speech frames, and
// ends only after HangoverFrames consecutive silence frames. Not safe for
// concurrent use.
type Detector struct {
	threshold      float64
	onsetFrames    int
	hangoverFrames int

	active       bool
	speechRun    int
	silenceRun   int
	framesSeen   uint64
	speechFrames uint64
}

// NewDetector creates a detector. Threshold is RMS in (0, 1); onset and
// hangover are consecutive frame counts.
func NewDetector(threshold float64, onsetFrames, hangoverFrames int) *Detector {
	if onsetFrames < 1 {
		onsetFrames = 1
	}
	if hangoverFrames < 1 {
		hangoverFrames = 1
	}
	return &Detector{
		threshold:      threshold,
		onsetFrames:    onsetFrames,
		hangoverFrames: hangoverFrames,
	}
}

// Process classifies one frame and advances the hysteresis state.
func (d *Detector) Process(f audio.Frame) Decision {
	energy := f.RMS()
	speech := energy >= d.threshold
	d.framesSeen++
	if speech {
		d.speechFrames++
	}

	dec := Decision{Speech: speech, Energy: energy}

	if speech {
		d.speechRun++
		d.silenceRun = 0
		if !d.active && d.speechRun >= d.onsetFrames {
			d.active = true
			dec.Onset = true
		}
	} else {
		d.silenceRun++
		d.speechRun = 0
		if d.active && d.silenceRun >= d.hangoverFrames {
			d.active = false
			dec.Offset = true
		}
	}

	dec.Active = d.active
	return dec
}

// Active reports whether the detector is currently inside a speech run.
func (d *Detector) Active() bool { return d.active }

// Reset returns the detector to its initial silent state.
func (d *Detector) Reset() {
	d.active = false
	d.speechRun = 0
	d.silenceRun = 0
}

// Stats returns total and speech-classified frame counts.
func (d *Detector) Stats() (frames, speech uint64) {
	return d.framesSeen, d.speechFrames
}
