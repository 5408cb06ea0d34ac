package audio

import (
	"sync/atomic"

	"github.com/meetscout/platform/internal/metrics"
)

// FrameQueue is a bounded queue between the capture goroutine and the
// pipeline consumer. When full, the oldest frame is discarded so the
// consumer always sees the most recent audio. Push is only safe from a
// single producer.
type FrameQueue struct {
	ch      chan Frame
	dropped atomic.Uint64
}

// NewFrameQueue creates a queue holding at most size frames.
func NewFrameQueue(size int) *FrameQueue {
	if size < 1 {
		size = 1
	}
	return &FrameQueue{ch: make(chan Frame, size)}
}

// Push enqueues a frame, evicting the oldest one if the queue is full.
func (q *FrameQueue) Push(f Frame) {
	for {
		select {
		case q.ch <- f:
			return
		default:
		}
		select {
		case <-q.ch:
			q.dropped.Add(1)
			metrics.FramesDropped.Inc()
		default:
		}
	}
}

// Frames returns the receive side of the queue.
func (q *FrameQueue) Frames() <-chan Frame {
	return q.ch
}

// Dropped returns the total number of frames evicted so far.
func (q *FrameQueue) Dropped() uint64 {
	return q.dropped.Load()
}

// Len returns the number of frames currently buffered.
func (q *FrameQueue) Len() int {
	return len(q.ch)
}
