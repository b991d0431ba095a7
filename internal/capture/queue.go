package capture

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"
)

// ErrQueueEmpty is returned when no frame arrives before the wait expires.
var ErrQueueEmpty = errors.New("frame queue is empty")

// Frame is a captured image with its capture metadata. The receiver owns
// Mat and must close it.
type Frame struct {
	Mat       gocv.Mat
	Timestamp float64       // seconds since capture started, monotonic
	Latency   time.Duration // time spent reading the frame from the source
}

// FrameQueue holds at most one pending frame. A new frame replaces an
// unconsumed one, which is closed and counted as dropped, so a slow
// consumer always sees the latest frame.
type FrameQueue struct {
	mu      sync.Mutex
	pending *Frame
	ready   chan struct{}
	dropped atomic.Uint64
	closed  bool
}

// NewFrameQueue creates an empty queue.
func NewFrameQueue() *FrameQueue {
	return &FrameQueue{ready: make(chan struct{}, 1)}
}

// Put enqueues f. It never blocks. Frames put after Close are discarded.
func (q *FrameQueue) Put(f Frame) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		f.Mat.Close()
		return
	}
	if q.pending != nil {
		q.pending.Mat.Close()
		q.dropped.Add(1)
	}
	q.pending = &f
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// TryGet returns the pending frame without waiting.
func (q *FrameQueue) TryGet() (Frame, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.pending == nil {
		return Frame{}, ErrQueueEmpty
	}
	f := *q.pending
	q.pending = nil
	return f, nil
}

// Get waits up to timeout for a frame.
func (q *FrameQueue) Get(timeout time.Duration) (Frame, error) {
	if f, err := q.TryGet(); err == nil {
		return f, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-q.ready:
			if f, err := q.TryGet(); err == nil {
				return f, nil
			}
		case <-timer.C:
			return Frame{}, ErrQueueEmpty
		}
	}
}

// Dropped returns how many frames were replaced before being consumed.
func (q *FrameQueue) Dropped() uint64 {
	return q.dropped.Load()
}

// Close discards the pending frame and rejects further frames.
func (q *FrameQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.pending != nil {
		q.pending.Mat.Close()
		q.pending = nil
	}
	q.closed = true
}
