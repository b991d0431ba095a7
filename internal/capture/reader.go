package capture

import (
	"errors"
	"sync"
	"time"

	"github.com/ayusman/kestrel/internal/logging"
)

// Reader pulls frames from a Camera at its frame rate and puts them on a
// FrameQueue.
type Reader struct {
	camera Camera
	queue  *FrameQueue

	mu     sync.Mutex
	stopCh chan struct{}
	doneCh chan struct{}
	start  time.Time
}

// NewReader creates a reader feeding queue from camera.
func NewReader(camera Camera, queue *FrameQueue) *Reader {
	return &Reader{camera: camera, queue: queue}
}

// Start opens the camera and begins capturing. Calling Start on a running
// reader is a no-op.
func (r *Reader) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopCh != nil {
		return nil
	}

	if err := r.camera.Open(); err != nil {
		return err
	}

	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	r.start = time.Now()
	go r.run(r.stopCh, r.doneCh)

	logging.Info(logging.Fields{"source": r.camera.Source(), "fps": r.camera.FPS()}, "Capture started")
	return nil
}

// Stop halts capture and closes the camera.
func (r *Reader) Stop() {
	r.mu.Lock()
	stopCh, doneCh := r.stopCh, r.doneCh
	r.stopCh, r.doneCh = nil, nil
	r.mu.Unlock()

	if stopCh == nil {
		return
	}
	close(stopCh)
	<-doneCh

	if err := r.camera.Close(); err != nil {
		logging.Warn(logging.Fields{"error": err}, "Failed to close capture source")
	}
	logging.Info(nil, "Capture stopped")
}

// Running reports whether the capture loop is active.
func (r *Reader) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopCh != nil
}

// Done is closed when the capture loop exits, either after Stop or at the
// end of a file source. It returns nil when the reader is not running.
func (r *Reader) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.doneCh
}

func (r *Reader) run(stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	fps := max(1, r.camera.FPS())
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			began := time.Now()
			mat, err := r.camera.ReadFrame()
			if errors.Is(err, ErrEndOfStream) {
				logging.Info(logging.Fields{"source": r.camera.Source()}, "Capture source exhausted")
				return
			}
			if err != nil {
				failures++
				// Log the first failure and then every 100th.
				if failures%100 == 1 {
					logging.Warn(logging.Fields{"error": err, "failures": failures}, "Error reading frame")
				}
				continue
			}
			failures = 0

			r.queue.Put(Frame{
				Mat:       *mat,
				Timestamp: began.Sub(r.start).Seconds(),
				Latency:   time.Since(began),
			})
		}
	}
}
