package app

import (
	"sync"

	"github.com/ayusman/kestrel/internal/detection"
	"github.com/ayusman/kestrel/internal/logging"
	"github.com/ayusman/kestrel/internal/metrics"
	"github.com/ayusman/kestrel/internal/pipeline"
	"github.com/ayusman/kestrel/internal/store"
)

// maxPendingEvents caps buffered detections between flushes; beyond it
// further detections are counted but not stored.
const maxPendingEvents = 5000

// recorder is a pipeline observer that persists detections to the current
// session. Writes are batched and flushed with each performance report so
// the frame path never waits on the database.
type recorder struct {
	store *store.Store

	mu         sync.Mutex
	session    string
	frames     int64
	detections int64
	pending    []detection.Detection
}

func newRecorder(s *store.Store) *recorder {
	return &recorder{store: s}
}

func (r *recorder) start(source string) error {
	sess, err := r.store.Sessions().Start(source)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.session = sess.ID
	r.frames, r.detections, r.pending = 0, 0, nil
	r.mu.Unlock()

	logging.Info(logging.Fields{"session": sess.ID, "source": source}, "Recording session started")
	return nil
}

func (r *recorder) sessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session
}

// OnFrame implements pipeline.Observer.
func (r *recorder) OnFrame(res pipeline.Result) {
	if res.Skipped || res.Malformed {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session == "" {
		return
	}
	r.frames++
	r.detections += int64(len(res.Detections))
	if room := maxPendingEvents - len(r.pending); room > 0 {
		r.pending = append(r.pending, res.Detections[:min(room, len(res.Detections))]...)
	}
}

// OnPerformance implements pipeline.Observer.
func (r *recorder) OnPerformance(metrics.Snapshot) {
	if err := r.flush(); err != nil {
		logging.Warn(logging.Fields{"error": err}, "Failed to record detections")
	}
}

func (r *recorder) flush() error {
	r.mu.Lock()
	session := r.session
	frames, dets, pending := r.frames, r.detections, r.pending
	r.frames, r.detections, r.pending = 0, 0, nil
	r.mu.Unlock()

	if session == "" || (frames == 0 && len(pending) == 0) {
		return nil
	}

	if err := r.store.Events().Record(session, pending); err != nil {
		return err
	}
	return r.store.Sessions().AddCounts(session, frames, dets)
}

func (r *recorder) end() error {
	if err := r.flush(); err != nil {
		return err
	}

	r.mu.Lock()
	session := r.session
	r.session = ""
	r.mu.Unlock()

	if session == "" {
		return nil
	}
	logging.Info(logging.Fields{"session": session}, "Recording session ended")
	return r.store.Sessions().End(session)
}
