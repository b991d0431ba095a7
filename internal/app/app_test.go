package app

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/ayusman/kestrel/internal/capture"
	"github.com/ayusman/kestrel/internal/config"
	"github.com/ayusman/kestrel/internal/detection"
	"github.com/ayusman/kestrel/internal/metrics"
	"github.com/ayusman/kestrel/internal/pipeline"
	"github.com/ayusman/kestrel/internal/store"
	"github.com/ayusman/kestrel/testdata"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func motionConfig() config.DetectionConfig {
	cfg := config.Default()
	cfg.ProcessingWidth = 120
	cfg.ProcessingHeight = 120
	cfg.MotionAlgorithm = config.MotionFrameDiff
	cfg.MinDetectionArea = 50
	cfg.EnableTemporalVoting = false
	cfg.PauseOnCameraMovement = false
	return cfg
}

func TestApp_ProcessesFileSourceAndRecordsSession(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	s := newTestStore(t)

	frames, err := testdata.MovingSquare(12, 120, 120, 20, 6, testdata.Black, testdata.White)
	require.NoError(t, err)
	defer testdata.CloseAll(frames)

	cam := capture.NewMockCamera(frames, false)
	cam.SetFPS(30)

	orch := pipeline.New(config.NewHolder(motionConfig()))
	defer orch.Close()

	var results int
	orch.Subscribe(pipeline.ObserverFuncs{Frame: func(pipeline.Result) { results++ }})

	a := New(Config{Store: s, HookDir: t.TempDir(), Camera: cam}, orch)
	require.NoError(t, a.DiscoverHooks())
	require.NoError(t, a.Start())

	select {
	case <-a.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("app did not finish the file source")
	}

	sessionID := a.SessionID()
	require.NotEmpty(t, sessionID)

	latest, ok := a.LatestFrame()
	require.True(t, ok)
	assert.Equal(t, 120, latest.Cols())
	latest.Close()

	a.Close()

	assert.Positive(t, results)

	sess, err := s.Sessions().GetByID(sessionID)
	require.NoError(t, err)
	assert.False(t, sess.Active())
	assert.Equal(t, "mock", sess.Source)
	assert.Equal(t, int64(results), sess.Frames)
	assert.Positive(t, sess.Detections)

	n, err := s.Events().CountBySession(sessionID)
	require.NoError(t, err)
	assert.Equal(t, sess.Detections, n)

	snap := orch.Metrics()
	assert.Equal(t, uint64(results), snap.FramesProcessed+snap.FramesSkipped+snap.FramesMalformed)
	assert.Equal(t, uint64(12), uint64(results)+snap.FramesDropped)
}

func TestApp_DisabledSkipsProcessing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	s := newTestStore(t)
	require.NoError(t, s.Settings().Set(store.SettingEnabled, "false"))

	frame := testdata.SolidFrame(60, 60, testdata.Black)
	defer frame.Close()
	cam := capture.NewMockCamera([]*gocv.Mat{&frame, &frame, &frame}, false)
	cam.SetFPS(50)

	orch := pipeline.New(config.NewHolder(motionConfig()))
	defer orch.Close()

	a := New(Config{Store: s, Camera: cam}, orch)
	require.NoError(t, a.LoadSettings())
	assert.False(t, a.IsEnabled())

	require.NoError(t, a.Start())
	require.NoError(t, a.Wait())
	a.Close()

	assert.Zero(t, orch.Metrics().FramesProcessed)

	a.SetEnabled(true)
	v, err := s.Settings().Get(store.SettingEnabled)
	require.NoError(t, err)
	assert.Equal(t, "true", v)
}

func TestApp_WaitBeforeStart(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	orch := pipeline.New(config.NewHolder(config.Default()))
	defer orch.Close()

	a := New(Config{Camera: capture.NewMockCamera(nil, false)}, orch)
	assert.ErrorIs(t, a.Wait(), ErrNotRunning)
	_, ok := a.LatestFrame()
	assert.False(t, ok)
	assert.Empty(t, a.SessionID())
}

func TestRecorder_BatchesUntilPerformanceReport(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	r := newRecorder(s)

	// Frames before a session are ignored.
	r.OnFrame(pipeline.Result{Detections: []detection.Detection{{Type: detection.TypeMotion}}})

	require.NoError(t, r.start("0"))
	id := r.sessionID()

	r.OnFrame(pipeline.Result{Detections: []detection.Detection{
		{Type: detection.TypeMotion, BBox: detection.BBox{W: 2, H: 2}},
		{Type: detection.TypeFused, BBox: detection.BBox{W: 3, H: 3}},
	}})
	r.OnFrame(pipeline.Result{})
	r.OnFrame(pipeline.Result{Skipped: true, Detections: []detection.Detection{{Type: detection.TypeMotion}}})

	n, err := s.Events().CountBySession(id)
	require.NoError(t, err)
	assert.Zero(t, n, "nothing is written before the flush")

	r.OnPerformance(metrics.Snapshot{})

	n, err = s.Events().CountBySession(id)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	sess, err := s.Sessions().GetByID(id)
	require.NoError(t, err)
	assert.Equal(t, int64(2), sess.Frames)
	assert.Equal(t, int64(2), sess.Detections)

	require.NoError(t, r.end())
	assert.Empty(t, r.sessionID())

	sess, err = s.Sessions().GetByID(id)
	require.NoError(t, err)
	assert.False(t, sess.Active())
}

func TestRecorder_CapsPendingEvents(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	r := newRecorder(s)
	require.NoError(t, r.start("0"))

	big := make([]detection.Detection, maxPendingEvents+10)
	for i := range big {
		big[i] = detection.Detection{Type: detection.TypeColorAnomaly}
	}
	r.OnFrame(pipeline.Result{Detections: big})
	require.NoError(t, r.flush())

	n, err := s.Events().CountBySession(r.sessionID())
	require.NoError(t, err)
	assert.Equal(t, int64(maxPendingEvents), n)

	sess, err := s.Sessions().GetByID(r.sessionID())
	require.NoError(t, err)
	assert.Equal(t, int64(len(big)), sess.Detections)
}
