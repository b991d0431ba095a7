package e2e

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ayusman/kestrel/internal/app"
	"github.com/ayusman/kestrel/internal/capture"
	"github.com/ayusman/kestrel/internal/config"
	"github.com/ayusman/kestrel/internal/pipeline"
	"github.com/ayusman/kestrel/internal/server"
	"github.com/ayusman/kestrel/internal/store"
	"github.com/ayusman/kestrel/testdata"
)

func TestE2E_CompleteWorkflow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "data.db")

	s, err := store.New(dbPath)
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer s.Close()

	cfg := config.Default()
	cfg.ProcessingWidth = 120
	cfg.ProcessingHeight = 120
	cfg.MotionAlgorithm = config.MotionFrameDiff
	cfg.EnableTemporalVoting = false
	cfg.PauseOnCameraMovement = false

	orch := pipeline.New(config.NewHolder(cfg))
	defer orch.Close()

	frames, err := testdata.MovingSquare(12, 120, 120, 20, 6, testdata.Black, testdata.White)
	if err != nil {
		t.Fatalf("MovingSquare() error = %v", err)
	}
	defer testdata.CloseAll(frames)

	cam := capture.NewMockCamera(frames, false)
	cam.SetFPS(30)

	application := app.New(app.Config{
		Store:   s,
		HookDir: filepath.Join(tmpDir, "hooks"),
		Camera:  cam,
	}, orch)
	defer application.Close()

	srv := server.New(server.Config{
		Store:    s,
		Pipeline: orch,
		Frames:   application,
		Toggle:   application,
		Metrics:  orch.MetricsCollector().Handler(),
	})
	orch.Subscribe(srv.Hub())

	ts := httptest.NewServer(srv)
	defer ts.Close()

	client := ts.Client()

	do := func(t *testing.T, method, path, body string, wantStatus int, out any) {
		t.Helper()
		req, err := http.NewRequest(method, ts.URL+path, strings.NewReader(body))
		if err != nil {
			t.Fatalf("NewRequest() error = %v", err)
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := client.Do(req)
		if err != nil {
			t.Fatalf("%s %s error = %v", method, path, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != wantStatus {
			t.Fatalf("%s %s status = %d, want %d", method, path, resp.StatusCode, wantStatus)
		}
		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				t.Fatalf("decode %s error = %v", path, err)
			}
		}
	}

	t.Run("TuneConfig", func(t *testing.T) {
		var got config.DetectionConfig
		do(t, http.MethodPut, "/api/config", `{"min_detection_area": 40}`, http.StatusOK, &got)
		if got.MinDetectionArea != 40 {
			t.Errorf("min_detection_area = %v, want 40", got.MinDetectionArea)
		}
		if got.ProcessingWidth != 120 {
			t.Errorf("processing_width = %d, want 120 (merge must keep other fields)", got.ProcessingWidth)
		}

		do(t, http.MethodPut, "/api/config", `{"motion_threshold": 0}`, http.StatusBadRequest, nil)
	})

	t.Run("SaveAndApplyPreset", func(t *testing.T) {
		do(t, http.MethodPost, "/api/presets", `{"name": "bench"}`, http.StatusCreated, nil)
		do(t, http.MethodPut, "/api/config", `{"min_detection_area": 90}`, http.StatusOK, nil)
		do(t, http.MethodPost, "/api/presets/bench/apply", "", http.StatusOK, nil)

		if got := orch.Config().MinDetectionArea; got != 40 {
			t.Errorf("MinDetectionArea after apply = %v, want 40", got)
		}
		active, err := s.Settings().Get(store.SettingActivePreset)
		if err != nil || active != "bench" {
			t.Errorf("active preset = %q, %v; want bench", active, err)
		}
	})

	t.Run("RunSource", func(t *testing.T) {
		if err := application.Start(); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		select {
		case <-application.Done():
		case <-time.After(5 * time.Second):
			t.Fatal("app did not finish the source")
		}

		var snap struct {
			FramesProcessed uint64 `json:"frames_processed"`
		}
		do(t, http.MethodGet, "/api/metrics/summary", "", http.StatusOK, &snap)
		if snap.FramesProcessed == 0 {
			t.Error("frames_processed should be positive")
		}

		do(t, http.MethodPost, "/api/exclusions/sample", `{"x": 0, "y": 0, "w": 10, "h": 10}`, http.StatusOK, nil)

		application.Stop()
	})

	t.Run("ReviewSession", func(t *testing.T) {
		var list struct {
			Sessions []store.Session `json:"sessions"`
		}
		do(t, http.MethodGet, "/api/sessions", "", http.StatusOK, &list)
		if len(list.Sessions) != 1 {
			t.Fatalf("sessions = %d, want 1", len(list.Sessions))
		}
		sess := list.Sessions[0]
		if sess.Active() {
			t.Error("session should be ended after Stop()")
		}
		if sess.Frames == 0 {
			t.Error("session should count frames")
		}

		var events struct {
			Events []store.Event `json:"events"`
		}
		do(t, http.MethodGet, "/api/sessions/"+sess.ID+"/events", "", http.StatusOK, &events)
		if int64(len(events.Events)) != sess.Detections {
			t.Errorf("events = %d, want %d", len(events.Events), sess.Detections)
		}
	})

	t.Run("DisableDetection", func(t *testing.T) {
		do(t, http.MethodPut, "/api/enabled", `{"enabled": false}`, http.StatusOK, nil)
		if application.IsEnabled() {
			t.Error("detection should be disabled")
		}
	})
}
