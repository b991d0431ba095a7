package store

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/ayusman/kestrel/internal/detection"
)

// newTestStore creates a new Store backed by a temporary database file.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})

	return s
}

func TestSessionRepository_Lifecycle(t *testing.T) {
	s := newTestStore(t)
	repo := s.Sessions()

	sess, err := repo.Start("0")
	if err != nil {
		t.Fatalf("failed to start session: %v", err)
	}
	if sess.ID == "" {
		t.Fatal("session ID should be assigned")
	}
	if !sess.Active() {
		t.Error("new session should be active")
	}

	if err := repo.AddCounts(sess.ID, 10, 3); err != nil {
		t.Fatalf("failed to add counts: %v", err)
	}
	if err := repo.AddCounts(sess.ID, 5, 1); err != nil {
		t.Fatalf("failed to add counts: %v", err)
	}

	if err := repo.End(sess.ID); err != nil {
		t.Fatalf("failed to end session: %v", err)
	}
	if err := repo.End(sess.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("ending an ended session: got %v, want ErrNotFound", err)
	}

	got, err := repo.GetByID(sess.ID)
	if err != nil {
		t.Fatalf("failed to get session: %v", err)
	}
	if got.Frames != 15 || got.Detections != 4 {
		t.Errorf("counts = %d/%d, want 15/4", got.Frames, got.Detections)
	}
	if got.Active() {
		t.Error("ended session should not be active")
	}
	if got.Source != "0" {
		t.Errorf("Source = %q, want %q", got.Source, "0")
	}
}

func TestSessionRepository_NotFound(t *testing.T) {
	s := newTestStore(t)
	repo := s.Sessions()

	if _, err := repo.GetByID("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID: got %v, want ErrNotFound", err)
	}
	if err := repo.AddCounts("missing", 1, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("AddCounts: got %v, want ErrNotFound", err)
	}
	if err := repo.Delete("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete: got %v, want ErrNotFound", err)
	}
}

func TestSessionRepository_ListLimit(t *testing.T) {
	s := newTestStore(t)
	repo := s.Sessions()

	for _, src := range []string{"a.mp4", "b.mp4", "c.mp4"} {
		if _, err := repo.Start(src); err != nil {
			t.Fatalf("failed to start session: %v", err)
		}
	}

	all, err := repo.List(0)
	if err != nil {
		t.Fatalf("failed to list sessions: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("List(0) returned %d sessions, want 3", len(all))
	}

	two, err := repo.List(2)
	if err != nil {
		t.Fatalf("failed to list sessions: %v", err)
	}
	if len(two) != 2 {
		t.Errorf("List(2) returned %d sessions, want 2", len(two))
	}
}

func TestEventRepository_RecordAndList(t *testing.T) {
	s := newTestStore(t)
	sess, err := s.Sessions().Start("clip.mp4")
	if err != nil {
		t.Fatalf("failed to start session: %v", err)
	}

	ds := []detection.Detection{
		{
			BBox:       detection.BBox{X: 1, Y: 2, W: 30, H: 40},
			Area:       1200,
			Confidence: 0.9,
			Type:       detection.TypeMotion,
			Timestamp:  1.5,
		},
		{
			BBox:       detection.BBox{X: 50, Y: 60, W: 10, H: 10},
			Area:       100,
			Confidence: 0.4,
			Type:       detection.TypeColorAnomaly,
			Timestamp:  1.5,
			Metadata:   map[string]any{detection.MetaBinCount: 12},
		},
	}

	repo := s.Events()
	if err := repo.Record(sess.ID, ds); err != nil {
		t.Fatalf("failed to record events: %v", err)
	}
	if err := repo.Record(sess.ID, nil); err != nil {
		t.Fatalf("recording no detections should succeed: %v", err)
	}

	events, err := repo.ListBySession(sess.ID, 0)
	if err != nil {
		t.Fatalf("failed to list events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}

	if events[0].BBox != ds[0].BBox || events[0].Type != detection.TypeMotion {
		t.Errorf("first event = %+v, want bbox %+v type motion", events[0], ds[0].BBox)
	}
	if string(events[0].Metadata) != "{}" {
		t.Errorf("empty metadata stored as %s, want {}", events[0].Metadata)
	}

	var meta map[string]any
	if err := json.Unmarshal(events[1].Metadata, &meta); err != nil {
		t.Fatalf("metadata is not valid JSON: %v", err)
	}
	if meta[detection.MetaBinCount] != float64(12) {
		t.Errorf("bin_count = %v, want 12", meta[detection.MetaBinCount])
	}

	n, err := repo.CountBySession(sess.ID)
	if err != nil {
		t.Fatalf("failed to count events: %v", err)
	}
	if n != 2 {
		t.Errorf("CountBySession = %d, want 2", n)
	}
}

func TestEventRepository_CascadeOnSessionDelete(t *testing.T) {
	s := newTestStore(t)
	sess, err := s.Sessions().Start("0")
	if err != nil {
		t.Fatalf("failed to start session: %v", err)
	}

	err = s.Events().Record(sess.ID, []detection.Detection{{Type: detection.TypeFused, BBox: detection.BBox{W: 5, H: 5}}})
	if err != nil {
		t.Fatalf("failed to record events: %v", err)
	}

	if err := s.Sessions().Delete(sess.ID); err != nil {
		t.Fatalf("failed to delete session: %v", err)
	}

	n, err := s.Events().CountBySession(sess.ID)
	if err != nil {
		t.Fatalf("failed to count events: %v", err)
	}
	if n != 0 {
		t.Errorf("events should be deleted with their session, %d remain", n)
	}
}

func TestEventRepository_RejectsUnknownSession(t *testing.T) {
	s := newTestStore(t)

	err := s.Events().Record("missing", []detection.Detection{{Type: detection.TypeMotion}})
	if err == nil {
		t.Error("recording under an unknown session should fail the foreign key")
	}
}

func TestPresetRepository_SaveUpserts(t *testing.T) {
	s := newTestStore(t)
	repo := s.Presets()

	p := &Preset{Name: "night", Config: json.RawMessage(`{"min_area":100}`)}
	if err := repo.Save(p); err != nil {
		t.Fatalf("failed to save preset: %v", err)
	}
	firstID := p.ID

	again := &Preset{Name: "night", Config: json.RawMessage(`{"min_area":250}`)}
	if err := repo.Save(again); err != nil {
		t.Fatalf("failed to overwrite preset: %v", err)
	}
	if again.ID != firstID {
		t.Errorf("overwritten preset ID = %q, want %q", again.ID, firstID)
	}

	got, err := repo.GetByName("night")
	if err != nil {
		t.Fatalf("failed to get preset: %v", err)
	}
	if string(got.Config) != `{"min_area":250}` {
		t.Errorf("Config = %s, want updated value", got.Config)
	}

	list, err := repo.List()
	if err != nil {
		t.Fatalf("failed to list presets: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("got %d presets, want 1", len(list))
	}
}

func TestPresetRepository_Delete(t *testing.T) {
	s := newTestStore(t)
	repo := s.Presets()

	if err := repo.Save(&Preset{Name: "day", Config: json.RawMessage(`{}`)}); err != nil {
		t.Fatalf("failed to save preset: %v", err)
	}
	if err := repo.Delete("day"); err != nil {
		t.Fatalf("failed to delete preset: %v", err)
	}
	if _, err := repo.GetByName("day"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByName after delete: got %v, want ErrNotFound", err)
	}
	if err := repo.Delete("day"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete: got %v, want ErrNotFound", err)
	}
}

func TestSettingsRepository(t *testing.T) {
	s := newTestStore(t)
	repo := s.Settings()

	if _, err := repo.Get(SettingEnabled); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get unset key: got %v, want ErrNotFound", err)
	}

	v, err := repo.GetOr(SettingEnabled, "true")
	if err != nil || v != "true" {
		t.Errorf("GetOr = %q, %v; want fallback", v, err)
	}

	if err := repo.Set(SettingEnabled, "false"); err != nil {
		t.Fatalf("failed to set: %v", err)
	}
	if err := repo.Set(SettingEnabled, "true"); err != nil {
		t.Fatalf("failed to overwrite: %v", err)
	}

	v, err = repo.Get(SettingEnabled)
	if err != nil {
		t.Fatalf("failed to get: %v", err)
	}
	if v != "true" {
		t.Errorf("Get = %q, want %q", v, "true")
	}
}
