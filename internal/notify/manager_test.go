package notify

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ayusman/kestrel/internal/detection"
)

func TestManager_Discover(t *testing.T) {
	tmpDir := t.TempDir()

	hookDir := writeHook(t, tmpDir, Manifest{
		Name:        "alert",
		Version:     "1.0.0",
		Description: "A test hook",
		Executable:  "alert.sh",
		Types:       []detection.Type{detection.TypeFused},
		CooldownMs:  250,
	}, "")

	manager := NewManager(tmpDir)
	if err := manager.Discover(); err != nil {
		t.Fatalf("Discover() failed: %v", err)
	}

	hooks := manager.List()
	if len(hooks) != 1 {
		t.Fatalf("expected 1 hook, got %d", len(hooks))
	}

	hook := hooks[0]
	if hook.Manifest.Name != "alert" {
		t.Errorf("expected hook name 'alert', got %q", hook.Manifest.Name)
	}
	if hook.Path != hookDir {
		t.Errorf("expected path %q, got %q", hookDir, hook.Path)
	}
	if hook.Executable != filepath.Join(hookDir, "alert.sh") {
		t.Errorf("unexpected executable path %q", hook.Executable)
	}
	if got := hook.Manifest.Cooldown().Milliseconds(); got != 250 {
		t.Errorf("expected cooldown 250ms, got %dms", got)
	}
}

func TestManager_Discover_SkipsInvalid(t *testing.T) {
	tmpDir := t.TempDir()

	writeHook(t, tmpDir, Manifest{Name: "b-hook", Executable: "run"}, "")
	writeHook(t, tmpDir, Manifest{Name: "a-hook", Executable: "run"}, "")
	writeHook(t, tmpDir, Manifest{Name: "no-exec"}, "")

	broken := filepath.Join(tmpDir, "broken")
	if err := os.MkdirAll(broken, 0755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(broken, ManifestFile), []byte("{not json"), 0644); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "stray-file"), []byte("x"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	manager := NewManager(tmpDir)
	if err := manager.Discover(); err != nil {
		t.Fatalf("Discover() failed: %v", err)
	}

	hooks := manager.List()
	if len(hooks) != 2 {
		t.Fatalf("expected 2 hooks, got %d", len(hooks))
	}
	if hooks[0].Manifest.Name != "a-hook" || hooks[1].Manifest.Name != "b-hook" {
		t.Errorf("hooks not sorted by name: %q, %q", hooks[0].Manifest.Name, hooks[1].Manifest.Name)
	}
}

func TestManager_Discover_MissingDir(t *testing.T) {
	manager := NewManager(filepath.Join(t.TempDir(), "does-not-exist"))
	if err := manager.Discover(); err != nil {
		t.Fatalf("Discover() on missing dir should succeed: %v", err)
	}
	if len(manager.List()) != 0 {
		t.Error("expected no hooks")
	}
}

func TestManager_Get(t *testing.T) {
	tmpDir := t.TempDir()
	writeHook(t, tmpDir, Manifest{Name: "my-hook", Executable: "bin"}, "")

	manager := NewManager(tmpDir)
	if err := manager.Discover(); err != nil {
		t.Fatalf("Discover() failed: %v", err)
	}

	if _, err := manager.Get("my-hook"); err != nil {
		t.Errorf("Get() failed: %v", err)
	}
	if _, err := manager.Get("other"); !errors.Is(err, ErrHookNotFound) {
		t.Errorf("expected ErrHookNotFound, got %v", err)
	}
	if manager.HookDir() != tmpDir {
		t.Errorf("HookDir() = %q, want %q", manager.HookDir(), tmpDir)
	}
}

func TestManifest_Select(t *testing.T) {
	ds := []detection.Detection{
		{Type: detection.TypeMotion, Confidence: 0.9},
		{Type: detection.TypeColorAnomaly, Confidence: 0.3},
		{Type: detection.TypeFused, Confidence: 0.7},
	}

	tests := []struct {
		name     string
		manifest Manifest
		want     int
	}{
		{"all", Manifest{}, 3},
		{"by type", Manifest{Types: []detection.Type{detection.TypeFused, detection.TypeMotion}}, 2},
		{"by confidence", Manifest{MinConfidence: 0.5}, 2},
		{"min detections met", Manifest{MinDetections: 3}, 3},
		{"min detections not met", Manifest{MinConfidence: 0.8, MinDetections: 2}, 0},
		{"nothing matches", Manifest{Types: []detection.Type{detection.TypeFused}, MinConfidence: 0.95}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(tt.manifest.Select(ds)); got != tt.want {
				t.Errorf("Select() returned %d detections, want %d", got, tt.want)
			}
		})
	}
}
