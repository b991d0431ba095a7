package notify

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// writeHook creates dir/name with a hook.json manifest and an executable
// shell script, and returns the hook directory.
func writeHook(t *testing.T, dir string, manifest Manifest, script string) string {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}

	hookDir := filepath.Join(dir, manifest.Name)
	if err := os.MkdirAll(hookDir, 0755); err != nil {
		t.Fatalf("failed to create hook dir: %v", err)
	}

	data, err := json.Marshal(manifest)
	if err != nil {
		t.Fatalf("failed to marshal manifest: %v", err)
	}
	if err := os.WriteFile(filepath.Join(hookDir, ManifestFile), data, 0644); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}

	if script != "" {
		if err := os.WriteFile(filepath.Join(hookDir, manifest.Executable), []byte(script), 0755); err != nil {
			t.Fatalf("failed to write script: %v", err)
		}
	}

	return hookDir
}
