package capture

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestNewCamera(t *testing.T) {
	tests := []struct {
		name      string
		source    string
		wantLocal bool
		wantID    int
	}{
		{
			name:      "default device",
			source:    "0",
			wantLocal: true,
			wantID:    0,
		},
		{
			name:      "device 2",
			source:    "2",
			wantLocal: true,
			wantID:    2,
		},
		{
			name:      "video file",
			source:    "/var/footage/yard.mp4",
			wantLocal: false,
		},
		{
			name:      "rtsp stream",
			source:    "rtsp://10.0.0.5:554/live",
			wantLocal: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cam := NewCamera(tt.source)

			if cam == nil {
				t.Fatal("NewCamera returned nil")
			}

			impl := cam.(*cameraImpl)
			if impl.isLocal != tt.wantLocal {
				t.Errorf("isLocal = %v, want %v", impl.isLocal, tt.wantLocal)
			}
			if tt.wantLocal && impl.device != tt.wantID {
				t.Errorf("device = %d, want %d", impl.device, tt.wantID)
			}

			if got := cam.Source(); got != tt.source {
				t.Errorf("Source() = %q, want %q", got, tt.source)
			}
			if got := cam.FPS(); got != DefaultFPS {
				t.Errorf("FPS() = %d, want %d (default)", got, DefaultFPS)
			}
			if cam.IsOpen() {
				t.Error("camera should not be running initially")
			}
		})
	}
}

func TestCamera_SetFPS(t *testing.T) {
	cam := NewCamera("0")

	tests := []struct {
		name    string
		fps     int
		wantFPS int
	}{
		{
			name:    "set to 10",
			fps:     10,
			wantFPS: 10,
		},
		{
			name:    "set to 30",
			fps:     30,
			wantFPS: 30,
		},
		{
			name:    "set to 1",
			fps:     1,
			wantFPS: 1,
		},
		{
			name:    "set to 0 should keep previous",
			fps:     0,
			wantFPS: 1, // Previous value
		},
		{
			name:    "set to negative should keep previous",
			fps:     -5,
			wantFPS: 1, // Previous value
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cam.SetFPS(tt.fps)

			got := cam.FPS()
			if got != tt.wantFPS {
				t.Errorf("FPS() = %d, want %d", got, tt.wantFPS)
			}
		})
	}
}

func TestCamera_FPS(t *testing.T) {
	cam := NewCamera("0")

	if got := cam.FPS(); got != DefaultFPS {
		t.Errorf("FPS() = %d, want %d (default)", got, DefaultFPS)
	}

	cam.SetFPS(25)
	if got := cam.FPS(); got != 25 {
		t.Errorf("FPS() = %d, want 25", got)
	}
}

func TestCamera_IsOpen_NotOpened(t *testing.T) {
	cam := NewCamera("0")

	if cam.IsOpen() {
		t.Error("IsOpen() should return false before Open() is called")
	}
}

func TestCamera_OpenClose_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	cam := NewCamera("0")

	// Test Open
	err := cam.Open()
	if err != nil {
		t.Skipf("skipping test - camera not available: %v", err)
	}

	if !cam.IsOpen() {
		t.Error("IsOpen() should return true after Open()")
	}

	// Test ReadFrame
	mat, err := cam.ReadFrame()
	if err != nil {
		t.Errorf("ReadFrame() failed: %v", err)
	} else {
		if mat == nil {
			t.Error("ReadFrame() returned nil mat")
		} else if mat.Empty() {
			t.Error("ReadFrame() returned empty mat")
		} else {
			if mat.Cols() != DefaultWidth || mat.Rows() != DefaultHeight {
				t.Logf("Frame dimensions: %dx%d (camera ignored the %dx%d hint)", mat.Cols(), mat.Rows(), DefaultWidth, DefaultHeight)
			}
			mat.Close()
		}
	}

	// Test Close
	err = cam.Close()
	if err != nil {
		t.Errorf("Close() failed: %v", err)
	}

	if cam.IsOpen() {
		t.Error("IsOpen() should return false after Close()")
	}
}

func TestCamera_ReadFrame_NotOpened(t *testing.T) {
	cam := NewCamera("0")

	_, err := cam.ReadFrame()
	if !errors.Is(err, ErrCameraNotOpen) {
		t.Errorf("ReadFrame() error = %v, want ErrCameraNotOpen", err)
	}
}

func TestCamera_OpenMissingFile(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	cam := NewCamera(filepath.Join(t.TempDir(), "missing.mp4"))
	if err := cam.Open(); err == nil {
		cam.Close()
		t.Fatal("Open() should fail for a missing file")
	}
	if cam.IsOpen() {
		t.Error("camera should not be open after a failed Open()")
	}
}

func TestCamera_Close_NotOpened(t *testing.T) {
	cam := NewCamera("0")

	// Close on not opened camera should not panic and return nil
	err := cam.Close()
	if err != nil {
		t.Errorf("Close() on not opened camera should return nil, got: %v", err)
	}
}
