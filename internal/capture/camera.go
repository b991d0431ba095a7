// Package capture acquires frames from cameras, video files and streams
// and hands them to the detection pipeline through a single-slot queue.
package capture

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	"gocv.io/x/gocv"
)

// Default capture settings. Resolution hints apply to local devices only.
const (
	DefaultFPS    = 15
	DefaultWidth  = 1280
	DefaultHeight = 720
)

var (
	// ErrCameraNotOpen is returned when reading from a source that is not open.
	ErrCameraNotOpen = errors.New("camera is not open")
	// ErrEndOfStream is returned when a file or stream has no more frames.
	ErrEndOfStream = errors.New("end of stream")
)

// Camera is a source of BGR frames.
type Camera interface {
	Open() error
	Close() error
	ReadFrame() (*gocv.Mat, error)
	SetFPS(fps int)
	FPS() int
	IsOpen() bool
	Source() string
}

// cameraImpl reads from a device index, a video file, or a stream URL.
type cameraImpl struct {
	source  string
	device  int
	isLocal bool

	capture *gocv.VideoCapture
	mu      sync.Mutex
	running bool
	fps     int
}

// NewCamera creates a Camera for source. A source that parses as an
// integer is a local device index; anything else (file path, rtsp:// or
// http:// URL) is opened as a video stream.
func NewCamera(source string) Camera {
	c := &cameraImpl{
		source: source,
		fps:    DefaultFPS,
	}
	if id, err := strconv.Atoi(source); err == nil {
		c.device = id
		c.isLocal = true
	}
	return c
}

// Open opens the source. Local devices get the default resolution and
// frame-rate hints.
func (c *cameraImpl) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	var (
		capture *gocv.VideoCapture
		err     error
	)
	if c.isLocal {
		capture, err = gocv.OpenVideoCapture(c.device)
	} else {
		capture, err = gocv.OpenVideoCapture(c.source)
	}
	if err != nil {
		return fmt.Errorf("failed to open capture source %q: %w", c.source, err)
	}

	if c.isLocal {
		capture.Set(gocv.VideoCaptureFrameWidth, DefaultWidth)
		capture.Set(gocv.VideoCaptureFrameHeight, DefaultHeight)
		capture.Set(gocv.VideoCaptureFPS, float64(c.fps))
	} else if fps := capture.Get(gocv.VideoCaptureFPS); fps > 0 {
		c.fps = int(fps + 0.5)
	}

	c.capture = capture
	c.running = true

	return nil
}

// Close closes the source and releases resources.
func (c *cameraImpl) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		c.running = false
		return nil
	}

	err := c.capture.Close()
	c.capture = nil
	c.running = false

	return err
}

// ReadFrame reads a single frame. The caller must close the returned Mat.
// Files and streams report ErrEndOfStream once exhausted.
func (c *cameraImpl) ReadFrame() (*gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		return nil, ErrCameraNotOpen
	}

	mat := gocv.NewMat()
	if ok := c.capture.Read(&mat); !ok {
		mat.Close()
		if !c.isLocal {
			return nil, ErrEndOfStream
		}
		return nil, errors.New("failed to read frame from camera")
	}

	if mat.Empty() {
		mat.Close()
		return nil, errors.New("captured frame is empty")
	}

	return &mat, nil
}

// SetFPS sets the capture rate. Values less than or equal to 0 are ignored.
func (c *cameraImpl) SetFPS(fps int) {
	if fps <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.fps = fps

	if c.capture != nil && c.isLocal {
		c.capture.Set(gocv.VideoCaptureFPS, float64(fps))
	}
}

// FPS returns the current capture rate.
func (c *cameraImpl) FPS() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.fps
}

// IsOpen returns true if the source is open.
func (c *cameraImpl) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.running
}

// Source returns the source string the camera was created with.
func (c *cameraImpl) Source() string {
	return c.source
}
