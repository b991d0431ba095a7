// Package app wires capture, the detection pipeline, session recording and
// alert hooks into one running service.
package app

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/kestrel/internal/capture"
	"github.com/ayusman/kestrel/internal/logging"
	"github.com/ayusman/kestrel/internal/notify"
	"github.com/ayusman/kestrel/internal/pipeline"
	"github.com/ayusman/kestrel/internal/store"
)

// Pipeline timing constants.
const (
	// FrameWait is how long the processing loop waits for a frame before
	// checking for shutdown again.
	FrameWait = 100 * time.Millisecond
	// DefaultHookTimeout bounds a single hook run.
	DefaultHookTimeout = 5 * time.Second
)

// Config holds configuration options for the application.
type Config struct {
	Store       *store.Store
	HookDir     string
	HookTimeout time.Duration
	// Source is a device index ("0") or a video file path or stream URL.
	Source string
	// Camera overrides Source when set.
	Camera capture.Camera
}

// App drives frames from the camera through the orchestrator.
type App struct {
	config   Config
	camera   capture.Camera
	queue    *capture.FrameQueue
	reader   *capture.Reader
	pipeline *pipeline.Orchestrator
	hookMgr  *notify.Manager
	notifier *notify.Notifier
	recorder *recorder

	enabled bool
	mu      sync.RWMutex
	stopCh  chan struct{}
	doneCh  chan struct{}

	frameMu   sync.Mutex
	lastFrame gocv.Mat
	hasFrame  bool

	dropped uint64
}

// New creates a new App around orchestrator. Detection starts enabled.
func New(config Config, orchestrator *pipeline.Orchestrator) *App {
	if config.HookTimeout <= 0 {
		config.HookTimeout = DefaultHookTimeout
	}

	camera := config.Camera
	if camera == nil {
		camera = capture.NewCamera(config.Source)
	}

	queue := capture.NewFrameQueue()
	hookMgr := notify.NewManager(config.HookDir)

	a := &App{
		config:   config,
		camera:   camera,
		queue:    queue,
		reader:   capture.NewReader(camera, queue),
		pipeline: orchestrator,
		hookMgr:  hookMgr,
		notifier: notify.NewNotifier(hookMgr, notify.NewExecutor(config.HookTimeout)),
		enabled:  true,
	}

	if config.Store != nil {
		a.recorder = newRecorder(config.Store)
		orchestrator.Subscribe(a.recorder)
	}
	orchestrator.Subscribe(a.notifier)

	return a
}

// LoadSettings restores persisted settings. It is a no-op without a store.
func (a *App) LoadSettings() error {
	if a.config.Store == nil {
		return nil
	}

	raw, err := a.config.Store.Settings().GetOr(store.SettingEnabled, "true")
	if err != nil {
		return err
	}
	enabled, err := strconv.ParseBool(raw)
	if err != nil {
		logging.Warn(logging.Fields{"value": raw}, "Ignoring invalid enabled setting")
		return nil
	}

	a.mu.Lock()
	a.enabled = enabled
	a.mu.Unlock()
	return nil
}

// SetEnabled enables or disables detection. While disabled, frames are
// still captured so the latest frame stays fresh, but not processed.
func (a *App) SetEnabled(enabled bool) {
	a.mu.Lock()
	a.enabled = enabled
	a.mu.Unlock()

	if a.config.Store != nil {
		if err := a.config.Store.Settings().Set(store.SettingEnabled, strconv.FormatBool(enabled)); err != nil {
			logging.Warn(logging.Fields{"error": err}, "Failed to persist enabled setting")
		}
	}
	logging.Info(logging.Fields{"enabled": enabled}, "Detection toggled")
}

// IsEnabled returns whether detection is currently enabled.
func (a *App) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled
}

// DiscoverHooks scans the hook directory and loads available hooks.
func (a *App) DiscoverHooks() error {
	if err := a.hookMgr.Discover(); err != nil {
		return err
	}
	for _, h := range a.hookMgr.List() {
		logging.Info(logging.Fields{"hook": h.Manifest.Name, "path": h.Path}, "Hook loaded")
	}
	return nil
}

// Start opens the camera, starts a recording session and begins
// processing.
func (a *App) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopCh != nil {
		return nil
	}

	if err := a.reader.Start(); err != nil {
		return err
	}

	if a.recorder != nil {
		if err := a.recorder.start(a.camera.Source()); err != nil {
			logging.Warn(logging.Fields{"error": err}, "Failed to start recording session")
		}
	}

	a.stopCh = make(chan struct{})
	a.doneCh = make(chan struct{})
	go a.runPipeline(a.stopCh, a.doneCh)

	logging.Info(logging.Fields{"source": a.camera.Source()}, "Detection pipeline started")
	return nil
}

// Stop halts processing, closes the camera and ends the session. The app
// can be started again. It does not close the orchestrator.
func (a *App) Stop() {
	a.mu.Lock()
	stopCh, doneCh := a.stopCh, a.doneCh
	a.stopCh, a.doneCh = nil, nil
	a.mu.Unlock()

	if stopCh == nil {
		return
	}

	close(stopCh)
	<-doneCh

	a.reader.Stop()

	if a.recorder != nil {
		if err := a.recorder.end(); err != nil {
			logging.Warn(logging.Fields{"error": err}, "Failed to close recording session")
		}
	}

	a.frameMu.Lock()
	if a.hasFrame {
		a.lastFrame.Close()
		a.hasFrame = false
	}
	a.frameMu.Unlock()

	logging.Info(nil, "Detection pipeline stopped")
}

// Close stops the app and waits for running hooks. The app cannot be
// restarted afterwards.
func (a *App) Close() {
	a.Stop()
	a.notifier.Close()
	a.queue.Close()
}

// Done is closed when processing stops, either after Stop or when a file
// source runs out. It returns nil when the app is not running.
func (a *App) Done() <-chan struct{} {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.doneCh
}

// LatestFrame returns a copy of the most recent captured frame. The caller
// closes it.
func (a *App) LatestFrame() (gocv.Mat, bool) {
	a.frameMu.Lock()
	defer a.frameMu.Unlock()

	if !a.hasFrame {
		return gocv.Mat{}, false
	}
	return a.lastFrame.Clone(), true
}

// SessionID returns the current recording session, if any.
func (a *App) SessionID() string {
	if a.recorder == nil {
		return ""
	}
	return a.recorder.sessionID()
}

// Camera returns the camera instance.
func (a *App) Camera() capture.Camera {
	return a.camera
}

// Pipeline returns the orchestrator.
func (a *App) Pipeline() *pipeline.Orchestrator {
	return a.pipeline
}

// HookManager returns the hook manager.
func (a *App) HookManager() *notify.Manager {
	return a.hookMgr
}

// ErrNotRunning is returned by Wait when the app was never started.
var ErrNotRunning = errors.New("app is not running")

// Wait blocks until processing stops.
func (a *App) Wait() error {
	done := a.Done()
	if done == nil {
		return ErrNotRunning
	}
	<-done
	return nil
}
