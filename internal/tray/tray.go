// Package tray provides a system tray menu for a running Kestrel instance.
package tray

import (
	"fmt"
	"sync"

	"github.com/getlantern/systray"

	"github.com/ayusman/kestrel/internal/detection"
	"github.com/ayusman/kestrel/internal/metrics"
	"github.com/ayusman/kestrel/internal/pipeline"
)

// Toggle switches detection on and off.
type Toggle interface {
	IsEnabled() bool
	SetEnabled(enabled bool)
}

// Tray shows detection state in the system tray. It is a pipeline.Observer.
type Tray struct {
	toggle     Toggle
	onSettings func()
	onQuit     func()
	mu         sync.RWMutex

	// Menu items stored for later updates
	menuToggle *systray.MenuItem
	menuLast   *systray.MenuItem
	menuFPS    *systray.MenuItem

	last string
	fps  float64
}

var _ pipeline.Observer = (*Tray)(nil)

// New creates a tray controlling toggle.
func New(toggle Toggle) *Tray {
	return &Tray{toggle: toggle, last: "none"}
}

// OnSettings sets the callback function to be called when the dashboard menu item is clicked.
func (t *Tray) OnSettings(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onSettings = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray and calls ready once the menu exists.
// This function blocks until systray.Quit() is called and must run on the
// main goroutine.
func (t *Tray) Run(ready func()) {
	systray.Run(func() {
		t.onReady()
		if ready != nil {
			ready()
		}
	}, nil)
}

// Quit removes the tray icon and makes Run return.
func (t *Tray) Quit() {
	systray.Quit()
}

func (t *Tray) onReady() {
	systray.SetTitle("Kestrel")
	systray.SetTooltip("Kestrel motion and color anomaly detection")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleTitle(t.toggle.IsEnabled()), "Toggle detection")
	systray.AddSeparator()
	t.menuLast = systray.AddMenuItem("Last: "+t.last, "Last detections")
	t.menuLast.Disable()
	t.menuFPS = systray.AddMenuItem(fpsTitle(t.fps), "Processing rate")
	t.menuFPS.Disable()
	t.mu.Unlock()
	systray.AddSeparator()

	menuSettings := systray.AddMenuItem("Open Dashboard...", "Open the dashboard in a browser")
	systray.AddSeparator()
	menuQuit := systray.AddMenuItem("Quit", "Quit Kestrel")

	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuSettings.ClickedCh:
				t.handleSettings()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) handleToggle() {
	enabled := !t.toggle.IsEnabled()
	t.toggle.SetEnabled(enabled)

	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(enabled))
	}
}

func (t *Tray) handleSettings() {
	t.mu.RLock()
	callback := t.onSettings
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
	systray.Quit()
}

// OnFrame updates the last-detection line when a frame produced detections.
func (t *Tray) OnFrame(r pipeline.Result) {
	if r.Skipped || r.Malformed || len(r.Detections) == 0 {
		return
	}
	summary := Summarize(r.Detections)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = summary
	if t.menuLast != nil {
		t.menuLast.SetTitle("Last: " + summary)
	}
}

// OnPerformance updates the processing rate line.
func (t *Tray) OnPerformance(s metrics.Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fps = s.FPS
	if t.menuFPS != nil {
		t.menuFPS.SetTitle(fpsTitle(s.FPS))
	}
}

// Last returns the most recent detection summary.
func (t *Tray) Last() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.last
}

// Summarize counts detections by type, e.g. "2 motion, 1 fused".
func Summarize(ds []detection.Detection) string {
	if len(ds) == 0 {
		return "none"
	}
	counts := map[detection.Type]int{}
	for _, d := range ds {
		counts[d.Type]++
	}
	out := ""
	for _, typ := range []detection.Type{detection.TypeMotion, detection.TypeColorAnomaly, detection.TypeFused} {
		n := counts[typ]
		if n == 0 {
			continue
		}
		if out != "" {
			out += ", "
		}
		out += fmt.Sprintf("%d %s", n, typ)
	}
	return out
}

func toggleTitle(enabled bool) string {
	if enabled {
		return "● Enabled"
	}
	return "○ Disabled"
}

func fpsTitle(fps float64) string {
	return fmt.Sprintf("%.1f fps", fps)
}
