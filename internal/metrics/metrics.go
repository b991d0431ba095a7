// Package metrics aggregates per-frame stage timings into rolling
// performance figures and exports them to Prometheus.
package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gonum.org/v1/gonum/stat"
)

// Window is the number of recent frames the rolling figures cover.
const Window = 30

// StageTimings holds the wall time of each pipeline stage for one frame.
type StageTimings struct {
	Capture    time.Duration `json:"capture"`
	Preprocess time.Duration `json:"preprocess"`
	Motion     time.Duration `json:"motion"`
	Color      time.Duration `json:"color"`
	Detection  time.Duration `json:"detection"`
	Fusion     time.Duration `json:"fusion"`
	Filter     time.Duration `json:"filter"`
	Render     time.Duration `json:"render"`
	Total      time.Duration `json:"total"`
}

// stages lists the timing fields in display order.
func (t StageTimings) stages() []stage {
	return []stage{
		{"capture", t.Capture},
		{"preprocess", t.Preprocess},
		{"motion", t.Motion},
		{"color", t.Color},
		{"detection", t.Detection},
		{"fusion", t.Fusion},
		{"filter", t.Filter},
		{"render", t.Render},
		{"total", t.Total},
	}
}

type stage struct {
	name string
	d    time.Duration
}

// FormatTimings renders a one-line summary such as
// "capture=0.4ms preprocess=1.2ms ... total=9.8ms".
func FormatTimings(t StageTimings) string {
	parts := make([]string, 0, 9)
	for _, s := range t.stages() {
		parts = append(parts, fmt.Sprintf("%s=%.1fms", s.name, ms(s.d)))
	}
	return strings.Join(parts, " ")
}

// Snapshot is a point-in-time view of the rolling metrics.
type Snapshot struct {
	FPS             float64            `json:"fps"`
	FramesProcessed uint64             `json:"frames_processed"`
	FramesSkipped   uint64             `json:"frames_skipped"`
	FramesDropped   uint64             `json:"frames_dropped"`
	FramesMalformed uint64             `json:"frames_malformed"`
	CameraMoving    uint64             `json:"camera_moving_frames"`
	DetectorErrors  uint64             `json:"detector_errors"`
	DetectionsTotal uint64             `json:"detections_total"`
	LastDetections  int                `json:"last_detections"`
	AvgStageMs      map[string]float64 `json:"avg_stage_ms"`
	P95TotalMs      float64            `json:"p95_total_ms"`
}

// Metrics collects pipeline counters and a rolling window of timings.
type Metrics struct {
	FramesProcessed atomic.Uint64
	FramesSkipped   atomic.Uint64
	FramesDropped   atomic.Uint64
	FramesMalformed atomic.Uint64
	CameraMoving    atomic.Uint64
	DetectorErrors  atomic.Uint64
	DetectionsTotal atomic.Uint64

	mu             sync.Mutex
	timings        [Window]StageTimings
	frameTimes     [Window]time.Time
	head           int
	filled         int
	lastDetections int

	registry *prometheus.Registry
}

// New creates a Metrics instance with its own Prometheus registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}
	m.registerPrometheusMetrics()
	return m
}

func (m *Metrics) registerPrometheusMetrics() {
	counters := []struct {
		name string
		help string
		v    *atomic.Uint64
	}{
		{"kestrel_frames_processed_total", "Frames run through the detection pipeline", &m.FramesProcessed},
		{"kestrel_frames_skipped_total", "Frames skipped by the frame-rate gate", &m.FramesSkipped},
		{"kestrel_frames_dropped_total", "Frames dropped by the capture queue", &m.FramesDropped},
		{"kestrel_frames_malformed_total", "Frames rejected as malformed", &m.FramesMalformed},
		{"kestrel_camera_moving_frames_total", "Frames processed while the camera was moving", &m.CameraMoving},
		{"kestrel_detector_errors_total", "Detector runs that failed and yielded no detections", &m.DetectorErrors},
		{"kestrel_detections_total", "Detections emitted after filtering", &m.DetectionsTotal},
	}
	for _, c := range counters {
		v := c.v
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: c.name, Help: c.help},
			func() float64 { return float64(v.Load()) },
		))
	}

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "kestrel_fps",
			Help: "Processed frames per second over the rolling window",
		},
		func() float64 { return m.Snapshot().FPS },
	))

	for _, s := range (StageTimings{}).stages() {
		name := s.name
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name:        "kestrel_stage_avg_ms",
				Help:        "Average stage time in milliseconds over the rolling window",
				ConstLabels: prometheus.Labels{"stage": name},
			},
			func() float64 { return m.Snapshot().AvgStageMs[name] },
		))
	}
}

// Record adds one processed frame.
func (m *Metrics) Record(t StageTimings, detections int, now time.Time) {
	m.FramesProcessed.Add(1)
	m.DetectionsTotal.Add(uint64(detections))

	m.mu.Lock()
	defer m.mu.Unlock()

	m.timings[m.head] = t
	m.frameTimes[m.head] = now
	m.head = (m.head + 1) % Window
	if m.filled < Window {
		m.filled++
	}
	m.lastDetections = detections
}

// Snapshot returns the current figures.
//
// FPS is derived from the capture times of the frames in the window, so it
// reflects real throughput rather than per-frame processing cost.
func (m *Metrics) Snapshot() Snapshot {
	snap := Snapshot{
		FramesProcessed: m.FramesProcessed.Load(),
		FramesSkipped:   m.FramesSkipped.Load(),
		FramesDropped:   m.FramesDropped.Load(),
		FramesMalformed: m.FramesMalformed.Load(),
		CameraMoving:    m.CameraMoving.Load(),
		DetectorErrors:  m.DetectorErrors.Load(),
		DetectionsTotal: m.DetectionsTotal.Load(),
		AvgStageMs:      make(map[string]float64, 9),
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	snap.LastDetections = m.lastDetections
	if m.filled == 0 {
		return snap
	}

	// Oldest entry first.
	start := (m.head - m.filled + Window) % Window
	perStage := make(map[string][]float64, 9)
	var oldest, newest time.Time
	for i := 0; i < m.filled; i++ {
		idx := (start + i) % Window
		for _, s := range m.timings[idx].stages() {
			perStage[s.name] = append(perStage[s.name], ms(s.d))
		}
		if i == 0 {
			oldest = m.frameTimes[idx]
		}
		newest = m.frameTimes[idx]
	}

	for name, xs := range perStage {
		snap.AvgStageMs[name] = stat.Mean(xs, nil)
	}

	totals := perStage["total"]
	sort.Float64s(totals)
	snap.P95TotalMs = stat.Quantile(0.95, stat.Empirical, totals, nil)

	if span := newest.Sub(oldest).Seconds(); m.filled > 1 && span > 0 {
		snap.FPS = float64(m.filled-1) / span
	}

	return snap
}

// Reset clears the counters and the rolling window.
func (m *Metrics) Reset() {
	m.FramesProcessed.Store(0)
	m.FramesSkipped.Store(0)
	m.FramesDropped.Store(0)
	m.FramesMalformed.Store(0)
	m.CameraMoving.Store(0)
	m.DetectorErrors.Store(0)
	m.DetectionsTotal.Store(0)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.head = 0
	m.filled = 0
	m.lastDetections = 0
}

// Handler returns the Prometheus HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
