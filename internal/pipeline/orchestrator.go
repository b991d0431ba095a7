// Package pipeline sequences the detection stages for each frame.
package pipeline

import (
	"fmt"
	"image"
	"sync"
	"time"

	"gocv.io/x/gocv"
	"golang.org/x/sync/errgroup"

	"github.com/ayusman/kestrel/internal/cluster"
	"github.com/ayusman/kestrel/internal/color"
	"github.com/ayusman/kestrel/internal/config"
	"github.com/ayusman/kestrel/internal/detection"
	"github.com/ayusman/kestrel/internal/filter"
	"github.com/ayusman/kestrel/internal/fusion"
	"github.com/ayusman/kestrel/internal/logging"
	"github.com/ayusman/kestrel/internal/metrics"
	"github.com/ayusman/kestrel/internal/motion"
	"github.com/ayusman/kestrel/internal/render"
	"github.com/ayusman/kestrel/internal/temporal"
	"github.com/ayusman/kestrel/internal/vision"
)

// PerformanceInterval is the minimum spacing of performance reports sent to
// observers.
const PerformanceInterval = time.Second

// Result is the outcome of one ProcessFrame call.
//
// Annotated is owned by the caller and must be closed. Observers receive the
// same Result and must clone Annotated if they keep it past OnFrame.
type Result struct {
	Detections   []detection.Detection
	Rendered     []detection.Detection
	Annotated    gocv.Mat
	Timings      metrics.StageTimings
	Timestamp    float64
	CameraMoving bool
	Skipped      bool
	Malformed    bool
}

// Observer receives per-frame results, including skipped and malformed
// ones, and periodic performance reports.
type Observer interface {
	OnFrame(Result)
	OnPerformance(metrics.Snapshot)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are ignored.
type ObserverFuncs struct {
	Frame       func(Result)
	Performance func(metrics.Snapshot)
}

func (o ObserverFuncs) OnFrame(r Result) {
	if o.Frame != nil {
		o.Frame(r)
	}
}

func (o ObserverFuncs) OnPerformance(s metrics.Snapshot) {
	if o.Performance != nil {
		o.Performance(s)
	}
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMetrics makes the orchestrator record into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator runs motion and color detection on each frame and passes the
// results through fusion, temporal voting, clustering and the false
// positive filters.
type Orchestrator struct {
	holder  *config.Holder
	motion  *motion.Detector
	color   *color.Detector
	voter   *temporal.Voter
	region  *filter.Region
	metrics *metrics.Metrics
	now     func() time.Time

	// mu serialises frames and Reset.
	mu            sync.Mutex
	lastResult    []detection.Detection
	lastRendered  []detection.Detection
	lastProcessed time.Time
	lastPerf      time.Time

	obsMu     sync.RWMutex
	observers []Observer
}

// New creates an orchestrator reading its configuration from holder.
func New(holder *config.Holder, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		holder: holder,
		motion: motion.NewDetector(),
		color:  color.NewDetector(),
		voter:  temporal.NewVoter(),
		region: filter.NewRegion(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = metrics.New()
	}
	return o
}

// Config returns the configuration currently in effect.
func (o *Orchestrator) Config() config.DetectionConfig {
	return o.holder.Load()
}

// UpdateConfig replaces the whole configuration. The next frame picks it up;
// a frame already in flight finishes with the previous one.
func (o *Orchestrator) UpdateConfig(cfg config.DetectionConfig) {
	o.holder.Store(cfg)
	logging.Info(logging.Fields{
		"version":  o.holder.Version(),
		"motion":   cfg.MotionAlgorithm,
		"color":    cfg.ColorSpace,
		"fusion":   cfg.FusionMode,
		"temporal": cfg.EnableTemporalVoting,
	}, "Detection config updated")
}

// Metrics returns the current performance snapshot.
func (o *Orchestrator) Metrics() metrics.Snapshot {
	return o.metrics.Snapshot()
}

// MetricsCollector exposes the underlying collector, for HTTP export.
func (o *Orchestrator) MetricsCollector() *metrics.Metrics {
	return o.metrics
}

// Subscribe registers an observer.
func (o *Orchestrator) Subscribe(obs Observer) {
	o.obsMu.Lock()
	defer o.obsMu.Unlock()
	o.observers = append(o.observers, obs)
}

// Reset clears all detector history, the temporal ring, the last
// detections and the metrics. It waits for an in-flight frame to finish.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.motion.Reset()
	o.voter.Reset()
	o.metrics.Reset()
	o.lastResult = nil
	o.lastRendered = nil
	o.lastProcessed = time.Time{}

	logging.Info(nil, "Detection state reset")
}

// Close releases the detectors.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.motion.Close()
	o.color.Close()
	o.region.Close()
}

// ProcessFrame runs the full pipeline on a BGR frame captured at ts
// (seconds).
func (o *Orchestrator) ProcessFrame(frame gocv.Mat, ts float64) Result {
	return o.ProcessCaptured(frame, ts, 0)
}

// ProcessCaptured is ProcessFrame with the time spent acquiring the frame,
// which is reported as the capture stage.
//
// Algorithm:
//  1. Snapshot the config and apply the TargetFPS gate.
//  2. Reject empty or non-BGR frames.
//  3. Scale down to the processing resolution, convert to gray and blur.
//  4. Check for camera movement.
//  5. Run motion (or only model learning while the camera moves) and
//     color detection concurrently.
//  6. Fuse, vote, cluster, and filter, including the processing region.
//  7. Scale back to source coordinates, truncate for rendering, annotate.
func (o *Orchestrator) ProcessCaptured(frame gocv.Mat, ts float64, capture time.Duration) Result {
	start := o.now()
	cfg := o.holder.Load()

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.gated(cfg, start) {
		o.metrics.FramesSkipped.Add(1)
		res := o.skipped(frame, ts, cfg)
		o.publish(res, start)
		return res
	}

	if frame.Empty() || frame.Channels() != 3 {
		o.metrics.FramesMalformed.Add(1)
		logging.Debug(logging.Fields{"channels": frame.Channels(), "empty": frame.Empty()}, "Dropping malformed frame")
		res := Result{Annotated: gocv.NewMat(), Timestamp: ts, Malformed: true}
		o.publish(res, start)
		return res
	}
	o.lastProcessed = start

	timings := metrics.StageTimings{Capture: capture}

	// Preprocess.
	t0 := o.now()
	work, scale := resizeForProcessing(frame, cfg)
	defer work.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(work, &gray, gocv.ColorBGRToGray)
	if k := vision.OddKernel(cfg.BlurKernelSize); k > 1 {
		gocv.GaussianBlur(gray, &gray, image.Pt(k, k), 0, 0, gocv.BorderDefault)
	}
	timings.Preprocess = o.now().Sub(t0)

	// Detect.
	t0 = o.now()
	moving := cfg.PauseOnCameraMovement && o.motion.CheckCameraMovement(gray, cfg)
	if moving {
		o.metrics.CameraMoving.Add(1)
	}

	maxDetections := cfg.MaxDetectionsPerDetector()
	var motionDets, colorDets []detection.Detection

	var g errgroup.Group
	if cfg.EnableMotion {
		g.Go(func() error {
			return o.guard("motion", func() {
				began := o.now()
				if moving {
					o.motion.Learn(gray, cfg)
				} else {
					motionDets = o.motion.Detect(gray, cfg, maxDetections)
				}
				timings.Motion = o.now().Sub(began)
			})
		})
	}
	if cfg.EnableColorQuantization {
		g.Go(func() error {
			return o.guard("color", func() {
				began := o.now()
				colorDets = o.color.Detect(work, cfg, maxDetections)
				timings.Color = o.now().Sub(began)
			})
		})
	}
	if err := g.Wait(); err != nil {
		logging.Warn(logging.Fields{"error": err, "timestamp": ts}, "Detector failed, continuing with partial results")
	}
	timings.Detection = o.now().Sub(t0)

	stamp(motionDets, ts)
	stamp(colorDets, ts)

	// Fuse and filter.
	t0 = o.now()
	fused := fusion.Fuse(motionDets, colorDets, cfg)
	voted := o.voter.Vote(fused, cfg)
	clustered := cluster.Cluster(voted, cfg)
	timings.Fusion = o.now().Sub(t0)

	t0 = o.now()
	final := filter.AspectRatio(clustered, cfg)
	final = filter.ExcludeHues(final, func(d detection.Detection) (float64, bool) {
		return vision.MeanHue(work, d.Outline, d.BBox)
	}, cfg)
	final = o.region.Filter(final, cfg, work.Cols(), work.Rows(), scale)
	timings.Filter = o.now().Sub(t0)

	// Render.
	t0 = o.now()
	if !cfg.RenderAtProcessingRes && scale < 1 {
		inverse := 1 / scale
		for i := range final {
			final[i] = final[i].Scale(inverse)
		}
	}

	rendered := renderList(final, cfg)
	annotated := o.annotate(frame, work, scale, rendered, len(final), moving, cfg)
	timings.Render = o.now().Sub(t0)

	end := o.now()
	timings.Total = end.Sub(start) + capture

	o.metrics.Record(timings, len(final), end)
	o.lastResult = final
	o.lastRendered = rendered

	res := Result{
		Detections:   final,
		Rendered:     rendered,
		Annotated:    annotated,
		Timings:      timings,
		Timestamp:    ts,
		CameraMoving: moving,
	}

	o.publish(res, end)
	return res
}

// EmitPerformance sends a performance report to observers if none was sent
// within PerformanceInterval. It keeps reports flowing when frames stall.
func (o *Orchestrator) EmitPerformance() {
	o.mu.Lock()
	now := o.now()
	due := now.Sub(o.lastPerf) >= PerformanceInterval
	if due {
		o.lastPerf = now
	}
	o.mu.Unlock()

	if due {
		o.notifyPerformance(o.metrics.Snapshot())
	}
}

// gated reports whether the frame arrives too soon after the previous one
// for the configured TargetFPS.
func (o *Orchestrator) gated(cfg config.DetectionConfig, now time.Time) bool {
	if cfg.TargetFPS <= 0 || o.lastProcessed.IsZero() {
		return false
	}
	interval := time.Duration(float64(time.Second) / cfg.TargetFPS)
	return now.Sub(o.lastProcessed) < interval
}

// skipped builds the result for a gated frame from the previous detections.
func (o *Orchestrator) skipped(frame gocv.Mat, ts float64, cfg config.DetectionConfig) Result {
	annotated := gocv.NewMat()
	if !frame.Empty() {
		work, scale := frame, 1.0
		if cfg.RenderAtProcessingRes {
			work, scale = resizeForProcessing(frame, cfg)
			defer work.Close()
		}
		annotated.Close()
		annotated = o.annotate(frame, work, scale, o.lastRendered, len(o.lastResult), false, cfg)
	}
	return Result{
		Detections: append([]detection.Detection(nil), o.lastResult...),
		Rendered:   append([]detection.Detection(nil), o.lastRendered...),
		Annotated:  annotated,
		Timestamp:  ts,
		Skipped:    true,
	}
}

func (o *Orchestrator) publish(res Result, now time.Time) {
	o.obsMu.RLock()
	observers := append([]Observer(nil), o.observers...)
	o.obsMu.RUnlock()

	for _, obs := range observers {
		obs.OnFrame(res)
	}

	if now.Sub(o.lastPerf) >= PerformanceInterval {
		o.lastPerf = now
		snap := o.metrics.Snapshot()
		logging.Debug(logging.Fields{
			"fps":     fmt.Sprintf("%.1f", snap.FPS),
			"timings": metrics.FormatTimings(res.Timings),
		}, "Pipeline performance")
		o.notifyPerformance(snap)
	}
}

func (o *Orchestrator) notifyPerformance(snap metrics.Snapshot) {
	o.obsMu.RLock()
	defer o.obsMu.RUnlock()
	for _, obs := range o.observers {
		obs.OnPerformance(snap)
	}
}

// guard runs a detector stage and turns a panic into an error counted in
// DetectorErrors. The stage then contributes no detections.
func (o *Orchestrator) guard(stage string, fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			o.metrics.DetectorErrors.Add(1)
			err = fmt.Errorf("%s detector: %v", stage, r)
		}
	}()
	fn()
	return nil
}

// annotate draws the overlays for one frame and returns a new Mat of the
// frame's size. With RenderAtProcessingRes the drawing happens on work,
// whose coordinates rendered must then use, and is scaled back up.
func (o *Orchestrator) annotate(frame, work gocv.Mat, scale float64, rendered []detection.Detection, total int, moving bool, cfg config.DetectionConfig) gocv.Mat {
	target, targetScale := frame, 1.0
	if cfg.RenderAtProcessingRes {
		target, targetScale = work, scale
	}
	annotated := target.Clone()

	if cfg.ShowMaskOverlay {
		w, h := annotated.Cols(), annotated.Rows()
		if mask, ok := o.region.Mask(cfg, w, h, targetScale); ok {
			bounds, _ := filter.Bounds(cfg, w, h, targetScale)
			render.DrawMaskOverlay(&annotated, mask, bounds)
		}
	}

	if cfg.ShowDetections {
		render.Annotate(&annotated, rendered, cfg)
		if dropped := total - len(rendered); dropped > 0 {
			render.DrawNotice(&annotated, fmt.Sprintf("%d detections (%d not shown)", total, dropped))
		}
	}
	if cfg.ShowTimingOverlay {
		render.DrawHUD(&annotated, o.metrics.Snapshot(), moving)
	}

	if annotated.Cols() != frame.Cols() || annotated.Rows() != frame.Rows() {
		gocv.Resize(annotated, &annotated, image.Pt(frame.Cols(), frame.Rows()), 0, 0, gocv.InterpolationLinear)
	}
	return annotated
}

// resizeForProcessing returns a frame no larger than the processing
// resolution and the factor applied. Frames are never scaled up.
func resizeForProcessing(frame gocv.Mat, cfg config.DetectionConfig) (gocv.Mat, float64) {
	w, h := frame.Cols(), frame.Rows()
	if w <= cfg.ProcessingWidth && h <= cfg.ProcessingHeight {
		return frame.Clone(), 1
	}

	scale := min(float64(cfg.ProcessingWidth)/float64(w), float64(cfg.ProcessingHeight)/float64(h))
	size := image.Pt(max(1, int(float64(w)*scale)), max(1, int(float64(h)*scale)))

	out := gocv.NewMat()
	gocv.Resize(frame, &out, size, 0, 0, gocv.InterpolationLinear)
	return out, scale
}

// renderList picks the detections to draw: the top MaxDetectionsToRender by
// confidence times area.
func renderList(ds []detection.Detection, cfg config.DetectionConfig) []detection.Detection {
	if cfg.MaxDetectionsToRender <= 0 || len(ds) <= cfg.MaxDetectionsToRender {
		return append([]detection.Detection(nil), ds...)
	}
	return detection.TopN(ds, cfg.MaxDetectionsToRender)
}

func stamp(ds []detection.Detection, ts float64) {
	for i := range ds {
		ds[i].Timestamp = ts
	}
}
