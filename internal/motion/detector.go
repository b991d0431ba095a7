// Package motion finds moving regions in grayscale frames using frame
// differencing or an adaptive background model (MOG2 or KNN).
package motion

import (
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/kestrel/internal/config"
	"github.com/ayusman/kestrel/internal/detection"
	"github.com/ayusman/kestrel/internal/vision"
)

// Camera movement constants
const (
	// CameraDiffThreshold is the per-pixel difference counted as change
	// when checking for whole-frame camera movement.
	CameraDiffThreshold = 20
	// rawBlobFactor bounds how many raw blobs are visited per requested
	// detection before extraction stops early.
	rawBlobFactor = 3
)

// Detector detects motion between consecutive grayscale frames.
// One Detector must be driven by a single goroutine; the mutex only guards
// Reset and Close racing with an in-flight frame.
type Detector struct {
	mu          sync.Mutex
	kernels     *vision.KernelCache
	sub         subtractor
	key         strategyKey
	prevGray    gocv.Mat
	persistence *persistence
}

// NewDetector creates a Detector. The background model is built lazily on
// the first frame from that frame's configuration.
func NewDetector() *Detector {
	return &Detector{
		kernels:  vision.NewKernelCache(),
		prevGray: gocv.NewMat(),
	}
}

// Detect returns the moving regions of gray.
//
// Algorithm:
// 1. Reject empty or multi-channel frames
// 2. Produce a foreground mask with the configured algorithm
// 3. Optionally keep only pixels that persisted N of the last M masks
// 4. Optionally open then close the mask to remove noise
// 5. Extract blobs, stopping after 3*maxDetections raw blobs
// 6. Keep blobs within [MinDetectionArea, MaxDetectionArea]
func (d *Detector) Detect(gray gocv.Mat, cfg config.DetectionConfig, maxDetections int) []detection.Detection {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !validGray(gray) {
		return nil
	}

	sub := d.strategy(cfg)

	fg := gocv.NewMat()
	defer fg.Close()

	if !sub.foreground(gray, &fg, cfg) || fg.Empty() {
		return nil
	}

	if cfg.EnablePersistenceFilter {
		d.persistenceFor(cfg).apply(&fg, cfg.PersistenceThreshold)
	}

	if cfg.EnableMorphology && cfg.MorphologyKernelSize > 1 {
		vision.OpenClose(&fg, d.kernels.Get(cfg.MorphologyKernelSize))
	}

	filter := vision.BlobFilter{
		MinArea: cfg.MinDetectionArea,
		MaxArea: cfg.MaxDetectionArea,
	}
	if maxDetections > 0 {
		filter.Limit = maxDetections * rawBlobFactor
	}

	blobs := vision.ExtractBlobs(fg, cfg.BlobMethod, filter)
	if len(blobs) == 0 {
		return nil
	}

	detections := make([]detection.Detection, 0, len(blobs))
	for _, b := range blobs {
		detections = append(detections, detection.Detection{
			BBox:       b.BBox,
			Centroid:   b.Centroid,
			Area:       b.Area,
			Confidence: confidence(b.Area, cfg.MaxDetectionArea),
			Type:       detection.TypeMotion,
			Outline:    b.Outline,
			Metadata: map[string]any{
				detection.MetaAlgorithm: string(cfg.MotionAlgorithm),
			},
		})
	}

	return detections
}

// Learn feeds gray to the background model without extracting blobs. It is
// used while the camera is moving so the model does not go stale.
func (d *Detector) Learn(gray gocv.Mat, cfg config.DetectionConfig) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !validGray(gray) {
		return
	}
	d.strategy(cfg).learn(gray)
}

// CheckCameraMovement reports whether more than CameraMovementThreshold of
// the frame changed since the previous call. The cached frame is always
// replaced with gray.
func (d *Detector) CheckCameraMovement(gray gocv.Mat, cfg config.DetectionConfig) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !validGray(gray) {
		return false
	}

	defer gray.CopyTo(&d.prevGray)

	if d.prevGray.Empty() || d.prevGray.Rows() != gray.Rows() || d.prevGray.Cols() != gray.Cols() {
		return false
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(gray, d.prevGray, &diff)

	thresh := gocv.NewMat()
	defer thresh.Close()
	gocv.Threshold(diff, &thresh, CameraDiffThreshold, 255, gocv.ThresholdBinary)

	total := thresh.Rows() * thresh.Cols()
	if total == 0 {
		return false
	}
	ratio := float64(gocv.CountNonZero(thresh)) / float64(total)

	return ratio > cfg.CameraMovementThreshold
}

// Reset clears every piece of history: the previous frame, the background
// model, and the persistence buffer. It must not be called while Detect is
// running on another goroutine.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.resetLocked()
}

// Close releases resources used by the detector.
func (d *Detector) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.resetLocked()
	d.kernels.Close()
}

func (d *Detector) resetLocked() {
	if d.sub != nil {
		d.sub.close()
		d.sub = nil
	}
	if !d.prevGray.Empty() {
		d.prevGray.Close()
		d.prevGray = gocv.NewMat()
	}
	d.persistence = nil
}

// strategy returns the subtractor for cfg, rebuilding it when the algorithm
// or its model parameters changed.
func (d *Detector) strategy(cfg config.DetectionConfig) subtractor {
	key := keyFor(cfg)
	if d.sub != nil && key == d.key {
		return d.sub
	}
	if d.sub != nil {
		d.sub.close()
	}
	d.sub = newSubtractor(cfg)
	d.key = key
	return d.sub
}

func (d *Detector) persistenceFor(cfg config.DetectionConfig) *persistence {
	if d.persistence == nil || len(d.persistence.masks) != cfg.PersistenceFrames {
		d.persistence = newPersistence(cfg.PersistenceFrames)
	}
	return d.persistence
}

func validGray(m gocv.Mat) bool {
	return !m.Empty() && m.Channels() == 1 && m.Rows() > 0 && m.Cols() > 0
}

// confidence maps blob area onto [0,1] relative to the largest allowed area.
func confidence(area, maxArea float64) float64 {
	if maxArea <= 0 {
		return 0.5
	}
	return min(1.0, area/maxArea)
}
