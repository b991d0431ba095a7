package motion

import (
	"gocv.io/x/gocv"

	"github.com/ayusman/kestrel/internal/config"
)

// subtractor produces a binary foreground mask from a grayscale frame.
// Implementations own their history and are only touched by one goroutine
// at a time.
type subtractor interface {
	// foreground writes the mask for gray into fg. It returns false when
	// no mask is available yet (e.g. the first frame of frame differencing).
	foreground(gray gocv.Mat, fg *gocv.Mat, cfg config.DetectionConfig) bool
	// learn updates the model without producing a mask.
	learn(gray gocv.Mat)
	close()
}

// strategyKey captures every parameter that requires rebuilding the
// subtractor when it changes.
type strategyKey struct {
	algorithm     config.MotionAlgorithm
	history       int
	varThreshold  float64
	dist2         float64
	detectShadows bool
}

func keyFor(cfg config.DetectionConfig) strategyKey {
	k := strategyKey{algorithm: cfg.MotionAlgorithm}
	switch cfg.MotionAlgorithm {
	case config.MotionMOG2:
		k.history = cfg.BgHistory
		k.varThreshold = cfg.BgVarThreshold
		k.detectShadows = cfg.BgDetectShadows
	case config.MotionKNN:
		k.history = cfg.BgHistory
		k.dist2 = cfg.KNNDist2Threshold
		k.detectShadows = cfg.BgDetectShadows
	}
	return k
}

func newSubtractor(cfg config.DetectionConfig) subtractor {
	switch cfg.MotionAlgorithm {
	case config.MotionMOG2:
		return &mog2Subtractor{
			bs:      gocv.NewBackgroundSubtractorMOG2WithParams(cfg.BgHistory, cfg.BgVarThreshold, cfg.BgDetectShadows),
			shadows: cfg.BgDetectShadows,
		}
	case config.MotionKNN:
		return &knnSubtractor{
			bs:      gocv.NewBackgroundSubtractorKNNWithParams(cfg.BgHistory, cfg.KNNDist2Threshold, cfg.BgDetectShadows),
			shadows: cfg.BgDetectShadows,
		}
	default:
		return &frameDiffSubtractor{prev: gocv.NewMat()}
	}
}

// frameDiffSubtractor thresholds the absolute difference against the
// previous frame.
type frameDiffSubtractor struct {
	prev gocv.Mat
}

func (s *frameDiffSubtractor) foreground(gray gocv.Mat, fg *gocv.Mat, cfg config.DetectionConfig) bool {
	if s.prev.Empty() || s.prev.Rows() != gray.Rows() || s.prev.Cols() != gray.Cols() {
		gray.CopyTo(&s.prev)
		return false
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(gray, s.prev, &diff)
	gocv.Threshold(diff, fg, float32(cfg.MotionThreshold), 255, gocv.ThresholdBinary)

	gray.CopyTo(&s.prev)
	return true
}

func (s *frameDiffSubtractor) learn(gray gocv.Mat) {
	gray.CopyTo(&s.prev)
}

func (s *frameDiffSubtractor) close() {
	s.prev.Close()
}

// mog2Subtractor wraps OpenCV's Gaussian mixture background model.
type mog2Subtractor struct {
	bs      gocv.BackgroundSubtractorMOG2
	shadows bool
}

func (s *mog2Subtractor) foreground(gray gocv.Mat, fg *gocv.Mat, cfg config.DetectionConfig) bool {
	s.bs.Apply(gray, fg)
	if s.shadows {
		dropShadows(fg, cfg.ShadowThreshold)
	}
	return true
}

func (s *mog2Subtractor) learn(gray gocv.Mat) {
	scratch := gocv.NewMat()
	defer scratch.Close()
	s.bs.Apply(gray, &scratch)
}

func (s *mog2Subtractor) close() {
	s.bs.Close()
}

// knnSubtractor wraps OpenCV's K-nearest-neighbours background model.
type knnSubtractor struct {
	bs      gocv.BackgroundSubtractorKNN
	shadows bool
}

func (s *knnSubtractor) foreground(gray gocv.Mat, fg *gocv.Mat, cfg config.DetectionConfig) bool {
	s.bs.Apply(gray, fg)
	if s.shadows {
		dropShadows(fg, cfg.ShadowThreshold)
	}
	return true
}

func (s *knnSubtractor) learn(gray gocv.Mat) {
	scratch := gocv.NewMat()
	defer scratch.Close()
	s.bs.Apply(gray, &scratch)
}

func (s *knnSubtractor) close() {
	s.bs.Close()
}

// dropShadows removes the mid-gray (127) shadow label from a foreground mask.
func dropShadows(fg *gocv.Mat, threshold int) {
	gocv.Threshold(*fg, fg, float32(threshold), 255, gocv.ThresholdBinary)
}
