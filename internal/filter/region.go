package filter

import (
	"image"
	"image/color"
	"math"
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/kestrel/internal/config"
	"github.com/ayusman/kestrel/internal/detection"
	"github.com/ayusman/kestrel/internal/logging"
)

// maskCutoff is the gray level above which a mask pixel counts as inside.
const maskCutoff = 127

// maxCachedMasks bounds the mask cache. Source and processing resolution
// each need one entry.
const maxCachedMasks = 4

type regionKey struct {
	w, h   int
	buffer int
	path   string
}

type regionMask struct {
	mat  gocv.Mat
	full bool
}

// Region restricts detections to the processing region: the frame minus a
// border of FrameBufferPixels, intersected with the white pixels of
// MaskImagePath. Masks are built once per frame size and cached.
type Region struct {
	mu    sync.Mutex
	masks map[regionKey]regionMask
}

// NewRegion returns an empty region cache.
func NewRegion() *Region {
	return &Region{masks: make(map[regionKey]regionMask)}
}

// Bounds returns the rectangle left after removing the frame buffer from a
// w x h frame. scale converts the buffer from source pixels to the frame's
// resolution. ok is false when there is no buffer.
func Bounds(cfg config.DetectionConfig, w, h int, scale float64) (image.Rectangle, bool) {
	buf := scaledBuffer(cfg, scale)
	if buf <= 0 || w <= 0 || h <= 0 {
		return image.Rectangle{}, false
	}
	return image.Rect(min(buf, w/2), min(buf, h/2), max(w-buf, w/2), max(h-buf, h/2)), true
}

// Mask returns the 8-bit region mask for a w x h frame, 255 inside and 0
// outside. ok is false when masking is disabled or nothing is excluded. The
// Mat belongs to the Region and stays valid until Close or the next call
// with a different size.
func (r *Region) Mask(cfg config.DetectionConfig, w, h int, scale float64) (gocv.Mat, bool) {
	if !cfg.MaskEnabled || w <= 0 || h <= 0 {
		return gocv.Mat{}, false
	}

	key := regionKey{w: w, h: h, buffer: scaledBuffer(cfg, scale), path: cfg.MaskImagePath}

	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.masks[key]
	if !ok {
		if len(r.masks) >= maxCachedMasks {
			r.clear()
		}
		m = buildMask(cfg, key, scale)
		r.masks[key] = m
	}
	if m.full {
		return gocv.Mat{}, false
	}
	return m.mat, true
}

// Filter drops detections whose centroid lies outside the region of a
// w x h frame. Centroids are clamped to the frame first.
func (r *Region) Filter(ds []detection.Detection, cfg config.DetectionConfig, w, h int, scale float64) []detection.Detection {
	if len(ds) == 0 {
		return ds
	}
	mask, ok := r.Mask(cfg, w, h, scale)
	if !ok {
		return ds
	}

	out := make([]detection.Detection, 0, len(ds))
	for _, d := range ds {
		x := min(max(d.Centroid.X, 0), w-1)
		y := min(max(d.Centroid.Y, 0), h-1)
		if mask.GetUCharAt(y, x) > maskCutoff {
			out = append(out, d)
		}
	}
	return out
}

// Close releases every cached mask.
func (r *Region) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clear()
}

func (r *Region) clear() {
	for k, m := range r.masks {
		if !m.full {
			m.mat.Close()
		}
		delete(r.masks, k)
	}
}

func scaledBuffer(cfg config.DetectionConfig, scale float64) int {
	if cfg.FrameBufferPixels <= 0 {
		return 0
	}
	if scale <= 0 {
		scale = 1
	}
	return int(math.Round(float64(cfg.FrameBufferPixels) * scale))
}

func buildMask(cfg config.DetectionConfig, key regionKey, scale float64) regionMask {
	bounds, hasBuffer := Bounds(cfg, key.w, key.h, scale)

	var img gocv.Mat
	hasImage := false
	if key.path != "" {
		img, hasImage = loadMaskImage(key.path, key.w, key.h)
	}

	if !hasBuffer && !hasImage {
		return regionMask{full: true}
	}

	mask := gocv.Zeros(key.h, key.w, gocv.MatTypeCV8U)
	if hasBuffer {
		gocv.Rectangle(&mask, bounds, color.RGBA{R: 255, G: 255, B: 255, A: 255}, -1)
	} else {
		mask.SetTo(gocv.NewScalar(255, 0, 0, 0))
	}

	if hasImage {
		gocv.BitwiseAnd(mask, img, &mask)
		img.Close()
	}

	logging.Debug(logging.Fields{
		"width":  key.w,
		"height": key.h,
		"buffer": key.buffer,
		"image":  key.path,
	}, "Processing region mask built")
	return regionMask{mat: mask}
}

// loadMaskImage reads path as grayscale, resizes it to w x h and binarises
// it at maskCutoff.
func loadMaskImage(path string, w, h int) (gocv.Mat, bool) {
	img := gocv.IMRead(path, gocv.IMReadGrayScale)
	if img.Empty() {
		img.Close()
		logging.Warn(logging.Fields{"path": path}, "Failed to load mask image, ignoring it")
		return gocv.Mat{}, false
	}
	defer img.Close()

	resized := gocv.NewMat()
	gocv.Resize(img, &resized, image.Pt(w, h), 0, 0, gocv.InterpolationLinear)
	gocv.Threshold(resized, &resized, maskCutoff, 255, gocv.ThresholdBinary)
	return resized, true
}
