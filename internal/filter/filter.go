// Package filter rejects detections that are likely false positives.
package filter

import (
	"github.com/lucasb-eyer/go-colorful"

	"github.com/ayusman/kestrel/internal/config"
	"github.com/ayusman/kestrel/internal/detection"
)

// HueSampler returns the hue (0-179) of a detection's region in the current
// frame. It is consulted when a detection carries no dominant color.
type HueSampler func(d detection.Detection) (float64, bool)

// AspectRatio drops detections whose width/height ratio lies outside
// [MinAspectRatio, MaxAspectRatio]. Zero-height boxes are dropped.
func AspectRatio(ds []detection.Detection, cfg config.DetectionConfig) []detection.Detection {
	if !cfg.EnableAspectRatioFilter || len(ds) == 0 {
		return ds
	}

	out := make([]detection.Detection, 0, len(ds))
	for _, d := range ds {
		if d.BBox.H <= 0 {
			continue
		}
		ratio := float64(d.BBox.W) / float64(d.BBox.H)
		if ratio < cfg.MinAspectRatio || ratio > cfg.MaxAspectRatio {
			continue
		}
		out = append(out, d)
	}
	return out
}

// ExcludeHues drops detections whose dominant hue falls inside any of the
// configured excluded ranges. The hue comes from the dominant_color
// metadata, or from sample when that is absent. Detections whose hue cannot
// be determined are kept.
func ExcludeHues(ds []detection.Detection, sample HueSampler, cfg config.DetectionConfig) []detection.Detection {
	if !cfg.EnableColorExclusion || len(cfg.ExcludedHueRanges) == 0 || len(ds) == 0 {
		return ds
	}

	out := make([]detection.Detection, 0, len(ds))
	for _, d := range ds {
		hue, ok := DominantHue(d)
		if !ok && sample != nil {
			hue, ok = sample(d)
		}
		if ok && excluded(hue, cfg.ExcludedHueRanges) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// DominantHue converts the dominant_color metadata (B, G, R) into an
// OpenCV hue in 0-179.
func DominantHue(d detection.Detection) (float64, bool) {
	v, _ := d.Meta(detection.MetaDominantColor)
	bgr, ok := v.([3]int)
	if !ok {
		return 0, false
	}
	return BGRToHue(bgr[0], bgr[1], bgr[2]), true
}

// BGRToHue returns the hue of an 8-bit BGR color on OpenCV's half-degree
// scale.
func BGRToHue(b, g, r int) float64 {
	c := colorful.Color{R: float64(r) / 255, G: float64(g) / 255, B: float64(b) / 255}
	h, _, _ := c.Hsv()
	return h / 2
}

func excluded(hue float64, ranges []config.HueRange) bool {
	for _, r := range ranges {
		if r.Contains(hue) {
			return true
		}
	}
	return false
}
