// Package detection defines the Detection value shared by every stage of the
// detection pipeline, plus the geometry helpers (IoU, merge, scaling) the
// stages use to compare and combine detections.
package detection

import (
	"image"
	"math"
	"sort"
)

// Type identifies which detector produced a Detection.
type Type string

const (
	// TypeMotion is produced by the motion detector.
	TypeMotion Type = "motion"
	// TypeColorAnomaly is produced by the color anomaly detector.
	TypeColorAnomaly Type = "color_anomaly"
	// TypeFused is produced when motion and color detections are merged.
	TypeFused Type = "fused"
)

// OverlapIoU is the IoU above which two detections are treated as the same object.
const OverlapIoU = 0.3

// Metadata keys written by the pipeline stages.
const (
	MetaAlgorithm      = "algorithm"
	MetaDominantColor  = "dominant_color"
	MetaBinCount       = "bin_count"
	MetaRarity         = "rarity"
	MetaMergedFrom     = "merged_from"
	MetaTemporalVotes  = "temporal_votes"
	MetaClustered      = "clustered"
	MetaClusterSize    = "cluster_size"
	MetaHueExpanded    = "hue_expanded"
	MetaOriginalArea   = "original_area"
	MetaExpansionRatio = "expansion_ratio"
)

// BBox is an axis-aligned rectangle in pixel coordinates.
type BBox struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Rect converts the box to an image.Rectangle.
func (b BBox) Rect() image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.W, b.Y+b.H)
}

// FromRect converts an image.Rectangle to a BBox.
func FromRect(r image.Rectangle) BBox {
	return BBox{X: r.Min.X, Y: r.Min.Y, W: r.Dx(), H: r.Dy()}
}

// Center returns the middle of the box.
func (b BBox) Center() image.Point {
	return image.Pt(b.X+b.W/2, b.Y+b.H/2)
}

// Detection is a single finding from one of the detectors.
type Detection struct {
	BBox       BBox           `json:"bbox"`
	Centroid   image.Point    `json:"centroid"`
	Area       float64        `json:"area"`
	Confidence float64        `json:"confidence"`
	Type       Type           `json:"type"`
	Timestamp  float64        `json:"timestamp"`
	Outline    []image.Point  `json:"outline,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// WithMeta returns a copy of d with key set to value. The receiver's
// metadata map is not modified.
func (d Detection) WithMeta(key string, value any) Detection {
	meta := make(map[string]any, len(d.Metadata)+1)
	for k, v := range d.Metadata {
		meta[k] = v
	}
	meta[key] = value
	d.Metadata = meta
	return d
}

// Meta returns a metadata value and whether it was present.
func (d Detection) Meta(key string) (any, bool) {
	if d.Metadata == nil {
		return nil, false
	}
	v, ok := d.Metadata[key]
	return v, ok
}

// Scale returns a copy of d with every coordinate multiplied by factor and
// the area by factor squared.
func (d Detection) Scale(factor float64) Detection {
	if factor == 1.0 {
		return d
	}

	scale := func(v int) int { return int(float64(v) * factor) }

	d.BBox = BBox{X: scale(d.BBox.X), Y: scale(d.BBox.Y), W: scale(d.BBox.W), H: scale(d.BBox.H)}
	d.Centroid = image.Pt(scale(d.Centroid.X), scale(d.Centroid.Y))
	d.Area = d.Area * factor * factor

	if d.Outline != nil {
		outline := make([]image.Point, len(d.Outline))
		for i, p := range d.Outline {
			outline[i] = image.Pt(scale(p.X), scale(p.Y))
		}
		d.Outline = outline
	}

	return d
}

// IoU returns the intersection over union of two boxes. Degenerate boxes
// yield 0.
func IoU(a, b BBox) float64 {
	x1 := max(a.X, b.X)
	y1 := max(a.Y, b.Y)
	x2 := min(a.X+a.W, b.X+b.W)
	y2 := min(a.Y+a.H, b.Y+b.H)

	if x2 <= x1 || y2 <= y1 {
		return 0
	}

	inter := float64((x2 - x1) * (y2 - y1))
	union := float64(a.W*a.H) + float64(b.W*b.H) - inter
	if union <= 0 {
		return 0
	}

	return inter / union
}

// Overlaps reports whether two detections are considered the same object.
func Overlaps(a, b Detection) bool {
	return IoU(a.BBox, b.BBox) > OverlapIoU
}

// OverlapsAny reports whether d overlaps at least one detection in others.
func OverlapsAny(d Detection, others []Detection) bool {
	for _, o := range others {
		if Overlaps(d, o) {
			return true
		}
	}
	return false
}

// Distance returns the Euclidean distance between two centroids.
func Distance(a, b Detection) float64 {
	dx := float64(a.Centroid.X - b.Centroid.X)
	dy := float64(a.Centroid.Y - b.Centroid.Y)
	return math.Hypot(dx, dy)
}

// SortByRenderPriority orders detections by confidence*area descending.
// Ties fall back to position so the order is stable for identical input.
func SortByRenderPriority(ds []Detection) {
	sort.SliceStable(ds, func(i, j int) bool {
		si := ds[i].Confidence * ds[i].Area
		sj := ds[j].Confidence * ds[j].Area
		if si != sj {
			return si > sj
		}
		if ds[i].BBox.Y != ds[j].BBox.Y {
			return ds[i].BBox.Y < ds[j].BBox.Y
		}
		return ds[i].BBox.X < ds[j].BBox.X
	})
}

// TopN returns at most n detections by render priority without modifying
// the input. n <= 0 means no limit.
func TopN(ds []Detection, n int) []Detection {
	if n <= 0 || len(ds) <= n {
		return ds
	}

	sorted := make([]Detection, len(ds))
	copy(sorted, ds)
	SortByRenderPriority(sorted)

	return sorted[:n]
}
