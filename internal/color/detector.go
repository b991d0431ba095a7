// Package color finds regions whose colors are rare within the frame,
// using a quantized color histogram in BGR, HSV-hue, or LAB a/b space.
package color

import (
	"sort"
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/kestrel/internal/config"
	"github.com/ayusman/kestrel/internal/detection"
	"github.com/ayusman/kestrel/internal/vision"
)

// fallbackConfidence is used when the centroid does not land on a counted
// bin.
const fallbackConfidence = 0.5

// rawBlobFactor bounds how many raw blobs are visited per requested
// detection before extraction stops early.
const rawBlobFactor = 3

// Detector finds rare-color regions. It holds no per-frame history, only a
// kernel cache, so consecutive calls on the same frame are identical.
type Detector struct {
	mu      sync.Mutex
	kernels *vision.KernelCache
}

// NewDetector creates a color anomaly Detector.
func NewDetector() *Detector {
	return &Detector{kernels: vision.NewKernelCache()}
}

// candidate is a blob paired with the histogram count of its centroid bin,
// used for rarest-first ordering.
type candidate struct {
	det   detection.Detection
	count int
}

// Detect returns rare-color regions of a BGR frame, rarest first.
//
// Algorithm:
// 1. Quantize pixels into bins for the configured color space
// 2. Build a histogram of bin counts
// 3. Threshold = min(percentile of nonzero counts, 5% of pixels)
// 4. Mask pixels whose bin is below the threshold, then open and close
// 5. Extract blobs within [ColorMinDetectionArea, ColorMaxDetectionArea]
// 6. Score each blob by the rarity of its centroid's bin
// 7. Sort rarest first and truncate to maxDetections
// 8. Optionally grow BGR detections over neighbouring pixels of similar hue
func (d *Detector) Detect(frame gocv.Mat, cfg config.DetectionConfig, maxDetections int) []detection.Detection {
	d.mu.Lock()
	defer d.mu.Unlock()

	if frame.Empty() || frame.Channels() != 3 {
		return nil
	}
	if !frame.IsContinuous() {
		continuous := frame.Clone()
		defer continuous.Close()
		frame = continuous
	}

	q := quantizerFor(cfg.ColorSpace).quantize(frame, cfg)
	hist := buildHistogram(q)

	threshold, ok := hist.rarityThreshold(cfg.ColorRarityPercentile)
	if !ok {
		return nil
	}

	maskBytes, rare := hist.rareMask(q, threshold)
	if rare == 0 {
		return nil
	}

	mask, err := vision.MaskFromBytes(q.rows, q.cols, maskBytes)
	if err != nil {
		return nil
	}
	defer mask.Close()

	if cfg.MorphologyKernelSize > 1 {
		vision.OpenClose(&mask, d.kernels.Get(cfg.MorphologyKernelSize))
	}

	filter := vision.BlobFilter{
		MinArea: cfg.ColorMinDetectionArea,
		MaxArea: cfg.ColorMaxDetectionArea,
	}
	if maxDetections > 0 {
		filter.Limit = maxDetections * rawBlobFactor
	}

	blobs := vision.ExtractBlobs(mask, cfg.BlobMethod, filter)
	if len(blobs) == 0 {
		return nil
	}

	candidates := make([]candidate, 0, len(blobs))
	for _, b := range blobs {
		candidates = append(candidates, d.score(frame, b, q, hist, cfg))
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].count != candidates[j].count {
			return candidates[i].count < candidates[j].count
		}
		bi, bj := candidates[i].det.BBox, candidates[j].det.BBox
		if bi.Y != bj.Y {
			return bi.Y < bj.Y
		}
		return bi.X < bj.X
	})

	if maxDetections > 0 && len(candidates) > maxDetections {
		candidates = candidates[:maxDetections]
	}

	detections := make([]detection.Detection, len(candidates))
	for i, c := range candidates {
		detections[i] = c.det
	}

	if cfg.EnableHueExpansion && cfg.ColorSpace == config.ColorSpaceBGR {
		detections = d.expandByHue(frame, detections, cfg)
	}

	return detections
}

func (d *Detector) score(frame gocv.Mat, b vision.Blob, q quantized, hist histogram, cfg config.DetectionConfig) candidate {
	count := hist.total
	conf := fallbackConfidence
	if idx, ok := q.at(b.Centroid.X, b.Centroid.Y); ok && idx != 0 {
		count = hist.counts[idx]
		conf = hist.confidence(count)
	}

	meta := map[string]any{
		detection.MetaAlgorithm: "color_" + string(cfg.ColorSpace),
		detection.MetaBinCount:  count,
	}
	if hist.total > 0 {
		meta[detection.MetaRarity] = 1 - float64(count)/float64(hist.total)
	}
	if mean, ok := vision.MaskedMean(frame, b.Outline, b.BBox); ok {
		meta[detection.MetaDominantColor] = [3]int{int(mean[0]), int(mean[1]), int(mean[2])}
	}

	return candidate{
		det: detection.Detection{
			BBox:       b.BBox,
			Centroid:   b.Centroid,
			Area:       b.Area,
			Confidence: conf,
			Type:       detection.TypeColorAnomaly,
			Outline:    b.Outline,
			Metadata:   meta,
		},
		count: count,
	}
}

// Close releases the cached morphology kernels.
func (d *Detector) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.kernels.Close()
}
