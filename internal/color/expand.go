package color

import (
	"gocv.io/x/gocv"

	"github.com/ayusman/kestrel/internal/config"
	"github.com/ayusman/kestrel/internal/detection"
	"github.com/ayusman/kestrel/internal/vision"
)

// expansionKernel is the morphology kernel size used to tidy hue masks.
const expansionKernel = 3

// expandByHue grows each detection over connected pixels whose hue lies
// within HueExpansionRange of the detection's mean hue. A detection is only
// replaced when the grown region is larger and still within the color area
// bounds.
func (d *Detector) expandByHue(frame gocv.Mat, detections []detection.Detection, cfg config.DetectionConfig) []detection.Detection {
	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(frame, &hsv, gocv.ColorBGRToHSV)

	data := hsv.ToBytes()
	rows, cols := hsv.Rows(), hsv.Cols()

	out := make([]detection.Detection, len(detections))
	for i, det := range detections {
		out[i] = det

		mean, ok := vision.MaskedMean(hsv, det.Outline, det.BBox)
		if !ok {
			continue
		}

		mask, err := vision.MaskFromBytes(rows, cols, hueMask(data, mean[0], cfg.HueExpansionRange))
		if err != nil {
			continue
		}
		vision.CloseOpen(&mask, d.kernels.Get(expansionKernel))

		grown, found := vision.LargestContaining(mask, det.Centroid)
		mask.Close()
		if !found || grown.Area <= det.Area || grown.Area > cfg.ColorMaxDetectionArea {
			continue
		}

		expanded := det
		expanded.BBox = grown.BBox
		expanded.Centroid = grown.Centroid
		expanded.Area = grown.Area
		expanded.Outline = grown.Outline
		expanded = expanded.WithMeta(detection.MetaHueExpanded, true)
		expanded = expanded.WithMeta(detection.MetaOriginalArea, det.Area)
		ratio := 1.0
		if det.Area > 0 {
			ratio = grown.Area / det.Area
		}
		out[i] = expanded.WithMeta(detection.MetaExpansionRatio, ratio)
	}

	return out
}

// hueMask marks pixels of a packed HSV buffer whose hue is within
// +/- spread of center, wrapping around the 0/180 boundary.
func hueMask(hsv []byte, center float64, spread int) []byte {
	lo := center - float64(spread)
	hi := center + float64(spread)

	mask := make([]byte, len(hsv)/3)
	for i := range mask {
		h := float64(hsv[i*3])
		var in bool
		switch {
		case lo < 0:
			in = h >= hueBins+lo || h <= hi
		case hi > hueBins-1:
			in = h >= lo || h <= hi-hueBins
		default:
			in = h >= lo && h <= hi
		}
		if in {
			mask[i] = 255
		}
	}
	return mask
}
