package vision

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/ayusman/kestrel/internal/detection"
)

// MaskedMean returns the per-channel mean of img over the pixels covered by
// outline. Without an outline the whole box is used. ok is false when the
// region is empty after clipping to the image bounds.
func MaskedMean(img gocv.Mat, outline []image.Point, bbox detection.BBox) (mean []float64, ok bool) {
	if img.Empty() {
		return nil, false
	}

	bounds := image.Rect(0, 0, img.Cols(), img.Rows())
	rect := bbox.Rect().Intersect(bounds)
	if rect.Empty() {
		return nil, false
	}

	region := img.Region(rect)
	roi := region.Clone()
	region.Close()
	defer roi.Close()

	data := roi.ToBytes()
	channels := roi.Channels()
	w, h := rect.Dx(), rect.Dy()

	mask := regionMask(outline, rect)

	sums := make([]float64, channels)
	count := 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if mask != nil && mask[y*w+x] == 0 {
				continue
			}
			off := (y*w + x) * channels
			for c := 0; c < channels; c++ {
				sums[c] += float64(data[off+c])
			}
			count++
		}
	}

	if count == 0 {
		return nil, false
	}

	for c := range sums {
		sums[c] /= float64(count)
	}
	return sums, true
}

// regionMask rasterizes outline into a mask the size of rect. It returns
// nil when the outline is too short to describe an area, which callers
// treat as "use every pixel".
func regionMask(outline []image.Point, rect image.Rectangle) []byte {
	if len(outline) < 3 {
		return nil
	}

	shifted := make([]image.Point, len(outline))
	for i, p := range outline {
		shifted[i] = p.Sub(rect.Min)
	}

	m := gocv.NewMatWithSize(rect.Dy(), rect.Dx(), gocv.MatTypeCV8U)
	defer m.Close()

	pv := gocv.NewPointsVectorFromPoints([][]image.Point{shifted})
	defer pv.Close()

	gocv.FillPoly(&m, pv, color.RGBA{R: 255, G: 255, B: 255, A: 0})

	mask := m.ToBytes()
	for _, v := range mask {
		if v != 0 {
			return mask
		}
	}
	// A degenerate polygon fills nothing; fall back to the whole box.
	return nil
}

// MeanHue returns the mean OpenCV hue (0-179) of a BGR frame over the given
// outline or box.
func MeanHue(frame gocv.Mat, outline []image.Point, bbox detection.BBox) (float64, bool) {
	bounds := image.Rect(0, 0, frame.Cols(), frame.Rows())
	rect := bbox.Rect().Intersect(bounds)
	if rect.Empty() || frame.Channels() != 3 {
		return 0, false
	}

	region := frame.Region(rect)
	defer region.Close()

	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(region, &hsv, gocv.ColorBGRToHSV)

	shifted := make([]image.Point, len(outline))
	for i, p := range outline {
		shifted[i] = p.Sub(rect.Min)
	}

	mean, ok := MaskedMean(hsv, shifted, detection.BBox{W: rect.Dx(), H: rect.Dy()})
	if !ok {
		return 0, false
	}
	return mean[0], true
}
