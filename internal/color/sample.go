package color

import (
	"image"
	"math"
	"sort"

	"gocv.io/x/gocv"

	"github.com/ayusman/kestrel/internal/config"
)

// samplePeaks is how many dominant hues SampleRegionColors reports.
const samplePeaks = 5

// SampleRegionColors finds the dominant hues inside rect and returns hue
// ranges of +/- toleranceDegrees (on a 0-360 scale) around each, ready to
// be added to ExcludedHueRanges. Peaks near the red boundary produce two
// ranges, one on each side.
func SampleRegionColors(frame gocv.Mat, rect image.Rectangle, toleranceDegrees float64) []config.HueRange {
	if frame.Empty() || frame.Channels() != 3 {
		return nil
	}

	rect = rect.Canon().Intersect(image.Rect(0, 0, frame.Cols(), frame.Rows()))
	if rect.Empty() {
		return nil
	}

	region := frame.Region(rect)
	defer region.Close()

	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(region, &hsv, gocv.ColorBGRToHSV)

	data := hsv.ToBytes()
	var hist [hueBins]int
	for i := 0; i+2 < len(data); i += 3 {
		if int(data[i]) < hueBins {
			hist[data[i]]++
		}
	}

	peaks := make([]int, hueBins)
	for i := range peaks {
		peaks[i] = i
	}
	sort.SliceStable(peaks, func(i, j int) bool {
		return hist[peaks[i]] > hist[peaks[j]]
	})

	tol := toleranceDegrees * 179.0 / 360.0

	var ranges []config.HueRange
	for _, peak := range peaks[:samplePeaks] {
		if hist[peak] == 0 {
			break
		}
		p := float64(peak)
		switch {
		case p < tol:
			ranges = append(ranges,
				hueRange(179-(tol-p), 179),
				hueRange(0, p+tol),
			)
		case p > 179-tol:
			ranges = append(ranges,
				hueRange(p-tol, 179),
				hueRange(0, tol-(179-p)),
			)
		default:
			ranges = append(ranges, hueRange(p-tol, p+tol))
		}
	}

	return ranges
}

func hueRange(lo, hi float64) config.HueRange {
	clamp := func(v float64) int {
		return int(math.Max(0, math.Min(179, math.Round(v))))
	}
	return config.HueRange{Min: clamp(lo), Max: clamp(hi)}
}
