package color

import (
	"math"

	"gocv.io/x/gocv"

	"github.com/ayusman/kestrel/internal/config"
)

// hueBins is the number of native OpenCV hue values (0-179).
const hueBins = 180

// quantized is a per-pixel bin index image. Index 0 is never marked rare.
// In BGR mode it is black, an ordinary color; in HSV/LAB mode it holds the
// gray pixels left out of the analysis and masked is set.
type quantized struct {
	index []int32
	rows  int
	cols  int
	bins  int
	// total is the pixel count rarity is measured against.
	total  int
	masked bool
}

func (q quantized) at(x, y int) (int32, bool) {
	if x < 0 || y < 0 || x >= q.cols || y >= q.rows {
		return 0, false
	}
	return q.index[y*q.cols+x], true
}

// quantizer maps a BGR frame onto histogram bins for one color space.
type quantizer interface {
	quantize(frame gocv.Mat, cfg config.DetectionConfig) quantized
}

func quantizerFor(space config.ColorSpace) quantizer {
	switch space {
	case config.ColorSpaceHSV:
		return hsvQuantizer{}
	case config.ColorSpaceLAB:
		return labQuantizer{}
	default:
		return bgrQuantizer{}
	}
}

func levels(bits int) (shift uint, n int) {
	bits = max(1, min(8, bits))
	return uint(8 - bits), 1 << bits
}

// bgrQuantizer indexes b + g*n + r*n^2 over all three channels.
type bgrQuantizer struct{}

func (bgrQuantizer) quantize(frame gocv.Mat, cfg config.DetectionConfig) quantized {
	shift, n := levels(cfg.ColorQuantizationBits)
	data := frame.ToBytes()
	rows, cols := frame.Rows(), frame.Cols()

	q := quantized{
		index: make([]int32, rows*cols),
		rows:  rows,
		cols:  cols,
		bins:  n * n * n,
		total: rows * cols,
	}
	for i := range q.index {
		b := int32(data[i*3] >> shift)
		g := int32(data[i*3+1] >> shift)
		r := int32(data[i*3+2] >> shift)
		q.index[i] = b + g*int32(n) + r*int32(n*n)
	}
	return q
}

// hsvQuantizer indexes hue only. Low saturation pixels have no meaningful
// hue and are excluded.
type hsvQuantizer struct{}

func (hsvQuantizer) quantize(frame gocv.Mat, cfg config.DetectionConfig) quantized {
	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(frame, &hsv, gocv.ColorBGRToHSV)

	data := hsv.ToBytes()
	rows, cols := hsv.Rows(), hsv.Cols()

	native := cfg.ColorQuantizationBits >= 8
	_, n := levels(cfg.ColorQuantizationBits)
	bins := n
	if native {
		bins = hueBins
	}

	q := quantized{
		index:  make([]int32, rows*cols),
		rows:   rows,
		cols:   cols,
		bins:   bins + 1,
		masked: true,
	}
	minSat := byte(max(0, min(255, cfg.HSVMinSaturation)))
	for i := range q.index {
		h, s := data[i*3], data[i*3+1]
		if s < minSat {
			continue
		}
		bin := int32(h)
		if !native {
			bin = int32(int(h) * n / hueBins)
		}
		q.index[i] = bin + 1
		q.total++
	}
	return q
}

// labQuantizer indexes the a/b chroma plane, ignoring lightness. Near-gray
// pixels (low chroma) are excluded.
type labQuantizer struct{}

func (labQuantizer) quantize(frame gocv.Mat, cfg config.DetectionConfig) quantized {
	lab := gocv.NewMat()
	defer lab.Close()
	gocv.CvtColor(frame, &lab, gocv.ColorBGRToLab)

	data := lab.ToBytes()
	rows, cols := lab.Rows(), lab.Cols()
	shift, n := levels(cfg.ColorQuantizationBits)

	q := quantized{
		index:  make([]int32, rows*cols),
		rows:   rows,
		cols:   cols,
		bins:   n*n + 1,
		masked: true,
	}
	for i := range q.index {
		a, b := data[i*3+1], data[i*3+2]
		chroma := math.Hypot(float64(a)-128, float64(b)-128)
		if chroma < cfg.LABMinChroma {
			continue
		}
		q.index[i] = int32(a>>shift)*int32(n) + int32(b>>shift) + 1
		q.total++
	}
	return q
}
