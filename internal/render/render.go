// Package render draws detection overlays onto frames.
package render

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
	"gocv.io/x/gocv"

	"github.com/ayusman/kestrel/internal/config"
	"github.com/ayusman/kestrel/internal/detection"
	"github.com/ayusman/kestrel/internal/metrics"
)

// Base hues (degrees) per detection type.
var typeHue = map[detection.Type]float64{
	detection.TypeMotion:       210,
	detection.TypeColorAnomaly: 30,
	detection.TypeFused:        300,
}

const (
	lineThickness = 2
	minRadius     = 5
	fontScale     = 0.4
)

// ColorFor returns the overlay color of a detection. The hue encodes the
// type and the brightness the confidence.
func ColorFor(d detection.Detection) color.RGBA {
	hue, ok := typeHue[d.Type]
	if !ok {
		hue = 120
	}
	conf := min(1, max(0, d.Confidence))
	c := colorful.Hsv(hue, 0.9, 0.5+0.5*conf).Clamped()
	r, g, b := c.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

// DetectionColor returns the dominant color of a detection at full
// saturation and brightness. ok is false when the detection carries no
// dominant_color metadata.
func DetectionColor(d detection.Detection) (color.RGBA, bool) {
	v, _ := d.Meta(detection.MetaDominantColor)
	bgr, ok := v.([3]int)
	if !ok {
		return color.RGBA{}, false
	}
	src := colorful.Color{R: float64(bgr[2]) / 255, G: float64(bgr[1]) / 255, B: float64(bgr[0]) / 255}
	h, _, _ := src.Hsv()
	r, g, b := colorful.Hsv(h, 1, 1).Clamped().RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}, true
}

// Annotate draws ds onto dst using the render settings in cfg. Nothing is
// drawn when ShowDetections is off or the shape is RenderOff.
func Annotate(dst *gocv.Mat, ds []detection.Detection, cfg config.DetectionConfig) {
	if dst.Empty() || !cfg.ShowDetections || cfg.RenderShape == config.RenderOff {
		return
	}

	for _, d := range ds {
		col := ColorFor(d)
		if cfg.UseDetectionColor {
			if dc, ok := DetectionColor(d); ok {
				col = dc
			}
		}

		if cfg.RenderContours && len(d.Outline) >= 3 {
			pv := gocv.NewPointsVectorFromPoints([][]image.Point{d.Outline})
			gocv.Polylines(dst, pv, true, col, 1)
			pv.Close()
		}

		switch cfg.RenderShape {
		case config.RenderCircle:
			radius := int(math.Sqrt(max(0, d.Area)) / 2)
			gocv.Circle(dst, d.Centroid, max(radius, minRadius), col, lineThickness)
		case config.RenderDot:
			gocv.Circle(dst, d.Centroid, minRadius, col, -1)
		default:
			gocv.Rectangle(dst, d.BBox.Rect(), col, lineThickness)
			gocv.Circle(dst, d.Centroid, 3, col, -1)
		}

		if cfg.RenderText {
			drawLabel(dst, d, col)
		}
	}
}

func drawLabel(dst *gocv.Mat, d detection.Detection, col color.RGBA) {
	label := fmt.Sprintf("%s %.0f%%", d.Type, d.Confidence*100)
	pos := image.Pt(d.BBox.X, d.BBox.Y-6)
	if pos.Y < 12 {
		pos.Y = d.BBox.Y + d.BBox.H + 14
	}
	gocv.PutText(dst, label, pos, gocv.FontHersheySimplex, fontScale, col, 1)
}

// DrawMaskOverlay shows the processing region on dst: pixels outside mask
// are tinted red and bounds, when not empty, is outlined in cyan. mask must
// match the size of dst.
func DrawMaskOverlay(dst *gocv.Mat, mask gocv.Mat, bounds image.Rectangle) {
	if dst.Empty() {
		return
	}

	if !mask.Empty() && mask.Rows() == dst.Rows() && mask.Cols() == dst.Cols() {
		tint := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 128, 0), dst.Rows(), dst.Cols(), dst.Type())
		defer tint.Close()
		tinted := gocv.NewMat()
		defer tinted.Close()
		outside := gocv.NewMat()
		defer outside.Close()

		gocv.AddWeighted(*dst, 0.7, tint, 0.3, 0, &tinted)
		gocv.BitwiseNot(mask, &outside)
		tinted.CopyToWithMask(dst, outside)
	}

	if !bounds.Empty() {
		gocv.Rectangle(dst, bounds, color.RGBA{G: 255, B: 255, A: 255}, lineThickness)
	}
}

// DrawNotice writes text along the bottom edge of dst.
func DrawNotice(dst *gocv.Mat, text string) {
	if dst.Empty() || text == "" {
		return
	}
	gocv.PutText(dst, text, image.Pt(10, dst.Rows()-10), gocv.FontHersheySimplex, 0.5, color.RGBA{R: 255, G: 165, A: 255}, 1)
}

// DrawHUD writes a status line with frame rate and detection count in the
// top-left corner.
func DrawHUD(dst *gocv.Mat, snap metrics.Snapshot, cameraMoving bool) {
	if dst.Empty() {
		return
	}

	line := fmt.Sprintf("%.1f fps  %d detections", snap.FPS, snap.LastDetections)
	if cameraMoving {
		line += "  camera moving"
	}

	gocv.Rectangle(dst, image.Rect(0, 0, min(dst.Cols(), 8+len(line)*8), 20), color.RGBA{A: 255}, -1)
	gocv.PutText(dst, line, image.Pt(4, 14), gocv.FontHersheySimplex, fontScale, color.RGBA{R: 255, G: 255, B: 255, A: 255}, 1)
}
