// Package testdata builds synthetic frames for detector tests.
package testdata

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// BGR is an 8-bit blue/green/red triple.
type BGR struct {
	B, G, R uint8
}

var (
	Black = BGR{0, 0, 0}
	White = BGR{255, 255, 255}
	Blue  = BGR{255, 0, 0}
	Green = BGR{0, 255, 0}
	Red   = BGR{0, 0, 255}
	Gray  = BGR{128, 128, 128}
)

// SolidFrame returns a rows x cols BGR frame filled with c.
func SolidFrame(rows, cols int, c BGR) gocv.Mat {
	m := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV8UC3)
	m.SetTo(gocv.NewScalar(float64(c.B), float64(c.G), float64(c.R), 0))
	return m
}

// GrayFrame returns a rows x cols single channel frame filled with v.
func GrayFrame(rows, cols int, v uint8) gocv.Mat {
	m := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV8U)
	m.SetTo(gocv.NewScalar(float64(v), 0, 0, 0))
	return m
}

// FillRect paints r on a BGR frame.
func FillRect(m *gocv.Mat, r image.Rectangle, c BGR) {
	region := m.Region(r)
	defer region.Close()
	region.SetTo(gocv.NewScalar(float64(c.B), float64(c.G), float64(c.R), 0))
}

// FillGrayRect paints r on a single channel frame.
func FillGrayRect(m *gocv.Mat, r image.Rectangle, v uint8) {
	region := m.Region(r)
	defer region.Close()
	region.SetTo(gocv.NewScalar(float64(v), 0, 0, 0))
}

// FrameWithSquare returns a background frame with a square of side size at
// (x, y).
func FrameWithSquare(rows, cols int, bg BGR, x, y, size int, fg BGR) gocv.Mat {
	m := SolidFrame(rows, cols, bg)
	FillRect(&m, image.Rect(x, y, x+size, y+size), fg)
	return m
}

// MovingSquare returns n frames with a square sliding step pixels right on
// each frame. The caller closes every frame.
func MovingSquare(n, rows, cols, size, step int, bg, fg BGR) ([]*gocv.Mat, error) {
	if (n-1)*step+size > cols || size > rows {
		return nil, fmt.Errorf("square of %d moving %d x %d does not fit %dx%d", size, n, step, cols, rows)
	}

	frames := make([]*gocv.Mat, 0, n)
	y := (rows - size) / 2
	for i := 0; i < n; i++ {
		m := FrameWithSquare(rows, cols, bg, i*step, y, size, fg)
		frames = append(frames, &m)
	}
	return frames, nil
}

// CloseAll releases a slice of frames.
func CloseAll(frames []*gocv.Mat) {
	for _, f := range frames {
		if f != nil {
			f.Close()
		}
	}
}
