package motion

import (
	"gocv.io/x/gocv"

	"github.com/ayusman/kestrel/internal/vision"
)

// persistence keeps the last M foreground masks and keeps only pixels that
// were foreground in at least N of them.
type persistence struct {
	masks      [][]byte
	next       int
	count      int
	rows, cols int
}

func newPersistence(frames int) *persistence {
	if frames < 1 {
		frames = 1
	}
	return &persistence{masks: make([][]byte, frames)}
}

// apply records mask and rewrites it in place with the persistent pixels.
// Until threshold masks have been seen the mask passes through unchanged.
func (p *persistence) apply(mask *gocv.Mat, threshold int) {
	rows, cols := mask.Rows(), mask.Cols()
	if rows != p.rows || cols != p.cols {
		p.clear()
		p.rows, p.cols = rows, cols
	}

	p.masks[p.next] = mask.ToBytes()
	p.next = (p.next + 1) % len(p.masks)
	if p.count < len(p.masks) {
		p.count++
	}

	if p.count < threshold {
		return
	}

	size := rows * cols
	out := make([]byte, size)
	for i := 0; i < size; i++ {
		hits := 0
		for _, m := range p.masks {
			if m != nil && m[i] != 0 {
				hits++
			}
		}
		if hits >= threshold {
			out[i] = 255
		}
	}

	filtered, err := vision.MaskFromBytes(rows, cols, out)
	if err != nil {
		return
	}
	defer filtered.Close()
	filtered.CopyTo(mask)
}

func (p *persistence) clear() {
	for i := range p.masks {
		p.masks[i] = nil
	}
	p.next = 0
	p.count = 0
	p.rows, p.cols = 0, 0
}
