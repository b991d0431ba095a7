// Package vision wraps the OpenCV primitives shared by the motion and color
// detectors: morphology, blob extraction, and masked color statistics.
package vision

import (
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// KernelCache keeps elliptical structuring elements by size so they are
// allocated once per process instead of once per frame.
type KernelCache struct {
	mu      sync.Mutex
	kernels map[int]gocv.Mat
}

// NewKernelCache creates an empty cache.
func NewKernelCache() *KernelCache {
	return &KernelCache{kernels: make(map[int]gocv.Mat)}
}

// Get returns the kernel for size. The Mat is owned by the cache.
func (c *KernelCache) Get(size int) gocv.Mat {
	if size < 1 {
		size = 1
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if k, ok := c.kernels[size]; ok {
		return k
	}

	k := gocv.GetStructuringElement(gocv.MorphEllipse, image.Pt(size, size))
	c.kernels[size] = k
	return k
}

// Close releases every cached kernel.
func (c *KernelCache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for size, k := range c.kernels {
		k.Close()
		delete(c.kernels, size)
	}
}

// OpenClose applies a morphological open followed by a close in place,
// removing speckle noise and then filling small holes.
func OpenClose(mask *gocv.Mat, kernel gocv.Mat) {
	opened := gocv.NewMat()
	defer opened.Close()

	gocv.MorphologyEx(*mask, &opened, gocv.MorphOpen, kernel)
	gocv.MorphologyEx(opened, mask, gocv.MorphClose, kernel)
}

// CloseOpen applies a close followed by an open in place.
func CloseOpen(mask *gocv.Mat, kernel gocv.Mat) {
	closed := gocv.NewMat()
	defer closed.Close()

	gocv.MorphologyEx(*mask, &closed, gocv.MorphClose, kernel)
	gocv.MorphologyEx(closed, mask, gocv.MorphOpen, kernel)
}

// OddKernel rounds size up to the next odd value; sizes below 3 return 0,
// meaning "no blur".
func OddKernel(size int) int {
	if size < 3 {
		return 0
	}
	if size%2 == 0 {
		return size + 1
	}
	return size
}

// MaskFromBytes wraps an 8-bit single channel buffer as a Mat. The caller
// owns the returned Mat.
func MaskFromBytes(rows, cols int, data []byte) (gocv.Mat, error) {
	return gocv.NewMatFromBytes(rows, cols, gocv.MatTypeCV8U, data)
}
