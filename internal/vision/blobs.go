package vision

import (
	"encoding/binary"
	"image"

	"gocv.io/x/gocv"

	"github.com/ayusman/kestrel/internal/config"
	"github.com/ayusman/kestrel/internal/detection"
)

// Column layout of the stats Mat returned by ConnectedComponentsWithStats.
const (
	statLeft = iota
	statTop
	statWidth
	statHeight
	statArea
)

// Blob is a connected foreground region of a binary mask.
type Blob struct {
	BBox     detection.BBox
	Centroid image.Point
	Area     float64
	Outline  []image.Point
}

// BlobFilter bounds the blobs returned by ExtractBlobs.
type BlobFilter struct {
	MinArea float64
	MaxArea float64
	// Limit stops extraction after this many raw blobs have been visited.
	// Zero means no limit.
	Limit int
}

func (f BlobFilter) accepts(area float64) bool {
	return area >= f.MinArea && area <= f.MaxArea
}

// ExtractBlobs finds blobs in an 8-bit binary mask using either contour
// tracing or connected-component labeling. Both return blobs in a fixed
// scan order so results are reproducible for identical masks.
//
// Area convention: contour tracing reports the polygon area of the outer
// contour, connected components report the pixel count.
func ExtractBlobs(mask gocv.Mat, method config.BlobMethod, filter BlobFilter) []Blob {
	if mask.Empty() || mask.Channels() != 1 {
		return nil
	}

	if method == config.BlobComponents {
		return componentBlobs(mask, filter)
	}
	return contourBlobs(mask, filter)
}

func contourBlobs(mask gocv.Mat, filter BlobFilter) []Blob {
	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	var blobs []Blob
	for i := 0; i < contours.Size(); i++ {
		if filter.Limit > 0 && i >= filter.Limit {
			break
		}

		pv := contours.At(i)
		area := gocv.ContourArea(pv)
		if !filter.accepts(area) {
			continue
		}

		points := pv.ToPoints()
		rect := gocv.BoundingRect(pv)
		bbox := detection.FromRect(rect)

		_, centroid, ok := detection.PolygonMoments(points)
		if !ok {
			centroid = bbox.Center()
		}

		blobs = append(blobs, Blob{
			BBox:     bbox,
			Centroid: centroid,
			Area:     area,
			Outline:  points,
		})
	}

	return blobs
}

func componentBlobs(mask gocv.Mat, filter BlobFilter) []Blob {
	labels := gocv.NewMat()
	defer labels.Close()
	stats := gocv.NewMat()
	defer stats.Close()
	centroids := gocv.NewMat()
	defer centroids.Close()

	n := gocv.ConnectedComponentsWithStats(mask, &labels, &stats, &centroids)
	if n <= 1 {
		return nil
	}

	raw := labels.ToBytes()
	cols := labels.Cols()

	var blobs []Blob
	// Label 0 is the background.
	for label := 1; label < n; label++ {
		if filter.Limit > 0 && label > filter.Limit {
			break
		}

		area := float64(stats.GetIntAt(label, statArea))
		if !filter.accepts(area) {
			continue
		}

		bbox := detection.BBox{
			X: int(stats.GetIntAt(label, statLeft)),
			Y: int(stats.GetIntAt(label, statTop)),
			W: int(stats.GetIntAt(label, statWidth)),
			H: int(stats.GetIntAt(label, statHeight)),
		}
		centroid := image.Pt(
			int(centroids.GetDoubleAt(label, 0)),
			int(centroids.GetDoubleAt(label, 1)),
		)

		blobs = append(blobs, Blob{
			BBox:     bbox,
			Centroid: centroid,
			Area:     area,
			Outline:  componentOutline(raw, cols, int32(label), bbox),
		})
	}

	return blobs
}

// componentOutline traces the outer contour of one labeled component inside
// its bounding box. raw is the CV_32S label image as bytes.
func componentOutline(raw []byte, cols int, label int32, bbox detection.BBox) []image.Point {
	local := make([]byte, bbox.W*bbox.H)
	for y := 0; y < bbox.H; y++ {
		row := (bbox.Y + y) * cols
		for x := 0; x < bbox.W; x++ {
			off := (row + bbox.X + x) * 4
			if off+4 > len(raw) {
				continue
			}
			if int32(binary.NativeEndian.Uint32(raw[off:off+4])) == label {
				local[y*bbox.W+x] = 255
			}
		}
	}

	m, err := MaskFromBytes(bbox.H, bbox.W, local)
	if err != nil {
		return rectOutline(bbox)
	}
	defer m.Close()

	contours := gocv.FindContours(m, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	var best []image.Point
	bestArea := -1.0
	for i := 0; i < contours.Size(); i++ {
		pv := contours.At(i)
		if a := gocv.ContourArea(pv); a > bestArea {
			bestArea = a
			best = pv.ToPoints()
		}
	}
	if len(best) == 0 {
		return rectOutline(bbox)
	}

	for i := range best {
		best[i] = best[i].Add(image.Pt(bbox.X, bbox.Y))
	}
	return best
}

func rectOutline(b detection.BBox) []image.Point {
	return []image.Point{
		{b.X, b.Y},
		{b.X + b.W - 1, b.Y},
		{b.X + b.W - 1, b.Y + b.H - 1},
		{b.X, b.Y + b.H - 1},
	}
}

// LargestContaining returns the outer contour with the largest area that
// contains pt, or false if none does.
func LargestContaining(mask gocv.Mat, pt image.Point) (Blob, bool) {
	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	var (
		best     Blob
		found    bool
		bestArea float64
	)
	for i := 0; i < contours.Size(); i++ {
		pv := contours.At(i)
		if gocv.PointPolygonTest(pv, pt, false) < 0 {
			continue
		}
		area := gocv.ContourArea(pv)
		if found && area <= bestArea {
			continue
		}

		points := pv.ToPoints()
		bbox := detection.FromRect(gocv.BoundingRect(pv))
		_, centroid, ok := detection.PolygonMoments(points)
		if !ok {
			centroid = bbox.Center()
		}

		best = Blob{BBox: bbox, Centroid: centroid, Area: area, Outline: points}
		bestArea = area
		found = true
	}

	return best, found
}
