package detection

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// unionRegion rasterizes the outlines of ds into one mask and measures the
// result. area is the summed contour area of the union's external contours,
// so overlapping pixels count once and the gaps between disjoint members
// count not at all. outline is the union contour when the union is a single
// region, otherwise nil. ok is false when nothing was filled.
func unionRegion(ds []Detection) (area float64, centroid image.Point, outline []image.Point, ok bool) {
	var bounds image.Rectangle
	for i, d := range ds {
		for j, p := range d.Outline {
			r := image.Rectangle{Min: p, Max: p.Add(image.Pt(1, 1))}
			if i == 0 && j == 0 {
				bounds = r
				continue
			}
			bounds = bounds.Union(r)
		}
	}
	if bounds.Empty() {
		return 0, image.Point{}, nil, false
	}

	mask := gocv.Zeros(bounds.Dy(), bounds.Dx(), gocv.MatTypeCV8U)
	defer mask.Close()

	// One polygon at a time: fillPoly treats overlapping polygons of a single
	// call as holes.
	white := color.RGBA{R: 255, G: 255, B: 255, A: 0}
	for _, d := range ds {
		shifted := make([]image.Point, len(d.Outline))
		for i, p := range d.Outline {
			shifted[i] = p.Sub(bounds.Min)
		}
		pv := gocv.NewPointsVectorFromPoints([][]image.Point{shifted})
		gocv.FillPoly(&mask, pv, white)
		pv.Close()
	}

	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	for i := 0; i < contours.Size(); i++ {
		area += gocv.ContourArea(contours.At(i))
	}
	if contours.Size() == 1 {
		pts := contours.At(0).ToPoints()
		outline = make([]image.Point, len(pts))
		for i, p := range pts {
			outline[i] = p.Add(bounds.Min)
		}
	}

	m := gocv.Moments(mask, true)
	if m["m00"] == 0 {
		return 0, image.Point{}, nil, false
	}
	centroid = image.Pt(
		bounds.Min.X+int(m["m10"]/m["m00"]),
		bounds.Min.Y+int(m["m01"]/m["m00"]),
	)

	return area, centroid, outline, true
}
