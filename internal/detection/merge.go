package detection

import (
	"image"
	"sort"
)

// Merge combines detections that refer to the same object into one.
//
// The merged box is the union of the input boxes and the confidence is the
// maximum. When every input carries an outline, area and centroid come from
// the union of the filled outlines; the merged outline is the union contour,
// or the convex hull of all outline points when the union is split into
// separate regions. The area never drops below the largest member area.
// Without outlines the area is the sum of member areas and the centroid
// their mean.
func Merge(ds []Detection) Detection {
	switch len(ds) {
	case 0:
		return Detection{}
	case 1:
		return ds[0]
	}

	minX, minY := ds[0].BBox.X, ds[0].BBox.Y
	maxX, maxY := ds[0].BBox.X+ds[0].BBox.W, ds[0].BBox.Y+ds[0].BBox.H
	confidence := ds[0].Confidence
	timestamp := ds[0].Timestamp
	maxArea := ds[0].Area
	allOutlines := true

	for _, d := range ds {
		minX = min(minX, d.BBox.X)
		minY = min(minY, d.BBox.Y)
		maxX = max(maxX, d.BBox.X+d.BBox.W)
		maxY = max(maxY, d.BBox.Y+d.BBox.H)
		confidence = max(confidence, d.Confidence)
		timestamp = max(timestamp, d.Timestamp)
		maxArea = max(maxArea, d.Area)
		if len(d.Outline) < 3 {
			allOutlines = false
		}
	}

	merged := Detection{
		BBox:       BBox{X: minX, Y: minY, W: maxX - minX, H: maxY - minY},
		Confidence: confidence,
		Type:       mergedType(ds),
		Timestamp:  timestamp,
	}

	if allOutlines {
		area, centroid, outline, ok := unionRegion(ds)
		if !ok {
			centroid = merged.BBox.Center()
		}
		if outline == nil {
			var points []image.Point
			for _, d := range ds {
				points = append(points, d.Outline...)
			}
			outline = ConvexHull(points)
		}
		merged.Outline = outline
		merged.Area = max(area, maxArea)
		merged.Centroid = centroid
	} else {
		var sumX, sumY int
		for _, d := range ds {
			merged.Area += d.Area
			sumX += d.Centroid.X
			sumY += d.Centroid.Y
		}
		merged.Centroid = image.Pt(sumX/len(ds), sumY/len(ds))
	}

	meta := make(map[string]any, len(ds[0].Metadata)+1)
	for k, v := range ds[0].Metadata {
		meta[k] = v
	}
	meta[MetaMergedFrom] = len(ds)
	merged.Metadata = meta

	return merged
}

// mergedType returns TypeFused when motion and color detections are mixed,
// otherwise the first member's type.
func mergedType(ds []Detection) Type {
	var hasMotion, hasColor bool
	for _, d := range ds {
		switch d.Type {
		case TypeMotion:
			hasMotion = true
		case TypeColorAnomaly:
			hasColor = true
		case TypeFused:
			return TypeFused
		}
	}
	if hasMotion && hasColor {
		return TypeFused
	}
	return ds[0].Type
}

// ConvexHull returns the convex hull of points in counter-clockwise order
// using Andrew's monotone chain.
func ConvexHull(points []image.Point) []image.Point {
	if len(points) < 3 {
		out := make([]image.Point, len(points))
		copy(out, points)
		return out
	}

	pts := make([]image.Point, len(points))
	copy(pts, points)
	sort.Slice(pts, func(i, j int) bool {
		if pts[i].X != pts[j].X {
			return pts[i].X < pts[j].X
		}
		return pts[i].Y < pts[j].Y
	})

	cross := func(o, a, b image.Point) int {
		return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
	}

	hull := make([]image.Point, 0, 2*len(pts))
	for _, p := range pts {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(pts) - 2; i >= 0; i-- {
		p := pts[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}

	return hull[:len(hull)-1]
}

// PolygonMoments returns the area and area-weighted centroid of a simple
// polygon. ok is false for degenerate (zero-area) polygons.
func PolygonMoments(poly []image.Point) (area float64, centroid image.Point, ok bool) {
	if len(poly) < 3 {
		return 0, image.Point{}, false
	}

	var a2, cx, cy float64
	for i := range poly {
		p := poly[i]
		q := poly[(i+1)%len(poly)]
		c := float64(p.X*q.Y - q.X*p.Y)
		a2 += c
		cx += float64(p.X+q.X) * c
		cy += float64(p.Y+q.Y) * c
	}

	if a2 == 0 {
		return 0, image.Point{}, false
	}

	area = a2 / 2
	cx /= 3 * a2
	cy /= 3 * a2
	if area < 0 {
		area = -area
	}

	return area, image.Pt(int(cx), int(cy)), true
}
