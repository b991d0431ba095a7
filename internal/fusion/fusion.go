// Package fusion combines motion and color detections of the same frame
// according to the configured fusion mode.
package fusion

import (
	"github.com/ayusman/kestrel/internal/config"
	"github.com/ayusman/kestrel/internal/detection"
)

// intersectionBoost scales the averaged confidence of a motion/color pair
// that agree on an object.
const intersectionBoost = 1.5

// Fuse merges the two detection lists. If either list is empty the other is
// returned unchanged; with fusion disabled the lists are concatenated.
func Fuse(motion, color []detection.Detection, cfg config.DetectionConfig) []detection.Detection {
	if len(motion) == 0 {
		return color
	}
	if len(color) == 0 {
		return motion
	}

	if !cfg.EnableFusion {
		out := make([]detection.Detection, 0, len(motion)+len(color))
		out = append(out, motion...)
		return append(out, color...)
	}

	switch cfg.FusionMode {
	case config.FusionIntersection:
		return intersection(motion, color)
	case config.FusionColorPriority:
		return priority(color, motion)
	case config.FusionMotionPriority:
		return priority(motion, color)
	default:
		return union(motion, color)
	}
}

// union pools both lists and collapses every group of transitively
// overlapping detections into one merged detection.
func union(motion, color []detection.Detection) []detection.Detection {
	pool := make([]detection.Detection, 0, len(motion)+len(color))
	pool = append(pool, motion...)
	pool = append(pool, color...)

	return MergeOverlapping(pool)
}

// MergeOverlapping groups detections connected by IoU overlap and merges
// each group. Output order follows the first member of each group.
func MergeOverlapping(pool []detection.Detection) []detection.Detection {
	parent := make([]int, len(pool))
	for i := range parent {
		parent[i] = i
	}

	find := func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}

	for i := range pool {
		for j := i + 1; j < len(pool); j++ {
			if detection.Overlaps(pool[i], pool[j]) {
				ri, rj := find(i), find(j)
				if ri != rj {
					parent[max(ri, rj)] = min(ri, rj)
				}
			}
		}
	}

	groups := make(map[int][]detection.Detection)
	var order []int
	for i, d := range pool {
		root := find(i)
		if _, seen := groups[root]; !seen {
			order = append(order, root)
		}
		groups[root] = append(groups[root], d)
	}

	out := make([]detection.Detection, 0, len(order))
	for _, root := range order {
		out = append(out, detection.Merge(groups[root]))
	}
	return out
}

// intersection keeps only motion detections confirmed by an overlapping
// color detection. Each color detection confirms at most one motion
// detection, chosen by highest IoU.
func intersection(motion, color []detection.Detection) []detection.Detection {
	used := make([]bool, len(color))
	var out []detection.Detection

	for _, m := range motion {
		best := -1
		bestIoU := detection.OverlapIoU
		for j, c := range color {
			if used[j] {
				continue
			}
			if iou := detection.IoU(m.BBox, c.BBox); iou > bestIoU {
				best = j
				bestIoU = iou
			}
		}
		if best < 0 {
			continue
		}
		used[best] = true

		c := color[best]
		merged := detection.Merge([]detection.Detection{m, c})
		merged.Confidence = min(1.0, (m.Confidence+c.Confidence)/2*intersectionBoost)
		out = append(out, merged)
	}

	return out
}

// priority keeps every primary detection and adds secondary detections that
// do not overlap any primary.
func priority(primary, secondary []detection.Detection) []detection.Detection {
	out := make([]detection.Detection, 0, len(primary)+len(secondary))
	out = append(out, primary...)
	for _, s := range secondary {
		if !detection.OverlapsAny(s, primary) {
			out = append(out, s)
		}
	}
	return out
}
