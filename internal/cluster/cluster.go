// Package cluster merges detections whose centroids lie close together.
package cluster

import (
	"github.com/ayusman/kestrel/internal/config"
	"github.com/ayusman/kestrel/internal/detection"
)

// Cluster groups detections greedily by centroid distance.
//
// Algorithm:
//  1. Walk the detections in order; each unclustered detection seeds a
//     cluster.
//  2. Every later unclustered detection within ClusteringDistance of the
//     seed joins it.
//  3. Clusters of two or more are merged and tagged with clustered and
//     cluster_size. Singletons pass through unchanged.
func Cluster(ds []detection.Detection, cfg config.DetectionConfig) []detection.Detection {
	if !cfg.EnableDetectionClustering || cfg.ClusteringDistance <= 0 || len(ds) < 2 {
		return ds
	}

	taken := make([]bool, len(ds))
	out := make([]detection.Detection, 0, len(ds))

	for i, seed := range ds {
		if taken[i] {
			continue
		}
		taken[i] = true

		members := []detection.Detection{seed}
		for j := i + 1; j < len(ds); j++ {
			if taken[j] {
				continue
			}
			if detection.Distance(seed, ds[j]) <= cfg.ClusteringDistance {
				taken[j] = true
				members = append(members, ds[j])
			}
		}

		if len(members) == 1 {
			out = append(out, seed)
			continue
		}

		merged := detection.Merge(members)
		merged = merged.WithMeta(detection.MetaClustered, true)
		out = append(out, merged.WithMeta(detection.MetaClusterSize, len(members)))
	}

	return out
}
