package cluster

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/kestrel/internal/config"
	"github.com/ayusman/kestrel/internal/detection"
)

func square(x, y, size int, typ detection.Type) detection.Detection {
	return detection.Detection{
		BBox:     detection.BBox{X: x, Y: y, W: size, H: size},
		Centroid: image.Pt(x+size/2, y+size/2),
		Area:     float64(size * size),
		Type:     typ,
		Outline: []image.Point{
			{X: x, Y: y}, {X: x + size, Y: y},
			{X: x + size, Y: y + size}, {X: x, Y: y + size},
		},
		Confidence: 0.5,
	}
}

func clusterConfig(distance float64) config.DetectionConfig {
	cfg := config.Default()
	cfg.EnableDetectionClustering = true
	cfg.ClusteringDistance = distance
	return cfg
}

func TestCluster(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    []detection.Detection
		distance float64
		wantLen  int
	}{
		{
			name:     "empty",
			input:    nil,
			distance: 50,
			wantLen:  0,
		},
		{
			name: "far apart stay separate",
			input: []detection.Detection{
				square(0, 0, 10, detection.TypeMotion),
				square(200, 200, 10, detection.TypeMotion),
			},
			distance: 50,
			wantLen:  2,
		},
		{
			name: "neighbours merge",
			input: []detection.Detection{
				square(0, 0, 10, detection.TypeMotion),
				square(20, 0, 10, detection.TypeMotion),
				square(0, 20, 10, detection.TypeColorAnomaly),
				square(300, 300, 10, detection.TypeMotion),
			},
			distance: 30,
			wantLen:  2,
		},
		{
			name: "zero distance disables",
			input: []detection.Detection{
				square(0, 0, 10, detection.TypeMotion),
				square(0, 0, 10, detection.TypeMotion),
			},
			distance: 0,
			wantLen:  2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Cluster(tt.input, clusterConfig(tt.distance))
			assert.Len(t, got, tt.wantLen)
		})
	}
}

func TestCluster_Metadata(t *testing.T) {
	t.Parallel()

	input := []detection.Detection{
		square(0, 0, 10, detection.TypeMotion),
		square(20, 0, 10, detection.TypeColorAnomaly),
		square(300, 300, 10, detection.TypeMotion),
	}

	got := Cluster(input, clusterConfig(30))
	require.Len(t, got, 2)

	merged := got[0]
	assert.Equal(t, true, merged.Metadata[detection.MetaClustered])
	assert.Equal(t, 2, merged.Metadata[detection.MetaClusterSize])
	assert.Equal(t, detection.TypeFused, merged.Type)
	assert.Equal(t, detection.BBox{X: 0, Y: 0, W: 30, H: 10}, merged.BBox)

	assert.Equal(t, input[2], got[1], "singletons pass through unchanged")
	assert.NotContains(t, got[1].Metadata, detection.MetaClustered)
}

func TestCluster_MergeConservesArea(t *testing.T) {
	t.Parallel()

	input := []detection.Detection{
		square(0, 0, 30, detection.TypeMotion),
		square(5, 5, 10, detection.TypeMotion),
		square(25, 25, 20, detection.TypeMotion),
	}
	// Drop one outline so both merge paths are covered.
	noOutline := append([]detection.Detection(nil), input...)
	noOutline[1].Outline = nil

	for _, in := range [][]detection.Detection{input, noOutline} {
		got := Cluster(in, clusterConfig(100))
		require.Len(t, got, 1)
		for _, member := range in {
			assert.GreaterOrEqual(t, got[0].Area, member.Area)
		}
	}
}

func TestCluster_Disabled(t *testing.T) {
	t.Parallel()

	input := []detection.Detection{
		square(0, 0, 10, detection.TypeMotion),
		square(5, 0, 10, detection.TypeMotion),
	}
	cfg := clusterConfig(100)
	cfg.EnableDetectionClustering = false

	assert.Equal(t, input, Cluster(input, cfg))
}
