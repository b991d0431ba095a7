package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/kestrel/internal/config"
	"github.com/ayusman/kestrel/internal/detection"
)

func withSize(w, h int) detection.Detection {
	return detection.Detection{BBox: detection.BBox{W: w, H: h}, Area: float64(w * h)}
}

func withColor(b, g, r int) detection.Detection {
	return withSize(10, 10).WithMeta(detection.MetaDominantColor, [3]int{b, g, r})
}

func TestAspectRatio(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.EnableAspectRatioFilter = true
	cfg.MinAspectRatio = 0.5
	cfg.MaxAspectRatio = 2.0

	tests := []struct {
		name string
		in   detection.Detection
		keep bool
	}{
		{"square", withSize(10, 10), true},
		{"lower bound", withSize(5, 10), true},
		{"upper bound", withSize(20, 10), true},
		{"too tall", withSize(2, 10), false},
		{"too wide", withSize(30, 10), false},
		{"zero height", withSize(10, 0), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := AspectRatio([]detection.Detection{tt.in}, cfg)
			if tt.keep {
				assert.Len(t, got, 1)
			} else {
				assert.Empty(t, got)
			}
		})
	}
}

func TestAspectRatio_Disabled(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.EnableAspectRatioFilter = false

	in := []detection.Detection{withSize(100, 1)}
	assert.Equal(t, in, AspectRatio(in, cfg))
}

func TestBGRToHue(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 0, BGRToHue(0, 0, 255), 0.01)
	assert.InDelta(t, 60, BGRToHue(0, 255, 0), 0.01)
	assert.InDelta(t, 120, BGRToHue(255, 0, 0), 0.01)
	assert.InDelta(t, 50, BGRToHue(0, 255, 85), 0.01)
	assert.InDelta(t, 10, BGRToHue(0, 85, 255), 0.01)
}

func TestExcludeHues(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.EnableColorExclusion = true
	cfg.ExcludedHueRanges = []config.HueRange{{Min: 40, Max: 60}}

	hue50 := withColor(0, 255, 85)
	hue10 := withColor(0, 85, 255)

	got := ExcludeHues([]detection.Detection{hue50, hue10}, nil, cfg)
	require.Len(t, got, 1)

	hue, ok := DominantHue(got[0])
	require.True(t, ok)
	assert.InDelta(t, 10, hue, 0.01)
}

func TestExcludeHues_WrappingRange(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.EnableColorExclusion = true
	cfg.ExcludedHueRanges = []config.HueRange{{Min: 170, Max: 10}}

	red := withColor(0, 0, 255)
	green := withColor(0, 255, 0)

	got := ExcludeHues([]detection.Detection{red, green}, nil, cfg)
	require.Len(t, got, 1)
	assert.Equal(t, green, got[0])
}

func TestExcludeHues_SamplerFallback(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.EnableColorExclusion = true
	cfg.ExcludedHueRanges = []config.HueRange{{Min: 40, Max: 60}}

	plain := withSize(10, 10)
	calls := 0
	sampler := func(detection.Detection) (float64, bool) {
		calls++
		return 50, true
	}

	assert.Empty(t, ExcludeHues([]detection.Detection{plain}, sampler, cfg))
	assert.Equal(t, 1, calls)

	// Detections with a dominant color never reach the sampler.
	calls = 0
	ExcludeHues([]detection.Detection{withColor(0, 85, 255)}, sampler, cfg)
	assert.Zero(t, calls)

	unknown := func(detection.Detection) (float64, bool) { return 0, false }
	assert.Len(t, ExcludeHues([]detection.Detection{plain}, unknown, cfg), 1, "unknown hue is kept")
	assert.Len(t, ExcludeHues([]detection.Detection{plain}, nil, cfg), 1)
}
