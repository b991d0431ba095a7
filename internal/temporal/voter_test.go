package temporal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/kestrel/internal/config"
	"github.com/ayusman/kestrel/internal/detection"
)

func box(x, y int) detection.Detection {
	return detection.Detection{
		BBox: detection.BBox{X: x, Y: y, W: 10, H: 10},
		Area: 100,
		Type: detection.TypeMotion,
	}
}

func votingConfig(window, threshold int) config.DetectionConfig {
	cfg := config.Default()
	cfg.EnableTemporalVoting = true
	cfg.TemporalWindowFrames = window
	cfg.TemporalThresholdFrames = threshold
	return cfg
}

func TestVoter_WarmUpPassesThrough(t *testing.T) {
	t.Parallel()

	v := NewVoter()
	cfg := votingConfig(4, 3)

	for i := range 3 {
		frame := []detection.Detection{box(i*50, 0)}
		got := v.Vote(frame, cfg)
		assert.Equal(t, frame, got, "frame %d must pass during warm-up", i)
	}
	assert.Equal(t, 3, v.Filled())

	got := v.Vote([]detection.Detection{box(500, 500)}, cfg)
	assert.Empty(t, got, "a detection with no history is dropped once the window is full")
}

func TestVoter_PersistentDetectionSurvives(t *testing.T) {
	t.Parallel()

	v := NewVoter()
	cfg := votingConfig(3, 2)

	v.Vote([]detection.Detection{box(0, 0)}, cfg)
	v.Vote([]detection.Detection{box(100, 100)}, cfg)

	got := v.Vote([]detection.Detection{box(1, 1), box(300, 300)}, cfg)
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].BBox.X)
	assert.Equal(t, 2, got[0].Metadata[detection.MetaTemporalVotes])
}

func TestVoter_ThresholdCountsFrames(t *testing.T) {
	t.Parallel()

	v := NewVoter()
	cfg := votingConfig(3, 3)

	v.Vote([]detection.Detection{box(0, 0)}, cfg)
	v.Vote([]detection.Detection{box(200, 200)}, cfg)

	assert.Empty(t, v.Vote([]detection.Detection{box(0, 0)}, cfg), "one prior frame is not enough for threshold 3")

	// History now holds [200,200] and [0,0]; add a second matching frame.
	v.Vote([]detection.Detection{box(0, 0)}, cfg)
	got := v.Vote([]detection.Detection{box(0, 0)}, cfg)
	require.Len(t, got, 1)
	assert.Equal(t, 3, got[0].Metadata[detection.MetaTemporalVotes])
}

func TestVoter_RecordsUnfilteredFrame(t *testing.T) {
	t.Parallel()

	v := NewVoter()
	cfg := votingConfig(2, 2)

	v.Vote(nil, cfg)
	// Dropped by the vote but still recorded as history.
	assert.Empty(t, v.Vote([]detection.Detection{box(0, 0)}, cfg))
	assert.Len(t, v.Vote([]detection.Detection{box(0, 0)}, cfg), 1)
}

func TestVoter_Disabled(t *testing.T) {
	t.Parallel()

	v := NewVoter()
	cfg := votingConfig(3, 3)
	cfg.EnableTemporalVoting = false

	frame := []detection.Detection{box(0, 0)}
	for range 5 {
		assert.Equal(t, frame, v.Vote(frame, cfg))
	}
	assert.Zero(t, v.Filled())
}

func TestVoter_WindowChangeReallocates(t *testing.T) {
	t.Parallel()

	v := NewVoter()
	cfg := votingConfig(3, 2)
	v.Vote([]detection.Detection{box(0, 0)}, cfg)
	v.Vote([]detection.Detection{box(0, 0)}, cfg)
	require.Equal(t, 2, v.Filled())

	cfg = votingConfig(5, 2)
	frame := []detection.Detection{box(90, 90)}
	assert.Equal(t, frame, v.Vote(frame, cfg), "a new window starts a new warm-up")
	assert.Equal(t, 1, v.Filled())
}

func TestVoter_Reset(t *testing.T) {
	t.Parallel()

	v := NewVoter()
	cfg := votingConfig(2, 2)
	v.Vote([]detection.Detection{box(0, 0)}, cfg)
	v.Reset()

	assert.Zero(t, v.Filled())
	frame := []detection.Detection{box(300, 300)}
	assert.Equal(t, frame, v.Vote(frame, cfg))
}
