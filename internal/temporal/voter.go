// Package temporal suppresses detections that do not persist across a
// sliding window of frames.
package temporal

import (
	"sync"

	"github.com/ayusman/kestrel/internal/config"
	"github.com/ayusman/kestrel/internal/detection"
)

// Voter keeps the detection lists of the previous TemporalWindowFrames-1
// frames in a fixed ring and votes on each new frame against them.
type Voter struct {
	mu sync.Mutex

	frames [][]detection.Detection
	head   int // next slot to write
	filled int
}

// NewVoter creates an empty voter. The ring is sized on first use.
func NewVoter() *Voter {
	return &Voter{}
}

// Vote filters current against the history and then records current
// (before filtering) as the newest frame.
//
// Algorithm:
//  1. With voting disabled, or a window of one frame, current passes through.
//  2. While fewer than window-1 prior frames are held, current passes
//     through unfiltered.
//  3. Otherwise each detection counts the prior frames containing an
//     overlapping detection (IoU > 0.3). The current frame is one vote;
//     detections with at least TemporalThresholdFrames votes survive and
//     carry the count in temporal_votes.
func (v *Voter) Vote(current []detection.Detection, cfg config.DetectionConfig) []detection.Detection {
	if !cfg.EnableTemporalVoting || cfg.TemporalWindowFrames <= 1 {
		return current
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	v.resize(cfg.TemporalWindowFrames - 1)

	if v.filled < len(v.frames) {
		v.push(current)
		return current
	}

	needed := cfg.TemporalThresholdFrames - 1
	survivors := make([]detection.Detection, 0, len(current))
	for _, d := range current {
		matched := 0
		for _, prior := range v.frames {
			if detection.OverlapsAny(d, prior) {
				matched++
			}
		}
		if matched >= needed {
			survivors = append(survivors, d.WithMeta(detection.MetaTemporalVotes, matched+1))
		}
	}

	v.push(current)
	return survivors
}

// Filled reports how many prior frames are currently held.
func (v *Voter) Filled() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.filled
}

// Reset drops all history.
func (v *Voter) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()

	for i := range v.frames {
		v.frames[i] = nil
	}
	v.head = 0
	v.filled = 0
}

// resize reallocates the ring when the window changes. History does not
// carry over across a window change.
func (v *Voter) resize(capacity int) {
	if len(v.frames) == capacity {
		return
	}
	v.frames = make([][]detection.Detection, capacity)
	v.head = 0
	v.filled = 0
}

func (v *Voter) push(ds []detection.Detection) {
	snapshot := make([]detection.Detection, len(ds))
	copy(snapshot, ds)

	v.frames[v.head] = snapshot
	v.head = (v.head + 1) % len(v.frames)
	if v.filled < len(v.frames) {
		v.filled++
	}
}
