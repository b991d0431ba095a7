// Package notify runs detection alert hooks: external executables that
// receive a JSON description of a frame's detections on stdin.
package notify

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/ayusman/kestrel/internal/detection"
)

// DefaultCooldown is the minimum gap between two runs of the same hook
// when its manifest does not set one.
const DefaultCooldown = 5 * time.Second

// Manifest describes a hook and the detections it wants to hear about.
type Manifest struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
	Executable  string `json:"executable"`

	// Types restricts the hook to these detection types. Empty means all.
	Types         []detection.Type `json:"types,omitempty"`
	MinConfidence float64          `json:"minConfidence,omitempty"`
	MinDetections int              `json:"minDetections,omitempty"`
	CooldownMs    int              `json:"cooldownMs,omitempty"`

	Config json.RawMessage `json:"config,omitempty"`
}

// Cooldown returns the configured rate limit.
func (m Manifest) Cooldown() time.Duration {
	if m.CooldownMs <= 0 {
		return DefaultCooldown
	}
	return time.Duration(m.CooldownMs) * time.Millisecond
}

// Select returns the detections this hook is interested in, or nil when
// fewer than MinDetections match.
func (m Manifest) Select(ds []detection.Detection) []detection.Detection {
	var out []detection.Detection
	for _, d := range ds {
		if d.Confidence < m.MinConfidence {
			continue
		}
		if len(m.Types) > 0 && !slices.Contains(m.Types, d.Type) {
			continue
		}
		out = append(out, d)
	}
	if len(out) == 0 || len(out) < m.MinDetections {
		return nil
	}
	return out
}

// Request is written to a hook's stdin.
type Request struct {
	Event      string                `json:"event"`
	Hook       string                `json:"hook"`
	Timestamp  float64               `json:"timestamp"`
	SentAt     time.Time             `json:"sent_at"`
	Detections []detection.Detection `json:"detections"`
	Config     json.RawMessage       `json:"config,omitempty"`
}

// Response is read from a hook's stdout.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Hook is a discovered hook with its manifest and location.
type Hook struct {
	Manifest   Manifest
	Path       string
	Executable string
}
