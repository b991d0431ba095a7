package config

import "sync"

// Holder guards the current DetectionConfig. Readers get a private copy,
// writers replace the whole value, so a frame never sees a half-applied
// update.
type Holder struct {
	mu      sync.RWMutex
	current DetectionConfig
	version uint64
}

// NewHolder creates a Holder seeded with cfg.
func NewHolder(cfg DetectionConfig) *Holder {
	return &Holder{current: cfg.Clone()}
}

// Load returns a snapshot of the current configuration.
func (h *Holder) Load() DetectionConfig {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current.Clone()
}

// Store replaces the configuration wholesale.
func (h *Holder) Store(cfg DetectionConfig) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.current = cfg.Clone()
	h.version++
}

// Version increments on every Store.
func (h *Holder) Version() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.version
}
