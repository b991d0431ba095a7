package api

import (
	"encoding/json"
	"net/http"
)

// Toggle switches detection on and off.
type Toggle interface {
	IsEnabled() bool
	SetEnabled(enabled bool)
}

// EnabledHandler serves GET and PUT /api/enabled.
type EnabledHandler struct {
	toggle Toggle
}

// NewEnabledHandler creates an EnabledHandler for t.
func NewEnabledHandler(t Toggle) *EnabledHandler {
	return &EnabledHandler{toggle: t}
}

type enabledBody struct {
	Enabled *bool `json:"enabled"`
}

// ServeHTTP implements the http.Handler interface.
func (h *EnabledHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPut:
		var body enabledBody
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&body); err != nil || body.Enabled == nil {
			writeError(w, http.StatusBadRequest, `Body must be {"enabled": true|false}`)
			return
		}
		h.toggle.SetEnabled(*body.Enabled)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"enabled": h.toggle.IsEnabled()})
}
