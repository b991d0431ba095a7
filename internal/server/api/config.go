package api

import (
	"io"
	"net/http"

	"github.com/ayusman/kestrel/internal/logging"
)

// ConfigHandler serves GET and PUT /api/config.
type ConfigHandler struct {
	pipeline Pipeline
}

// NewConfigHandler creates a ConfigHandler for p.
func NewConfigHandler(p Pipeline) *ConfigHandler {
	return &ConfigHandler{pipeline: p}
}

// ServeHTTP implements the http.Handler interface.
func (h *ConfigHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.pipeline.Config())
	case http.MethodPut:
		h.update(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// update merges a partial JSON document over the running configuration.
// Fields not present keep their current values. Invalid results are
// rejected and the running configuration is left unchanged.
func (h *ConfigHandler) update(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read body")
		return
	}

	cfg, err := h.pipeline.Config().Merge(body)
	if err != nil {
		logging.Warn(logging.Fields{"error": err}, "Rejected config update")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.pipeline.UpdateConfig(cfg)
	writeJSON(w, http.StatusOK, cfg)
}

// ResetHandler serves POST /api/reset.
type ResetHandler struct {
	pipeline Pipeline
}

// NewResetHandler creates a ResetHandler for p.
func NewResetHandler(p Pipeline) *ResetHandler {
	return &ResetHandler{pipeline: p}
}

// ServeHTTP clears all detection history.
func (h *ResetHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.pipeline.Reset()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// MetricsSummaryHandler serves GET /api/metrics/summary.
type MetricsSummaryHandler struct {
	pipeline Pipeline
}

// NewMetricsSummaryHandler creates a MetricsSummaryHandler for p.
func NewMetricsSummaryHandler(p Pipeline) *MetricsSummaryHandler {
	return &MetricsSummaryHandler{pipeline: p}
}

// ServeHTTP returns the rolling performance snapshot.
func (h *MetricsSummaryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, h.pipeline.Metrics())
}
