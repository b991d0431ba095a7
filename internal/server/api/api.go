// Package api provides HTTP API handlers for the kestrel detection service.
package api

import (
	"encoding/json"
	"net/http"

	"gocv.io/x/gocv"

	"github.com/ayusman/kestrel/internal/config"
	"github.com/ayusman/kestrel/internal/metrics"
)

// maxBodySize caps request bodies at 1MB, the same limit as config files.
const maxBodySize = 1 << 20

// Pipeline is the running detection pipeline the API controls.
type Pipeline interface {
	Config() config.DetectionConfig
	UpdateConfig(cfg config.DetectionConfig)
	Reset()
	Metrics() metrics.Snapshot
}

// FrameSource provides the most recent unannotated source frame. The caller
// closes the returned Mat.
type FrameSource interface {
	LatestFrame() (gocv.Mat, bool)
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
