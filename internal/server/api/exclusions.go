package api

import (
	"encoding/json"
	"image"
	"net/http"

	"github.com/ayusman/kestrel/internal/color"
	"github.com/ayusman/kestrel/internal/config"
	"github.com/ayusman/kestrel/internal/logging"
)

// defaultSampleTolerance is the hue tolerance in degrees when the request
// does not set one.
const defaultSampleTolerance = 10

// ExclusionHandler serves POST /api/exclusions/sample: it samples the
// dominant hues of a region of the latest frame and optionally adds them
// to the excluded hue ranges.
type ExclusionHandler struct {
	pipeline Pipeline
	frames   FrameSource
}

// NewExclusionHandler creates a new ExclusionHandler.
func NewExclusionHandler(p Pipeline, frames FrameSource) *ExclusionHandler {
	return &ExclusionHandler{pipeline: p, frames: frames}
}

type sampleRequest struct {
	X         int     `json:"x"`
	Y         int     `json:"y"`
	W         int     `json:"w"`
	H         int     `json:"h"`
	Tolerance float64 `json:"tolerance_degrees"`
	Apply     bool    `json:"apply"`
}

type sampleResponse struct {
	Ranges  []config.HueRange `json:"ranges"`
	Applied bool              `json:"applied"`
}

// ServeHTTP implements the http.Handler interface.
func (h *ExclusionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req sampleRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.W <= 0 || req.H <= 0 {
		writeError(w, http.StatusBadRequest, "Region width and height must be positive")
		return
	}
	if req.Tolerance <= 0 {
		req.Tolerance = defaultSampleTolerance
	}

	frame, ok := h.frames.LatestFrame()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "No frame available")
		return
	}
	defer frame.Close()

	rect := image.Rect(req.X, req.Y, req.X+req.W, req.Y+req.H)
	ranges := color.SampleRegionColors(frame, rect, req.Tolerance)
	if ranges == nil {
		ranges = []config.HueRange{}
	}

	resp := sampleResponse{Ranges: ranges}
	if req.Apply && len(ranges) > 0 {
		cfg := h.pipeline.Config()
		cfg.ExcludedHueRanges = append(cfg.ExcludedHueRanges, ranges...)
		cfg.EnableColorExclusion = true
		if err := cfg.Validate(); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		h.pipeline.UpdateConfig(cfg)
		resp.Applied = true
		logging.Info(logging.Fields{"ranges": len(ranges)}, "Added excluded hue ranges")
	}

	writeJSON(w, http.StatusOK, resp)
}
