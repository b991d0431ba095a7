package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ayusman/kestrel/internal/config"
	"github.com/ayusman/kestrel/internal/logging"
	"github.com/ayusman/kestrel/internal/store"
)

// PresetHandler handles HTTP requests for configuration presets.
type PresetHandler struct {
	store    *store.Store
	pipeline Pipeline
}

// NewPresetHandler creates a new PresetHandler.
func NewPresetHandler(s *store.Store, p Pipeline) *PresetHandler {
	return &PresetHandler{store: s, pipeline: p}
}

// ServeHTTP implements the http.Handler interface.
// Expected paths: /api/presets, /api/presets/{name} and
// /api/presets/{name}/apply.
func (h *PresetHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/presets")
	path = strings.Trim(path, "/")

	if path == "" {
		switch r.Method {
		case http.MethodGet:
			h.list(w, r)
		case http.MethodPost:
			h.save(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	name, action, _ := strings.Cut(path, "/")
	switch {
	case action == "apply" && r.Method == http.MethodPost:
		h.apply(w, r, name)
	case action != "":
		writeError(w, http.StatusNotFound, "Not found")
	case r.Method == http.MethodGet:
		h.get(w, r, name)
	case r.Method == http.MethodDelete:
		h.delete(w, r, name)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

type savePresetRequest struct {
	Name string `json:"name"`
	// Config is merged over the running configuration. When omitted the
	// running configuration is saved as is.
	Config json.RawMessage `json:"config,omitempty"`
}

type listPresetsResponse struct {
	Presets []*store.Preset `json:"presets"`
}

// list handles GET /api/presets.
func (h *PresetHandler) list(w http.ResponseWriter, r *http.Request) {
	presets, err := h.store.Presets().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list presets")
		return
	}

	if presets == nil {
		presets = []*store.Preset{}
	}
	writeJSON(w, http.StatusOK, listPresetsResponse{Presets: presets})
}

// get handles GET /api/presets/{name}.
func (h *PresetHandler) get(w http.ResponseWriter, r *http.Request, name string) {
	p, err := h.store.Presets().GetByName(name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Preset not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get preset")
		return
	}

	writeJSON(w, http.StatusOK, p)
}

// save handles POST /api/presets.
func (h *PresetHandler) save(w http.ResponseWriter, r *http.Request) {
	var req savePresetRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Name is required")
		return
	}
	if strings.Contains(req.Name, "/") {
		writeError(w, http.StatusBadRequest, "Name must not contain '/'")
		return
	}

	cfg := h.pipeline.Config()
	if len(req.Config) > 0 {
		merged, err := cfg.Merge(req.Config)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		cfg = merged
	}

	data, err := json.Marshal(cfg)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to encode config")
		return
	}

	p := &store.Preset{Name: req.Name, Config: data}
	if err := h.store.Presets().Save(p); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save preset")
		return
	}

	writeJSON(w, http.StatusCreated, p)
}

// apply handles POST /api/presets/{name}/apply and makes the preset the
// running configuration.
func (h *PresetHandler) apply(w http.ResponseWriter, r *http.Request, name string) {
	p, err := h.store.Presets().GetByName(name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Preset not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get preset")
		return
	}

	cfg, err := config.Parse(p.Config)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	h.pipeline.UpdateConfig(cfg)
	if err := h.store.Settings().Set(store.SettingActivePreset, name); err != nil {
		logging.Warn(logging.Fields{"error": err, "preset": name}, "Failed to remember active preset")
	}

	writeJSON(w, http.StatusOK, cfg)
}

// delete handles DELETE /api/presets/{name}.
func (h *PresetHandler) delete(w http.ResponseWriter, r *http.Request, name string) {
	err := h.store.Presets().Delete(name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Preset not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete preset")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
