package server

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/disintegration/imaging"
)

// maxSnapshotWidth bounds the ?width parameter.
const maxSnapshotWidth = 4096

// SnapshotHandler serves the latest annotated frame as a single JPEG,
// optionally resized to ?width= pixels keeping the aspect ratio.
type SnapshotHandler struct {
	hub *Hub
}

// NewSnapshotHandler creates a new SnapshotHandler reading from hub.
func NewSnapshotHandler(hub *Hub) *SnapshotHandler {
	return &SnapshotHandler{hub: hub}
}

// ServeHTTP implements the http.Handler interface.
func (h *SnapshotHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	width := 0
	if raw := r.URL.Query().Get("width"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxSnapshotWidth {
			http.Error(w, "width must be between 1 and 4096", http.StatusBadRequest)
			return
		}
		width = n
	}

	frame, _, ok := h.hub.Latest()
	if !ok {
		http.Error(w, "No frame available", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Content-Type", "image/jpeg")

	if width == 0 {
		w.Write(frame)
		return
	}

	img, err := imaging.Decode(bytes.NewReader(frame))
	if err != nil {
		http.Error(w, "Failed to decode frame", http.StatusInternalServerError)
		return
	}
	if width < img.Bounds().Dx() {
		img = imaging.Resize(img, width, 0, imaging.Lanczos)
	}

	var out bytes.Buffer
	if err := imaging.Encode(&out, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		http.Error(w, "Failed to encode snapshot", http.StatusInternalServerError)
		return
	}
	w.Write(out.Bytes())
}
