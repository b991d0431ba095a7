package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/kestrel/internal/detection"
	"github.com/ayusman/kestrel/internal/logging"
	"github.com/ayusman/kestrel/internal/metrics"
	"github.com/ayusman/kestrel/internal/pipeline"
)

// jpegQuality is used for stream and snapshot frames.
const jpegQuality = 80

// clientBuffer is how many messages a slow websocket client may fall
// behind before messages to it are dropped.
const clientBuffer = 16

// Hub receives pipeline results and fans them out to HTTP clients: the
// latest annotated frame as JPEG for the stream and snapshot endpoints, and
// detection and performance messages for websocket clients.
type Hub struct {
	mu      sync.Mutex
	jpeg    []byte
	seq     uint64
	changed chan struct{}

	clientsMu sync.RWMutex
	clients   map[chan []byte]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		changed: make(chan struct{}),
		clients: make(map[chan []byte]struct{}),
	}
}

// Message is pushed to websocket clients.
type Message struct {
	Type         string                `json:"type"`
	Timestamp    float64               `json:"timestamp,omitempty"`
	Detections   []detection.Detection `json:"detections,omitempty"`
	CameraMoving bool                  `json:"camera_moving,omitempty"`
	Skipped      bool                  `json:"skipped,omitempty"`
	Metrics      *metrics.Snapshot     `json:"metrics,omitempty"`
	SentAt       int64                 `json:"sent_at"`
}

// OnFrame implements pipeline.Observer.
func (h *Hub) OnFrame(res pipeline.Result) {
	if !res.Annotated.Empty() {
		h.storeFrame(res.Annotated)
	}
	if res.Malformed {
		return
	}

	h.broadcast(Message{
		Type:         "detections",
		Timestamp:    res.Timestamp,
		Detections:   res.Detections,
		CameraMoving: res.CameraMoving,
		Skipped:      res.Skipped,
	})
}

// OnPerformance implements pipeline.Observer.
func (h *Hub) OnPerformance(snap metrics.Snapshot) {
	h.broadcast(Message{Type: "performance", Metrics: &snap})
}

func (h *Hub) storeFrame(mat gocv.Mat) {
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, mat, []int{gocv.IMWriteJpegQuality, jpegQuality})
	if err != nil {
		logging.Debug(logging.Fields{"error": err}, "Failed to encode frame")
		return
	}
	data := append([]byte(nil), buf.GetBytes()...)
	buf.Close()
	h.setJPEG(data)
}

func (h *Hub) setJPEG(data []byte) {
	h.mu.Lock()
	h.jpeg = data
	h.seq++
	close(h.changed)
	h.changed = make(chan struct{})
	h.mu.Unlock()
}

// Latest returns the most recent JPEG frame and its sequence number. ok is
// false before the first frame.
func (h *Hub) Latest() (jpeg []byte, seq uint64, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.jpeg, h.seq, h.jpeg != nil
}

// Next waits for a frame newer than after, or until ctx is done.
func (h *Hub) Next(ctx context.Context, after uint64) ([]byte, uint64, error) {
	for {
		h.mu.Lock()
		if h.seq > after && h.jpeg != nil {
			data, seq := h.jpeg, h.seq
			h.mu.Unlock()
			return data, seq, nil
		}
		changed := h.changed
		h.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		}
	}
}

// subscribe registers a websocket client queue.
func (h *Hub) subscribe() chan []byte {
	ch := make(chan []byte, clientBuffer)
	h.clientsMu.Lock()
	h.clients[ch] = struct{}{}
	h.clientsMu.Unlock()
	return ch
}

func (h *Hub) unsubscribe(ch chan []byte) {
	h.clientsMu.Lock()
	delete(h.clients, ch)
	h.clientsMu.Unlock()
}

// Clients returns the number of connected websocket clients.
func (h *Hub) Clients() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

func (h *Hub) broadcast(msg Message) {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()

	if len(h.clients) == 0 {
		return
	}

	msg.SentAt = time.Now().UnixMilli()
	data, err := json.Marshal(msg)
	if err != nil {
		logging.Warn(logging.Fields{"error": err}, "Failed to encode websocket message")
		return
	}

	for ch := range h.clients {
		select {
		case ch <- data:
		default:
			// Client is behind; drop rather than stall the pipeline.
		}
	}
}
