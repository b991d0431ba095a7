// Package main provides a hook that appends detection alerts to a JSON
// lines file. Build it into this directory:
//
//	go build -o hooks/log-detections/log-detections ./hooks/log-detections
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Request represents the input from the hook executor.
type Request struct {
	Event      string          `json:"event"`
	Hook       string          `json:"hook"`
	Timestamp  float64         `json:"timestamp"`
	SentAt     time.Time       `json:"sent_at"`
	Detections json.RawMessage `json:"detections"`
	Config     json.RawMessage `json:"config"`
}

// Response represents the output to the hook executor.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type hookConfig struct {
	Path string `json:"path"`
}

type record struct {
	SentAt     time.Time       `json:"sent_at"`
	Timestamp  float64         `json:"timestamp"`
	Detections json.RawMessage `json:"detections"`
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	cfg := hookConfig{Path: "detections.jsonl"}
	if len(req.Config) > 0 {
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			writeErrorResponse(fmt.Sprintf("failed to parse config: %v", err))
			return
		}
	}

	if err := appendRecord(cfg.Path, record{SentAt: req.SentAt, Timestamp: req.Timestamp, Detections: req.Detections}); err != nil {
		writeErrorResponse(err.Error())
		return
	}

	writeSuccessResponse()
}

// appendRecord writes rec as one line to path.
func appendRecord(path string, rec record) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(rec); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	return nil
}

// writeErrorResponse writes an error response to stdout.
func writeErrorResponse(errMsg string) {
	json.NewEncoder(os.Stdout).Encode(Response{Success: false, Error: errMsg})
}

// writeSuccessResponse writes a success response to stdout.
func writeSuccessResponse() {
	json.NewEncoder(os.Stdout).Encode(Response{Success: true})
}
