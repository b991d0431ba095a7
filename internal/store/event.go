package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ayusman/kestrel/internal/detection"
)

// Event is a detection recorded during a session.
type Event struct {
	ID         int64           `json:"id"`
	SessionID  string          `json:"session_id"`
	Timestamp  float64         `json:"timestamp"`
	Type       detection.Type  `json:"type"`
	Confidence float64         `json:"confidence"`
	BBox       detection.BBox  `json:"bbox"`
	Area       float64         `json:"area"`
	Metadata   json.RawMessage `json:"metadata"`
}

// EventRepository provides access to recorded detection events.
type EventRepository struct {
	db *sql.DB
}

// Events returns the event repository for this store.
func (s *Store) Events() *EventRepository {
	return &EventRepository{db: s.db}
}

// Record stores one frame's detections under sessionID in a single
// transaction. Outlines are not persisted.
func (r *EventRepository) Record(sessionID string, ds []detection.Detection) error {
	if len(ds) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO detection_events (session_id, timestamp, type, confidence, x, y, w, h, area, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, d := range ds {
		meta := []byte("{}")
		if len(d.Metadata) > 0 {
			meta, err = json.Marshal(d.Metadata)
			if err != nil {
				return fmt.Errorf("failed to encode metadata: %w", err)
			}
		}
		_, err = stmt.Exec(
			sessionID, d.Timestamp, string(d.Type), d.Confidence,
			d.BBox.X, d.BBox.Y, d.BBox.W, d.BBox.H, d.Area, string(meta),
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ListBySession returns a session's events in recording order, at most
// limit of them. A limit of zero or less returns every event.
func (r *EventRepository) ListBySession(sessionID string, limit int) ([]*Event, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.Query(
		`SELECT id, session_id, timestamp, type, confidence, x, y, w, h, area, metadata
		 FROM detection_events WHERE session_id = ? ORDER BY id LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e := &Event{}
		var typ, meta string
		err := rows.Scan(&e.ID, &e.SessionID, &e.Timestamp, &typ, &e.Confidence,
			&e.BBox.X, &e.BBox.Y, &e.BBox.W, &e.BBox.H, &e.Area, &meta)
		if err != nil {
			return nil, err
		}
		e.Type = detection.Type(typ)
		e.Metadata = json.RawMessage(meta)
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// CountBySession returns the number of events recorded for a session.
func (r *EventRepository) CountBySession(sessionID string) (int64, error) {
	var n int64
	err := r.db.QueryRow(`SELECT COUNT(*) FROM detection_events WHERE session_id = ?`, sessionID).Scan(&n)
	return n, err
}
