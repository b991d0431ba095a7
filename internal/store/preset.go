package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Preset is a named detection configuration saved by the user.
type Preset struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Config    json.RawMessage `json:"config"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// PresetRepository provides CRUD operations for presets.
type PresetRepository struct {
	db *sql.DB
}

// Presets returns the preset repository for this store.
func (s *Store) Presets() *PresetRepository {
	return &PresetRepository{db: s.db}
}

// Save inserts p, or replaces the configuration of the preset with the
// same name. p.ID is assigned when empty.
func (r *PresetRepository) Save(p *Preset) error {
	now := time.Now()
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := r.db.Exec(
		`INSERT INTO presets (id, name, config, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET config = excluded.config, updated_at = excluded.updated_at`,
		p.ID, p.Name, string(p.Config), p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return err
	}

	// Pick up the stored id and creation time when an existing row was updated.
	stored, err := r.GetByName(p.Name)
	if err != nil {
		return err
	}
	p.ID = stored.ID
	p.CreatedAt = stored.CreatedAt
	return nil
}

// GetByName retrieves a preset by its name.
func (r *PresetRepository) GetByName(name string) (*Preset, error) {
	p := &Preset{}
	var config string

	err := r.db.QueryRow(
		`SELECT id, name, config, created_at, updated_at FROM presets WHERE name = ?`,
		name,
	).Scan(&p.ID, &p.Name, &config, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	p.Config = json.RawMessage(config)
	return p, nil
}

// List retrieves all presets ordered by name.
func (r *PresetRepository) List() ([]*Preset, error) {
	rows, err := r.db.Query(
		`SELECT id, name, config, created_at, updated_at FROM presets ORDER BY name`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var presets []*Preset
	for rows.Next() {
		p := &Preset{}
		var config string
		if err := rows.Scan(&p.ID, &p.Name, &config, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.Config = json.RawMessage(config)
		presets = append(presets, p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return presets, nil
}

// Delete removes a preset by name.
func (r *PresetRepository) Delete(name string) error {
	result, err := r.db.Exec(`DELETE FROM presets WHERE name = ?`, name)
	if err != nil {
		return err
	}
	return affected(result)
}
