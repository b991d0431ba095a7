package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-playground/validator/v10"
)

// maxFileSize caps config files at 1MB.
const maxFileSize = 1 * 1024 * 1024

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks field ranges and cross-field constraints. The detection
// stages never call it; producers (the file loader and the HTTP API) do.
func (c DetectionConfig) Validate() error {
	if err := validatorInstance().Struct(c); err != nil {
		return fmt.Errorf("invalid detection config: %w", err)
	}
	return nil
}

// LoadFile reads a JSON config file. Fields missing from the file keep
// their default values, so partial files are fine.
func LoadFile(path string) (DetectionConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return DetectionConfig{}, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return DetectionConfig{}, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return DetectionConfig{}, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return DetectionConfig{}, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes JSON over the defaults and validates the result.
func Parse(data []byte) (DetectionConfig, error) {
	return Default().Merge(data)
}

// Merge decodes a partial JSON document over c and validates the result.
// c itself is not modified.
func (c DetectionConfig) Merge(data []byte) (DetectionConfig, error) {
	cfg := c.Clone()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return DetectionConfig{}, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return DetectionConfig{}, err
	}

	return cfg, nil
}
