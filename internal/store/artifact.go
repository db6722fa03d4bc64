package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ruretse/mosweather/internal/models"
)

// WriteArtifact writes the forecast artifact to path atomically: the JSON
// goes to a temp file in the same directory and is renamed over the old
// artifact, so readers always see a complete document.
func WriteArtifact(path string, artifact *models.ForecastArtifact) error {
	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal artifact: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("artifact dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".forecast-*.json")
	if err != nil {
		return fmt.Errorf("artifact temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close artifact: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("publish artifact: %w", err)
	}
	return nil
}

// ReadArtifact loads a previously written forecast artifact.
func ReadArtifact(path string) (*models.ForecastArtifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var artifact models.ForecastArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("parse artifact %s: %w", path, err)
	}
	return &artifact, nil
}
