// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"
)

// ExportYAML writes every canonical record to <dir>/export.yaml and
// returns the path.
func (s *Store) ExportYAML(ctx context.Context) (string, error) {
	recs, err := s.Records(ctx)
	if err != nil {
		return "", err
	}
	data, err := yaml.Marshal(recs)
	if err != nil {
		return "", fmt.Errorf("marshaling YAML: %w", err)
	}
	path := filepath.Join(s.dir, "export.yaml")
	return path, os.WriteFile(path, data, 0o644)
}

// ExportJSON writes every canonical record to <dir>/export.json and
// returns the path.
func (s *Store) ExportJSON(ctx context.Context) (string, error) {
	recs, err := s.Records(ctx)
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling JSON: %w", err)
	}
	path := filepath.Join(s.dir, "export.json")
	return path, os.WriteFile(path, data, 0o644)
}
