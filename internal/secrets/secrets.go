// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets reads credentials from a directory holding one file per
// secret: the file name is the key and its trimmed contents the value.
package secrets

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdiddy/papersearch/pkg/types"
)

// Known secret names.
const (
	EmbeddingAPIKey = "embedding-api-key"
	RegistryEmail   = "registry-email"
)

// Secrets maps secret names to values.
type Secrets map[string]string

// Load reads every regular, non-hidden file in dir. A missing directory
// yields an empty set. Unreadable files are logged and skipped.
func Load(dir string) (Secrets, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return Secrets{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	out := Secrets{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			slog.Warn("could not read secret", "component", "secrets", "name", name, "error", err)
			continue
		}
		if v := strings.TrimSpace(string(data)); v != "" {
			out[name] = v
		}
	}
	return out, nil
}

// Apply fills credentials cfg leaves empty. Values already set by the
// config file or environment win.
func (s Secrets) Apply(cfg *types.Config) {
	if cfg.Embed.APIKey == "" {
		cfg.Embed.APIKey = s[EmbeddingAPIKey]
	}
	if cfg.HTTP.Email == "" {
		cfg.HTTP.Email = s[RegistryEmail]
	}
}
