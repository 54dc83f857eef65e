// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/papersearch/pkg/types"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T) string
		want  Secrets
	}{
		{
			name: "reads key files and trims whitespace",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, EmbeddingAPIKey, "  sk_abc123  \n")
				writeFile(t, dir, RegistryEmail, "user@example.com\n")
				return dir
			},
			want: Secrets{EmbeddingAPIKey: "sk_abc123", RegistryEmail: "user@example.com"},
		},
		{
			name: "missing directory",
			setup: func(t *testing.T) string {
				return filepath.Join(t.TempDir(), "does-not-exist")
			},
			want: Secrets{},
		},
		{
			name: "skips empty files, dotfiles and subdirectories",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, "empty-key", "   \n\t ")
				writeFile(t, dir, ".hidden-key", "secret")
				writeFile(t, dir, "real-key", "v")
				require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir"), 0o755))
				return dir
			},
			want: Secrets{"real-key": "v"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Load(tt.setup(t))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestApply(t *testing.T) {
	s := Secrets{EmbeddingAPIKey: "from-file", RegistryEmail: "file@example.org"}

	cfg := types.DefaultConfig()
	cfg.HTTP.Email = "config@example.org"
	s.Apply(&cfg)

	assert.Equal(t, "from-file", cfg.Embed.APIKey)
	assert.Equal(t, "config@example.org", cfg.HTTP.Email, "explicit config wins")

	empty := types.DefaultConfig()
	Secrets{}.Apply(&empty)
	assert.Equal(t, "", empty.Embed.APIKey)
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}
