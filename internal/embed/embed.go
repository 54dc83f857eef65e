// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package embed provides the text-to-vector collaborators the semantic
// index is built from.
package embed

import (
	"context"
	"fmt"

	"github.com/pdiddy/papersearch/pkg/types"
)

// Embedder turns text into a fixed-length vector. Implementations must
// return identical vectors for identical text within one index build.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	ModelName() string
}

// New builds the embedder selected by cfg, wrapped in a query cache when
// cfg.CacheSize is positive.
func New(cfg types.EmbedConfig) (Embedder, error) {
	var inner Embedder
	switch cfg.Provider {
	case types.EmbedHash, "":
		inner = NewHashEmbedder(cfg.Dimensions)
	case types.EmbedOpenAI:
		e, err := NewOpenAIEmbedder(cfg)
		if err != nil {
			return nil, err
		}
		inner = e
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
	if cfg.CacheSize > 0 {
		return NewCachedEmbedder(inner, cfg.CacheSize)
	}
	return inner, nil
}
