// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package embed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/pdiddy/papersearch/pkg/types"
)

// OpenAIEmbedder calls an OpenAI-compatible embeddings endpoint through
// langchaingo. Local servers (llama.cpp, Ollama, LM Studio) work with the
// token "none".
type OpenAIEmbedder struct {
	embedder embeddings.Embedder
	model    string
	dim      int
	logger   *slog.Logger
}

// NewOpenAIEmbedder configures a client for cfg.Host and cfg.Model.
func NewOpenAIEmbedder(cfg types.EmbedConfig) (*OpenAIEmbedder, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("embedding model is required")
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("embedding dimensions must be positive, got %d", cfg.Dimensions)
	}
	token := cfg.APIKey
	if token == "" {
		token = "none"
	}

	opts := []openai.Option{
		openai.WithToken(token),
		openai.WithEmbeddingModel(cfg.Model),
	}
	if cfg.Host != "" {
		opts = append(opts, openai.WithBaseURL(cfg.Host))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating embedding client: %w", err)
	}

	e, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	return &OpenAIEmbedder{
		embedder: e,
		model:    cfg.Model,
		dim:      cfg.Dimensions,
		logger:   slog.Default().With("component", "openai-embedder"),
	}, nil
}

// Embed returns the embedding of text, rejecting vectors whose length does
// not match the configured dimension.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.logger.Debug("embedding text", "length", len(text))

	vecs, err := e.embedder.EmbedDocuments(ctx, []string{text})
	if err != nil {
		e.logger.Error("embedding failed", "err", err)
		return nil, fmt.Errorf("embedding text: %w", err)
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("embedding server returned no vectors")
	}
	if len(vecs[0]) != e.dim {
		return nil, fmt.Errorf("model %s returned %d dimensions, configured %d", e.model, len(vecs[0]), e.dim)
	}
	return vecs[0], nil
}

// Dimensions returns the configured vector length.
func (e *OpenAIEmbedder) Dimensions() int { return e.dim }

// ModelName returns the configured model.
func (e *OpenAIEmbedder) ModelName() string { return e.model }
