// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/pdiddy/papersearch/internal/embed"
	"github.com/pdiddy/papersearch/internal/lexical"
	"github.com/pdiddy/papersearch/internal/semantic"
	"github.com/pdiddy/papersearch/pkg/types"
)

// EmbeddingStore persists record vectors between runs.
type EmbeddingStore interface {
	Embeddings(ctx context.Context, model string, dim int) (map[string]types.EmbeddingVector, error)
	PutEmbeddings(ctx context.Context, model string, vecs map[string]types.EmbeddingVector) error
}

// BuildLexicalIndex indexes every record's text and concept tags and
// finalizes the index.
func BuildLexicalIndex(records []types.CanonicalRecord, cfg types.LexicalConfig, norm *lexical.Normalizer) (*lexical.Index, error) {
	x := lexical.New(cfg, norm)
	for _, rec := range records {
		if err := x.AddDocument(rec.WorkID, rec.IndexText(), rec.Concepts()); err != nil {
			return nil, fmt.Errorf("indexing %s: %w", rec.WorkID, err)
		}
	}
	x.Finalize()
	return x, nil
}

// BuildSemanticIndex embeds every record and freezes the resulting index.
// Vectors already persisted for the embedder's model are reused while the
// record's index text hash still matches; the rest are computed on a pool of cfg.Workers goroutines and persisted. A record
// whose embedding fails is left out and scores 0 semantically. store may
// be nil.
func BuildSemanticIndex(ctx context.Context, records []types.CanonicalRecord, embedder embed.Embedder, store EmbeddingStore, cfg types.SemanticConfig) (*semantic.Index, error) {
	logger := slog.Default().With("component", "semantic-build")
	model, dim := embedder.ModelName(), embedder.Dimensions()

	x, err := semantic.New(dim, cfg)
	if err != nil {
		return nil, err
	}

	cached := map[string]types.EmbeddingVector{}
	if store != nil {
		if cached, err = store.Embeddings(ctx, model, dim); err != nil {
			return nil, fmt.Errorf("loading embeddings: %w", err)
		}
	}

	var missing []types.CanonicalRecord
	for _, rec := range records {
		if v, ok := cached[rec.WorkID]; !ok || v.TextHash != rec.IndexTextHash() {
			delete(cached, rec.WorkID)
			missing = append(missing, rec)
		}
	}

	fresh, err := embedAll(ctx, missing, embedder, cfg.Workers, logger)
	if err != nil {
		return nil, err
	}
	if store != nil && len(fresh) > 0 {
		if err := store.PutEmbeddings(ctx, model, fresh); err != nil {
			return nil, fmt.Errorf("storing embeddings: %w", err)
		}
	}

	for _, rec := range records {
		v, ok := cached[rec.WorkID]
		if !ok {
			if v, ok = fresh[rec.WorkID]; !ok {
				continue
			}
		}
		if err := x.Add(rec.WorkID, v.Vector); err != nil {
			return nil, fmt.Errorf("adding %s: %w", rec.WorkID, err)
		}
	}
	x.Freeze()
	logger.Debug("semantic index built", "model", model, "records", x.Len(),
		"reused", len(records)-len(missing), "computed", len(fresh))
	return x, nil
}

func embedAll(ctx context.Context, records []types.CanonicalRecord, embedder embed.Embedder, workers int, logger *slog.Logger) (map[string]types.EmbeddingVector, error) {
	out := map[string]types.EmbeddingVector{}
	if len(records) == 0 {
		return out, nil
	}
	pool, err := ants.NewPool(max(workers, 1))
	if err != nil {
		return nil, fmt.Errorf("creating embedding pool: %w", err)
	}
	defer pool.Release()

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, rec := range records {
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			vec, err := embedder.Embed(ctx, rec.IndexText())
			if err != nil {
				logger.Warn("embedding failed", "work_id", rec.WorkID, "error", err)
				return
			}
			mu.Lock()
			out[rec.WorkID] = types.EmbeddingVector{Vector: vec, TextHash: rec.IndexTextHash()}
			mu.Unlock()
		})
		if err != nil {
			wg.Done()
			wg.Wait()
			return nil, fmt.Errorf("submitting %s: %w", rec.WorkID, err)
		}
	}
	wg.Wait()
	return out, ctx.Err()
}
