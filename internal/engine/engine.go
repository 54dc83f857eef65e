// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/pdiddy/papersearch/internal/embed"
	"github.com/pdiddy/papersearch/internal/lexical"
	"github.com/pdiddy/papersearch/internal/rank"
	"github.com/pdiddy/papersearch/internal/semantic"
	"github.com/pdiddy/papersearch/internal/store"
	"github.com/pdiddy/papersearch/pkg/types"
)

// ErrNoVector is returned by Similar for a record without an embedding.
var ErrNoVector = errors.New("record has no embedding")

// Engine holds finalized indexes over one snapshot of the canonical
// records. It is safe for concurrent queries.
type Engine struct {
	Records  rank.RecordMap
	Lexical  *lexical.Index
	Semantic *semantic.Index
	ranker   *rank.Ranker
}

// Open loads the canonical records from st and builds both indexes.
func Open(ctx context.Context, st *store.Store, embedder embed.Embedder, cfg types.Config) (*Engine, error) {
	records, err := st.Records(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading records: %w", err)
	}

	syn := lexical.DefaultSynonyms()
	if cfg.Lexical.SynonymsFile != "" {
		if syn, err = lexical.LoadSynonyms(cfg.Lexical.SynonymsFile); err != nil {
			return nil, err
		}
	}
	return Build(ctx, records, embedder, st, lexical.NewNormalizer(syn), cfg)
}

// Build indexes records directly. vecs may be nil.
func Build(ctx context.Context, records []types.CanonicalRecord, embedder embed.Embedder, vecs EmbeddingStore, norm *lexical.Normalizer, cfg types.Config) (*Engine, error) {
	lex, err := BuildLexicalIndex(records, cfg.Lexical, norm)
	if err != nil {
		return nil, err
	}
	sem, err := BuildSemanticIndex(ctx, records, embedder, vecs, cfg.Semantic)
	if err != nil {
		return nil, err
	}
	recs := rank.NewRecordMap(records)
	return &Engine{
		Records:  recs,
		Lexical:  lex,
		Semantic: sem,
		ranker:   rank.New(lex, sem, recs, embedder, cfg.Ranker),
	}, nil
}

// Search runs a hybrid query.
func (e *Engine) Search(ctx context.Context, q rank.Query) ([]rank.Result, error) {
	return e.ranker.Search(ctx, q)
}

// Similar returns up to k records whose embeddings are closest to the
// record workID, excluding the record itself.
func (e *Engine) Similar(workID string, k int) ([]semantic.Neighbor, error) {
	vec, ok := e.Semantic.Get(workID)
	if !ok {
		return nil, fmt.Errorf("%s: %w", workID, ErrNoVector)
	}
	hits, err := e.Semantic.Nearest(vec, k+1)
	if err != nil {
		return nil, err
	}
	out := make([]semantic.Neighbor, 0, k)
	for _, h := range hits {
		if h.RecordID != workID && len(out) < k {
			out = append(out, h)
		}
	}
	return out, nil
}
