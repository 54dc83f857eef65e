// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package rank fuses lexical and semantic scores into one ranked list.
// A cheap BM25 pass over-fetches candidates, concept filters prune them,
// and only the surviving window is scored semantically.
package rank

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"github.com/pdiddy/papersearch/internal/embed"
	"github.com/pdiddy/papersearch/internal/lexical"
	"github.com/pdiddy/papersearch/internal/semantic"
	"github.com/pdiddy/papersearch/pkg/types"
)

// ErrInvalidTopK is returned for a non-positive TopK.
var ErrInvalidTopK = errors.New("topK must be positive")

// LexicalSearcher is the finalized lexical index.
type LexicalSearcher interface {
	Search(query string, topK int) ([]lexical.Hit, error)
	Concepts(recordID string) []types.ConceptTag
}

// VectorSource returns stored record embeddings.
type VectorSource interface {
	Get(recordID string) ([]float32, bool)
}

// RecordSource resolves work ids to canonical records.
type RecordSource interface {
	Record(workID string) (types.CanonicalRecord, bool)
}

// RecordMap is an in-memory RecordSource.
type RecordMap map[string]types.CanonicalRecord

// NewRecordMap indexes records by work id.
func NewRecordMap(records []types.CanonicalRecord) RecordMap {
	m := make(RecordMap, len(records))
	for _, r := range records {
		m[r.WorkID] = r
	}
	return m
}

// Record implements RecordSource.
func (m RecordMap) Record(workID string) (types.CanonicalRecord, bool) {
	r, ok := m[workID]
	return r, ok
}

// Query is one hybrid search request.
type Query struct {
	Text  string
	TopK  int
	Alpha float64

	// RequiredConcepts must all be tagged on a candidate for it to survive.
	RequiredConcepts []string

	// BoostedConcepts add their tag weights, scaled by Alpha, to the score.
	BoostedConcepts []string
}

// Result is a ranked record with its component scores.
type Result struct {
	Record        types.CanonicalRecord `json:"record"`
	LexicalScore  float64               `json:"lexical_score"`
	SemanticScore float64               `json:"semantic_score"`
	ConceptBoost  float64               `json:"concept_boost"`
	NormLexical   float64               `json:"norm_lexical"`
	NormSemantic  float64               `json:"norm_semantic"`
	FinalScore    float64               `json:"final_score"`
}

// Ranker runs hybrid queries against finalized indexes.
type Ranker struct {
	lex      LexicalSearcher
	sem      VectorSource
	records  RecordSource
	embedder embed.Embedder
	cfg      types.RankerConfig
	logger   *slog.Logger
}

// New creates a ranker. sem and embedder may be nil, in which case every
// semantic score is 0.
func New(lex LexicalSearcher, sem VectorSource, records RecordSource, embedder embed.Embedder, cfg types.RankerConfig) *Ranker {
	if cfg.OverFetch <= 0 {
		cfg.OverFetch = types.DefaultRankerConfig().OverFetch
	}
	return &Ranker{
		lex:      lex,
		sem:      sem,
		records:  records,
		embedder: embedder,
		cfg:      cfg,
		logger:   slog.Default().With("component", "ranker"),
	}
}

// Search ranks records for q. It returns an empty list, not an error, when
// concept filtering removes every candidate. Equal final scores keep the
// lexical discovery order.
func (r *Ranker) Search(ctx context.Context, q Query) ([]Result, error) {
	if q.TopK <= 0 {
		return nil, ErrInvalidTopK
	}

	fetch := max(q.TopK*r.cfg.OverFetch, q.TopK)
	hits, err := r.lex.Search(q.Text, fetch)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		concepts := r.lex.Concepts(h.RecordID)
		if !hasAll(concepts, q.RequiredConcepts) {
			continue
		}
		rec, ok := r.records.Record(h.RecordID)
		if !ok {
			r.logger.Debug("skipping candidate without record", "work_id", h.RecordID)
			continue
		}
		results = append(results, Result{
			Record:       rec,
			LexicalScore: h.Score,
			ConceptBoost: boost(concepts, q.BoostedConcepts),
		})
	}
	if len(results) == 0 {
		return results, nil
	}

	r.scoreSemantic(ctx, q.Text, results)

	lex := make([]float64, len(results))
	sem := make([]float64, len(results))
	for i, res := range results {
		lex[i], sem[i] = res.LexicalScore, res.SemanticScore
	}
	if r.cfg.Normalize {
		lex, sem = minMax(lex), minMax(sem)
	}
	for i := range results {
		results[i].NormLexical = lex[i]
		results[i].NormSemantic = sem[i]
		results[i].FinalScore = r.cfg.TextWeight*lex[i] + r.cfg.SemanticWeight*sem[i] + q.Alpha*results[i].ConceptBoost
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].FinalScore > results[j].FinalScore })
	if len(results) > q.TopK {
		results = results[:q.TopK]
	}
	return results, nil
}

// scoreSemantic fills SemanticScore. A failed query embedding or a missing
// record vector leaves the score at 0.
func (r *Ranker) scoreSemantic(ctx context.Context, text string, results []Result) {
	if r.sem == nil || r.embedder == nil {
		return
	}
	qv, err := r.embedder.Embed(ctx, text)
	if err != nil {
		r.logger.Warn("query embedding failed, using lexical scores only", "err", err)
		return
	}
	for i := range results {
		if v, ok := r.sem.Get(results[i].Record.WorkID); ok {
			results[i].SemanticScore = semantic.Similarity(qv, v)
		}
	}
}

func hasAll(tags []types.ConceptTag, required []string) bool {
	if len(required) == 0 {
		return true
	}
	have := make(map[string]bool, len(tags))
	for _, t := range tags {
		have[t.ID] = true
	}
	for _, id := range required {
		if !have[id] {
			return false
		}
	}
	return true
}

func boost(tags []types.ConceptTag, boosted []string) float64 {
	if len(boosted) == 0 {
		return 0
	}
	want := make(map[string]bool, len(boosted))
	for _, id := range boosted {
		want[id] = true
	}
	var sum float64
	for _, t := range tags {
		if want[t.ID] {
			sum += t.Weight
		}
	}
	return sum
}

// minMax scales xs to [0, 1]. A list whose values are all equal maps to 1.
func minMax(xs []float64) []float64 {
	out := make([]float64, len(xs))
	if len(xs) == 0 {
		return out
	}
	lo, hi := xs[0], xs[0]
	for _, x := range xs[1:] {
		lo = min(lo, x)
		hi = max(hi, x)
	}
	for i, x := range xs {
		if hi == lo {
			out[i] = 1
		} else {
			out[i] = (x - lo) / (hi - lo)
		}
	}
	return out
}
