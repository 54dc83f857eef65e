// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package semantic stores one fixed-dimension embedding per canonical
// record and compares them by cosine similarity.
package semantic

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/coder/hnsw"

	"github.com/pdiddy/papersearch/pkg/types"
)

var (
	// ErrDimensionMismatch matches every *DimensionMismatchError.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrFrozen is returned by Add after Freeze.
	ErrFrozen = errors.New("semantic index is frozen")

	// ErrNotFrozen is returned by Nearest before Freeze.
	ErrNotFrozen = errors.New("semantic index is not frozen")
)

// DimensionMismatchError reports a vector whose length differs from the
// index dimension.
type DimensionMismatchError struct {
	Expected int
	Got      int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

// Is lets errors.Is match ErrDimensionMismatch.
func (e *DimensionMismatchError) Is(target error) bool {
	return target == ErrDimensionMismatch
}

// Index holds record embeddings. Vectors are copied on Add and never
// modified afterwards.
type Index struct {
	dim      int
	m        int
	efSearch int

	mu      sync.RWMutex
	vectors map[string][]float32
	order   []string
	frozen  bool

	graph *hnsw.Graph[uint64]
	keys  []string
}

// New creates an index for vectors of length dim.
func New(dim int, cfg types.SemanticConfig) (*Index, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("invalid embedding dimension %d", dim)
	}
	if cfg.M <= 0 {
		cfg.M = 16
	}
	if cfg.EfSearch <= 0 {
		cfg.EfSearch = 20
	}
	return &Index{
		dim:      dim,
		m:        cfg.M,
		efSearch: cfg.EfSearch,
		vectors:  map[string][]float32{},
	}, nil
}

// Dimensions returns the fixed vector length.
func (x *Index) Dimensions() int { return x.dim }

// Add stores vec for recordID, replacing any previous vector. A vector of
// the wrong length is rejected and not stored.
func (x *Index) Add(recordID string, vec []float32) error {
	if len(vec) != x.dim {
		return &DimensionMismatchError{Expected: x.dim, Got: len(vec)}
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if x.frozen {
		return ErrFrozen
	}
	if _, ok := x.vectors[recordID]; !ok {
		x.order = append(x.order, recordID)
	}
	x.vectors[recordID] = append([]float32(nil), vec...)
	return nil
}

// Get returns the stored vector for recordID.
func (x *Index) Get(recordID string) ([]float32, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	v, ok := x.vectors[recordID]
	return v, ok
}

// Normalized returns the stored vector scaled to unit length. A zero
// vector is returned unchanged.
func (x *Index) Normalized(recordID string) ([]float32, bool) {
	v, ok := x.Get(recordID)
	if !ok {
		return nil, false
	}
	out := append([]float32(nil), v...)
	normalizeInPlace(out)
	return out, true
}

// Len returns the number of stored vectors.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.vectors)
}

// Similarity returns the cosine similarity of a and b in [-1, 1]. It is 0
// when either vector has zero length or the lengths differ.
func Similarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	// One square root keeps similarity(v, v) exactly 1.
	s := dot / math.Sqrt(na*nb)
	return math.Max(-1, math.Min(1, s))
}

func normalizeInPlace(v []float32) {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	if sum == 0 {
		return
	}
	n := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= n
	}
}
