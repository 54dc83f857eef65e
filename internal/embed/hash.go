// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"

	"github.com/pdiddy/papersearch/internal/lexical"
)

const (
	defaultHashDimensions = 256

	tokenWeight   = 0.7
	trigramWeight = 0.3
)

// HashEmbedder is a deterministic feature-hashing embedder. It needs no
// model or network and is the default for offline builds. Tokens and
// character trigrams are hashed into signed buckets and the result is
// L2-normalised. Synonyms are rewritten first so "grid-world" and
// "gridworld" land in the same bucket.
type HashEmbedder struct {
	dim  int
	norm *lexical.Normalizer
}

// NewHashEmbedder returns a hashing embedder producing dim-length vectors.
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = defaultHashDimensions
	}
	return &HashEmbedder{dim: dim, norm: lexical.NewNormalizer(lexical.DefaultSynonyms())}
}

// Embed hashes text into a vector. Empty text yields the zero vector.
func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vec := make([]float32, e.dim)
	for _, tok := range lexical.Tokenize(e.norm.Normalize(text)) {
		e.add(vec, tok, tokenWeight)
		padded := "#" + tok + "#"
		runes := []rune(padded)
		for i := 0; i+3 <= len(runes); i++ {
			e.add(vec, string(runes[i:i+3]), trigramWeight)
		}
	}
	normalize(vec)
	return vec, nil
}

func (e *HashEmbedder) add(vec []float32, feature string, weight float32) {
	h := fnv.New64a()
	h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(e.dim))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	vec[idx] += weight
}

// Dimensions returns the vector length.
func (e *HashEmbedder) Dimensions() int { return e.dim }

// ModelName identifies the hashing scheme and dimension.
func (e *HashEmbedder) ModelName() string { return fmt.Sprintf("hash-%d", e.dim) }

func normalize(v []float32) {
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
