// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/papersearch/internal/semantic"
	"github.com/pdiddy/papersearch/pkg/types"
)

func TestHashEmbedder_Deterministic(t *testing.T) {
	e := NewHashEmbedder(64)
	a, err := e.Embed(context.Background(), "Grid worlds for reinforcement learning")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "Grid worlds for reinforcement learning")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
	assert.InDelta(t, 1.0, semantic.Similarity(a, a), 1e-6)
}

func TestHashEmbedder_SynonymsShareBuckets(t *testing.T) {
	e := NewHashEmbedder(128)
	ctx := context.Background()
	a, _ := e.Embed(ctx, "grid-world navigation")
	b, _ := e.Embed(ctx, "gridworld navigation")
	c, _ := e.Embed(ctx, "protein folding kinetics")

	assert.InDelta(t, 1.0, semantic.Similarity(a, b), 1e-6)
	assert.Less(t, semantic.Similarity(a, c), 0.5)
}

func TestHashEmbedder_EmptyText(t *testing.T) {
	e := NewHashEmbedder(0)
	v, err := e.Embed(context.Background(), "   ")
	require.NoError(t, err)
	assert.Len(t, v, defaultHashDimensions)
	assert.Equal(t, 0.0, semantic.Similarity(v, v))
	assert.Equal(t, "hash-256", e.ModelName())
}

func TestHashEmbedder_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewHashEmbedder(8).Embed(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
}

type countingEmbedder struct {
	calls int32
}

func (c *countingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	atomic.AddInt32(&c.calls, 1)
	return []float32{float32(len(text))}, nil
}
func (c *countingEmbedder) Dimensions() int   { return 1 }
func (c *countingEmbedder) ModelName() string { return "counting" }

func TestCachedEmbedder(t *testing.T) {
	inner := &countingEmbedder{}
	c, err := NewCachedEmbedder(inner, 2)
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		v, err := c.Embed(ctx, "abc")
		require.NoError(t, err)
		assert.Equal(t, []float32{3}, v)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&inner.calls))

	_, _ = c.Embed(ctx, "de")
	_, _ = c.Embed(ctx, "fgh!")
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, "counting", c.ModelName())
	assert.Equal(t, 1, c.Dimensions())
}

func TestNewCachedEmbedder_DefaultSize(t *testing.T) {
	for _, size := range []int{0, -3} {
		c, err := NewCachedEmbedder(&countingEmbedder{}, size)
		require.NoError(t, err)
		for i := 0; i < DefaultCacheSize+5; i++ {
			_, err := c.Embed(context.Background(), strings.Repeat("x", i+1))
			require.NoError(t, err)
		}
		assert.Equal(t, DefaultCacheSize, c.Len())
	}
}

func TestNew(t *testing.T) {
	e, err := New(types.EmbedConfig{Provider: types.EmbedHash, Dimensions: 32, CacheSize: 10})
	require.NoError(t, err)
	assert.IsType(t, &CachedEmbedder{}, e)
	assert.Equal(t, 32, e.Dimensions())

	e, err = New(types.EmbedConfig{Dimensions: 16})
	require.NoError(t, err)
	assert.IsType(t, &HashEmbedder{}, e)

	_, err = New(types.EmbedConfig{Provider: "bogus"})
	assert.Error(t, err)

	_, err = New(types.EmbedConfig{Provider: types.EmbedOpenAI, Dimensions: 4})
	assert.Error(t, err, "model is required")
}

func embeddingServer(t *testing.T, vec []float32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  "test-embed",
			"data": []map[string]any{
				{"object": "embedding", "index": 0, "embedding": vec},
			},
			"usage": map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
}

func TestOpenAIEmbedder(t *testing.T) {
	ts := embeddingServer(t, []float32{0.1, 0.2, 0.3})
	defer ts.Close()

	e, err := NewOpenAIEmbedder(types.EmbedConfig{Host: ts.URL, Model: "test-embed", Dimensions: 3})
	require.NoError(t, err)

	v, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, v)
	assert.Equal(t, "test-embed", e.ModelName())
}

func TestOpenAIEmbedder_DimensionCheck(t *testing.T) {
	ts := embeddingServer(t, []float32{0.1, 0.2})
	defer ts.Close()

	e, err := NewOpenAIEmbedder(types.EmbedConfig{Host: ts.URL, Model: "test-embed", Dimensions: 3})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "hello")
	assert.ErrorContains(t, err, "returned 2 dimensions")
}
