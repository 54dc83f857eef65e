// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package semantic

import (
	"sort"

	"github.com/coder/hnsw"
)

// Neighbor is one result of a nearest-neighbour lookup.
type Neighbor struct {
	RecordID   string  `json:"record_id"`
	Similarity float64 `json:"similarity"`
}

// Freeze makes the index read-only and builds the neighbour graph used by
// Nearest. Zero vectors are left out of the graph.
func (x *Index) Freeze() {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.frozen {
		return
	}
	x.frozen = true

	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = x.m
	g.EfSearch = x.efSearch
	g.Ml = 0.25

	for _, id := range x.order {
		vec := append([]float32(nil), x.vectors[id]...)
		normalizeInPlace(vec)
		if isZero(vec) {
			continue
		}
		g.Add(hnsw.MakeNode(uint64(len(x.keys)), vec))
		x.keys = append(x.keys, id)
	}
	x.graph = g
}

// Frozen reports whether Freeze has run.
func (x *Index) Frozen() bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.frozen
}

// Nearest returns up to k records closest to query. The graph search is
// approximate; results are re-scored with exact cosine similarity and
// sorted by it, ties broken by record id.
func (x *Index) Nearest(query []float32, k int) ([]Neighbor, error) {
	if len(query) != x.dim {
		return nil, &DimensionMismatchError{Expected: x.dim, Got: len(query)}
	}

	x.mu.RLock()
	defer x.mu.RUnlock()
	if !x.frozen {
		return nil, ErrNotFrozen
	}
	if k <= 0 || x.graph.Len() == 0 {
		return []Neighbor{}, nil
	}

	q := append([]float32(nil), query...)
	normalizeInPlace(q)
	if isZero(q) {
		return []Neighbor{}, nil
	}

	nodes := x.graph.Search(q, k)
	out := make([]Neighbor, 0, len(nodes))
	for _, n := range nodes {
		id := x.keys[n.Key]
		out = append(out, Neighbor{RecordID: id, Similarity: Similarity(query, x.vectors[id])})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].RecordID < out[j].RecordID
	})
	return out, nil
}

func isZero(v []float32) bool {
	for _, f := range v {
		if f != 0 {
			return false
		}
	}
	return true
}
