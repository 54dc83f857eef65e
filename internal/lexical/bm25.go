// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package lexical implements the BM25 inverted index over canonical record
// text, with synonym normalisation applied identically to documents and
// queries.
package lexical

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/pdiddy/papersearch/pkg/types"
)

var (
	// ErrNotFinalized is returned by Search before Finalize has run.
	ErrNotFinalized = errors.New("lexical index queried before finalize")

	// ErrFinalized is returned by AddDocument after Finalize has run.
	ErrFinalized = errors.New("lexical index already finalized")

	// ErrDuplicateDocument is returned when a record id is added twice.
	ErrDuplicateDocument = errors.New("document already indexed")
)

// Hit is one ranked lexical match.
type Hit struct {
	RecordID string  `json:"record_id"`
	Score    float64 `json:"score"`
}

type posting struct {
	doc int
	tf  int
}

type document struct {
	id       string
	length   int
	concepts []types.ConceptTag
}

// Index is a BM25 inverted index. Documents are added sequentially, then
// Finalize computes corpus statistics. A finalized index is read-only and
// safe for concurrent Search calls.
type Index struct {
	k1, b float64
	norm  *Normalizer

	docs     []document
	byID     map[string]int
	postings map[string][]posting

	avgLen    float64
	finalized bool
}

// New creates an empty index. Zero K1 or B fall back to 1.5 and 0.75.
// A nil Normalizer disables synonym rewriting.
func New(cfg types.LexicalConfig, norm *Normalizer) *Index {
	def := types.DefaultLexicalConfig()
	if cfg.K1 <= 0 {
		cfg.K1 = def.K1
	}
	if cfg.B <= 0 {
		cfg.B = def.B
	}
	return &Index{
		k1:       cfg.K1,
		b:        cfg.B,
		norm:     norm,
		byID:     map[string]int{},
		postings: map[string][]posting{},
	}
}

// AddDocument indexes text under recordID and stores its concept tags.
// Empty text is accepted so that every record stays addressable.
func (x *Index) AddDocument(recordID, text string, concepts []types.ConceptTag) error {
	if x.finalized {
		return ErrFinalized
	}
	if _, ok := x.byID[recordID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateDocument, recordID)
	}

	tokens := Tokenize(x.norm.Normalize(text))
	doc := len(x.docs)
	x.docs = append(x.docs, document{
		id:       recordID,
		length:   len(tokens),
		concepts: append([]types.ConceptTag(nil), concepts...),
	})
	x.byID[recordID] = doc

	// Postings are appended in first-occurrence order of each term.
	counts := map[string]int{}
	var order []string
	for _, t := range tokens {
		if counts[t] == 0 {
			order = append(order, t)
		}
		counts[t]++
	}
	for _, t := range order {
		x.postings[t] = append(x.postings[t], posting{doc: doc, tf: counts[t]})
	}
	return nil
}

// Finalize computes the average document length. It must be called once
// after the last AddDocument and before the first Search.
func (x *Index) Finalize() {
	if x.finalized {
		return
	}
	total := 0
	for _, d := range x.docs {
		total += d.length
	}
	if len(x.docs) > 0 {
		x.avgLen = float64(total) / float64(len(x.docs))
	}
	x.finalized = true
}

// Finalized reports whether Finalize has run.
func (x *Index) Finalized() bool { return x.finalized }

// Len returns the number of indexed documents.
func (x *Index) Len() int { return len(x.docs) }

// Search scores documents against query and returns at most topK hits in
// descending score order; topK <= 0 returns every hit. Documents that
// match no query term are never returned.
//
// Ties keep the order in which the scorer first saw each document: query
// terms are visited left to right and each term's postings in insertion
// order. Identical corpora and queries therefore always paginate the same
// way.
func (x *Index) Search(query string, topK int) ([]Hit, error) {
	if !x.finalized {
		return nil, ErrNotFinalized
	}

	n := float64(len(x.docs))
	scores := map[int]float64{}
	var seen []int

	for _, term := range Tokenize(x.norm.Normalize(query)) {
		plist, ok := x.postings[term]
		if !ok {
			continue
		}
		df := float64(len(plist))
		idf := math.Log(1 + (n-df+0.5)/(df+0.5))
		for _, p := range plist {
			if _, ok := scores[p.doc]; !ok {
				seen = append(seen, p.doc)
			}
			scores[p.doc] += idf * x.termWeight(p)
		}
	}

	hits := make([]Hit, len(seen))
	for i, doc := range seen {
		hits[i] = Hit{RecordID: x.docs[doc].id, Score: scores[doc]}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (x *Index) termWeight(p posting) float64 {
	tf := float64(p.tf)
	norm := 1.0
	if x.avgLen > 0 {
		norm = 1 - x.b + x.b*float64(x.docs[p.doc].length)/x.avgLen
	}
	return tf * (x.k1 + 1) / (tf + x.k1*norm)
}

// Concepts returns the concept tags stored for recordID.
func (x *Index) Concepts(recordID string) []types.ConceptTag {
	doc, ok := x.byID[recordID]
	if !ok {
		return nil
	}
	return x.docs[doc].concepts
}
