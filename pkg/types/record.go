// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Provenance field names.
const (
	FieldDOI     = "doi"
	FieldTitle   = "title"
	FieldAuthors = "authors"
	FieldYear    = "year"
)

// CanonicalRecord is one resolved scholarly work, merged from every raw
// bundle that shares its identity.
type CanonicalRecord struct {
	WorkID        string   `json:"work_id" yaml:"work_id"`
	DOI           string   `json:"doi,omitempty" yaml:"doi,omitempty"`
	AlternateDOIs []string `json:"alternate_dois,omitempty" yaml:"alternate_dois,omitempty"`
	Title         string   `json:"title,omitempty" yaml:"title,omitempty"`
	Authors       []string `json:"authors,omitempty" yaml:"authors,omitempty"`
	Year          int      `json:"year,omitempty" yaml:"year,omitempty"`

	// SourceBundleIDs lists contributing bundles in ascending order.
	SourceBundleIDs []int64 `json:"source_bundle_ids" yaml:"source_bundle_ids"`

	// Provenance maps a field name (FieldDOI, FieldTitle, ...) to the
	// source that supplied the winning value.
	Provenance map[string]SourceName `json:"provenance" yaml:"provenance"`

	Confidence float64 `json:"confidence" yaml:"confidence"`

	// MergedFragments keeps the last-seen fragment per source for indexing.
	MergedFragments map[SourceName]Fragment `json:"merged_fragments,omitempty" yaml:"merged_fragments,omitempty"`
}

// IndexText returns the text the lexical and semantic indexes consume:
// the title followed by abstracts and keywords in source priority order.
func (r CanonicalRecord) IndexText() string {
	parts := []string{}
	if r.Title != "" {
		parts = append(parts, r.Title)
	}
	for _, name := range r.fragmentSources() {
		f := r.MergedFragments[name]
		if f.Abstract != "" {
			parts = append(parts, f.Abstract)
		}
		if len(f.Keywords) > 0 {
			parts = append(parts, strings.Join(f.Keywords, " "))
		}
	}
	return strings.Join(parts, "\n")
}

// IndexTextHash returns the hex SHA-256 of IndexText. A stored embedding
// is current only while its hash matches the record's.
func (r CanonicalRecord) IndexTextHash() string {
	sum := sha256.Sum256([]byte(r.IndexText()))
	return hex.EncodeToString(sum[:])
}

// EmbeddingVector is a persisted record embedding with the hash of the
// text it was computed from.
type EmbeddingVector struct {
	Vector   []float32
	TextHash string
}

// Concepts merges the concept tags of every fragment. When two sources tag
// the same concept the higher weight wins. The result is sorted by id.
func (r CanonicalRecord) Concepts() []ConceptTag {
	best := map[string]float64{}
	for _, f := range r.MergedFragments {
		for _, c := range f.Concepts {
			if c.ID == "" {
				continue
			}
			if w, ok := best[c.ID]; !ok || c.Weight > w {
				best[c.ID] = c.Weight
			}
		}
	}
	tags := make([]ConceptTag, 0, len(best))
	for id, w := range best {
		tags = append(tags, ConceptTag{ID: id, Weight: w})
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].ID < tags[j].ID })
	return tags
}

// Work id prefixes for records without a registry-native id.
const (
	WorkIDPrefixDOI        = "doi:"
	WorkIDPrefixSynthetic  = "syn:"
	WorkIDPrefixUnresolved = "unresolved:"
)

// HasRegistryID reports whether the work id came from a registry rather
// than from a DOI, a synthetic hash or an orphan bundle.
func (r CanonicalRecord) HasRegistryID() bool {
	if r.WorkID == "" {
		return false
	}
	for _, p := range []string{WorkIDPrefixDOI, WorkIDPrefixSynthetic, WorkIDPrefixUnresolved} {
		if strings.HasPrefix(r.WorkID, p) {
			return false
		}
	}
	return true
}

func (r CanonicalRecord) fragmentSources() []SourceName {
	names := make([]SourceName, 0, len(r.MergedFragments))
	for name := range r.MergedFragments {
		names = append(names, name)
	}
	SortSources(names)
	return names
}
