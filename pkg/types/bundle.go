// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"sort"
	"time"
)

// SourceName identifies the collaborator that produced a metadata fragment.
type SourceName string

const (
	// SourceRegistryA is the registry that issues canonical work ids
	// (OpenAlex-style).
	SourceRegistryA SourceName = "registry-a"

	// SourceRegistryB is the secondary, DOI-centric registry (Crossref-style).
	SourceRegistryB SourceName = "registry-b"

	// SourceExtractor is a document extractor that parses metadata out of
	// the PDF itself (GROBID-style).
	SourceExtractor SourceName = "document-extractor"
)

// SourcePriority is the fixed merge order, highest priority first.
var SourcePriority = []SourceName{SourceRegistryA, SourceRegistryB, SourceExtractor}

// Rank returns the position of s in SourcePriority. Unknown sources rank
// after every known source.
func (s SourceName) Rank() int {
	for i, p := range SourcePriority {
		if p == s {
			return i
		}
	}
	return len(SourcePriority)
}

// IsRegistry reports whether s issues registry-native canonical work ids.
func (s SourceName) IsRegistry() bool {
	return s == SourceRegistryA
}

// SortSources orders names by priority, breaking ties among unknown
// sources lexically.
func SortSources(names []SourceName) {
	sort.SliceStable(names, func(i, j int) bool {
		ri, rj := names[i].Rank(), names[j].Rank()
		if ri != rj {
			return ri < rj
		}
		return names[i] < names[j]
	})
}

// ConceptTag is a weighted topic label attached to a work.
type ConceptTag struct {
	ID     string  `json:"id" yaml:"id"`
	Weight float64 `json:"weight" yaml:"weight"`
}

// Fragment is the metadata one source supplied for one ingestion attempt.
// Every field is optional.
type Fragment struct {
	// WorkID is the registry-native canonical id. Only registry sources
	// populate it.
	WorkID string `json:"work_id,omitempty" yaml:"work_id,omitempty"`

	DOI      string       `json:"doi,omitempty" yaml:"doi,omitempty"`
	ArxivID  string       `json:"arxiv_id,omitempty" yaml:"arxiv_id,omitempty"`
	Title    string       `json:"title,omitempty" yaml:"title,omitempty"`
	Authors  []string     `json:"authors,omitempty" yaml:"authors,omitempty"`
	Year     int          `json:"year,omitempty" yaml:"year,omitempty"`
	Abstract string       `json:"abstract,omitempty" yaml:"abstract,omitempty"`
	Keywords []string     `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	Concepts []ConceptTag `json:"concepts,omitempty" yaml:"concepts,omitempty"`
}

// IsEmpty reports whether the fragment carries no metadata at all.
func (f Fragment) IsEmpty() bool {
	return f.WorkID == "" && f.DOI == "" && f.ArxivID == "" && f.Title == "" &&
		len(f.Authors) == 0 && f.Year == 0 && f.Abstract == "" &&
		len(f.Keywords) == 0 && len(f.Concepts) == 0
}

// RawBundle is one ingestion attempt: the fragments every source returned
// for a single work plus the failures encountered along the way. Bundles
// are immutable once stored.
type RawBundle struct {
	// ID is assigned by the raw record store on insert.
	ID int64 `json:"id" yaml:"id"`

	CandidateWorkID  string `json:"candidate_work_id,omitempty" yaml:"candidate_work_id,omitempty"`
	CandidateDOI     string `json:"candidate_doi,omitempty" yaml:"candidate_doi,omitempty"`
	CandidateArxivID string `json:"candidate_arxiv_id,omitempty" yaml:"candidate_arxiv_id,omitempty"`

	Fragments   map[SourceName]Fragment `json:"source_fragments" yaml:"source_fragments"`
	RetrievedAt time.Time               `json:"retrieved_at" yaml:"retrieved_at"`

	// Errors holds one human-readable note per failed source, in source
	// priority order.
	Errors []string `json:"errors,omitempty" yaml:"errors,omitempty"`

	SourceQuery   string `json:"source_query,omitempty" yaml:"source_query,omitempty"`
	SourcePDFPath string `json:"source_pdf_path,omitempty" yaml:"source_pdf_path,omitempty"`
}

// Sources returns the bundle's fragment sources in priority order.
func (b RawBundle) Sources() []SourceName {
	names := make([]SourceName, 0, len(b.Fragments))
	for name := range b.Fragments {
		names = append(names, name)
	}
	SortSources(names)
	return names
}

// IsEmpty reports whether every fragment in the bundle is empty.
func (b RawBundle) IsEmpty() bool {
	for _, f := range b.Fragments {
		if !f.IsEmpty() {
			return false
		}
	}
	return true
}
