// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package acquire

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"

	"github.com/pdiddy/papersearch/internal/resolve"
	"github.com/pdiddy/papersearch/pkg/types"
)

// openAlexAPIBase is the OpenAlex works endpoint. Declared as a var so
// tests can substitute an httptest server.
var openAlexAPIBase = "https://api.openalex.org/works/"

// arxivVersion strips the version suffix; arXiv DOIs are unversioned.
var arxivVersion = regexp.MustCompile(`v\d+$`)

// OpenAlexFetcher reads single works from OpenAlex, the registry that
// issues canonical work ids.
type OpenAlexFetcher struct {
	Client *http.Client
	Config types.HTTPConfig
}

// Source returns the registry-a source name.
func (f *OpenAlexFetcher) Source() types.SourceName { return types.SourceRegistryA }

// Fetch looks a work up by work id, DOI or arXiv id.
func (f *OpenAlexFetcher) Fetch(ctx context.Context, idType IdentifierType, id string) (types.Fragment, error) {
	var path string
	switch idType {
	case TypeWorkID:
		path = id
	case TypeDOI:
		path = "https://doi.org/" + id
	case TypeArxiv:
		path = "https://doi.org/10.48550/arXiv." + arxivVersion.ReplaceAllString(id, "")
	default:
		return types.Fragment{}, ErrUnsupported
	}

	var work openAlexWork
	if err := getJSON(ctx, f.Client, openAlexAPIBase+path, f.Config, &work); err != nil {
		return types.Fragment{}, fmt.Errorf("OpenAlex: %w", err)
	}
	frag := work.fragment()
	if idType == TypeArxiv {
		frag.ArxivID = id
	}
	return frag, nil
}

func (w openAlexWork) fragment() types.Fragment {
	frag := types.Fragment{
		WorkID:   resolve.CanonicalWorkID(w.ID),
		DOI:      resolve.CanonicalDOI(w.DOI),
		Title:    strings.TrimSpace(w.Title),
		Year:     w.PublicationYear,
		Abstract: reconstructAbstract(w.AbstractInvertedIndex),
	}
	if frag.Title == "" {
		frag.Title = strings.TrimSpace(w.DisplayName)
	}
	for _, a := range w.Authorships {
		if name := strings.TrimSpace(a.Author.DisplayName); name != "" {
			frag.Authors = append(frag.Authors, name)
		}
	}
	for _, k := range w.Keywords {
		if k.DisplayName != "" {
			frag.Keywords = append(frag.Keywords, k.DisplayName)
		}
	}
	for _, c := range w.Concepts {
		if c.ID != "" {
			frag.Concepts = append(frag.Concepts, types.ConceptTag{
				ID:     resolve.CanonicalWorkID(c.ID),
				Weight: c.Score,
			})
		}
	}
	return frag
}

// reconstructAbstract turns OpenAlex's abstract_inverted_index (word to
// positions) back into plain text.
func reconstructAbstract(invertedIndex map[string][]int) string {
	if len(invertedIndex) == 0 {
		return ""
	}

	type posWord struct {
		pos  int
		word string
	}
	var pairs []posWord
	for word, positions := range invertedIndex {
		for _, pos := range positions {
			pairs = append(pairs, posWord{pos: pos, word: word})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].pos != pairs[j].pos {
			return pairs[i].pos < pairs[j].pos
		}
		return pairs[i].word < pairs[j].word
	})

	words := make([]string, len(pairs))
	for i, p := range pairs {
		words[i] = p.word
	}
	return strings.Join(words, " ")
}

// OpenAlex API JSON structures.
type openAlexWork struct {
	ID                    string               `json:"id"`
	DOI                   string               `json:"doi"`
	Title                 string               `json:"title"`
	DisplayName           string               `json:"display_name"`
	PublicationYear       int                  `json:"publication_year"`
	Authorships           []openAlexAuthorship `json:"authorships"`
	AbstractInvertedIndex map[string][]int     `json:"abstract_inverted_index"`
	Concepts              []openAlexConcept    `json:"concepts"`
	Keywords              []openAlexKeyword    `json:"keywords"`
}

type openAlexAuthorship struct {
	Author struct {
		DisplayName string `json:"display_name"`
	} `json:"author"`
}

type openAlexConcept struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

type openAlexKeyword struct {
	DisplayName string `json:"display_name"`
}
