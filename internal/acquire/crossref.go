// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package acquire

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/pdiddy/papersearch/internal/resolve"
	"github.com/pdiddy/papersearch/pkg/types"
)

// crossrefAPIBase is the Crossref works endpoint.
var crossrefAPIBase = "https://api.crossref.org/works/"

// jatsTag matches the JATS markup Crossref wraps abstracts in.
var jatsTag = regexp.MustCompile(`<[^>]+>`)

// CrossrefFetcher reads single works from Crossref. It only understands
// DOIs.
type CrossrefFetcher struct {
	Client *http.Client
	Config types.HTTPConfig
}

// Source returns the registry-b source name.
func (f *CrossrefFetcher) Source() types.SourceName { return types.SourceRegistryB }

// Fetch looks a work up by DOI.
func (f *CrossrefFetcher) Fetch(ctx context.Context, idType IdentifierType, id string) (types.Fragment, error) {
	if idType != TypeDOI {
		return types.Fragment{}, ErrUnsupported
	}

	var cr crossrefResponse
	if err := getJSON(ctx, f.Client, crossrefAPIBase+id, f.Config, &cr); err != nil {
		return types.Fragment{}, fmt.Errorf("Crossref: %w", err)
	}
	return cr.Message.fragment(), nil
}

func (w crossrefWork) fragment() types.Fragment {
	frag := types.Fragment{
		DOI:      resolve.CanonicalDOI(w.DOI),
		Abstract: strings.Join(strings.Fields(jatsTag.ReplaceAllString(w.Abstract, " ")), " "),
		Keywords: w.Subject,
	}
	if len(w.Title) > 0 {
		frag.Title = strings.TrimSpace(w.Title[0])
	}
	for _, a := range w.Author {
		name := strings.TrimSpace(a.Given + " " + a.Family)
		if name == "" {
			name = strings.TrimSpace(a.Name)
		}
		if name != "" {
			frag.Authors = append(frag.Authors, name)
		}
	}
	for _, d := range []crossrefDate{w.Issued, w.Published, w.Created} {
		if len(d.DateParts) > 0 && len(d.DateParts[0]) > 0 && d.DateParts[0][0] > 0 {
			frag.Year = d.DateParts[0][0]
			break
		}
	}
	return frag
}

// Crossref API JSON structures.
type crossrefResponse struct {
	Message crossrefWork `json:"message"`
}

type crossrefWork struct {
	DOI       string           `json:"DOI"`
	Title     []string         `json:"title"`
	Abstract  string           `json:"abstract"`
	Author    []crossrefAuthor `json:"author"`
	Subject   []string         `json:"subject"`
	Issued    crossrefDate     `json:"issued"`
	Published crossrefDate     `json:"published"`
	Created   crossrefDate     `json:"created"`
}

type crossrefAuthor struct {
	Given  string `json:"given"`
	Family string `json:"family"`
	Name   string `json:"name"`
}

type crossrefDate struct {
	DateParts [][]int `json:"date-parts"`
}
