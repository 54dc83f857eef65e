// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package acquire

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/nickng/bibtex"

	"github.com/pdiddy/papersearch/internal/resolve"
	"github.com/pdiddy/papersearch/pkg/types"
)

var (
	bibAuthorSep = regexp.MustCompile(`(?i)\s+and\s+`)
	bibYear      = regexp.MustCompile(`\d{4}`)
	bibSpace     = regexp.MustCompile(`\s+`)
	bibUnescape  = strings.NewReplacer("{", "", "}", "", `\&`, "&", `\%`, "%", `\_`, "_", "~", " ")
)

// BibEntry is one parsed BibTeX entry and the bundle built from it.
type BibEntry struct {
	Key    string
	Bundle types.RawBundle
}

// ParseBibTeX reads a BibTeX database and builds one raw bundle per entry.
// Each bundle carries a single document-extractor fragment holding the
// entry's title, authors (split on "and"), year, canonical DOI, arXiv
// eprint, abstract and keywords. Entries with none of these are skipped.
func ParseBibTeX(r io.Reader) ([]BibEntry, error) {
	bib, err := bibtex.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parsing BibTeX: %w", err)
	}

	at := now()
	var out []BibEntry
	for _, e := range bib.Entries {
		f := bibFragment(e)
		if f.IsEmpty() {
			slog.Warn("skipping empty BibTeX entry", "component", "acquire", "key", e.CiteName)
			continue
		}
		out = append(out, BibEntry{
			Key: e.CiteName,
			Bundle: types.RawBundle{
				CandidateDOI:     f.DOI,
				CandidateArxivID: f.ArxivID,
				Fragments:        map[types.SourceName]types.Fragment{types.SourceExtractor: f},
				RetrievedAt:      at,
			},
		})
	}
	return out, nil
}

func bibFragment(e *bibtex.BibEntry) types.Fragment {
	fields := make(map[string]string, len(e.Fields))
	for k, v := range e.Fields {
		if v != nil {
			fields[strings.ToLower(k)] = cleanBibValue(v.String())
		}
	}

	f := types.Fragment{
		Title:    fields["title"],
		DOI:      resolve.CanonicalDOI(fields["doi"]),
		Abstract: fields["abstract"],
	}
	if a := fields["author"]; a != "" {
		for _, name := range bibAuthorSep.Split(a, -1) {
			if name = strings.TrimSpace(name); name != "" {
				f.Authors = append(f.Authors, name)
			}
		}
	}
	if y := bibYear.FindString(fields["year"]); y != "" {
		f.Year, _ = strconv.Atoi(y)
	}
	if strings.EqualFold(fields["archiveprefix"], "arxiv") || strings.EqualFold(fields["eprinttype"], "arxiv") {
		f.ArxivID = fields["eprint"]
	}
	if kw := fields["keywords"]; kw != "" {
		for _, k := range strings.FieldsFunc(kw, func(r rune) bool { return r == ',' || r == ';' }) {
			if k = strings.TrimSpace(k); k != "" {
				f.Keywords = append(f.Keywords, k)
			}
		}
	}
	return f
}

func cleanBibValue(s string) string {
	return strings.TrimSpace(bibSpace.ReplaceAllString(bibUnescape.Replace(s), " "))
}

// Enrich looks up a BibTeX-derived bundle's DOI (or arXiv id) in every
// registry and adds the fragments they return. The bundle's own
// fragments win over fetched ones from the same source. Registry failures
// are recorded on the bundle; a bundle with no identifier is left as is.
func Enrich(ctx context.Context, fetchers []Fetcher, b *types.RawBundle) {
	id := b.CandidateDOI
	if id == "" {
		id = b.CandidateArxivID
	}
	if id == "" {
		return
	}
	fetched, err := Assemble(ctx, fetchers, Request{Identifier: id, Query: b.SourceQuery})
	if err != nil {
		b.Errors = append(b.Errors, err.Error())
		return
	}
	if b.Fragments == nil {
		b.Fragments = map[types.SourceName]types.Fragment{}
	}
	for src, f := range fetched.Fragments {
		if _, ok := b.Fragments[src]; !ok {
			b.Fragments[src] = f
		}
	}
	b.Errors = append(fetched.Errors, b.Errors...)
	if b.CandidateWorkID == "" {
		b.CandidateWorkID = fetched.Fragments[types.SourceRegistryA].WorkID
	}
}
