// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package acquire fetches metadata fragments for a single work from
// external registries and assembles them into raw bundles. It never
// paginates or crawls: one identifier in, one bundle out.
package acquire

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/papersearch/internal/httputil"
	"github.com/pdiddy/papersearch/pkg/types"
)

// ErrUnsupported is returned by a Fetcher that cannot look up the given
// identifier type. Assemble skips such sources without recording an error.
var ErrUnsupported = errors.New("identifier type not supported by source")

// Fetcher retrieves one source's fragment for a single work.
type Fetcher interface {
	Source() types.SourceName
	Fetch(ctx context.Context, idType IdentifierType, id string) (types.Fragment, error)
}

// Request describes one ingestion attempt.
type Request struct {
	Identifier string
	Query      string
	PDFPath    string
}

// now is swapped in tests.
var now = func() time.Time { return time.Now().UTC() }

// Assemble queries every fetcher concurrently and collects the results
// into a RawBundle. Source failures are recorded in the bundle's Errors,
// ordered by source priority; Assemble itself fails only for an
// unrecognised identifier.
func Assemble(ctx context.Context, fetchers []Fetcher, req Request) (types.RawBundle, error) {
	idType, id := Classify(req.Identifier)
	if idType == TypeUnknown {
		return types.RawBundle{}, fmt.Errorf("unrecognized identifier format: %q", req.Identifier)
	}

	b := types.RawBundle{
		Fragments:     map[types.SourceName]types.Fragment{},
		RetrievedAt:   now(),
		SourceQuery:   req.Query,
		SourcePDFPath: req.PDFPath,
	}
	switch idType {
	case TypeDOI:
		b.CandidateDOI = id
	case TypeWorkID:
		b.CandidateWorkID = id
	case TypeArxiv:
		b.CandidateArxivID = id
	}

	var (
		mu     sync.Mutex
		failed = map[types.SourceName]error{}
		g      errgroup.Group
	)
	for _, f := range fetchers {
		g.Go(func() error {
			frag, err := f.Fetch(ctx, idType, id)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, ErrUnsupported):
			case err != nil:
				failed[f.Source()] = err
				slog.Warn("fetch failed", "component", "acquire",
					"source", f.Source(), "id", id, "error", err)
			case !frag.IsEmpty():
				b.Fragments[f.Source()] = frag
			}
			return nil
		})
	}
	g.Wait()

	names := make([]types.SourceName, 0, len(failed))
	for name := range failed {
		names = append(names, name)
	}
	types.SortSources(names)
	for _, name := range names {
		b.Errors = append(b.Errors, fmt.Sprintf("%s: %v", name, failed[name]))
	}
	return b, nil
}

// Fetchers builds the registry fetchers from cfg.
func Fetchers(client *http.Client, cfg types.HTTPConfig) []Fetcher {
	return []Fetcher{
		&OpenAlexFetcher{Client: client, Config: cfg},
		&CrossrefFetcher{Client: client, Config: cfg},
	}
}

// NewClient returns an HTTP client with the configured timeout.
func NewClient(cfg types.HTTPConfig) *http.Client {
	return &http.Client{Timeout: cfg.Timeout}
}

// getJSON issues a GET with retry and decodes the JSON body into out.
func getJSON(ctx context.Context, client *http.Client, rawURL string, cfg types.HTTPConfig, out any) error {
	if cfg.Email != "" {
		u, err := url.Parse(rawURL)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", rawURL, err)
		}
		q := u.Query()
		q.Set("mailto", cfg.Email)
		u.RawQuery = q.Encode()
		rawURL = u.String()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if cfg.UserAgent != "" {
		req.Header.Set("User-Agent", cfg.UserAgent)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := httputil.DoWithRetry(ctx, client, req, cfg.MaxRetries)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}
