// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package engine wires the resolver, the persisted stores and the search
// indexes into the operations the CLI exposes.
package engine

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/pdiddy/papersearch/internal/resolve"
	"github.com/pdiddy/papersearch/internal/store"
	"github.com/pdiddy/papersearch/pkg/types"
)

// NormalizeSummary reports the outcome of a full normalization run.
type NormalizeSummary struct {
	Bundles    int
	Records    int
	Unresolved int
}

// Normalize rebuilds the canonical table from every stored bundle. Every
// bundle ends up in exactly one record; running it twice over the same
// bundles leaves the table unchanged.
func Normalize(ctx context.Context, st *store.Store, w io.Writer) (NormalizeSummary, error) {
	bundles, err := st.Bundles(ctx)
	if err != nil {
		return NormalizeSummary{}, fmt.Errorf("loading bundles: %w", err)
	}

	records := resolve.Resolve(bundles)
	if err := st.ReplaceRecords(ctx, records); err != nil {
		return NormalizeSummary{}, fmt.Errorf("storing records: %w", err)
	}

	sum := NormalizeSummary{Bundles: len(bundles), Records: len(records)}
	for _, rec := range records {
		if strings.HasPrefix(rec.WorkID, types.WorkIDPrefixUnresolved) {
			sum.Unresolved++
		}
		fmt.Fprintf(w, "normalized %s (%d bundles, confidence %.1f)\n",
			rec.WorkID, len(rec.SourceBundleIDs), rec.Confidence)
	}
	return sum, nil
}

// NormalizeBundle stores b and merges it into r, writing every record the
// merge touched and deleting the ones it superseded.
func NormalizeBundle(ctx context.Context, st *store.Store, r *resolve.Resolver, b *types.RawBundle) (resolve.Update, error) {
	if err := st.InsertBundle(ctx, b); err != nil {
		return resolve.Update{}, fmt.Errorf("storing bundle: %w", err)
	}
	upd, err := r.Add(*b)
	if err != nil {
		return resolve.Update{}, fmt.Errorf("resolving bundle %d: %w", b.ID, err)
	}
	if err := st.UpsertRecord(ctx, upd.Record, upd.Superseded); err != nil {
		return resolve.Update{}, err
	}
	for _, rec := range upd.Rebuilt {
		if err := st.UpsertRecord(ctx, rec, nil); err != nil {
			return resolve.Update{}, err
		}
	}
	return upd, nil
}

// OpenResolver seeds an incremental resolver with every stored bundle.
func OpenResolver(ctx context.Context, st *store.Store) (*resolve.Resolver, error) {
	bundles, err := st.Bundles(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading bundles: %w", err)
	}
	return resolve.NewResolver(bundles), nil
}
