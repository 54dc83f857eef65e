// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/mattn/go-sqlite3"

	"github.com/pdiddy/papersearch/internal/resolve"
	"github.com/pdiddy/papersearch/pkg/types"
)

// ErrDuplicateBundle is returned when a bundle for the same identity and
// retrieval time is already stored.
var ErrDuplicateBundle = errors.New("bundle already stored")

const bundleColumns = `id, candidate_work_id, candidate_doi, candidate_arxiv_id,
	retrieved_at, source_fragments_json, errors_json, source_query, source_pdf_path`

// InsertBundle appends b to the raw record store and sets b.ID. Bundles
// are never updated once written.
func (s *Store) InsertBundle(ctx context.Context, b *types.RawBundle) error {
	fragsJSON, err := json.Marshal(b.Fragments)
	if err != nil {
		return fmt.Errorf("encoding fragments: %w", err)
	}
	errs := b.Errors
	if errs == nil {
		errs = []string{}
	}
	errsJSON, err := json.Marshal(errs)
	if err != nil {
		return fmt.Errorf("encoding errors: %w", err)
	}
	if b.RetrievedAt.IsZero() {
		b.RetrievedAt = now()
	}

	key := resolve.IdentityKey(*b)
	doi := firstDOI(*b)

	return s.write(ctx, func(tx *sql.Tx) error {
		// Unresolved keys embed the row id, so insert a placeholder first.
		workID := key.String()
		if key.Kind == resolve.KindUnresolved {
			workID = types.WorkIDPrefixUnresolved + "pending:" + formatTime(now())
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO raw_bundles (work_id, candidate_work_id, candidate_doi, candidate_arxiv_id, doi,
				retrieved_at, source_fragments_json, errors_json, source_query, source_pdf_path)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			workID, b.CandidateWorkID, b.CandidateDOI, b.CandidateArxivID, doi,
			formatTime(b.RetrievedAt), string(fragsJSON), string(errsJSON),
			b.SourceQuery, b.SourcePDFPath,
		)
		if err != nil {
			var se sqlite3.Error
			if errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique {
				return fmt.Errorf("%w: %s at %s", ErrDuplicateBundle, workID, formatTime(b.RetrievedAt))
			}
			return fmt.Errorf("inserting bundle: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("reading bundle id: %w", err)
		}
		if key.Kind == resolve.KindUnresolved {
			if _, err := tx.ExecContext(ctx,
				`UPDATE raw_bundles SET work_id = ? WHERE id = ?`,
				types.WorkIDPrefixUnresolved+strconv.FormatInt(id, 10), id,
			); err != nil {
				return fmt.Errorf("setting bundle identity: %w", err)
			}
		}
		b.ID = id
		return nil
	})
}

func firstDOI(b types.RawBundle) string {
	for _, src := range b.Sources() {
		if doi := resolve.CanonicalDOI(b.Fragments[src].DOI); doi != "" {
			return doi
		}
	}
	return ""
}

// Bundles returns every stored bundle in id order.
func (s *Store) Bundles(ctx context.Context) ([]types.RawBundle, error) {
	return s.queryBundles(ctx, `SELECT `+bundleColumns+` FROM raw_bundles ORDER BY id`)
}

// BundlesByIdentity returns the bundles stored under an identity key
// string such as "W123" or "doi:10.1/x".
func (s *Store) BundlesByIdentity(ctx context.Context, key string) ([]types.RawBundle, error) {
	return s.queryBundles(ctx, `SELECT `+bundleColumns+` FROM raw_bundles WHERE work_id = ? ORDER BY id`, key)
}

// BundlesByDOI returns bundles whose highest-priority DOI is doi.
func (s *Store) BundlesByDOI(ctx context.Context, doi string) ([]types.RawBundle, error) {
	return s.queryBundles(ctx, `SELECT `+bundleColumns+` FROM raw_bundles WHERE doi = ? ORDER BY id`, resolve.CanonicalDOI(doi))
}

// Bundle returns one bundle by id.
func (s *Store) Bundle(ctx context.Context, id int64) (types.RawBundle, error) {
	bs, err := s.queryBundles(ctx, `SELECT `+bundleColumns+` FROM raw_bundles WHERE id = ?`, id)
	if err != nil {
		return types.RawBundle{}, err
	}
	if len(bs) == 0 {
		return types.RawBundle{}, fmt.Errorf("bundle %d: %w", id, ErrNotFound)
	}
	return bs[0], nil
}

func (s *Store) queryBundles(ctx context.Context, query string, args ...any) ([]types.RawBundle, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying bundles: %w", err)
	}
	defer rows.Close()

	var out []types.RawBundle
	for rows.Next() {
		var (
			b                            types.RawBundle
			candWork, candDOI, candArxiv sql.NullString
			srcQuery, pdfPath            sql.NullString
			retrieved, frags, errs       string
		)
		if err := rows.Scan(&b.ID, &candWork, &candDOI, &candArxiv,
			&retrieved, &frags, &errs, &srcQuery, &pdfPath); err != nil {
			return nil, fmt.Errorf("scanning bundle: %w", err)
		}
		b.CandidateWorkID = candWork.String
		b.CandidateDOI = candDOI.String
		b.CandidateArxivID = candArxiv.String
		b.SourceQuery = srcQuery.String
		b.SourcePDFPath = pdfPath.String

		if b.RetrievedAt, err = parseTime(retrieved); err != nil {
			return nil, fmt.Errorf("bundle %d retrieved_at: %w", b.ID, err)
		}
		if err := json.Unmarshal([]byte(frags), &b.Fragments); err != nil {
			return nil, fmt.Errorf("bundle %d fragments: %w", b.ID, err)
		}
		if err := json.Unmarshal([]byte(errs), &b.Errors); err != nil {
			return nil, fmt.Errorf("bundle %d errors: %w", b.ID, err)
		}
		if len(b.Errors) == 0 {
			b.Errors = nil
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
