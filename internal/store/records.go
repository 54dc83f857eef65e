// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pdiddy/papersearch/internal/resolve"
	"github.com/pdiddy/papersearch/pkg/types"
)

const recordColumns = `work_id, doi, title, authors_json, year, alternate_dois_json,
	source_bundle_ids_json, provenance_json, merged_fragments_json, confidence`

// ReplaceRecords swaps the whole canonical table for recs in one
// transaction. Work ids that survive keep their created_at. Embeddings of
// work ids that no longer exist are dropped.
func (s *Store) ReplaceRecords(ctx context.Context, recs []types.CanonicalRecord) error {
	return s.write(ctx, func(tx *sql.Tx) error {
		created, err := createdAt(ctx, tx)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM canonical_records`); err != nil {
			return fmt.Errorf("clearing records: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, insertRecordSQL)
		if err != nil {
			return fmt.Errorf("preparing insert: %w", err)
		}
		defer stmt.Close()

		ts := formatTime(now())
		for _, rec := range recs {
			c, ok := created[rec.WorkID]
			if !ok {
				c = ts
			}
			args, err := recordArgs(rec)
			if err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx, append(args, c, ts)...); err != nil {
				return fmt.Errorf("inserting record %s: %w", rec.WorkID, err)
			}
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM embeddings WHERE work_id NOT IN (SELECT work_id FROM canonical_records)`,
		); err != nil {
			return fmt.Errorf("pruning embeddings: %w", err)
		}
		return nil
	})
}

// UpsertRecord writes one record and deletes the records it superseded.
// The earliest created_at among the replaced rows is kept.
func (s *Store) UpsertRecord(ctx context.Context, rec types.CanonicalRecord, superseded []string) error {
	return s.write(ctx, func(tx *sql.Tx) error {
		ts := formatTime(now())
		c := ts
		for _, id := range append([]string{rec.WorkID}, superseded...) {
			var existing string
			err := tx.QueryRowContext(ctx,
				`SELECT created_at FROM canonical_records WHERE work_id = ?`, id,
			).Scan(&existing)
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			if err != nil {
				return fmt.Errorf("reading record %s: %w", id, err)
			}
			if existing < c {
				c = existing
			}
		}

		for _, id := range superseded {
			if id == rec.WorkID {
				continue
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM canonical_records WHERE work_id = ?`, id); err != nil {
				return fmt.Errorf("deleting superseded record %s: %w", id, err)
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM embeddings WHERE work_id = ?`, id); err != nil {
				return fmt.Errorf("deleting superseded embedding %s: %w", id, err)
			}
		}

		args, err := recordArgs(rec)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, insertRecordSQL+`
			ON CONFLICT(work_id) DO UPDATE SET
				doi=excluded.doi, title=excluded.title, authors_json=excluded.authors_json,
				year=excluded.year, alternate_dois_json=excluded.alternate_dois_json,
				source_bundle_ids_json=excluded.source_bundle_ids_json,
				provenance_json=excluded.provenance_json,
				merged_fragments_json=excluded.merged_fragments_json,
				confidence=excluded.confidence, created_at=excluded.created_at,
				updated_at=excluded.updated_at`,
			append(args, c, ts)...,
		)
		if err != nil {
			return fmt.Errorf("upserting record %s: %w", rec.WorkID, err)
		}
		return nil
	})
}

const insertRecordSQL = `INSERT INTO canonical_records (` + recordColumns + `, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func createdAt(ctx context.Context, tx *sql.Tx) (map[string]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT work_id, created_at FROM canonical_records`)
	if err != nil {
		return nil, fmt.Errorf("reading created_at: %w", err)
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var id, c string
		if err := rows.Scan(&id, &c); err != nil {
			return nil, fmt.Errorf("scanning created_at: %w", err)
		}
		out[id] = c
	}
	return out, rows.Err()
}

func recordArgs(rec types.CanonicalRecord) ([]any, error) {
	enc := func(field string, v any) (string, error) {
		data, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("encoding %s of %s: %w", field, rec.WorkID, err)
		}
		return string(data), nil
	}
	authors, err := enc("authors", nonNil(rec.Authors))
	if err != nil {
		return nil, err
	}
	alternates, err := enc("alternate_dois", nonNil(rec.AlternateDOIs))
	if err != nil {
		return nil, err
	}
	bundles, err := enc("source_bundle_ids", rec.SourceBundleIDs)
	if err != nil {
		return nil, err
	}
	prov, err := enc("provenance", rec.Provenance)
	if err != nil {
		return nil, err
	}
	frags, err := enc("merged_fragments", rec.MergedFragments)
	if err != nil {
		return nil, err
	}
	return []any{
		rec.WorkID, rec.DOI, rec.Title, authors, rec.Year, alternates,
		bundles, prov, frags, rec.Confidence,
	}, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Records returns every canonical record ordered by work id.
func (s *Store) Records(ctx context.Context) ([]types.CanonicalRecord, error) {
	return s.queryRecords(ctx, `SELECT `+recordColumns+` FROM canonical_records ORDER BY work_id`)
}

// Record looks up one record by work id.
func (s *Store) Record(ctx context.Context, workID string) (types.CanonicalRecord, error) {
	recs, err := s.queryRecords(ctx, `SELECT `+recordColumns+` FROM canonical_records WHERE work_id = ?`, workID)
	if err != nil {
		return types.CanonicalRecord{}, err
	}
	if len(recs) == 0 {
		return types.CanonicalRecord{}, fmt.Errorf("record %s: %w", workID, ErrNotFound)
	}
	return recs[0], nil
}

// RecordByDOI looks up the record whose canonical DOI is doi.
func (s *Store) RecordByDOI(ctx context.Context, doi string) (types.CanonicalRecord, error) {
	doi = resolve.CanonicalDOI(doi)
	recs, err := s.queryRecords(ctx, `SELECT `+recordColumns+` FROM canonical_records WHERE doi = ? ORDER BY work_id LIMIT 1`, doi)
	if err != nil {
		return types.CanonicalRecord{}, err
	}
	if len(recs) == 0 {
		return types.CanonicalRecord{}, fmt.Errorf("record with doi %s: %w", doi, ErrNotFound)
	}
	return recs[0], nil
}

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]types.CanonicalRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	var out []types.CanonicalRecord
	for rows.Next() {
		var (
			rec                                       types.CanonicalRecord
			doi, title                                sql.NullString
			year                                      sql.NullInt64
			authors, alternates, bundles, prov, frags string
		)
		if err := rows.Scan(&rec.WorkID, &doi, &title, &authors, &year, &alternates,
			&bundles, &prov, &frags, &rec.Confidence); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		rec.DOI = doi.String
		rec.Title = title.String
		rec.Year = int(year.Int64)

		for _, f := range []struct {
			name string
			data string
			dst  any
		}{
			{"authors", authors, &rec.Authors},
			{"alternate_dois", alternates, &rec.AlternateDOIs},
			{"source_bundle_ids", bundles, &rec.SourceBundleIDs},
			{"provenance", prov, &rec.Provenance},
			{"merged_fragments", frags, &rec.MergedFragments},
		} {
			if err := json.Unmarshal([]byte(f.data), f.dst); err != nil {
				return nil, fmt.Errorf("record %s %s: %w", rec.WorkID, f.name, err)
			}
		}
		if len(rec.Authors) == 0 {
			rec.Authors = nil
		}
		if len(rec.AlternateDOIs) == 0 {
			rec.AlternateDOIs = nil
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
