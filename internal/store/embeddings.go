// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/pdiddy/papersearch/pkg/types"
)

// PutEmbeddings stores vectors keyed by work id for model, replacing any
// previous vector for the same work id.
func (s *Store) PutEmbeddings(ctx context.Context, model string, vecs map[string]types.EmbeddingVector) error {
	if len(vecs) == 0 {
		return nil
	}
	return s.write(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO embeddings (work_id, model, dim, vector, text_hash, updated_at) VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(work_id) DO UPDATE SET
				model=excluded.model, dim=excluded.dim, vector=excluded.vector,
				text_hash=excluded.text_hash, updated_at=excluded.updated_at`)
		if err != nil {
			return fmt.Errorf("preparing embedding insert: %w", err)
		}
		defer stmt.Close()

		ts := formatTime(now())
		for id, v := range vecs {
			if _, err := stmt.ExecContext(ctx, id, model, len(v.Vector), packVector(v.Vector), v.TextHash, ts); err != nil {
				return fmt.Errorf("storing embedding %s: %w", id, err)
			}
		}
		return nil
	})
}

// Embedding returns the vector stored for workID under model.
func (s *Store) Embedding(ctx context.Context, workID, model string) ([]float32, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT vector FROM embeddings WHERE work_id = ? AND model = ?`, workID, model,
	).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("embedding %s: %w", workID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading embedding %s: %w", workID, err)
	}
	return unpackVector(blob), nil
}

// Embeddings returns every vector stored for model with dimension dim,
// with the text hash it was stored under. Vectors from other models or
// dimensions are skipped so a model change forces recomputation.
func (s *Store) Embeddings(ctx context.Context, model string, dim int) (map[string]types.EmbeddingVector, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT work_id, vector, text_hash FROM embeddings WHERE model = ? AND dim = ?`, model, dim)
	if err != nil {
		return nil, fmt.Errorf("querying embeddings: %w", err)
	}
	defer rows.Close()

	out := map[string]types.EmbeddingVector{}
	for rows.Next() {
		var (
			id, hash string
			blob     []byte
		)
		if err := rows.Scan(&id, &blob, &hash); err != nil {
			return nil, fmt.Errorf("scanning embedding: %w", err)
		}
		out[id] = types.EmbeddingVector{Vector: unpackVector(blob), TextHash: hash}
	}
	return out, rows.Err()
}

// packVector encodes v as little-endian float32s.
func packVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func unpackVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
