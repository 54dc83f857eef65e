// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/papersearch/internal/resolve"
	"github.com/pdiddy/papersearch/pkg/types"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(types.StoreConfig{DataDir: t.TempDir(), DBFile: "test.db"})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func fixedClock(t *testing.T, ts time.Time) {
	t.Helper()
	old := now
	now = func() time.Time { return ts }
	t.Cleanup(func() { now = old })
}

var t0 = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

func doiBundle(doi string, at time.Time) *types.RawBundle {
	return &types.RawBundle{
		CandidateDOI: doi,
		RetrievedAt:  at,
		Fragments: map[types.SourceName]types.Fragment{
			types.SourceRegistryB: {DOI: doi, Title: "Title " + doi, Authors: []string{"Ada Lovelace"}},
		},
		Errors:      []string{"registry-a: HTTP 503"},
		SourceQuery: "grid worlds",
	}
}

// --- bundles ---

func TestInsertBundle_RoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	b := doiBundle("10.1/X", t0)
	require.NoError(t, s.InsertBundle(ctx, b))
	assert.Equal(t, int64(1), b.ID)

	got, err := s.Bundle(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, *b, got)

	byKey, err := s.BundlesByIdentity(ctx, "doi:10.1/x")
	require.NoError(t, err)
	require.Len(t, byKey, 1)

	byDOI, err := s.BundlesByDOI(ctx, "https://doi.org/10.1/X")
	require.NoError(t, err)
	require.Len(t, byDOI, 1)
	assert.Equal(t, b.ID, byDOI[0].ID)

	_, err = s.Bundle(ctx, 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInsertBundle_UnresolvedGetsRowIdentity(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertBundle(ctx, doiBundle("10.1/a", t0)))
	empty := &types.RawBundle{RetrievedAt: t0, Errors: []string{"document-extractor: timeout"}}
	require.NoError(t, s.InsertBundle(ctx, empty))
	assert.Equal(t, int64(2), empty.ID)

	got, err := s.BundlesByIdentity(ctx, "unresolved:2")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"document-extractor: timeout"}, got[0].Errors)
	assert.Equal(t, resolve.IdentityKey(got[0]).String(), "unresolved:2")
}

func TestInsertBundle_DuplicateIdentityAndTime(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertBundle(ctx, doiBundle("10.1/x", t0)))
	err := s.InsertBundle(ctx, doiBundle("10.1/x", t0))
	assert.ErrorIs(t, err, ErrDuplicateBundle)

	require.NoError(t, s.InsertBundle(ctx, doiBundle("10.1/x", t0.Add(time.Second))))
	all, err := s.Bundles(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestInsertBundle_ConcurrentWriters(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, s.InsertBundle(ctx, doiBundle("10.1/x", t0.Add(time.Duration(i)*time.Minute))))
		}(i)
	}
	wg.Wait()

	all, err := s.Bundles(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 8)
}

// --- records ---

func resolvedRecords(t *testing.T, s *Store) []types.CanonicalRecord {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.InsertBundle(ctx, doiBundle("10.1/x", t0)))
	require.NoError(t, s.InsertBundle(ctx, doiBundle("10.1/y", t0)))
	bundles, err := s.Bundles(ctx)
	require.NoError(t, err)
	return resolve.Resolve(bundles)
}

func TestReplaceRecords_RoundTripAndIdempotent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	fixedClock(t, t0)

	recs := resolvedRecords(t, s)
	require.NoError(t, s.ReplaceRecords(ctx, recs))

	got, err := s.Records(ctx)
	require.NoError(t, err)
	assert.Equal(t, recs, got)

	first, _ := json.Marshal(got)
	require.NoError(t, s.ReplaceRecords(ctx, recs))
	again, err := s.Records(ctx)
	require.NoError(t, err)
	second, _ := json.Marshal(again)
	assert.Equal(t, string(first), string(second))

	rec, err := s.RecordByDOI(ctx, "DOI:10.1/Y")
	require.NoError(t, err)
	assert.Equal(t, "doi:10.1/y", rec.WorkID)

	_, err = s.Record(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReplaceRecords_PreservesCreatedAtAndPrunesEmbeddings(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	fixedClock(t, t0)

	recs := resolvedRecords(t, s)
	require.NoError(t, s.ReplaceRecords(ctx, recs))
	require.NoError(t, s.PutEmbeddings(ctx, "m", map[string]types.EmbeddingVector{
		"doi:10.1/x": {Vector: []float32{1, 0}},
		"doi:10.1/y": {Vector: []float32{0, 1}},
	}))

	fixedClock(t, t0.Add(time.Hour))
	require.NoError(t, s.ReplaceRecords(ctx, recs[:1]))

	var created, updated string
	require.NoError(t, s.db.QueryRow(
		`SELECT created_at, updated_at FROM canonical_records WHERE work_id = ?`, recs[0].WorkID,
	).Scan(&created, &updated))
	assert.Equal(t, formatTime(t0), created)
	assert.Equal(t, formatTime(t0.Add(time.Hour)), updated)

	vecs, err := s.Embeddings(ctx, "m", 2)
	require.NoError(t, err)
	assert.Len(t, vecs, 1)
	assert.Contains(t, vecs, recs[0].WorkID)
}

func TestUpsertRecord_Supersedes(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	fixedClock(t, t0)

	old := types.CanonicalRecord{WorkID: "doi:10.1/x", DOI: "10.1/x", SourceBundleIDs: []int64{1}, Provenance: map[string]types.SourceName{}}
	require.NoError(t, s.UpsertRecord(ctx, old, nil))

	fixedClock(t, t0.Add(time.Hour))
	merged := types.CanonicalRecord{
		WorkID: "W1", DOI: "10.1/x", SourceBundleIDs: []int64{1, 2},
		Provenance: map[string]types.SourceName{types.FieldDOI: types.SourceRegistryA},
		Confidence: 0.7,
	}
	require.NoError(t, s.UpsertRecord(ctx, merged, []string{"doi:10.1/x"}))

	recs, err := s.Records(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, merged, recs[0])

	var created string
	require.NoError(t, s.db.QueryRow(`SELECT created_at FROM canonical_records WHERE work_id = 'W1'`).Scan(&created))
	assert.Equal(t, formatTime(t0), created)

	merged.Confidence = 1
	require.NoError(t, s.UpsertRecord(ctx, merged, nil))
	rec, err := s.Record(ctx, "W1")
	require.NoError(t, err)
	assert.Equal(t, 1.0, rec.Confidence)
}

// --- embeddings ---

func TestEmbeddings(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutEmbeddings(ctx, "hash-4", map[string]types.EmbeddingVector{
		"W1": {Vector: []float32{0.5, -1, 0, 3.25}, TextHash: "h1"},
	}))
	require.NoError(t, s.PutEmbeddings(ctx, "other", map[string]types.EmbeddingVector{"W2": {Vector: []float32{1, 2}}}))

	v, err := s.Embedding(ctx, "W1", "hash-4")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, -1, 0, 3.25}, v)

	_, err = s.Embedding(ctx, "W1", "other")
	assert.ErrorIs(t, err, ErrNotFound)

	all, err := s.Embeddings(ctx, "hash-4", 4)
	require.NoError(t, err)
	assert.Equal(t, map[string]types.EmbeddingVector{
		"W1": {Vector: []float32{0.5, -1, 0, 3.25}, TextHash: "h1"},
	}, all)

	require.NoError(t, s.PutEmbeddings(ctx, "hash-4", map[string]types.EmbeddingVector{
		"W1": {Vector: []float32{1, 1, 1, 1}, TextHash: "h2"},
	}))
	all, err = s.Embeddings(ctx, "hash-4", 4)
	require.NoError(t, err)
	assert.Equal(t, "h2", all["W1"].TextHash)

	none, err := s.Embeddings(ctx, "hash-4", 8)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestOpen_AddsTextHashToOlderEmbeddings(t *testing.T) {
	dir := t.TempDir()
	cfg := types.StoreConfig{DataDir: dir, DBFile: "old.db"}
	db, err := sql.Open("sqlite3", cfg.DBPath())
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE embeddings (
		work_id TEXT PRIMARY KEY, model TEXT NOT NULL, dim INTEGER NOT NULL,
		vector BLOB NOT NULL, updated_at TEXT NOT NULL)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO embeddings VALUES ('W1', 'm', 1, ?, 'x')`, packVector([]float32{1}))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s, err := Open(cfg)
	require.NoError(t, err)
	defer s.Close()

	vecs, err := s.Embeddings(context.Background(), "m", 1)
	require.NoError(t, err)
	assert.Equal(t, types.EmbeddingVector{Vector: []float32{1}, TextHash: ""}, vecs["W1"])

	s2, err := Open(cfg)
	require.NoError(t, err, "reopening an upgraded database")
	s2.Close()
}

func TestPackVector(t *testing.T) {
	v := []float32{1.5, -2, 0}
	b := packVector(v)
	assert.Len(t, b, 12)
	assert.Equal(t, v, unpackVector(b))
}

// --- export ---

func TestExport(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	recs := resolvedRecords(t, s)
	require.NoError(t, s.ReplaceRecords(ctx, recs))

	path, err := s.ExportYAML(ctx)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var fromYAML []types.CanonicalRecord
	require.NoError(t, yaml.Unmarshal(data, &fromYAML))
	assert.Len(t, fromYAML, 2)
	assert.Equal(t, filepath.Join(s.Dir(), "export.yaml"), path)

	path, err = s.ExportJSON(ctx)
	require.NoError(t, err)
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	var fromJSON []types.CanonicalRecord
	require.NoError(t, json.Unmarshal(data, &fromJSON))
	assert.Equal(t, recs, fromJSON)
}

func TestToCSLItem(t *testing.T) {
	item := ToCSLItem(types.CanonicalRecord{
		WorkID:  "W1",
		DOI:     "10.1/x",
		Title:   "Grid worlds",
		Authors: []string{"Ada Lovelace", "Franklin, Rosalind", "Plato", " "},
		Year:    2020,
	})
	assert.Equal(t, CSLItem{
		ID:    "W1",
		Type:  "article",
		Title: "Grid worlds",
		Author: []CSLName{
			{Given: "Ada", Family: "Lovelace"},
			{Family: "Franklin", Given: "Rosalind"},
			{Literal: "Plato"},
		},
		Issued: &CSLDate{DateParts: [][]int{{2020}}},
		DOI:    "10.1/x",
	}, item)

	assert.Nil(t, ToCSLItem(types.CanonicalRecord{WorkID: "unresolved:1"}).Issued)
}

func TestExportCSL(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	require.NoError(t, s.ReplaceRecords(ctx, resolvedRecords(t, s)))

	path, err := s.ExportCSL(ctx)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var items []CSLItem
	require.NoError(t, yaml.Unmarshal(data, &items))
	require.Len(t, items, 2)
	assert.Equal(t, "doi:10.1/x", items[0].ID)
	assert.Equal(t, "10.1/x", items[0].DOI)
}
