// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/papersearch/internal/rank"
	"github.com/pdiddy/papersearch/internal/store"
	"github.com/pdiddy/papersearch/pkg/types"
)

const bundlesYAML = `- candidate_doi: 10.1/x
  retrieved_at: 2025-01-02T03:04:05Z
  source_fragments:
    registry-b:
      doi: 10.1/X
      title: Grid worlds
      authors: [Ada Lovelace]
- id: 99
  retrieved_at: 2025-01-02T03:04:05Z
  source_fragments:
    document-extractor:
      title: Grid Worlds
      authors: [A. Lovelace]
  errors:
    - "registry-a: HTTP 404"
`

func TestReadAndImportBundles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bundles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(bundlesYAML), 0o644))

	bundles, err := readBundles(path)
	require.NoError(t, err)
	require.Len(t, bundles, 2)
	assert.Equal(t, "10.1/X", bundles[0].Fragments[types.SourceRegistryB].DOI)
	assert.Equal(t, []string{"registry-a: HTTP 404"}, bundles[1].Errors)

	st, err := store.Open(types.StoreConfig{DataDir: dir, DBFile: "cli.db"})
	require.NoError(t, err)
	defer st.Close()

	var out bytes.Buffer
	stored, skipped, err := importBundles(context.Background(), st, bundles, &out)
	require.NoError(t, err)
	assert.Equal(t, 2, stored)
	assert.Equal(t, 0, skipped)

	stored, skipped, err = importBundles(context.Background(), st, bundles[:1], &out)
	require.NoError(t, err)
	assert.Equal(t, 0, stored)
	assert.Equal(t, 1, skipped)
	assert.Contains(t, out.String(), "skipped:")

	all, err := st.Bundles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, []int64{all[0].ID, all[1].ID}, "imported ids are reassigned")
}

func TestReadBibTeXAndImport(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "refs.bib")
	require.NoError(t, os.WriteFile(path, []byte(`@article{a,
  title = {Grid Worlds},
  author = {Ada Lovelace and Charles Babbage},
  year = {2020},
  doi = {10.1/X}
}
@inproceedings{b,
  title = {Grid worlds},
  author = {A. Lovelace},
  year = {2020}
}`), 0o644))

	bundles, err := readBibTeX(path)
	require.NoError(t, err)
	require.Len(t, bundles, 2)
	assert.Equal(t, "10.1/x", bundles[0].CandidateDOI)
	assert.Equal(t, []string{"Ada Lovelace", "Charles Babbage"},
		bundles[0].Fragments[types.SourceExtractor].Authors)

	st, err := store.Open(types.StoreConfig{DataDir: dir, DBFile: "bib.db"})
	require.NoError(t, err)
	defer st.Close()

	stored, skipped, err := importBundles(context.Background(), st, bundles, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, 2, stored)
	assert.Equal(t, 0, skipped)

	_, err = readBibTeX(filepath.Join(dir, "missing.bib"))
	assert.Error(t, err)
}

func TestReadBundles_Errors(t *testing.T) {
	_, err := readBundles(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{not: [a list"), 0o644))
	_, err = readBundles(path)
	assert.Error(t, err)
}

func TestFormatSearchOutput(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, formatSearchOutput(&buf, nil, false))
	assert.Equal(t, "No results found.\n", buf.String())

	buf.Reset()
	results := []rank.Result{{
		Record:     types.CanonicalRecord{WorkID: "W1", Title: strings.Repeat("long title ", 10), Year: 2020},
		FinalScore: 0.75,
	}}
	require.NoError(t, formatSearchOutput(&buf, results, false))
	assert.Contains(t, buf.String(), "W1")
	assert.Contains(t, buf.String(), "...")
	assert.Contains(t, buf.String(), "1 results")

	buf.Reset()
	require.NoError(t, formatSearchOutput(&buf, results, true))
	assert.Contains(t, buf.String(), `"final_score": 0.75`)
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, types.DefaultConfig().Ranker, cfg.Ranker)
	assert.Equal(t, types.EmbedHash, cfg.Embed.Provider)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab...", truncate("abcdefgh", 5))
}
