// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package resolve

import (
	"encoding/json"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/papersearch/pkg/types"
)

var retrieved = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func bundle(id int64, frags map[types.SourceName]types.Fragment) types.RawBundle {
	return types.RawBundle{ID: id, Fragments: frags, RetrievedAt: retrieved}
}

// --- CanonicalDOI ---

func TestCanonicalDOI(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"10.1145/ABC.123", "10.1145/abc.123"},
		{"https://doi.org/10.1/X", "10.1/x"},
		{"http://dx.doi.org/10.1/X", "10.1/x"},
		{"HTTPS://DOI.ORG/10.1/x", "10.1/x"},
		{"doi:10.1/X", "10.1/x"},
		{"DOI: 10.1/x", "10.1/x"},
		{"doi 10.1/x", "10.1/x"},
		{"  10.1/x  ", "10.1/x"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := CanonicalDOI(tt.in); got != tt.want {
				t.Errorf("CanonicalDOI(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCanonicalWorkID(t *testing.T) {
	assert.Equal(t, "W2741809807", CanonicalWorkID("https://openalex.org/W2741809807"))
	assert.Equal(t, "W2741809807", CanonicalWorkID(" W2741809807 "))
}

// --- IdentityKey ---

func TestIdentityKey(t *testing.T) {
	tests := []struct {
		name string
		b    types.RawBundle
		want string
	}{
		{
			name: "registry id wins over doi",
			b: bundle(1, map[types.SourceName]types.Fragment{
				types.SourceRegistryA: {WorkID: "https://openalex.org/W1", DOI: "10.1/x"},
				types.SourceRegistryB: {DOI: "10.1/y"},
			}),
			want: "W1",
		},
		{
			name: "doi from highest priority source",
			b: bundle(2, map[types.SourceName]types.Fragment{
				types.SourceExtractor: {DOI: "10.1/extracted"},
				types.SourceRegistryB: {DOI: "https://doi.org/10.1/X"},
			}),
			want: "doi:10.1/x",
		},
		{
			name: "work id on a non-registry source is ignored",
			b: bundle(3, map[types.SourceName]types.Fragment{
				types.SourceExtractor: {WorkID: "W9", DOI: "10.1/z"},
			}),
			want: "doi:10.1/z",
		},
		{
			name: "nothing usable",
			b:    bundle(42, map[types.SourceName]types.Fragment{types.SourceExtractor: {Title: "T"}}),
			want: "unresolved:42",
		},
		{
			name: "no fragments",
			b:    bundle(7, nil),
			want: "unresolved:7",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IdentityKey(tt.b).String(); got != tt.want {
				t.Errorf("IdentityKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

// --- Merge ---

func TestMerge_FieldPrecedenceAndProvenance(t *testing.T) {
	b1 := bundle(1, map[types.SourceName]types.Fragment{
		types.SourceExtractor: {Title: "Extracted Title", Authors: []string{"A. Extract"}, Year: 2019, DOI: "10.9/pdf"},
		types.SourceRegistryB: {DOI: "10.1/X", Year: 2020},
	})
	b2 := bundle(2, map[types.SourceName]types.Fragment{
		types.SourceRegistryA: {WorkID: "W5", Title: "Registry Title"},
	})

	rec := Merge([]types.RawBundle{b2, b1})

	assert.Equal(t, "W5", rec.WorkID)
	assert.Equal(t, "10.1/x", rec.DOI)
	assert.Equal(t, "Registry Title", rec.Title)
	assert.Equal(t, []string{"A. Extract"}, rec.Authors)
	assert.Equal(t, 2020, rec.Year)
	assert.Equal(t, []string{"10.1/x", "10.9/pdf"}, rec.AlternateDOIs)
	assert.Equal(t, []int64{1, 2}, rec.SourceBundleIDs)
	assert.Equal(t, map[string]types.SourceName{
		types.FieldDOI:     types.SourceRegistryB,
		types.FieldTitle:   types.SourceRegistryA,
		types.FieldAuthors: types.SourceExtractor,
		types.FieldYear:    types.SourceRegistryB,
	}, rec.Provenance)
	assert.InDelta(t, 1.0, rec.Confidence, 1e-12)
	assert.Len(t, rec.MergedFragments, 3)
}

func TestMerge_LastSeenFragmentPerSource(t *testing.T) {
	b1 := bundle(1, map[types.SourceName]types.Fragment{types.SourceRegistryB: {DOI: "10.1/x", Abstract: "old"}})
	b2 := bundle(2, map[types.SourceName]types.Fragment{types.SourceRegistryB: {DOI: "10.1/x", Abstract: "new"}})

	rec := Merge([]types.RawBundle{b2, b1})
	assert.Equal(t, "new", rec.MergedFragments[types.SourceRegistryB].Abstract)
}

func TestMerge_WorkIDFallbacks(t *testing.T) {
	full := bundle(3, map[types.SourceName]types.Fragment{
		types.SourceExtractor: {Title: "Grid Worlds", Authors: []string{"Ada Lovelace"}, Year: 2021},
	})
	rec := Merge([]types.RawBundle{full})
	assert.Equal(t, SyntheticID("Grid Worlds", []string{"Ada Lovelace"}, 2021), rec.WorkID)
	assert.Contains(t, rec.WorkID, types.WorkIDPrefixSynthetic)
	assert.InDelta(t, 0.3, rec.Confidence, 1e-12)

	noYear := bundle(4, map[types.SourceName]types.Fragment{
		types.SourceExtractor: {Title: "Grid Worlds", Authors: []string{"Ada Lovelace"}},
	})
	assert.Equal(t, "unresolved:4", Merge([]types.RawBundle{noYear}).WorkID)
}

func TestMerge_EmptyBundle(t *testing.T) {
	rec := Merge([]types.RawBundle{{ID: 9, Errors: []string{"registry-a: HTTP 500"}}})
	assert.Equal(t, "unresolved:9", rec.WorkID)
	assert.Equal(t, 0.0, rec.Confidence)
	assert.Empty(t, rec.Provenance)
	assert.NotNil(t, rec.Provenance)
	assert.Equal(t, []int64{9}, rec.SourceBundleIDs)
}

func TestSyntheticID_IgnoresAuthorOrderAndCase(t *testing.T) {
	a := SyntheticID("Grid Worlds for RL", []string{"Ada Lovelace", "Turing, Alan"}, 2020)
	b := SyntheticID("grid worlds, for rl!", []string{"A. Turing", "lovelace"}, 2020)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, SyntheticID("Grid Worlds for RL", []string{"Ada Lovelace"}, 2021))
	assert.Empty(t, SyntheticID("", []string{"x"}, 2020))
}

// --- Confidence ---

func TestConfidence(t *testing.T) {
	tests := []struct {
		name string
		rec  types.CanonicalRecord
		want float64
	}{
		{"empty", types.CanonicalRecord{WorkID: "unresolved:1"}, 0},
		{"doi title authors", types.CanonicalRecord{WorkID: "doi:10.1/x", DOI: "10.1/x", Title: "T", Authors: []string{"A"}}, 0.7},
		{"everything", types.CanonicalRecord{WorkID: "W1", DOI: "10.1/x", Title: "T", Authors: []string{"A"}}, 1.0},
		{"registry only", types.CanonicalRecord{WorkID: "W1"}, 0.3},
		{"synthetic id is not registry", types.CanonicalRecord{WorkID: "syn:abc", Title: "T"}, 0.2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Confidence(tt.rec); got != tt.want {
				t.Errorf("Confidence() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConfidence_MonotonicOnDOIAddition(t *testing.T) {
	without := bundle(1, map[types.SourceName]types.Fragment{
		types.SourceExtractor: {Title: "T", Authors: []string{"A B"}},
	})
	with := bundle(1, map[types.SourceName]types.Fragment{
		types.SourceExtractor: {Title: "T", Authors: []string{"A B"}, DOI: "10.1/new"},
	})
	before := Resolve([]types.RawBundle{without})[0].Confidence
	after := Resolve([]types.RawBundle{with})[0].Confidence
	assert.GreaterOrEqual(t, after, before)
}

// --- Resolve ---

func scenarioBundles() []types.RawBundle {
	return []types.RawBundle{
		bundle(1, map[types.SourceName]types.Fragment{
			types.SourceRegistryB: {DOI: "10.1/x", Title: "Grid Worlds for RL", Authors: []string{"Jane Smith"}},
		}),
		bundle(2, map[types.SourceName]types.Fragment{
			types.SourceExtractor: {Title: "Grid Worlds for RL", Authors: []string{"J. Smith", "K. Jones"}, Year: 2020},
		}),
	}
}

func TestResolve_DOIAndTitleSurnameJoin(t *testing.T) {
	records := Resolve(scenarioBundles())
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "doi:10.1/x", rec.WorkID)
	assert.Equal(t, []string{"10.1/x"}, rec.AlternateDOIs)
	assert.Equal(t, []int64{1, 2}, rec.SourceBundleIDs)
	assert.Equal(t, 0.7, rec.Confidence)
	assert.Equal(t, 2020, rec.Year)
	assert.Equal(t, types.SourceExtractor, rec.Provenance[types.FieldYear])
}

func TestResolve_TitleJoinRequiresSharedSurname(t *testing.T) {
	bundles := scenarioBundles()
	bundles[1].Fragments[types.SourceExtractor] = types.Fragment{
		Title: "Grid Worlds for RL", Authors: []string{"K. Jones"}, Year: 2020,
	}
	assert.Len(t, Resolve(bundles), 2)
}

func TestResolve_AmbiguousTitleJoinStaysSeparate(t *testing.T) {
	bundles := append(scenarioBundles(), bundle(3, map[types.SourceName]types.Fragment{
		types.SourceRegistryB: {DOI: "10.1/other", Title: "Grid Worlds for RL", Authors: []string{"Jane Smith"}},
	}))
	records := Resolve(bundles)
	require.Len(t, records, 3)
	for _, r := range records {
		if r.Title != "" && len(r.SourceBundleIDs) > 1 {
			t.Fatalf("unexpected merge into %s: %v", r.WorkID, r.SourceBundleIDs)
		}
	}
}

func TestResolve_DOIGroupFoldsIntoRegistryGroup(t *testing.T) {
	records := Resolve([]types.RawBundle{
		bundle(1, map[types.SourceName]types.Fragment{types.SourceRegistryA: {WorkID: "W1", DOI: "10.1/X"}}),
		bundle(2, map[types.SourceName]types.Fragment{types.SourceRegistryB: {DOI: "doi:10.1/x", Title: "T"}}),
	})
	require.Len(t, records, 1)
	assert.Equal(t, "W1", records[0].WorkID)
	assert.Equal(t, []int64{1, 2}, records[0].SourceBundleIDs)
}

func TestResolve_OrphansGroupBySyntheticKey(t *testing.T) {
	frag := types.Fragment{Title: "Tabular Q-Learning", Authors: []string{"Chris Watkins"}, Year: 1989}
	records := Resolve([]types.RawBundle{
		bundle(5, map[types.SourceName]types.Fragment{types.SourceExtractor: frag}),
		bundle(6, map[types.SourceName]types.Fragment{types.SourceExtractor: frag}),
		bundle(7, nil),
	})
	require.Len(t, records, 2)
	assert.Equal(t, SyntheticID(frag.Title, frag.Authors, frag.Year), records[0].WorkID)
	assert.Equal(t, []int64{5, 6}, records[0].SourceBundleIDs)
	assert.Equal(t, "unresolved:7", records[1].WorkID)
}

func corpus() []types.RawBundle {
	return append(scenarioBundles(),
		bundle(3, map[types.SourceName]types.Fragment{types.SourceRegistryA: {WorkID: "W1", DOI: "10.2/a", Title: "A"}}),
		bundle(4, map[types.SourceName]types.Fragment{types.SourceRegistryB: {DOI: "https://doi.org/10.2/A", Year: 2001}}),
		bundle(5, map[types.SourceName]types.Fragment{types.SourceExtractor: {Title: "Orphan", Authors: []string{"X Y"}, Year: 1999}}),
		bundle(6, nil),
		bundle(7, map[types.SourceName]types.Fragment{types.SourceRegistryA: {WorkID: "W2"}}),
		bundle(8, map[types.SourceName]types.Fragment{types.SourceRegistryA: {WorkID: "https://openalex.org/W2", Title: "Second"}}),
	)
}

func TestResolve_DeterministicUnderPermutation(t *testing.T) {
	base := corpus()
	want, err := json.Marshal(Resolve(base))
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		shuffled := append([]types.RawBundle(nil), base...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		got, err := json.Marshal(Resolve(shuffled))
		require.NoError(t, err)
		assert.Equal(t, string(want), string(got))
	}
}

func TestResolve_PartitionInvariant(t *testing.T) {
	base := corpus()
	seen := map[int64]int{}
	for _, r := range Resolve(base) {
		require.NotEmpty(t, r.SourceBundleIDs)
		for _, id := range r.SourceBundleIDs {
			seen[id]++
		}
	}
	require.Len(t, seen, len(base))
	for _, b := range base {
		assert.Equal(t, 1, seen[b.ID], "bundle %d", b.ID)
	}
}

// --- Resolver ---

func TestResolver_MatchesBatchResolve(t *testing.T) {
	base := corpus()
	r := NewResolver(nil)
	for _, b := range base {
		_, err := r.Add(b)
		require.NoError(t, err)
	}

	want, _ := json.Marshal(Resolve(base))
	got, _ := json.Marshal(r.Records())
	assert.Equal(t, string(want), string(got))
}

func TestResolver_AddReportsSuperseded(t *testing.T) {
	r := NewResolver([]types.RawBundle{
		bundle(2, map[types.SourceName]types.Fragment{types.SourceRegistryB: {DOI: "10.1/x", Title: "T"}}),
	})

	upd, err := r.Add(bundle(3, map[types.SourceName]types.Fragment{types.SourceRegistryA: {WorkID: "W7", DOI: "10.1/x"}}))
	require.NoError(t, err)
	assert.Equal(t, "W7", upd.Record.WorkID)
	assert.Equal(t, []int64{2, 3}, upd.Record.SourceBundleIDs)
	assert.Equal(t, []string{"doi:10.1/x"}, upd.Superseded)
	assert.Empty(t, upd.Rebuilt)

	rec, ok := r.Lookup(2)
	require.True(t, ok)
	assert.Equal(t, "W7", rec.WorkID)
}

func TestResolver_DuplicateBundle(t *testing.T) {
	r := NewResolver(nil)
	b := bundle(1, map[types.SourceName]types.Fragment{types.SourceRegistryB: {DOI: "10.1/x"}})
	_, err := r.Add(b)
	require.NoError(t, err)
	_, err = r.Add(b)
	assert.ErrorIs(t, err, ErrDuplicateBundle)
}

func TestResolver_ConcurrentAddsSameWork(t *testing.T) {
	r := NewResolver(nil)
	done := make(chan error, 10)
	for i := int64(1); i <= 10; i++ {
		go func(id int64) {
			_, err := r.Add(bundle(id, map[types.SourceName]types.Fragment{types.SourceRegistryB: {DOI: "10.5/same"}}))
			done <- err
		}(i)
	}
	for i := 0; i < 10; i++ {
		require.NoError(t, <-done)
	}
	records := r.Records()
	require.Len(t, records, 1)
	assert.Len(t, records[0].SourceBundleIDs, 10)
}
