// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package resolve

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"

	"github.com/pdiddy/papersearch/pkg/types"
)

// Merge folds bundles that share an identity into one canonical record.
// Each field is taken from the first non-empty value when scanning sources
// in priority order and, within a source, bundles in ascending id order.
// The work id is assigned after all fields are merged.
func Merge(bundles []types.RawBundle) types.CanonicalRecord {
	sorted := sortedBundles(bundles)

	rec := types.CanonicalRecord{
		Provenance:      map[string]types.SourceName{},
		SourceBundleIDs: make([]int64, 0, len(sorted)),
	}

	var sources []types.SourceName
	seenSource := map[types.SourceName]bool{}
	alternates := map[string]bool{}
	for _, b := range sorted {
		rec.SourceBundleIDs = append(rec.SourceBundleIDs, b.ID)
		for src, f := range b.Fragments {
			if !seenSource[src] {
				seenSource[src] = true
				sources = append(sources, src)
			}
			if doi := CanonicalDOI(f.DOI); doi != "" {
				alternates[doi] = true
			}
		}
	}
	types.SortSources(sources)

	var registryID string
	for _, src := range sources {
		for _, b := range sorted {
			f, ok := b.Fragments[src]
			if !ok {
				continue
			}
			if registryID == "" && src.IsRegistry() {
				registryID = CanonicalWorkID(f.WorkID)
			}
			if rec.DOI == "" {
				if doi := CanonicalDOI(f.DOI); doi != "" {
					rec.DOI = doi
					rec.Provenance[types.FieldDOI] = src
				}
			}
			if rec.Title == "" && strings.TrimSpace(f.Title) != "" {
				rec.Title = strings.TrimSpace(f.Title)
				rec.Provenance[types.FieldTitle] = src
			}
			if len(rec.Authors) == 0 && len(f.Authors) > 0 {
				rec.Authors = append([]string(nil), f.Authors...)
				rec.Provenance[types.FieldAuthors] = src
			}
			if rec.Year == 0 && f.Year > 0 {
				rec.Year = f.Year
				rec.Provenance[types.FieldYear] = src
			}
		}
	}

	if len(alternates) > 0 {
		rec.AlternateDOIs = make([]string, 0, len(alternates))
		for doi := range alternates {
			rec.AlternateDOIs = append(rec.AlternateDOIs, doi)
		}
		sort.Strings(rec.AlternateDOIs)
	}

	// Last-seen fragment per source; bundles are in ascending id order.
	for _, b := range sorted {
		for src, f := range b.Fragments {
			if rec.MergedFragments == nil {
				rec.MergedFragments = map[types.SourceName]types.Fragment{}
			}
			rec.MergedFragments[src] = f
		}
	}

	switch {
	case registryID != "":
		rec.WorkID = registryID
	case rec.DOI != "":
		rec.WorkID = types.WorkIDPrefixDOI + rec.DOI
	default:
		if syn := SyntheticID(rec.Title, rec.Authors, rec.Year); syn != "" {
			rec.WorkID = syn
		} else if len(sorted) > 0 {
			rec.WorkID = types.WorkIDPrefixUnresolved + strconv.FormatInt(sorted[0].ID, 10)
		}
	}

	rec.Confidence = Confidence(rec)
	return rec
}

// Confidence scores how complete a record is:
// 0.4 for a DOI, 0.3 for a registry work id, 0.2 for a title and 0.1 for
// authors, capped at 1. It is a completeness signal only.
func Confidence(r types.CanonicalRecord) float64 {
	tenths := 0
	if r.DOI != "" {
		tenths += 4
	}
	if r.HasRegistryID() {
		tenths += 3
	}
	if r.Title != "" {
		tenths += 2
	}
	if len(r.Authors) > 0 {
		tenths++
	}
	if tenths > 10 {
		tenths = 10
	}
	return float64(tenths) / 10
}

// SyntheticID derives a stable id from the normalised title, sorted author
// surnames and year. It returns "" unless all three are present.
func SyntheticID(title string, authors []string, year int) string {
	key := syntheticKey(title, authors, year)
	if key == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(key))
	return types.WorkIDPrefixSynthetic + hex.EncodeToString(sum[:8])
}

func syntheticKey(title string, authors []string, year int) string {
	t := normalizeTitle(title)
	names := surnames(authors)
	if t == "" || len(names) == 0 || year <= 0 {
		return ""
	}
	sort.Strings(names)
	return t + "|" + strings.Join(names, ",") + "|" + strconv.Itoa(year)
}

func sortedBundles(bundles []types.RawBundle) []types.RawBundle {
	sorted := append([]types.RawBundle(nil), bundles...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	return sorted
}
