// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package resolve groups raw bundles that describe the same scholarly work
// and merges each group into a canonical record with per-field provenance
// and a confidence score.
//
// Grouping is an exact partition. Bundles first group by identity key
// (registry work id, then canonical DOI, then "unresolved:<id>"). Two
// unique-match folds follow: a DOI group joins the single registry group
// that lists the same DOI, and an orphan bundle joins the single group with
// the same normalised title and a shared author surname. Orphans left over
// group by their synthetic title/surname/year key. No similarity scores are
// computed, so the result depends only on the set of bundles.
package resolve

import (
	"errors"
	"slices"
	"sort"
	"sync"

	"github.com/pdiddy/papersearch/pkg/types"
)

// ErrDuplicateBundle is returned when a bundle id is resolved twice.
var ErrDuplicateBundle = errors.New("bundle already resolved")

// Resolve partitions bundles into works and merges each one. Records are
// sorted by work id and do not depend on input order.
func Resolve(bundles []types.RawBundle) []types.CanonicalRecord {
	groups := partition(bundles)
	records := make([]types.CanonicalRecord, 0, len(groups))
	for _, g := range groups {
		records = append(records, Merge(g))
	}
	sortRecords(records)
	return records
}

func sortRecords(records []types.CanonicalRecord) {
	sort.Slice(records, func(i, j int) bool { return records[i].WorkID < records[j].WorkID })
}

// summary is the part of a merged group the title join needs.
type summary struct {
	title    string
	surnames map[string]bool
}

func summarize(bundles []types.RawBundle) summary {
	rec := Merge(bundles)
	s := summary{title: normalizeTitle(rec.Title), surnames: map[string]bool{}}
	for _, n := range surnames(rec.Authors) {
		s.surnames[n] = true
	}
	return s
}

func (s summary) matches(o summary) bool {
	if s.title == "" || s.title != o.title {
		return false
	}
	for n := range s.surnames {
		if o.surnames[n] {
			return true
		}
	}
	return false
}

// partition splits bundles into groups of the same work. Groups come back
// ordered by their smallest bundle id.
func partition(bundles []types.RawBundle) [][]types.RawBundle {
	sorted := sortedBundles(bundles)

	byKey := map[Key][]types.RawBundle{}
	var keys []Key
	for _, b := range sorted {
		k := IdentityKey(b)
		if _, ok := byKey[k]; !ok {
			keys = append(keys, k)
		}
		byKey[k] = append(byKey[k], b)
	}

	// DOI groups fold into the only registry group that carries the DOI.
	doiOwners := map[string][]Key{}
	for _, k := range keys {
		if k.Kind != KindWorkID {
			continue
		}
		seen := map[string]bool{}
		for _, b := range byKey[k] {
			for _, doi := range bundleDOIs(b) {
				if !seen[doi] {
					seen[doi] = true
					doiOwners[doi] = append(doiOwners[doi], k)
				}
			}
		}
	}
	for _, k := range keys {
		if k.Kind != KindDOI {
			continue
		}
		if owners := doiOwners[k.Value]; len(owners) == 1 {
			byKey[owners[0]] = append(byKey[owners[0]], byKey[k]...)
			delete(byKey, k)
		}
	}

	// Orphans fold into the only identified group with the same title and
	// a shared surname. Summaries are taken before any orphan folds.
	var anchored []Key
	summaries := map[Key]summary{}
	for _, k := range keys {
		if _, ok := byKey[k]; ok && k.Kind != KindUnresolved {
			anchored = append(anchored, k)
			summaries[k] = summarize(byKey[k])
		}
	}
	var leftovers []types.RawBundle
	for _, k := range keys {
		if k.Kind != KindUnresolved {
			continue
		}
		orphan := byKey[k]
		delete(byKey, k)
		s := summarize(orphan)
		var match []Key
		for _, a := range anchored {
			if s.matches(summaries[a]) {
				match = append(match, a)
			}
		}
		if len(match) == 1 {
			byKey[match[0]] = append(byKey[match[0]], orphan...)
			continue
		}
		leftovers = append(leftovers, orphan...)
	}

	groups := make([][]types.RawBundle, 0, len(byKey)+len(leftovers))
	for _, k := range keys {
		if g, ok := byKey[k]; ok {
			groups = append(groups, sortedBundles(g))
		}
	}

	// Remaining orphans group by synthetic key; incomplete ones stay alone.
	bySynthetic := map[string][]types.RawBundle{}
	var synKeys []string
	for _, b := range leftovers {
		rec := Merge([]types.RawBundle{b})
		sk := syntheticKey(rec.Title, rec.Authors, rec.Year)
		if sk == "" {
			groups = append(groups, []types.RawBundle{b})
			continue
		}
		if _, ok := bySynthetic[sk]; !ok {
			synKeys = append(synKeys, sk)
		}
		bySynthetic[sk] = append(bySynthetic[sk], b)
	}
	for _, sk := range synKeys {
		groups = append(groups, bySynthetic[sk])
	}

	sort.SliceStable(groups, func(i, j int) bool { return groups[i][0].ID < groups[j][0].ID })
	return groups
}

// Update describes the effect of adding one bundle incrementally.
type Update struct {
	// Record is the canonical record that now contains the bundle.
	Record types.CanonicalRecord

	// Rebuilt holds the other records that were re-derived alongside
	// Record. Their contents may have changed.
	Rebuilt []types.CanonicalRecord

	// Superseded lists work ids whose records were absorbed or renamed and
	// no longer exist.
	Superseded []string
}

// Resolver maintains canonical records incrementally. Add holds an
// exclusive lock for the whole merge of one bundle, so two bundles of the
// same work can never produce two records.
type Resolver struct {
	mu sync.Mutex

	groups  map[string][]types.RawBundle // work id -> bundles
	records map[string]types.CanonicalRecord
	bundles map[int64]string // bundle id -> work id

	byKey   map[string]map[string]bool // identity key -> work ids
	byDOI   map[string]map[string]bool
	byTitle map[string]map[string]bool
}

// NewResolver seeds a resolver with already stored bundles.
func NewResolver(bundles []types.RawBundle) *Resolver {
	r := &Resolver{
		groups:  map[string][]types.RawBundle{},
		records: map[string]types.CanonicalRecord{},
		bundles: map[int64]string{},
		byKey:   map[string]map[string]bool{},
		byDOI:   map[string]map[string]bool{},
		byTitle: map[string]map[string]bool{},
	}
	for _, g := range partition(bundles) {
		r.insert(g)
	}
	return r
}

// Add merges b into the record it belongs to, creating one if needed.
// Records that b causes to merge are reported in Update.Superseded.
func (r *Resolver) Add(b types.RawBundle) (Update, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.bundles[b.ID]; ok {
		return Update{}, ErrDuplicateBundle
	}

	related := r.related(b)
	candidates := []types.RawBundle{b}
	for _, id := range related {
		candidates = append(candidates, r.groups[id]...)
	}
	for _, id := range related {
		r.remove(id)
	}

	var upd Update
	present := map[string]bool{}
	for _, g := range partition(candidates) {
		rec := r.insert(g)
		present[rec.WorkID] = true
		if slices.ContainsFunc(g, func(m types.RawBundle) bool { return m.ID == b.ID }) {
			upd.Record = rec
		} else {
			upd.Rebuilt = append(upd.Rebuilt, rec)
		}
	}
	for _, id := range related {
		if !present[id] {
			upd.Superseded = append(upd.Superseded, id)
		}
	}
	return upd, nil
}

// Records returns a snapshot of every record sorted by work id.
func (r *Resolver) Records() []types.CanonicalRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]types.CanonicalRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	sortRecords(out)
	return out
}

// Lookup returns the record holding the given bundle id.
func (r *Resolver) Lookup(bundleID int64) (types.CanonicalRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.bundles[bundleID]
	if !ok {
		return types.CanonicalRecord{}, false
	}
	return r.records[id], true
}

// related walks the key, DOI and title indexes outward from b and returns
// the sorted work ids of every group the partition could join with it.
func (r *Resolver) related(b types.RawBundle) []string {
	found := map[string]bool{}
	queue := []types.RawBundle{b}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		keys, dois, titles := links(cur)
		var hits []string
		for _, k := range keys {
			hits = appendSet(hits, r.byKey[k])
		}
		for _, d := range dois {
			hits = appendSet(hits, r.byDOI[d])
		}
		for _, t := range titles {
			hits = appendSet(hits, r.byTitle[t])
		}
		for _, id := range hits {
			if found[id] {
				continue
			}
			found[id] = true
			queue = append(queue, r.groups[id]...)
		}
	}
	ids := make([]string, 0, len(found))
	for id := range found {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Resolver) insert(g []types.RawBundle) types.CanonicalRecord {
	rec := Merge(g)
	r.groups[rec.WorkID] = g
	r.records[rec.WorkID] = rec
	for _, b := range g {
		r.bundles[b.ID] = rec.WorkID
		keys, dois, titles := links(b)
		for _, k := range keys {
			addIndex(r.byKey, k, rec.WorkID)
		}
		for _, d := range dois {
			addIndex(r.byDOI, d, rec.WorkID)
		}
		for _, t := range titles {
			addIndex(r.byTitle, t, rec.WorkID)
		}
	}
	return rec
}

func (r *Resolver) remove(workID string) {
	for _, b := range r.groups[workID] {
		delete(r.bundles, b.ID)
		keys, dois, titles := links(b)
		for _, k := range keys {
			dropIndex(r.byKey, k, workID)
		}
		for _, d := range dois {
			dropIndex(r.byDOI, d, workID)
		}
		for _, t := range titles {
			dropIndex(r.byTitle, t, workID)
		}
	}
	delete(r.groups, workID)
	delete(r.records, workID)
}

// links lists the index entries a bundle participates in.
func links(b types.RawBundle) (keys, dois, titles []string) {
	return []string{IdentityKey(b).String()}, bundleDOIs(b), bundleTitles(b)
}

func addIndex(idx map[string]map[string]bool, k, workID string) {
	if idx[k] == nil {
		idx[k] = map[string]bool{}
	}
	idx[k][workID] = true
}

func dropIndex(idx map[string]map[string]bool, k, workID string) {
	delete(idx[k], workID)
	if len(idx[k]) == 0 {
		delete(idx, k)
	}
}

func appendSet(dst []string, set map[string]bool) []string {
	for id := range set {
		dst = append(dst, id)
	}
	return dst
}
