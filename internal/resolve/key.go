// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package resolve

import (
	"strconv"

	"github.com/pdiddy/papersearch/pkg/types"
)

// KeyKind says which identifier an identity key was derived from.
type KeyKind int

const (
	KindWorkID KeyKind = iota
	KindDOI
	KindUnresolved
)

func (k KeyKind) String() string {
	switch k {
	case KindWorkID:
		return "work_id"
	case KindDOI:
		return "doi"
	default:
		return "unresolved"
	}
}

// Key is the identity of a raw bundle. Bundles with equal keys describe
// the same work.
type Key struct {
	Kind  KeyKind
	Value string
}

// String renders the key in the form persisted in raw_bundles.work_id.
func (k Key) String() string {
	switch k.Kind {
	case KindWorkID:
		return k.Value
	case KindDOI:
		return types.WorkIDPrefixDOI + k.Value
	default:
		return types.WorkIDPrefixUnresolved + k.Value
	}
}

// IdentityKey computes the key for b: a registry work id if any fragment
// has one, else a canonical DOI, else "unresolved:<bundle id>". Fragments
// are scanned in source priority order.
func IdentityKey(b types.RawBundle) Key {
	sources := b.Sources()
	for _, src := range sources {
		if !src.IsRegistry() {
			continue
		}
		if id := CanonicalWorkID(b.Fragments[src].WorkID); id != "" {
			return Key{Kind: KindWorkID, Value: id}
		}
	}
	for _, src := range sources {
		if doi := CanonicalDOI(b.Fragments[src].DOI); doi != "" {
			return Key{Kind: KindDOI, Value: doi}
		}
	}
	return Key{Kind: KindUnresolved, Value: strconv.FormatInt(b.ID, 10)}
}

// bundleDOIs returns every canonical DOI found in b's fragments.
func bundleDOIs(b types.RawBundle) []string {
	var out []string
	for _, src := range b.Sources() {
		if doi := CanonicalDOI(b.Fragments[src].DOI); doi != "" {
			out = append(out, doi)
		}
	}
	return out
}

// bundleTitles returns every normalised fragment title in b.
func bundleTitles(b types.RawBundle) []string {
	var out []string
	for _, src := range b.Sources() {
		if t := normalizeTitle(b.Fragments[src].Title); t != "" {
			out = append(out, t)
		}
	}
	return out
}
