// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package resolve

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	doiURLPrefix   = regexp.MustCompile(`(?i)^https?://(dx\.)?doi\.org/`)
	doiLabelPrefix = regexp.MustCompile(`(?i)^doi(:\s*|\s+)`)
)

// openAlexPrefix is stripped from registry ids so that
// "https://openalex.org/W123" and "W123" resolve to the same work.
const openAlexPrefix = "https://openalex.org/"

// CanonicalDOI reduces any DOI-like string to a bare lowercase DOI:
// "https://doi.org/10.1/X", "doi:10.1/X" and "10.1/x" all yield "10.1/x".
func CanonicalDOI(raw string) string {
	s := strings.TrimSpace(raw)
	s = doiURLPrefix.ReplaceAllString(s, "")
	s = doiLabelPrefix.ReplaceAllString(s, "")
	return strings.ToLower(strings.TrimSpace(s))
}

// CanonicalWorkID strips URL prefixes from a registry-native work id.
func CanonicalWorkID(raw string) string {
	s := strings.TrimSpace(raw)
	if len(s) >= len(openAlexPrefix) && strings.EqualFold(s[:len(openAlexPrefix)], openAlexPrefix) {
		s = s[len(openAlexPrefix):]
	}
	return s
}

// normalizeTitle lowercases a title and collapses every run of
// non-alphanumeric characters into a single space.
func normalizeTitle(title string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
			continue
		}
		space = true
	}
	return b.String()
}

// surname extracts a lowercase family name from "Family, Given" or
// "Given Family" forms.
func surname(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if i := strings.Index(name, ","); i >= 0 {
		name = name[:i]
	} else if fields := strings.Fields(name); len(fields) > 0 {
		name = fields[len(fields)-1]
	}
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// surnames returns the distinct surnames of authors in first-seen order.
func surnames(authors []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, a := range authors {
		s := surname(a)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
