// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package acquire

import (
	"regexp"
	"strings"

	"github.com/pdiddy/papersearch/internal/resolve"
)

// IdentifierType classifies an input identifier.
type IdentifierType int

const (
	TypeUnknown IdentifierType = iota
	TypeDOI
	TypeWorkID
	TypeArxiv
)

func (t IdentifierType) String() string {
	switch t {
	case TypeDOI:
		return "doi"
	case TypeWorkID:
		return "work-id"
	case TypeArxiv:
		return "arxiv"
	default:
		return "unknown"
	}
}

var (
	// arxivPattern matches "2301.07041", "arXiv:2301.07041", "2301.07041v2".
	arxivPattern = regexp.MustCompile(`(?i)^(?:arxiv:)?(\d{4}\.\d{4,5}(?:v\d+)?)$`)

	doiPattern = regexp.MustCompile(`^10\.\d{4,9}/\S+$`)

	// workIDPattern matches registry work ids such as "W2741809807".
	workIDPattern = regexp.MustCompile(`^W\d+$`)
)

// Classify determines the identifier type and returns its canonical form.
// DOIs may carry a resolver URL or "doi:" label; work ids may carry the
// registry URL prefix.
func Classify(identifier string) (IdentifierType, string) {
	identifier = strings.TrimSpace(identifier)

	if m := arxivPattern.FindStringSubmatch(identifier); m != nil {
		return TypeArxiv, m[1]
	}
	if doi := resolve.CanonicalDOI(identifier); doiPattern.MatchString(doi) {
		return TypeDOI, doi
	}
	if id := resolve.CanonicalWorkID(identifier); workIDPattern.MatchString(strings.ToUpper(id)) {
		return TypeWorkID, strings.ToUpper(id)
	}
	return TypeUnknown, identifier
}
