// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package lexical

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"go.yaml.in/yaml/v3"
)

// Synonyms maps a canonical term to the phrases that should be rewritten
// to it before tokenizing.
type Synonyms map[string][]string

// DefaultSynonyms returns the built-in table.
func DefaultSynonyms() Synonyms {
	return Synonyms{
		"gridworld": {
			"grid world",
			"grid-world",
			"grid-based environment",
			"grid environment",
			"grid-based",
			"2d grid",
			"2-d grid",
			"grid navigation",
			"grid mdp",
			"tabular grid",
			"cell-based environment",
			"discrete grid",
			"spatial grid",
		},
		"reinforcement_learning": {
			"reinforcement learning",
			"rl",
			"model-free rl",
			"model-based rl",
		},
	}
}

// LoadSynonyms reads a synonym table from a YAML file of the form
//
//	gridworld:
//	  - grid world
//	  - grid-world
func LoadSynonyms(path string) (Synonyms, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading synonyms %s: %w", path, err)
	}
	var s Synonyms
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing synonyms %s: %w", path, err)
	}
	return s, nil
}

type rewrite struct {
	pattern   *regexp.Regexp
	canonical string
}

// Normalizer rewrites synonym phrases to their canonical term. The same
// Normalizer must be applied to documents and queries.
type Normalizer struct {
	rewrites []rewrite
}

// NewNormalizer compiles one case-insensitive whole-word pattern per
// variant. Canonical terms are applied in sorted order and, within a term,
// longer variants first so "model-free rl" wins over "rl".
func NewNormalizer(s Synonyms) *Normalizer {
	canonicals := make([]string, 0, len(s))
	for c := range s {
		canonicals = append(canonicals, c)
	}
	sort.Strings(canonicals)

	n := &Normalizer{}
	for _, c := range canonicals {
		variants := append([]string(nil), s[c]...)
		sort.SliceStable(variants, func(i, j int) bool { return len(variants[i]) > len(variants[j]) })
		for _, v := range variants {
			v = strings.TrimSpace(strings.ToLower(v))
			if v == "" {
				continue
			}
			expr := strings.ReplaceAll(regexp.QuoteMeta(v), " ", `\s+`)
			n.rewrites = append(n.rewrites, rewrite{
				pattern:   regexp.MustCompile(`(?i)\b` + expr + `\b`),
				canonical: strings.ToLower(c),
			})
		}
	}
	return n
}

// Normalize lowercases text and applies every rewrite.
func (n *Normalizer) Normalize(text string) string {
	text = strings.ToLower(text)
	if n == nil {
		return text
	}
	for _, r := range n.rewrites {
		text = r.pattern.ReplaceAllLiteralString(text, r.canonical)
	}
	return text
}
