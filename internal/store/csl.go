// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/papersearch/pkg/types"
)

// CSLItem is a bibliography entry in CSL-YAML form, readable by Pandoc
// and reference managers.
type CSLItem struct {
	ID     string    `yaml:"id"`
	Type   string    `yaml:"type"`
	Title  string    `yaml:"title,omitempty"`
	Author []CSLName `yaml:"author,omitempty"`
	Issued *CSLDate  `yaml:"issued,omitempty"`
	DOI    string    `yaml:"DOI,omitempty"`
}

// CSLName is a person's name in CSL form.
type CSLName struct {
	Family  string `yaml:"family,omitempty"`
	Given   string `yaml:"given,omitempty"`
	Literal string `yaml:"literal,omitempty"`
}

// CSLDate is a CSL date given as date-parts.
type CSLDate struct {
	DateParts [][]int `yaml:"date-parts"`
}

// ExportCSL writes every canonical record to <dir>/export.csl.yaml and
// returns the path.
func (s *Store) ExportCSL(ctx context.Context) (string, error) {
	recs, err := s.Records(ctx)
	if err != nil {
		return "", err
	}
	items := make([]CSLItem, len(recs))
	for i, rec := range recs {
		items[i] = ToCSLItem(rec)
	}
	data, err := yaml.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("marshaling CSL: %w", err)
	}
	path := filepath.Join(s.dir, "export.csl.yaml")
	return path, os.WriteFile(path, data, 0o644)
}

// ToCSLItem converts a canonical record to a CSL entry keyed by work id.
func ToCSLItem(rec types.CanonicalRecord) CSLItem {
	item := CSLItem{
		ID:    rec.WorkID,
		Type:  "article",
		Title: rec.Title,
		DOI:   rec.DOI,
	}
	for _, a := range rec.Authors {
		if n := parseAuthorName(a); n != (CSLName{}) {
			item.Author = append(item.Author, n)
		}
	}
	if rec.Year > 0 {
		item.Issued = &CSLDate{DateParts: [][]int{{rec.Year}}}
	}
	return item
}

// parseAuthorName splits "Family, Given" on the comma and "Given Family"
// on the last space. Single-token names use the literal field.
func parseAuthorName(name string) CSLName {
	name = strings.TrimSpace(name)
	if name == "" {
		return CSLName{}
	}
	if family, given, ok := strings.Cut(name, ","); ok {
		return CSLName{Family: strings.TrimSpace(family), Given: strings.TrimSpace(given)}
	}
	idx := strings.LastIndex(name, " ")
	if idx < 0 {
		return CSLName{Literal: name}
	}
	return CSLName{Given: name[:idx], Family: name[idx+1:]}
}
