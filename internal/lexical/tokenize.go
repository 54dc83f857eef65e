// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package lexical

import (
	"strings"
	"unicode"
)

// Tokenize lowercases text and returns its maximal runs of letters and
// digits.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
