// Package foodname normalizes food names and category labels for matching.
package foodname

import (
	"strings"
	"unicode"
)

// Defaults for the catalog's naming convention
const (
	DefaultDelimiter      = "_"
	DefaultCategorySuffix = "류"
)

// NormalizedName is a food name prepared for comparison
type NormalizedName struct {
	Full     string // all whitespace removed
	Head     string // part before the first delimiter, empty when not compound
	Tail     string // part after the first delimiter, empty when not compound
	Stripped string // Full without the trailing category suffix
	Compound bool
}

// Normalizer cleans food names, ingredients and category labels for matching
type Normalizer struct {
	delimiter      string
	categorySuffix string
}

// NewNormalizer creates a normalizer. Empty arguments fall back to the defaults.
func NewNormalizer(delimiter, categorySuffix string) *Normalizer {
	if delimiter == "" {
		delimiter = DefaultDelimiter
	}
	if categorySuffix == "" {
		categorySuffix = DefaultCategorySuffix
	}
	return &Normalizer{
		delimiter:      delimiter,
		categorySuffix: categorySuffix,
	}
}

// Normalize removes all whitespace and splits compound names on the first delimiter.
// It never fails: empty input yields the zero NormalizedName.
func (n *Normalizer) Normalize(name string) NormalizedName {
	full := StripWhitespace(name)
	if full == "" {
		return NormalizedName{}
	}

	result := NormalizedName{
		Full:     full,
		Stripped: n.trimSuffix(full),
	}

	if head, tail, ok := strings.Cut(full, n.delimiter); ok {
		result.Head = head
		result.Tail = tail
		result.Compound = true
	}

	return result
}

// StripCategory returns the whitespace-free category label without its suffix
func (n *Normalizer) StripCategory(category string) string {
	return n.trimSuffix(StripWhitespace(category))
}

// Terms normalizes a list of ingredient tokens.
// Blank entries are dropped and duplicates collapse, keeping first-seen order.
func (n *Normalizer) Terms(values []string) []string {
	if len(values) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(values))
	terms := make([]string, 0, len(values))
	for _, v := range values {
		t := StripWhitespace(v)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		terms = append(terms, t)
	}
	return terms
}

func (n *Normalizer) trimSuffix(s string) string {
	return strings.TrimSuffix(s, n.categorySuffix)
}

// StripWhitespace removes every Unicode whitespace rune
func StripWhitespace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
