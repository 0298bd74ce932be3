package core

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaskRune replaces characters of disallowed terms.
const DefaultMaskRune = '*'

// invalidRune stands in for a byte that is not valid UTF-8; it never matches a term.
const invalidRune rune = -1

// ContentFilter masks disallowed terms in message bodies.
// Matching is case-insensitive and rune based, so the masked text has
// exactly as many characters as the input.
type ContentFilter struct {
	terms [][]rune
	mask  rune
}

// NewContentFilter builds a filter for terms. Blank terms are ignored.
func NewContentFilter(terms []string, mask rune) *ContentFilter {
	if mask == 0 {
		mask = DefaultMaskRune
	}
	f := &ContentFilter{mask: mask}
	for _, term := range terms {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		f.terms = append(f.terms, []rune(term))
	}
	return f
}

// Mask returns text with every occurrence of a disallowed term replaced by mask runes.
// Bytes outside masked terms, including invalid UTF-8, are copied through unchanged.
func (f *ContentFilter) Mask(text string) string {
	if f == nil || len(f.terms) == 0 || text == "" {
		return text
	}

	runes := make([]rune, 0, len(text))
	offsets := make([]int, 0, len(text)+1)
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		if r == utf8.RuneError && size == 1 {
			r = invalidRune
		}
		runes = append(runes, r)
		offsets = append(offsets, i)
		i += size
	}
	offsets = append(offsets, len(text))

	masked := make([]bool, len(runes))
	hit := false

	for i := range runes {
		for _, term := range f.terms {
			if matchFoldAt(runes, i, term) {
				for j := i; j < i+len(term); j++ {
					masked[j] = true
				}
				hit = true
			}
		}
	}
	if !hit {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))
	for i := range runes {
		if masked[i] {
			b.WriteRune(f.mask)
		} else {
			b.WriteString(text[offsets[i]:offsets[i+1]])
		}
	}
	return b.String()
}

func matchFoldAt(runes []rune, at int, term []rune) bool {
	if at+len(term) > len(runes) {
		return false
	}
	for k, tr := range term {
		if !equalFoldRune(runes[at+k], tr) {
			return false
		}
	}
	return true
}

func equalFoldRune(a, b rune) bool {
	if a == b {
		return true
	}
	return unicode.ToLower(a) == unicode.ToLower(b) || unicode.ToUpper(a) == unicode.ToUpper(b)
}
