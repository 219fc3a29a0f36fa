// Package tokenizer provides text tokenisation for the index engine.
// It strips the punctuation characters '.', ',' and ':', lower-cases the
// input and splits on runs of whitespace. Documents and query terms go
// through the same rules so that indexed terms and lookups always agree.
package tokenizer

import (
	"strings"
	"unicode"
)

var stripper = strings.NewReplacer(".", "", ",", "", ":", "")

// Sanitize removes the stripped punctuation characters from s and returns
// the lower-cased result.
func Sanitize(s string) string {
	return strings.ToLower(stripper.Replace(s))
}

// Tokenize sanitizes text and splits it into terms on whitespace runs.
// Tokens that are empty after stripping are never produced.
func Tokenize(text string) []string {
	return strings.Fields(Sanitize(text))
}

// HasSpace reports whether s contains any whitespace separator.
func HasSpace(s string) bool {
	return strings.IndexFunc(s, unicode.IsSpace) >= 0
}

// Unique removes duplicate terms, keeping the first occurrence of each.
func Unique(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))
	for _, term := range terms {
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}
		out = append(out, term)
	}
	return out
}
