// Package parser turns search input into the ordered list of normalised
// terms that are looked up in a collection index. Input is either a word,
// a whitespace separated phrase, or an arbitrarily nested group of both.
package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/inverted-index/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/inverted-index/pkg/errors"
)

// Term is a search input: either a Word or a Group of nested terms.
type Term struct {
	word    string
	group   []Term
	isGroup bool
}

// Word returns a term holding a single word or a whitespace separated phrase.
func Word(s string) Term {
	return Term{word: s}
}

// Group returns a term holding nested terms.
func Group(terms ...Term) Term {
	if terms == nil {
		terms = []Term{}
	}
	return Term{group: terms, isGroup: true}
}

// Words is shorthand for a Group of Word terms.
func Words(words ...string) Term {
	terms := make([]Term, len(words))
	for i, w := range words {
		terms[i] = Word(w)
	}
	return Group(terms...)
}

// IsGroup reports whether t is a Group.
func (t Term) IsGroup() bool {
	return t.isGroup
}

// IsBlank reports whether t has nothing to search for: an empty or
// whitespace-only word, or a group that flattens to no terms.
func (t Term) IsBlank() bool {
	if !t.isGroup {
		return strings.TrimSpace(t.word) == ""
	}
	for _, child := range t.group {
		if !child.IsBlank() {
			return false
		}
	}
	return true
}

// String renders t in a compact bracketed form for logging.
func (t Term) String() string {
	if !t.isGroup {
		return fmt.Sprintf("%q", t.word)
	}
	parts := make([]string, len(t.group))
	for i, child := range t.group {
		parts[i] = child.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// Flatten walks t depth-first, left to right and returns the normalised
// query terms in the order encountered. Phrases are tokenized and each
// resulting word contributes one term.
func Flatten(t Term) []string {
	out := make([]string, 0)
	return flatten(t, out)
}

func flatten(t Term, out []string) []string {
	if t.IsGroup() {
		for _, child := range t.group {
			out = flatten(child, out)
		}
		return out
	}
	if tokenizer.HasSpace(t.word) {
		for _, w := range tokenizer.Tokenize(t.word) {
			out = flatten(Word(w), out)
		}
		return out
	}
	if term := tokenizer.Sanitize(t.word); term != "" {
		out = append(out, term)
	}
	return out
}

// Parse decodes a JSON value into a Term. Strings become words, arrays
// become groups; any other JSON type fails with ErrInvalidSearchParameter.
func Parse(raw json.RawMessage) (Term, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Term{}, fmt.Errorf("%w: missing search terms", apperrors.ErrInvalidSearchParameter)
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Term{}, fmt.Errorf("%w: %v", apperrors.ErrInvalidSearchParameter, err)
		}
		return Word(s), nil
	case '[':
		var elems []json.RawMessage
		if err := json.Unmarshal(raw, &elems); err != nil {
			return Term{}, fmt.Errorf("%w: %v", apperrors.ErrInvalidSearchParameter, err)
		}
		children := make([]Term, 0, len(elems))
		for _, elem := range elems {
			child, err := Parse(elem)
			if err != nil {
				return Term{}, err
			}
			children = append(children, child)
		}
		return Group(children...), nil
	default:
		return Term{}, fmt.Errorf("%w: expected a string or an array", apperrors.ErrInvalidSearchParameter)
	}
}

// ParseTarget decodes an optional JSON target collection name. A missing
// value or JSON null yields nil; anything but a string fails with
// ErrInvalidTargetName.
func ParseTarget(raw json.RawMessage) (*string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] != '"' {
		return nil, fmt.Errorf("%w: target must be a string", apperrors.ErrInvalidTargetName)
	}
	var name string
	if err := json.Unmarshal(raw, &name); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidTargetName, err)
	}
	return &name, nil
}
