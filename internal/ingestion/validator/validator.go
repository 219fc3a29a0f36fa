// Package validator checks raw collection content before it is indexed.
// Checks run in a fixed order: blank content, then the array structure,
// then every element. The first failing check determines the error.
package validator

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/Adithya-Monish-Kumar-K/inverted-index/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/inverted-index/pkg/errors"
)

// ValidationError reports the element of the collection array that failed
// validation.
type ValidationError struct {
	Ordinal int
	Reason  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("document %d: %s", e.Ordinal, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return apperrors.ErrInvalidDocumentArray
}

// ParseCollection validates raw and decodes it into documents in array
// order. It fails with ErrEmptyContent when raw holds only whitespace and
// with ErrInvalidDocumentArray when raw is not a non-empty JSON array of
// non-empty objects.
func ParseCollection(raw []byte) ([]ingestion.Document, error) {
	if isBlank(raw) {
		return nil, apperrors.ErrEmptyContent
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidDocumentArray, err)
	}
	if elems == nil {
		return nil, fmt.Errorf("%w: content is null", apperrors.ErrInvalidDocumentArray)
	}
	if len(elems) == 0 {
		return nil, fmt.Errorf("%w: array is empty", apperrors.ErrInvalidDocumentArray)
	}

	docs := make([]ingestion.Document, 0, len(elems))
	for i, elem := range elems {
		fields, err := decodeObject(elem)
		if err != nil {
			return nil, &ValidationError{Ordinal: i, Reason: err.Error()}
		}
		if len(fields) == 0 {
			return nil, &ValidationError{Ordinal: i, Reason: "empty object"}
		}
		docs = append(docs, ingestion.Document{
			Title: textField(fields, "title"),
			Text:  textField(fields, "text"),
		})
	}
	return docs, nil
}

func decodeObject(elem json.RawMessage) (map[string]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(elem)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, errors.New("not an object")
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, fmt.Errorf("decoding object: %w", err)
	}
	return fields, nil
}

// textField returns the string value of key, or "" when the key is absent
// or does not hold a string.
func textField(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// isBlank treats a byte order mark as whitespace, so a file holding only a
// BOM is empty content rather than a malformed array.
func isBlank(raw []byte) bool {
	return strings.IndexFunc(string(raw), func(r rune) bool {
		return !unicode.IsSpace(r) && r != '\uFEFF'
	}) < 0
}
