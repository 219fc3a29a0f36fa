package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Alice", "alice"},
		{"Wonderland.", "wonderland"},
		{"a,b:c.d", "abcd"},
		{"Hello World", "hello world"},
		{"...", ""},
		{"don't", "don't"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Sanitize(tt.in), "Sanitize(%q)", tt.in)
	}
}

func TestTokenize(t *testing.T) {
	got := Tokenize("  Alice falls into a rabbit hole,\tand enters a world full of imagination.  ")
	assert.Equal(t, []string{
		"alice", "falls", "into", "a", "rabbit", "hole",
		"and", "enters", "a", "world", "full", "of", "imagination",
	}, got)
}

func TestTokenizeDropsPunctuationOnlyTokens(t *testing.T) {
	assert.Equal(t, []string{"one", "two"}, Tokenize("one : , . two"))
	assert.Empty(t, Tokenize(""))
	assert.Empty(t, Tokenize(" \n\t "))
	assert.Empty(t, Tokenize(".,:"))
}

func TestHasSpace(t *testing.T) {
	assert.True(t, HasSpace("a b"))
	assert.True(t, HasSpace("a\tb"))
	assert.True(t, HasSpace(" "))
	assert.False(t, HasSpace("alice"))
	assert.False(t, HasSpace(""))
}

func TestUnique(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, Unique([]string{"a", "b", "a", "c", "b"}))
	assert.Empty(t, Unique(nil))
}
