package loader

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/inverted-index/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/internal/searcher/parser"
	apperrors "github.com/Adithya-Monish-Kumar-K/inverted-index/pkg/errors"
)

const booksJSON = `[
	{"title": "Alice in Wonderland", "text": "Alice falls into a rabbit hole and enters a world full of imagination."},
	{"title": "The Lord of the Rings", "text": "An unusual alliance of man, elf, dwarf, wizard and hobbit seek to destroy a powerful ring."}
]`

const pagesJSON = `[{"title": "Desert Nights", "text": "The desert cools quickly after sunset."}]`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadCollection(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "books.json", booksJSON)

	c, err := ReadCollection(path)
	require.NoError(t, err)
	assert.Equal(t, "books.json", c.Name)
	assert.Equal(t, path, c.Path)
	assert.Equal(t, booksJSON, string(c.Content))

	_, err = ReadCollection(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestLoadAllKeepsArgumentOrder(t *testing.T) {
	dir := t.TempDir()
	pages := writeFile(t, dir, "pages.json", pagesJSON)
	books := writeFile(t, dir, "books.json", booksJSON)

	e := indexer.NewEngine(nil)
	infos, err := LoadAll(context.Background(), e, []string{pages, books})
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "pages.json", infos[0].Name)
	assert.Equal(t, "books.json", infos[1].Name)

	got, err := e.SearchIndex(parser.Word("alice"), nil)
	require.NoError(t, err)
	assert.Equal(t, []index.PostingList{{0}}, got)
	assert.Equal(t, "books.json", e.LastSearched())
}

func TestLoadAllStopsOnInvalidCollection(t *testing.T) {
	dir := t.TempDir()
	books := writeFile(t, dir, "books.json", booksJSON)
	blank := writeFile(t, dir, "blank.json", "   \n")

	e := indexer.NewEngine(nil)
	infos, err := LoadAll(context.Background(), e, []string{books, blank})
	assert.ErrorIs(t, err, apperrors.ErrEmptyContent)
	assert.Len(t, infos, 1)
	assert.Len(t, e.Collections(), 1)
}

func TestLoadAllMissingFile(t *testing.T) {
	e := indexer.NewEngine(nil)
	_, err := LoadAll(context.Background(), e, []string{filepath.Join(t.TempDir(), "nope.json")})
	assert.Error(t, err)
	assert.Empty(t, e.Collections())
}
