// Package loader reads collection files from disk and hands their content
// to the index engine under the name derived from each file path.
package loader

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/inverted-index/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/internal/ingestion"
)

// maxConcurrentReads bounds the number of files read in parallel.
const maxConcurrentReads = 8

// Collection is the raw content of one collection file.
type Collection struct {
	Path    string
	Name    string
	Content []byte
}

// Indexer is the subset of the engine used by LoadAll.
type Indexer interface {
	CreateIndex(name string, raw []byte) (indexer.CollectionInfo, error)
}

// ReadCollection reads the file at path and derives its collection name.
func ReadCollection(path string) (Collection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Collection{}, fmt.Errorf("reading collection file %s: %w", path, err)
	}
	return Collection{
		Path:    path,
		Name:    ingestion.CollectionName(path),
		Content: data,
	}, nil
}

// ReadAll reads every path concurrently and returns the collections in
// argument order.
func ReadAll(ctx context.Context, paths []string) ([]Collection, error) {
	collections := make([]Collection, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentReads)
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			c, err := ReadCollection(path)
			if err != nil {
				return err
			}
			collections[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return collections, nil
}

// LoadAll reads every path and indexes the collections in argument order,
// so the last path becomes the most recently created collection. It stops
// at the first failure.
func LoadAll(ctx context.Context, idx Indexer, paths []string) ([]indexer.CollectionInfo, error) {
	logger := slog.Default().With("component", "loader")
	collections, err := ReadAll(ctx, paths)
	if err != nil {
		return nil, err
	}
	infos := make([]indexer.CollectionInfo, 0, len(collections))
	for _, c := range collections {
		info, err := idx.CreateIndex(c.Name, c.Content)
		if err != nil {
			return infos, fmt.Errorf("loading %s: %w", c.Path, err)
		}
		logger.Debug("collection loaded",
			"path", c.Path,
			"collection", c.Name,
			"documents", info.Documents,
		)
		infos = append(infos, info)
	}
	return infos, nil
}
