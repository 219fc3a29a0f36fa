// Package cache stores resolved search results in Redis. Entries are keyed
// by collection, engine epoch, index generation and the flattened query
// terms, so neither a re-indexed collection nor a restarted or sibling
// process can serve results from another index.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/inverted-index/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/inverted-index/pkg/redis"
)

const keyPrefix = "search:"

// Store is the key-value backend of the cache.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type QueryCache struct {
	store   Store
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New returns a QueryCache over store. m may be nil.
func New(store Store, ttl time.Duration, m *metrics.Metrics) *QueryCache {
	return &QueryCache{
		store:   store,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

func (c *QueryCache) Get(ctx context.Context, res indexer.Resolution, terms []string) ([]index.PostingList, bool) {
	key := buildKey(res, terms)
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.recordMiss()
		return nil, false
	}
	var postings []index.PostingList
	if err := json.Unmarshal([]byte(data), &postings); err != nil || len(postings) != len(terms) {
		c.logger.Error("cache entry unusable", "key", key, "error", err)
		c.recordMiss()
		return nil, false
	}
	for i, p := range postings {
		if p == nil {
			postings[i] = index.PostingList{}
		}
	}
	c.recordHit()
	c.logger.Debug("cache hit", "collection", res.Collection, "key", key)
	return postings, true
}

func (c *QueryCache) Set(ctx context.Context, res indexer.Resolution, terms []string, postings []index.PostingList) {
	key := buildKey(res, terms)
	data, err := json.Marshal(postings)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns cached postings for the resolved search or computes,
// stores and returns them. Concurrent misses for the same key share a
// single computation. The boolean reports a cache hit.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	res indexer.Resolution,
	terms []string,
	computeFn func() ([]index.PostingList, error),
) ([]index.PostingList, bool, error) {
	if postings, ok := c.Get(ctx, res, terms); ok {
		return postings, true, nil
	}
	key := buildKey(res, terms)
	val, err, _ := c.group.Do(key, func() (any, error) {
		postings, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, res, terms, postings)
		return postings, nil
	})
	if err != nil {
		return nil, false, err
	}
	return clonePostings(val.([]index.PostingList)), false, nil
}

// Invalidate drops every cached result of collection.
func (c *QueryCache) Invalidate(ctx context.Context, collection string) error {
	deleted, err := c.store.FlushByPattern(ctx, collectionPrefix(collection)+"*")
	if err != nil {
		return fmt.Errorf("invalidating cache for %s: %w", collection, err)
	}
	c.logger.Info("cache invalidated", "collection", collection, "keys_deleted", deleted)
	return nil
}

// InvalidateAll drops every cached search result.
func (c *QueryCache) InvalidateAll(ctx context.Context) error {
	deleted, err := c.store.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *QueryCache) recordHit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *QueryCache) recordMiss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

// collectionPrefix hashes the collection name so glob metacharacters in
// names cannot leak into SCAN patterns.
func collectionPrefix(collection string) string {
	sum := sha256.Sum256([]byte(collection))
	return fmt.Sprintf("%s%x:", keyPrefix, sum[:8])
}

func buildKey(res indexer.Resolution, terms []string) string {
	sum := sha256.Sum256([]byte(strings.Join(terms, "\x00")))
	return fmt.Sprintf("%s%s:%d:%x", collectionPrefix(res.Collection), res.Epoch, res.Generation, sum[:16])
}

func clonePostings(in []index.PostingList) []index.PostingList {
	out := make([]index.PostingList, len(in))
	for i, p := range in {
		out[i] = p.Clone()
	}
	return out
}
