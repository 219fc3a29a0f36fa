package indexer

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/inverted-index/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/internal/ingestion/validator"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/internal/searcher/parser"
	apperrors "github.com/Adithya-Monish-Kumar-K/inverted-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/pkg/metrics"
)

type collection struct {
	index      index.Index
	documents  int
	generation uint64
	indexedAt  time.Time
}

// CollectionInfo describes one indexed collection.
type CollectionInfo struct {
	Name       string    `json:"name"`
	Documents  int       `json:"documents"`
	Terms      int       `json:"terms"`
	Generation uint64    `json:"generation"`
	IndexedAt  time.Time `json:"indexed_at"`

	// Replaced is set by CreateIndex when an earlier index was overwritten.
	Replaced bool `json:"replaced,omitempty"`
}

// Resolution is the collection a search was resolved against. Epoch
// identifies the engine instance, since generations restart at 1 in every
// process while shared caches outlive it.
type Resolution struct {
	Collection string
	Epoch      string
	Generation uint64
}

// Engine owns every collection index together with the insertion order of
// collection names and the last searched collection. All state is guarded
// by a single lock.
type Engine struct {
	mu           sync.RWMutex
	collections  map[string]*collection
	order        []string
	lastSearched string
	generation   uint64
	epoch        string
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

// NewEngine returns an empty Engine. m may be nil.
func NewEngine(m *metrics.Metrics) *Engine {
	return &Engine{
		collections: make(map[string]*collection),
		epoch:       uuid.NewString(),
		metrics:     m,
		logger:      slog.Default().With("component", "indexer"),
	}
}

// CreateIndex parses raw as a JSON array of documents and stores its index
// under name, replacing any previous index for that name. The engine is
// left untouched when raw fails validation.
func (e *Engine) CreateIndex(name string, raw []byte) (CollectionInfo, error) {
	if name == "" {
		e.countIndexed("rejected")
		return CollectionInfo{}, fmt.Errorf("%w: collection name is required", apperrors.ErrInvalidInput)
	}
	docs, err := validator.ParseCollection(raw)
	if err != nil {
		e.countIndexed("rejected")
		e.logger.Debug("collection rejected", "collection", name, "error", err)
		return CollectionInfo{}, fmt.Errorf("indexing %s: %w", name, err)
	}

	termSets := make([]index.TermSet, len(docs))
	for i, doc := range docs {
		terms := append(tokenizer.Tokenize(doc.Title), tokenizer.Tokenize(doc.Text)...)
		termSets[i] = index.TermSet{
			Ordinal: i,
			Terms:   tokenizer.Unique(terms),
		}
	}
	idx := index.Build(termSets)

	e.mu.Lock()
	e.generation++
	c := &collection{
		index:      idx,
		documents:  len(docs),
		generation: e.generation,
		indexedAt:  time.Now().UTC(),
	}
	_, replaced := e.collections[name]
	e.collections[name] = c
	if !replaced {
		e.order = append(e.order, name)
	}
	total := len(e.collections)
	e.mu.Unlock()

	status := "created"
	if replaced {
		status = "replaced"
	}
	e.countIndexed(status)
	if e.metrics != nil {
		e.metrics.DocsIndexedTotal.Add(float64(len(docs)))
		e.metrics.CollectionTerms.WithLabelValues(name).Set(float64(idx.Terms()))
		e.metrics.Collections.Set(float64(total))
	}
	e.logger.Info("collection indexed",
		"collection", name,
		"documents", len(docs),
		"terms", idx.Terms(),
		"status", status,
	)
	info := c.info(name)
	info.Replaced = replaced
	return info, nil
}

// GetIndex returns a copy of the index stored under name.
func (e *Engine) GetIndex(name string) (index.Index, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	c, ok := e.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrNotFound, name)
	}
	return c.index.Clone(), nil
}

// SearchIndex looks up every term of q in the target collection and returns
// one postings list per flattened term, in flattened order. A nil target
// searches the last searched collection, or the most recently created one
// when nothing has been searched yet. A blank q yields an empty result.
func (e *Engine) SearchIndex(q parser.Term, target *string) ([]index.PostingList, error) {
	result, err := e.Search(q, target)
	if err != nil {
		return nil, err
	}
	return result.Postings, nil
}

// SearchResult is the outcome of a resolved search.
type SearchResult struct {
	Collection string              `json:"collection,omitempty"`
	Terms      []string            `json:"terms"`
	Postings   []index.PostingList `json:"postings"`
}

// Search behaves like SearchIndex and also reports the resolved collection
// and flattened terms.
func (e *Engine) Search(q parser.Term, target *string) (*SearchResult, error) {
	start := time.Now()
	if q.IsBlank() {
		e.countSearch("empty", start)
		return &SearchResult{Terms: []string{}, Postings: []index.PostingList{}}, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	res, err := e.resolveLocked(target)
	if err != nil {
		e.countSearch("error", start)
		return nil, err
	}
	terms := parser.Flatten(q)
	postings := e.lookupLocked(res.Collection, terms)

	resultType := "zero_result"
	for _, p := range postings {
		if len(p) > 0 {
			resultType = "hit"
			break
		}
	}
	e.countSearch(resultType, start)
	if e.metrics != nil {
		e.metrics.SearchTermsCount.Observe(float64(len(terms)))
	}
	e.logger.Debug("search completed",
		"collection", res.Collection,
		"terms", len(terms),
		"result_type", resultType,
	)
	return &SearchResult{
		Collection: res.Collection,
		Terms:      terms,
		Postings:   postings,
	}, nil
}

// SearchJSON decodes dynamically typed search input and runs Search. terms
// must be a JSON string or a nested array of strings; target, when present
// and not null, must be a JSON string.
func (e *Engine) SearchJSON(terms, target json.RawMessage) (*SearchResult, error) {
	q, err := parser.Parse(terms)
	if err != nil {
		e.countSearch("error", time.Now())
		return nil, err
	}
	if q.IsBlank() {
		return e.Search(q, nil)
	}
	name, err := parser.ParseTarget(target)
	if err != nil {
		e.countSearch("error", time.Now())
		return nil, err
	}
	return e.Search(q, name)
}

// Resolve picks the collection a search against target would use and
// records it as the last searched collection.
func (e *Engine) Resolve(target *string) (Resolution, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resolveLocked(target)
}

// Lookup returns one postings list per term from the named collection.
func (e *Engine) Lookup(name string, terms []string) ([]index.PostingList, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if _, ok := e.collections[name]; !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrNotFound, name)
	}
	return e.lookupLocked(name, terms), nil
}

// Collections lists indexed collections in insertion order.
func (e *Engine) Collections() []CollectionInfo {
	e.mu.RLock()
	defer e.mu.RUnlock()
	infos := make([]CollectionInfo, 0, len(e.order))
	for _, name := range e.order {
		infos = append(infos, e.collections[name].info(name))
	}
	return infos
}

// Collection returns the description of the named collection.
func (e *Engine) Collection(name string) (CollectionInfo, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	c, ok := e.collections[name]
	if !ok {
		return CollectionInfo{}, fmt.Errorf("%w: %s", apperrors.ErrNotFound, name)
	}
	return c.info(name), nil
}

// LastSearched returns the last searched collection, or "" if none.
func (e *Engine) LastSearched() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastSearched
}

func (e *Engine) resolveLocked(target *string) (Resolution, error) {
	var name string
	switch {
	case target != nil:
		if _, ok := e.collections[*target]; !ok {
			return Resolution{}, fmt.Errorf("%w: %q", apperrors.ErrInvalidTargetName, *target)
		}
		name = *target
	case e.lastSearched != "":
		name = e.lastSearched
	case len(e.order) > 0:
		name = e.order[len(e.order)-1]
	default:
		return Resolution{}, apperrors.ErrNoIndexAvailable
	}
	e.lastSearched = name
	return Resolution{
		Collection: name,
		Epoch:      e.epoch,
		Generation: e.collections[name].generation,
	}, nil
}

func (e *Engine) lookupLocked(name string, terms []string) []index.PostingList {
	idx := e.collections[name].index
	postings := make([]index.PostingList, len(terms))
	for i, term := range terms {
		postings[i] = idx.Lookup(term)
	}
	return postings
}

func (e *Engine) countIndexed(status string) {
	if e.metrics != nil {
		e.metrics.CollectionsIndexedTotal.WithLabelValues(status).Inc()
	}
}

func (e *Engine) countSearch(resultType string, start time.Time) {
	if e.metrics == nil {
		return
	}
	e.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	e.metrics.SearchLatency.WithLabelValues("none").Observe(time.Since(start).Seconds())
}

func (c *collection) info(name string) CollectionInfo {
	return CollectionInfo{
		Name:       name,
		Documents:  c.documents,
		Terms:      c.index.Terms(),
		Generation: c.generation,
		IndexedAt:  c.indexedAt,
	}
}
