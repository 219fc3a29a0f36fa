package benchmark

import (
	"encoding/json"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/inverted-index/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/internal/searcher/parser"
)

func loadedEngine(b *testing.B, n int) *indexer.Engine {
	b.Helper()
	engine := indexer.NewEngine(nil)
	if _, err := engine.CreateIndex("bench.json", collectionJSON(b, n)); err != nil {
		b.Fatal(err)
	}
	return engine
}

// BenchmarkParseTerms measures decoding of nested term input.
func BenchmarkParseTerms(b *testing.B) {
	inputs := map[string]string{
		"word":   `"distributed"`,
		"phrase": `"distributed search analytics platform"`,
		"nested": `["distributed", ["search", ["analytics platform", "query"]], "engine"]`,
	}
	for name, in := range inputs {
		raw := json.RawMessage(in)
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				q, err := parser.Parse(raw)
				if err != nil {
					b.Fatal(err)
				}
				_ = parser.Flatten(q)
			}
		})
	}
}

// BenchmarkSearch measures lookups against a 10 000 document collection,
// falling back to the last searched collection.
func BenchmarkSearch(b *testing.B) {
	engine := loadedEngine(b, 10000)
	queries := []parser.Term{
		parser.Word("search"),
		parser.Words("distributed", "zebra", "postings"),
		parser.Group(parser.Word("engine query"), parser.Words("platform", "indexing")),
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.SearchIndex(queries[i%len(queries)], nil); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkSearchParallel measures concurrent search throughput. Every
// search takes the engine's write lock to move the last searched name.
func BenchmarkSearchParallel(b *testing.B) {
	engine := loadedEngine(b, 10000)
	target := "bench.json"
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := engine.SearchIndex(parser.Words("search", "engine"), &target); err != nil {
				b.Fatal(err)
			}
		}
	})
}

// BenchmarkSearchJSON measures the dynamic input path used by the HTTP and
// RPC surfaces.
func BenchmarkSearchJSON(b *testing.B) {
	engine := loadedEngine(b, 10000)
	terms := json.RawMessage(`["distributed", ["search engine"]]`)
	target := json.RawMessage(`"bench.json"`)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.SearchJSON(terms, target); err != nil {
			b.Fatal(err)
		}
	}
}
