package benchmark

import (
	"fmt"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/inverted-index/internal/indexer/tokenizer"
)

// Document bodies shaped like the "text" fields of an uploaded collection.
var bodies = []struct {
	name string
	text string
}{
	{"short", "Alice's rabbit-hole: a Mad Tea Party!"},
	{"punctuated", strings.Repeat("...well, (really) -- the Queen's croquet?! ", 8)},
	{"unicode", strings.Repeat("Façade café, naïve coöperation; Ærø résumé. ", 16)},
	{"plain", strings.Repeat("the hobbit walks through the shire toward the mountain ", 64)},
}

func BenchmarkTokenizeBodies(b *testing.B) {
	for _, body := range bodies {
		b.Run(body.name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(body.text)))
			for b.Loop() {
				_ = tokenizer.Tokenize(body.text)
			}
		})
	}
}

// BenchmarkSanitizeQueryTerm covers the per-term normalization every search
// performs before the index lookup.
func BenchmarkSanitizeQueryTerm(b *testing.B) {
	terms := []string{"Alice", "Queen's", "(ring)", "CAFÉ!", "rabbit-hole"}
	b.ReportAllocs()
	for b.Loop() {
		for _, t := range terms {
			if !tokenizer.HasSpace(t) {
				_ = tokenizer.Sanitize(t)
			}
		}
	}
}

func BenchmarkTokenizeUniqueParallel(b *testing.B) {
	text := bodies[len(bodies)-1].text
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = tokenizer.Unique(tokenizer.Tokenize(text))
		}
	})
}

func BenchmarkTokenizeGrowth(b *testing.B) {
	word := "wonderland "
	for _, words := range []int{16, 256, 4096} {
		text := strings.Repeat(word, words)
		b.Run(fmt.Sprintf("words_%d", words), func(b *testing.B) {
			b.SetBytes(int64(len(text)))
			for b.Loop() {
				_ = tokenizer.Tokenize(text)
			}
		})
	}
}
