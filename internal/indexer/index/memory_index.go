// Package index holds the in-memory inverted index of a single collection:
// a mapping from term to the ascending ordinals of the documents that
// contain it.
package index

import (
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
)

// Index maps each term of a collection to its postings list.
type Index map[string]PostingList

// Build inverts the per-document term sets into an Index. Term sets must
// already be deduplicated; ordinals may arrive in any order since every
// term accumulates into a bitmap that iterates in ascending order.
func Build(docs []TermSet) Index {
	bitmaps := make(map[string]*roaring.Bitmap)
	for _, doc := range docs {
		for _, term := range doc.Terms {
			bm, exists := bitmaps[term]
			if !exists {
				bm = roaring.New()
				bitmaps[term] = bm
			}
			bm.Add(uint32(doc.Ordinal))
		}
	}

	idx := make(Index, len(bitmaps))
	for term, bm := range bitmaps {
		ordinals := bm.ToArray()
		postings := make(PostingList, len(ordinals))
		for i, ord := range ordinals {
			postings[i] = int(ord)
		}
		idx[term] = postings
	}
	return idx
}

// Lookup returns the postings for term, or an empty list when the term is
// not indexed. The result is a copy.
func (idx Index) Lookup(term string) PostingList {
	return idx[term].Clone()
}

// Terms returns the number of distinct terms.
func (idx Index) Terms() int {
	return len(idx)
}

// Clone returns a deep copy of idx.
func (idx Index) Clone() Index {
	out := make(Index, len(idx))
	for term, postings := range idx {
		out[term] = postings.Clone()
	}
	return out
}

// Equal reports whether idx and other hold the same terms with the same
// postings.
func (idx Index) Equal(other Index) bool {
	if len(idx) != len(other) {
		return false
	}
	for term, postings := range idx {
		o, ok := other[term]
		if !ok || len(o) != len(postings) {
			return false
		}
		for i := range postings {
			if postings[i] != o[i] {
				return false
			}
		}
	}
	return true
}

// Snapshot returns every term and its postings sorted by term.
func (idx Index) Snapshot() []TermEntry {
	entries := make([]TermEntry, 0, len(idx))
	for term, postings := range idx {
		entries = append(entries, TermEntry{
			Term:     term,
			Postings: postings.Clone(),
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Term < entries[j].Term
	})
	return entries
}
