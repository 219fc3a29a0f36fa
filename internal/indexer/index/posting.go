package index

// PostingList is the ascending list of document ordinals containing a term.
type PostingList []int

// TermSet is the deduplicated, first-occurrence ordered term list derived
// from one document.
type TermSet struct {
	Ordinal int
	Terms   []string
}

// TermEntry pairs a term with its postings, used for ordered snapshots.
type TermEntry struct {
	Term     string      `json:"term"`
	Postings PostingList `json:"postings"`
}

// Clone returns an independent copy of p. A nil list clones to an empty one.
func (p PostingList) Clone() PostingList {
	out := make(PostingList, len(p))
	copy(out, p)
	return out
}
