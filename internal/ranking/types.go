// Package ranking orders candidate products by vector similarity or tag overlap.
package ranking

// MatchType is the strongest tag match found by the lexical scorer.
type MatchType int

const (
	// MatchTypeNone indicates no tag matched.
	MatchTypeNone MatchType = iota
	// MatchTypeSubstring indicates one tag contains the other.
	MatchTypeSubstring
	// MatchTypeExact indicates identical tags.
	MatchTypeExact
)

// String returns a string representation of the match type.
func (m MatchType) String() string {
	switch m {
	case MatchTypeNone:
		return "none"
	case MatchTypeSubstring:
		return "substring"
	case MatchTypeExact:
		return "exact"
	default:
		return "unknown"
	}
}

// Candidate is a product vector offered to the ranker.
type Candidate struct {
	ID     int64
	Vector []float32
}

// Scored is a ranked product id.
type Scored struct {
	ID         int64
	Similarity float64
	Match      MatchType // lexical ranking only
}

// Query is one entry of a batch ranking request.
type Query struct {
	ID     int64
	Vector []float32
}

// less is the single ordering used for every result list: similarity descending, then id
// ascending.
func less(a, b Scored) bool {
	if a.Similarity != b.Similarity {
		return a.Similarity > b.Similarity
	}
	return a.ID < b.ID
}
