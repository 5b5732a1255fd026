package analyzer

import "grimm.is/ruleaudit/internal/ruleset"

// Relation is the match-space relationship of an earlier rule A to a later
// rule B in the same chain.
type Relation int

const (
	// Disjoint: some dimension has an empty intersection.
	Disjoint Relation = iota
	// OverlapAmbiguous: every dimension intersects, neither side contains the other.
	OverlapAmbiguous
	// EarlierContainsLater: A matches everything B matches. Identical spaces
	// classify here.
	EarlierContainsLater
	// LaterContainsEarlier: B strictly contains A.
	LaterContainsEarlier
)

func (r Relation) String() string {
	switch r {
	case Disjoint:
		return "disjoint"
	case OverlapAmbiguous:
		return "overlap_ambiguous"
	case EarlierContainsLater:
		return "earlier_contains_later"
	case LaterContainsEarlier:
		return "later_contains_earlier"
	}
	return "unknown"
}

// Classify returns the relationship of earlier rule a to later rule b. The
// caller guarantees both rules share a table and chain.
func Classify(a, b ruleset.Rule) Relation {
	return classifySpaces(a.Space(), b.Space())
}

func classifySpaces(a, b ruleset.MatchSpace) Relation {
	switch {
	case !a.Intersects(b):
		return Disjoint
	case a.Contains(b):
		return EarlierContainsLater
	case b.Contains(a):
		return LaterContainsEarlier
	default:
		return OverlapAmbiguous
	}
}
