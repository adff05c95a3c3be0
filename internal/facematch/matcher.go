package facematch

// Store answers nearest-neighbor queries over the enrolled identities.
// The second neighbor is the closest identity distinct from the first and
// is zero-valued when no second identity exists.
type Store interface {
	Nearest(query []float32) (best, second Neighbor, err error)
}

// Matcher applies the reject threshold and ambiguity margin on top of raw
// nearest-neighbor distances.
type Matcher struct {
	store Store

	// RejectThreshold is the maximum distance still considered a match.
	// Anything further is an unknown face and must not be guessed at.
	RejectThreshold float64

	// AmbiguityMargin is the minimum distance gap between the best and
	// second-best identities for an unambiguous match.
	AmbiguityMargin float64
}

// NewMatcher creates a matcher over the given store.
func NewMatcher(store Store, rejectThreshold, ambiguityMargin float64) *Matcher {
	return &Matcher{
		store:           store,
		RejectThreshold: rejectThreshold,
		AmbiguityMargin: ambiguityMargin,
	}
}

// Match scores a query embedding against the enrolled identities.
//
// The result is deterministic for a given store content and query. An empty
// store error from the store is returned as-is so callers can prompt for
// enrollment.
func (m *Matcher) Match(query []float32) (MatchResult, error) {
	best, second, err := m.store.Nearest(query)
	if err != nil {
		return MatchResult{}, err
	}

	if best.Distance > m.RejectThreshold {
		// Unknown face. Report the distance so the operator console can
		// show how far off the closest candidate was.
		return MatchResult{Distance: best.Distance}, nil
	}

	res := MatchResult{
		NIM:      best.NIM,
		Name:     best.Name,
		Distance: best.Distance,
	}
	if second.NIM != "" && second.Distance-best.Distance <= m.AmbiguityMargin {
		res.Ambiguous = true
	}
	return res, nil
}
