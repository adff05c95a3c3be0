// Package facematch decides whether a live face embedding belongs to an
// enrolled student. It is pure: the embedding store is injected as an
// interface and no state survives between calls, so every frame can be
// matched independently and concurrently.
package facematch

// Neighbor is one enrolled identity scored against a query embedding.
// Distance is the minimum over that identity's reference embeddings.
type Neighbor struct {
	NIM      string
	Name     string
	Distance float64
}

// MatchResult is the per-frame outcome. An empty NIM means no enrolled
// student was close enough (unknown face). Ambiguous is set when a second
// identity sits within the ambiguity margin of the best one; ambiguous
// matches still name the best candidate but must not admit on their own.
type MatchResult struct {
	NIM       string
	Name      string
	Distance  float64
	Ambiguous bool
}

// None reports whether the result names no student.
func (r MatchResult) None() bool {
	return r.NIM == ""
}

// Confidence converts a distance to the 0..1 display score the operator
// console shows, 1 - distance clamped to the unit range.
func Confidence(distance float64) float64 {
	c := 1 - distance
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
