// Package similarity implements the fuzzy name scoring used for duplicate
// detection. Scores are edit-distance based, symmetric, and reflexive.
package similarity

import (
	"github.com/Ramsey-B/clover/pkg/normalizers"
)

// DefaultAutoMergeThreshold is the score at or above which a candidate pair
// is eligible for automatic merging. Runs may override it.
const DefaultAutoMergeThreshold = 0.85

// Scorer computes normalized-name similarity between organizations.
type Scorer struct{}

// NewScorer creates a new Scorer
func NewScorer() *Scorer {
	return &Scorer{}
}

// Normalize returns the matching key for a company name.
func (s *Scorer) Normalize(name string) string {
	return normalizers.NormalizeCompanyName(name)
}

// Score returns the similarity of two company names in [0, 1]:
// 1 - editDistance(norm(a), norm(b)) / max(len(norm(a)), len(norm(b))).
// Two empty names score 1; an empty name against a non-empty one scores 0.
func (s *Scorer) Score(a, b string) float64 {
	return s.ScoreNormalized(s.Normalize(a), s.Normalize(b))
}

// ScoreNormalized scores two already-normalized keys. Callers that store
// the normalized key (the candidate generator) use this to skip
// re-normalizing on every comparison.
func (s *Scorer) ScoreNormalized(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	distance := levenshtein(a, b)
	maxLen := max(len(a), len(b))
	return 1.0 - float64(distance)/float64(maxLen)
}

// levenshtein computes the edit distance between two strings using two
// rolling rows.
func levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	row := make([]int, len(b)+1)
	prevRow := make([]int, len(b)+1)

	for j := 0; j <= len(b); j++ {
		prevRow[j] = j
	}

	for i := 1; i <= len(a); i++ {
		row[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 0
			if a[i-1] != b[j-1] {
				cost = 1
			}
			row[j] = min(min(row[j-1]+1, prevRow[j]+1), prevRow[j-1]+cost)
		}
		row, prevRow = prevRow, row
	}

	return prevRow[len(b)]
}
