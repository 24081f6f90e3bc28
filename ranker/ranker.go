// Package ranker scores candidate vectors against a query by cosine
// similarity and returns the best matches.
package ranker

import (
	"fmt"
	"math"
	"sort"

	"ragbridge/types"
)

type Candidate struct {
	Label  string
	Vector []float32
}

// Cosine returns dot(a,b)/(|a||b|). Sums are accumulated in float64.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, types.NewComputationError("cosine", fmt.Errorf("%w: %d vs %d", types.ErrDimensionMismatch, len(a), len(b)))
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0, types.NewComputationError("cosine", types.ErrZeroVector)
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// rounding can push identical vectors a hair past 1
	return math.Max(-1, math.Min(1, sim)), nil
}

// Rank scores every candidate and returns the topK best, highest first.
// Ties keep candidate order. topK larger than the candidate count returns
// all candidates.
func Rank(query []float32, candidates []Candidate, topK int) ([]types.SearchMatch, error) {
	if topK <= 0 {
		return nil, types.NewConfigError(types.ErrInvalidTopK)
	}

	matches := make([]types.SearchMatch, len(candidates))
	for i, c := range candidates {
		score, err := Cosine(query, c.Vector)
		if err != nil {
			return nil, fmt.Errorf("candidate %q: %w", c.Label, err)
		}
		matches[i] = types.SearchMatch{Name: c.Label, Score: score}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	if topK > len(matches) {
		topK = len(matches)
	}
	return matches[:topK], nil
}
