package ranker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragbridge/types"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		name     string
		a        []float32
		b        []float32
		expected float64
	}{
		{"identical vectors", []float32{1, 2, 3}, []float32{1, 2, 3}, 1.0},
		{"orthogonal vectors", []float32{1, 0, 0}, []float32{0, 1, 0}, 0.0},
		{"opposite vectors", []float32{1, 1, 1}, []float32{-1, -1, -1}, -1.0},
		{"similar vectors", []float32{1, 2, 3}, []float32{1.1, 2.1, 3.1}, 0.9999},
		{"scaled vector", []float32{0.5, 0.5}, []float32{4, 4}, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Cosine(tt.a, tt.b)
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, got, 1e-3)

			back, err := Cosine(tt.b, tt.a)
			require.NoError(t, err)
			assert.Equal(t, got, back, "cosine must be symmetric")
		})
	}
}

func TestCosineErrors(t *testing.T) {
	_, err := Cosine([]float32{1, 0}, []float32{1, 0, 0})
	require.Error(t, err)
	assert.True(t, types.IsComputationError(err))
	assert.ErrorIs(t, err, types.ErrDimensionMismatch)

	_, err = Cosine([]float32{0, 0}, []float32{1, 0})
	assert.ErrorIs(t, err, types.ErrZeroVector)

	_, err = Cosine([]float32{}, []float32{})
	assert.ErrorIs(t, err, types.ErrZeroVector)
}

func TestRankExample(t *testing.T) {
	matches, err := Rank([]float32{1, 0}, []Candidate{
		{Label: "a", Vector: []float32{1, 0}},
		{Label: "b", Vector: []float32{0, 1}},
	}, 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "a", matches[0].Name)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-9)
}

func TestRankAllSortedAndStable(t *testing.T) {
	candidates := []Candidate{
		{Label: "low", Vector: []float32{0, 1}},
		{Label: "tie-1", Vector: []float32{1, 1}},
		{Label: "top", Vector: []float32{1, 0}},
		{Label: "tie-2", Vector: []float32{2, 2}},
	}
	matches, err := Rank([]float32{1, 0}, candidates, len(candidates))
	require.NoError(t, err)
	require.Len(t, matches, 4)

	names := make([]string, len(matches))
	for i, m := range matches {
		names[i] = m.Name
	}
	assert.Equal(t, []string{"top", "tie-1", "tie-2", "low"}, names)
	for i := 1; i < len(matches); i++ {
		assert.GreaterOrEqual(t, matches[i-1].Score, matches[i].Score)
	}
}

func TestRankClampsTopK(t *testing.T) {
	matches, err := Rank([]float32{1, 0}, []Candidate{
		{Label: "a", Vector: []float32{1, 0}},
		{Label: "b", Vector: []float32{0, 1}},
	}, 10)
	require.NoError(t, err)
	assert.Len(t, matches, 2)

	matches, err = Rank([]float32{1, 0}, nil, 3)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestRankRejectsBadInput(t *testing.T) {
	_, err := Rank([]float32{1, 0}, []Candidate{{Label: "a", Vector: []float32{1, 0, 0}}}, 1)
	assert.ErrorIs(t, err, types.ErrDimensionMismatch)

	_, err = Rank([]float32{1, 0}, []Candidate{{Label: "a", Vector: []float32{1, 0}}}, 0)
	assert.ErrorIs(t, err, types.ErrInvalidTopK)
}
