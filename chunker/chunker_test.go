package chunker

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragbridge/types"
)

// runeTokenizer maps every rune to one token so token windows can be checked
// against character windows without loading a BPE.
type runeTokenizer struct{}

func (runeTokenizer) Encode(text string) []int {
	out := make([]int, 0, len(text))
	for _, r := range text {
		out = append(out, int(r))
	}
	return out
}

func (runeTokenizer) Decode(tokens []int) string {
	var b strings.Builder
	for _, t := range tokens {
		b.WriteRune(rune(t))
	}
	return b.String()
}

func TestWindows(t *testing.T) {
	spans, err := Windows(15, 5, 0)
	require.NoError(t, err)
	assert.Equal(t, []Span{{0, 5}, {5, 10}, {10, 15}}, spans)

	spans, err = Windows(15, 5, 2)
	require.NoError(t, err)
	assert.Equal(t, []Span{{0, 5}, {3, 8}, {6, 11}, {9, 14}, {12, 15}}, spans)

	spans, err = Windows(0, 5, 2)
	require.NoError(t, err)
	assert.Empty(t, spans)

	spans, err = Windows(3, 5, 2)
	require.NoError(t, err)
	assert.Equal(t, []Span{{0, 3}}, spans)
}

func TestWindowsStrideProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		size := rng.Intn(40) + 1
		overlap := rng.Intn(size)
		n := rng.Intn(300)

		spans, err := Windows(n, size, overlap)
		require.NoError(t, err)
		if n == 0 {
			assert.Empty(t, spans)
			continue
		}

		stride := size - overlap
		for j, s := range spans {
			assert.Equal(t, j*stride, s.Start, "n=%d size=%d overlap=%d", n, size, overlap)
			if j < len(spans)-1 {
				assert.Equal(t, size, s.End-s.Start)
			} else {
				assert.Equal(t, n, s.End)
				assert.LessOrEqual(t, s.End-s.Start, size)
			}
		}
	}
}

func TestInvalidParamsRejected(t *testing.T) {
	cases := []struct {
		name          string
		size, overlap int
	}{
		{"overlap equals size", 5, 5},
		{"overlap exceeds size", 5, 9},
		{"zero size", 0, 0},
		{"negative overlap", 5, -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Windows(10, tc.size, tc.overlap)
			require.Error(t, err)
			assert.True(t, types.IsConfigError(err))
			assert.ErrorIs(t, err, types.ErrInvalidChunkParams)

			_, err = SplitCharacters("some text", tc.size, tc.overlap)
			assert.ErrorIs(t, err, types.ErrInvalidChunkParams)

			_, err = New(ModeCharacter, tc.size, tc.overlap, "")
			assert.ErrorIs(t, err, types.ErrInvalidChunkParams)
		})
	}
}

func TestSplitCharacters(t *testing.T) {
	chunks, err := SplitCharacters("AAAAABBBBBCCCCC", 5, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAAAA", "BBBBB", "CCCCC"}, chunks)

	chunks, err = SplitCharacters("AAAAABBBBBCCCCC", 5, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAAAA", "AABBB", "BBBBC", "BCCCC", "CCC"}, chunks)
}

func TestSplitCharactersKeepsRunes(t *testing.T) {
	chunks, err := SplitCharacters("привіт світ", 4, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"прив", "віт ", " сві", "іт"}, chunks)
}

func TestShortDocumentIsOneChunk(t *testing.T) {
	chunks, err := SplitCharacters("short text", 100, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"short text"}, chunks)

	chunks, err = SplitTokens(runeTokenizer{}, "short text", 100, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"short text"}, chunks)
}

func TestBlankInputYieldsNoChunks(t *testing.T) {
	for _, in := range []string{"", "   ", "\n\t \n"} {
		chunks, err := SplitCharacters(in, 5, 1)
		require.NoError(t, err)
		assert.Empty(t, chunks)

		chunks, err = SplitWords(in, 5, 1)
		require.NoError(t, err)
		assert.Empty(t, chunks)

		chunks, err = SplitTokens(runeTokenizer{}, in, 5, 1)
		require.NoError(t, err)
		assert.Empty(t, chunks)
	}
}

func TestWhitespaceWindowsDropped(t *testing.T) {
	text := "abc" + strings.Repeat(" ", 10) + "def"
	chunks, err := SplitCharacters(text, 4, 0)
	require.NoError(t, err)
	for _, c := range chunks {
		assert.NotEmpty(t, strings.TrimSpace(c))
	}
	assert.Equal(t, []string{"abc ", " def"}, chunks)
}

func TestSplitWords(t *testing.T) {
	chunks, err := SplitWords("one two three four five six seven", 3, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"one two three", "three four five", "five six seven"}, chunks)
}

func TestSplitTokensMatchesCharacters(t *testing.T) {
	text := "The quick brown fox jumps over the lazy dog"
	byTokens, err := SplitTokens(runeTokenizer{}, text, 10, 3)
	require.NoError(t, err)
	byChars, err := SplitCharacters(text, 10, 3)
	require.NoError(t, err)
	assert.Equal(t, byChars, byTokens)
}

func TestSplitTokensRequiresTokenizer(t *testing.T) {
	_, err := SplitTokens(nil, "text", 5, 1)
	assert.True(t, types.IsConfigError(err))
}

func TestChunkerDocuments(t *testing.T) {
	c, err := New(ModeToken, 5, 0, "", WithTokenizer(runeTokenizer{}))
	require.NoError(t, err)
	assert.Equal(t, ModeToken, c.Mode())

	chunks, err := c.ChunkDocuments([]types.Document{
		{Content: "AAAAABBBBB"},
		{Content: "   "},
		{Content: "CCC"},
	})
	require.NoError(t, err)
	assert.Equal(t, []types.Chunk{
		{Index: 0, Text: "AAAAA"},
		{Index: 1, Text: "BBBBB"},
		{Index: 2, Text: "CCC"},
	}, chunks)
}

func TestChunkerUnknownMode(t *testing.T) {
	_, err := New(Mode("sentence"), 5, 1, "")
	assert.True(t, types.IsConfigError(err))
}
