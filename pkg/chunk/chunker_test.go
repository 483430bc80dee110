package chunk

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit_Empty(t *testing.T) {
	chunks := Split("", DefaultConfig())
	assert.Empty(t, chunks)
}

func TestSplit_SingleSmallDocument(t *testing.T) {
	content := "alpha\nbeta\ngamma"
	chunks := Split(content, DefaultConfig())

	require.Len(t, chunks, 1)
	assert.Equal(t, content, chunks[0].Content)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 3, chunks[0].EndLine)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, "1-3", chunks[0].ID)
}

func TestSplit_TinyBudget(t *testing.T) {
	// Target of 4 tokens (16 chars, clamped to 32) with no overlap still
	// covers all three lines, first chunk starting at line 1 and the last
	// ending at line 3.
	content := "alpha\nbeta\ngamma"
	chunks := Split(content, Config{TargetTokens: 4, OverlapTokens: 0})

	require.NotEmpty(t, chunks)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 3, chunks[len(chunks)-1].EndLine)

	var parts []string
	for _, c := range chunks {
		parts = append(parts, c.Content)
	}
	assert.Equal(t, content, strings.Join(parts, "\n"))
}

func TestSplit_LineCoverage(t *testing.T) {
	var b strings.Builder
	for i := 1; i <= 200; i++ {
		fmt.Fprintf(&b, "line %d with some additional padding text to fill space\n", i)
	}
	content := strings.TrimSuffix(b.String(), "\n")

	chunks := Split(content, DefaultConfig())
	require.NotEmpty(t, chunks)

	// Every line 1..200 must be covered by at least one chunk, ranges must
	// be ordered and contiguous or overlapping.
	covered := make(map[int]bool)
	prevEnd := 0
	for _, c := range chunks {
		assert.LessOrEqual(t, c.StartLine, c.EndLine)
		assert.LessOrEqual(t, c.StartLine, prevEnd+1, "gap before chunk %s", c.ID)
		for l := c.StartLine; l <= c.EndLine; l++ {
			covered[l] = true
		}
		prevEnd = c.EndLine
	}
	for l := 1; l <= 200; l++ {
		assert.True(t, covered[l], "line %d not covered", l)
	}
}

func TestSplit_OverlapBound(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 300; i++ {
		fmt.Fprintf(&b, "row-%03d abcdefghijklmnopqrstuvwxyz\n", i)
	}
	cfg := DefaultConfig() // 1600 chars target, 320 chars overlap
	chunks := Split(b.String(), cfg)
	require.Greater(t, len(chunks), 1)

	overlapChars := cfg.OverlapTokens * charsPerToken
	lines := strings.Split(b.String(), "\n")

	for i := 1; i < len(chunks); i++ {
		prev, cur := chunks[i-1], chunks[i]
		assert.LessOrEqual(t, cur.StartLine, prev.EndLine+1)

		// Shared lines stay within the overlap budget plus one line.
		shared := 0
		for l := cur.StartLine; l <= prev.EndLine; l++ {
			shared += len(lines[l-1]) + 1
		}
		maxLine := 0
		for _, l := range lines {
			if len(l)+1 > maxLine {
				maxLine = len(l) + 1
			}
		}
		assert.LessOrEqual(t, shared, overlapChars+maxLine)
	}
}

func TestSplit_OversizedLine(t *testing.T) {
	long := strings.Repeat("x", 5000)
	content := "short\n" + long + "\ntail"
	chunks := Split(content, Config{TargetTokens: 100, OverlapTokens: 0})

	// The oversized line is never split mid-line.
	found := false
	for _, c := range chunks {
		if c.Content == long {
			found = true
			assert.Equal(t, 2, c.StartLine)
			assert.Equal(t, 2, c.EndLine)
		}
	}
	assert.True(t, found, "oversized line should become its own chunk")
}

func TestSplit_Deterministic(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 100; i++ {
		fmt.Fprintf(&b, "deterministic line %d\n", i)
	}

	first := Split(b.String(), DefaultConfig())
	second := Split(b.String(), DefaultConfig())
	assert.Equal(t, first, second)
}

func TestSplitPlain(t *testing.T) {
	content := strings.Repeat("a", 100)
	chunks := SplitPlain(content, 4) // 16-char slices

	require.Len(t, chunks, 7)
	assert.Equal(t, "chunk-0", chunks[0].ID)
	total := 0
	for _, c := range chunks {
		total += len(c.Content)
	}
	assert.Equal(t, 100, total)
}

func TestSplitPlain_Empty(t *testing.T) {
	assert.Empty(t, SplitPlain("", 400))
}

func TestHashContent(t *testing.T) {
	a := HashContent("hello")
	b := HashContent("hello")
	c := HashContent("hello!")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestFilterNew(t *testing.T) {
	content := "first line with enough text\nsecond line with enough text\nthird line with enough text"
	chunks := Split(content, Config{TargetTokens: 1, OverlapTokens: 0})
	require.Greater(t, len(chunks), 1)

	existing := map[string]struct{}{chunks[0].Hash: {}}
	fresh := FilterNew(chunks, existing)
	assert.Len(t, fresh, len(chunks)-1)
	for _, c := range fresh {
		assert.NotEqual(t, chunks[0].Hash, c.Hash)
	}
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abc"))
	assert.Equal(t, 2, EstimateTokens("abcdefg"))
}
