package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Chunk is a bounded, line-addressed slice of a document. It is the unit of
// embedding and retrieval.
type Chunk struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	Hash      string `json:"hash"`
	Index     int    `json:"index"`
}

// Config controls chunk sizing. Budgets are expressed in tokens and converted
// to characters with the 1 token ~= 4 chars approximation.
type Config struct {
	TargetTokens  int
	OverlapTokens int
}

// DefaultConfig returns the default chunking configuration.
func DefaultConfig() Config {
	return Config{
		TargetTokens:  400,
		OverlapTokens: 80,
	}
}

const charsPerToken = 4

// EstimateTokens estimates the token count for a text.
func EstimateTokens(text string) int {
	return (len(text) + charsPerToken - 1) / charsPerToken
}

// HashContent returns the hex-encoded SHA-256 digest of the text. It is used
// both as chunk identity and as a whole-document fingerprint.
func HashContent(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

type numberedLine struct {
	text   string
	lineNo int
}

// Split divides content into overlapping chunks along line boundaries.
//
// Lines are accumulated greedily; when adding the next line would exceed the
// target budget the current buffer is closed and the trailing lines worth
// roughly the overlap budget seed the next chunk. Line boundaries are never
// crossed, so a single oversized line becomes its own chunk. Identical input
// and config always produce byte-identical chunks.
func Split(content string, cfg Config) []Chunk {
	if content == "" {
		return nil
	}

	maxChars := cfg.TargetTokens * charsPerToken
	if maxChars < 32 {
		maxChars = 32
	}
	overlapChars := cfg.OverlapTokens * charsPerToken
	if overlapChars < 0 {
		overlapChars = 0
	}

	var (
		chunks       []Chunk
		currentLines []numberedLine
		currentChars int
		chunkIndex   int
	)

	closeChunk := func() {
		text := joinLines(currentLines)
		start := currentLines[0].lineNo
		end := currentLines[len(currentLines)-1].lineNo
		chunks = append(chunks, Chunk{
			ID:        fmt.Sprintf("%d-%d", start, end),
			Content:   text,
			StartLine: start,
			EndLine:   end,
			Hash:      HashContent(text),
			Index:     chunkIndex,
		})
		chunkIndex++
	}

	// carryOverlap collects trailing lines of the just-closed buffer, in
	// original order, until their character count reaches the overlap budget.
	carryOverlap := func() []numberedLine {
		if overlapChars <= 0 || len(currentLines) == 0 {
			return nil
		}
		acc := 0
		var kept []numberedLine
		for i := len(currentLines) - 1; i >= 0; i-- {
			entry := currentLines[i]
			acc += len(entry.text) + 1 // +1 for newline
			kept = append([]numberedLine{entry}, kept...)
			if acc >= overlapChars {
				break
			}
		}
		return kept
	}

	for lineNo, text := range strings.Split(content, "\n") {
		line := numberedLine{text: text, lineNo: lineNo + 1}

		if currentChars+len(line.text)+1 > maxChars && len(currentLines) > 0 {
			closeChunk()

			carried := carryOverlap()
			currentLines = currentLines[:0]
			currentChars = 0
			for _, entry := range carried {
				currentLines = append(currentLines, entry)
				currentChars += len(entry.text) + 1
			}
		}

		currentLines = append(currentLines, line)
		currentChars += len(line.text) + 1
	}

	if len(currentLines) > 0 {
		closeChunk()
	}

	return chunks
}

// SplitPlain slices content into fixed-size character chunks without overlap
// or line awareness. It must not be used for content that requires
// line-accurate citation; StartLine/EndLine carry byte offsets instead.
func SplitPlain(content string, targetTokens int) []Chunk {
	if content == "" {
		return nil
	}

	maxChars := targetTokens * charsPerToken
	if maxChars <= 0 {
		maxChars = DefaultConfig().TargetTokens * charsPerToken
	}

	var chunks []Chunk
	for start, index := 0, 0; start < len(content); index++ {
		end := start + maxChars
		if end > len(content) {
			end = len(content)
		}
		text := content[start:end]
		chunks = append(chunks, Chunk{
			ID:        fmt.Sprintf("chunk-%d", index),
			Content:   text,
			StartLine: start,
			EndLine:   end,
			Hash:      HashContent(text),
			Index:     index,
		})
		start = end
	}

	return chunks
}

// FilterNew returns the chunks whose hashes are not in existing.
func FilterNew(chunks []Chunk, existing map[string]struct{}) []Chunk {
	var fresh []Chunk
	for _, c := range chunks {
		if _, ok := existing[c.Hash]; !ok {
			fresh = append(fresh, c)
		}
	}
	return fresh
}

func joinLines(lines []numberedLine) string {
	var b strings.Builder
	for i, l := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(l.text)
	}
	return b.String()
}
