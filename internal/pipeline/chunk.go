package pipeline

import (
	"fmt"
	"unicode/utf8"
)

// Default chunk windows. Extraction sees a larger window than curation
// and quality assurance; overlap is shared.
const (
	DefaultExtractChunkSize = 8000
	DefaultCurateChunkSize  = 4000
	DefaultChunkOverlap     = 200
)

// Chunk splits text into sequential overlapping windows of at most size
// characters. The next window starts at previousEnd - overlap. Text
// shorter than the window yields exactly one chunk equal to the input.
func Chunk(text string, size, overlap int) []string {
	if size <= 0 || len(text) <= size {
		return []string{text}
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	var chunks []string
	start := 0
	for {
		end := runeBoundary(text, start+size)
		if end <= start {
			end = start + size
		}
		if end >= len(text) {
			chunks = append(chunks, text[start:])
			return chunks
		}
		chunks = append(chunks, text[start:end])
		start = runeBoundary(text, end-overlap)
	}
}

// runeBoundary backs i up to the start of a UTF-8 rune so a window never
// splits a multi-byte character.
func runeBoundary(s string, i int) int {
	for i > 0 && i < len(s) && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}

// FirstChunk returns the first window of the text. Later chunks are not
// sent to the model given its context limits; when they exist a note is
// appended so the model knows the document continues.
func FirstChunk(text string, size, overlap int) string {
	chunks := Chunk(text, size, overlap)
	if len(chunks) == 1 {
		return chunks[0]
	}
	return chunks[0] + fmt.Sprintf("\n\n[Note: document continues beyond this excerpt; %d additional chunk(s) truncated]", len(chunks)-1)
}
