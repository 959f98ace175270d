package pipeline

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestChunkShortText(t *testing.T) {
	chunks := Chunk("short text", 8000, 200)
	if len(chunks) != 1 || chunks[0] != "short text" {
		t.Fatalf("chunks = %v", chunks)
	}
}

func TestChunkOverlap(t *testing.T) {
	text := strings.Repeat("a", 250) + strings.Repeat("b", 250)
	chunks := Chunk(text, 300, 50)

	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if len(chunks[0]) != 300 {
		t.Fatalf("first chunk length = %d", len(chunks[0]))
	}
	// The second window starts 50 characters before the first one ended.
	if chunks[0][250:] != chunks[1][:50] {
		t.Fatalf("overlap mismatch: %q vs %q", chunks[0][250:], chunks[1][:50])
	}
	if chunks[1][len(chunks[1])-1] != 'b' {
		t.Fatalf("last chunk must reach the end of the text")
	}
}

func TestChunkCoversWholeText(t *testing.T) {
	text := strings.Repeat("x", 1000)
	chunks := Chunk(text, 300, 100)

	covered := 0
	for i, c := range chunks {
		if i == 0 {
			covered = len(c)
		} else {
			covered += len(c) - 100
		}
	}
	if covered != len(text) {
		t.Fatalf("windows cover %d of %d characters", covered, len(text))
	}
}

func TestChunkKeepsRunesIntact(t *testing.T) {
	// An odd window over 2-byte runes would split a character without
	// the boundary adjustment.
	text := strings.Repeat("é", 300)
	chunks := Chunk(text, 301, 50)

	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if !utf8.ValidString(c) {
			t.Fatalf("chunk %d is not valid UTF-8: %q", i, c)
		}
	}
	last := chunks[len(chunks)-1]
	if !strings.HasSuffix(text, last) {
		t.Fatalf("last chunk must reach the end of the text")
	}
}

func TestFirstChunkNote(t *testing.T) {
	short := FirstChunk("tiny", 8000, 200)
	if short != "tiny" {
		t.Fatalf("short text must pass through untouched: %q", short)
	}

	long := FirstChunk(strings.Repeat("z", 700), 300, 100)
	if !strings.HasPrefix(long, strings.Repeat("z", 300)) {
		t.Fatalf("first window corrupted")
	}
	if !strings.Contains(long, "additional chunk(s) truncated") {
		t.Fatalf("truncation note missing: %q", long)
	}
}
