package chunk

import (
	"strings"
	"testing"
)

func TestSplit_EmptyInput(t *testing.T) {
	chunks, err := Split("", DefaultConfig())
	if err != nil {
		t.Fatalf("Split() error: %v", err)
	}
	if chunks != nil {
		t.Errorf("Split(\"\") = %v, want nil", chunks)
	}
}

func TestSplit_SequenceNumbersAreContiguous(t *testing.T) {
	text := strings.Repeat("the quick brown fox jumps over the lazy dog. ", 200)
	chunks, err := Split(text, Config{ChunkSize: 120, OverlapSize: 20, PreserveSentences: true})
	if err != nil {
		t.Fatalf("Split() error: %v", err)
	}
	if len(chunks) == 0 {
		t.Fatal("Split() produced no chunks")
	}
	for i, c := range chunks {
		if c.SequenceNumber != i {
			t.Errorf("chunk[%d].SequenceNumber = %d, want %d", i, c.SequenceNumber, i)
		}
	}
}

func TestSplit_ChunkLengthBound(t *testing.T) {
	text := strings.Repeat("a", 5000)
	chunkSize := 100
	chunks, err := Split(text, Config{ChunkSize: chunkSize, OverlapSize: 10, PreserveSentences: false})
	if err != nil {
		t.Fatalf("Split() error: %v", err)
	}
	bound := int(float64(chunkSize) * 1.5)
	for i, c := range chunks {
		if len(c.Content) > bound {
			t.Errorf("chunk[%d] length %d exceeds 1.5x chunkSize (%d)", i, len(c.Content), bound)
		}
	}
}

func TestSplit_PreservesSentenceBoundaries(t *testing.T) {
	text := "First sentence here. Second sentence follows! Third one too? Fourth sentence ends it."
	chunks, err := Split(text, Config{ChunkSize: 25, OverlapSize: 5, PreserveSentences: true})
	if err != nil {
		t.Fatalf("Split() error: %v", err)
	}
	for _, c := range chunks {
		trimmed := strings.TrimSpace(c.Content)
		if trimmed == "" {
			continue
		}
		last := trimmed[len(trimmed)-1]
		// A chunk is extended to a terminator only when that keeps it
		// under 1.5x ChunkSize; otherwise it is cut at ChunkSize, so any
		// chunk, not only the last, may end mid-sentence.
		if last != '.' && last != '!' && last != '?' {
			t.Logf("chunk %q does not end on a sentence terminator (none within 1.5x ChunkSize)", c.Content)
		}
	}
}

func TestSplit_OverlapBetweenConsecutiveChunks(t *testing.T) {
	text := strings.Repeat("0123456789", 50)
	chunks, err := Split(text, Config{ChunkSize: 40, OverlapSize: 10, PreserveSentences: false})
	if err != nil {
		t.Fatalf("Split() error: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatal("expected multiple chunks for a long repetitive input")
	}
	for i := 1; i < len(chunks); i++ {
		tail := chunks[i-1].Content
		if len(tail) > 10 {
			tail = tail[len(tail)-10:]
		}
		if !strings.HasPrefix(chunks[i].Content, tail) {
			t.Errorf("chunk[%d] does not begin with overlap tail of chunk[%d]", i, i-1)
		}
	}
}

func TestSplit_OffsetsReconstructContent(t *testing.T) {
	text := "First sentence here. Second sentence follows! Third one too? Fourth sentence ends it."
	chunks, err := Split(text, Config{ChunkSize: 25, OverlapSize: 5, PreserveSentences: true})
	if err != nil {
		t.Fatalf("Split() error: %v", err)
	}
	if len(chunks) == 0 {
		t.Fatal("Split() produced no chunks")
	}
	runes := []rune(text)
	for i, c := range chunks {
		if c.StartOffset < 0 || c.EndOffset > len(runes) || c.StartOffset > c.EndOffset {
			t.Fatalf("chunk[%d] has invalid offsets [%d,%d) for text of length %d", i, c.StartOffset, c.EndOffset, len(runes))
		}
		got := string(runes[c.StartOffset:c.EndOffset])
		if got != c.Content {
			t.Errorf("chunk[%d] text[%d:%d] = %q, want Content %q", i, c.StartOffset, c.EndOffset, got, c.Content)
		}
	}
}

func TestSplit_RejectsInvalidConfig(t *testing.T) {
	if _, err := Split("hello", Config{ChunkSize: 0}); err == nil {
		t.Error("Split() with zero chunk size: want error, got nil")
	}
	if _, err := Split("hello", Config{ChunkSize: 10, OverlapSize: 10}); err == nil {
		t.Error("Split() with overlap >= chunk size: want error, got nil")
	}
	if _, err := Split("hello", Config{ChunkSize: 10, OverlapSize: -1}); err == nil {
		t.Error("Split() with negative overlap: want error, got nil")
	}
}

func TestSplit_SourceOrderPreserved(t *testing.T) {
	text := "alpha beta gamma delta epsilon zeta eta theta iota kappa"
	chunks, err := Split(text, Config{ChunkSize: 15, OverlapSize: 3, PreserveSentences: false})
	if err != nil {
		t.Fatalf("Split() error: %v", err)
	}
	if len(chunks) == 0 {
		t.Fatal("Split() produced no chunks")
	}
	if !strings.HasPrefix(text, strings.Fields(chunks[0].Content)[0]) {
		t.Errorf("first chunk %q does not begin at the start of the source text", chunks[0].Content)
	}
	if !strings.HasSuffix(text, strings.Fields(chunks[len(chunks)-1].Content)[len(strings.Fields(chunks[len(chunks)-1].Content))-1]) {
		t.Errorf("last chunk %q does not end at the end of the source text", chunks[len(chunks)-1].Content)
	}
}
