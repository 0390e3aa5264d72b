// Package chunk splits source text into bounded, ordered slices ready
// for QR-frame encoding, optionally snapping chunk boundaries to
// sentence terminators so a frame never cuts a sentence in half.
package chunk

import (
	"github.com/vidqr/vidqr/pkg/vidqrerr"
)

// Chunk is one bounded slice of source text.
type Chunk struct {
	Content        string
	SequenceNumber int

	// StartOffset and EndOffset are rune positions in the source text
	// that produced Content, after trimming the leading/trailing
	// whitespace Split strips before storing the chunk — so
	// text[StartOffset:EndOffset] (as runes) reconstructs Content
	// exactly, not the padded window Split proposed internally.
	StartOffset int
	EndOffset   int

	// ParentIndex optionally names the SequenceNumber of a chunk this
	// one was derived from (e.g. a re-chunking pass over an existing
	// chunk's content). Split never sets it; nil means "top-level".
	ParentIndex *int

	// Metadata carries caller-attached string key/value pairs through
	// the pipeline. Split never populates it.
	Metadata map[string]string
}

// Config controls chunk boundaries.
type Config struct {
	ChunkSize         int // max characters per chunk
	OverlapSize       int // characters of tail retained in the next chunk's head
	PreserveSentences bool
}

func DefaultConfig() Config {
	return Config{ChunkSize: 1000, OverlapSize: 100, PreserveSentences: true}
}

var sentenceTerminators = map[rune]bool{'.': true, '!': true, '?': true}

// Split walks text with a cursor, proposing end = min(cursor+ChunkSize,
// len(text)) at each step. When PreserveSentences is set and the
// proposed end falls short of the text's end, it looks ahead for the
// next sentence terminator and skips trailing whitespace, accepting
// that boundary only if it doesn't push the chunk past 1.5x ChunkSize.
// The cursor then advances to max(cursor+1, end-OverlapSize), so
// consecutive chunks overlap by up to OverlapSize characters.
func Split(text string, cfg Config) ([]Chunk, error) {
	if cfg.ChunkSize <= 0 {
		return nil, vidqrerr.Invalid("chunk.Split", errInvalidChunkSize)
	}
	if cfg.OverlapSize < 0 || cfg.OverlapSize >= cfg.ChunkSize {
		return nil, vidqrerr.Invalid("chunk.Split", errInvalidOverlapSize)
	}

	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil, nil
	}

	var chunks []Chunk
	cursor := 0
	limit := float64(cfg.ChunkSize) * 1.5

	for cursor < n {
		end := cursor + cfg.ChunkSize
		if end > n {
			end = n
		}

		if cfg.PreserveSentences && end < n {
			if candidate, ok := nextSentenceBoundary(runes, end); ok && float64(candidate-cursor) < limit {
				end = candidate
			}
		}

		trimStart, trimEnd := trimRuneBounds(runes, cursor, end)
		if trimStart < trimEnd {
			chunks = append(chunks, Chunk{
				Content:        string(runes[trimStart:trimEnd]),
				SequenceNumber: len(chunks),
				StartOffset:    trimStart,
				EndOffset:      trimEnd,
			})
		}

		next := end - cfg.OverlapSize
		if next < cursor+1 {
			next = cursor + 1
		}
		cursor = next

		if end >= n {
			break
		}
	}
	return chunks, nil
}

// nextSentenceBoundary scans forward from `from` for the next sentence
// terminator, then skips any whitespace that follows it, returning the
// resulting offset. ok is false if no terminator exists before the end
// of the text.
func nextSentenceBoundary(runes []rune, from int) (int, bool) {
	i := from
	for i < len(runes) && !sentenceTerminators[runes[i]] {
		i++
	}
	if i >= len(runes) {
		return 0, false
	}
	i++ // past the terminator
	for i < len(runes) && isSpace(runes[i]) {
		i++
	}
	return i, true
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

// trimRuneBounds narrows [from, to) to exclude leading and trailing
// whitespace (per isSpace), returning absolute rune offsets into runes
// rather than a copied, re-indexed string.
func trimRuneBounds(runes []rune, from, to int) (int, int) {
	for from < to && isSpace(runes[from]) {
		from++
	}
	for to > from && isSpace(runes[to-1]) {
		to--
	}
	return from, to
}
