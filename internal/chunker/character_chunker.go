package chunker

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"transcript-parser/internal/domain"
)

// CharacterChunker splits transcripts into fixed-size chunks with overlap.
// Chunk ends are snapped to the nearest paragraph, sentence or word boundary
// inside a tail window so semantic units survive splitting where possible.
type CharacterChunker struct {
	size    int
	overlap int
}

func NewCharacterChunker(size, overlap int) *CharacterChunker {
	if size <= 0 {
		size = 1000
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 10
	}
	return &CharacterChunker{size: size, overlap: overlap}
}

// Load reads a transcript file as UTF-8 text. Unreadable paths and invalid
// encodings are input errors, fatal to the pipeline run.
func Load(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read transcript: %w", err)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("read transcript %s: not valid UTF-8", path)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", domain.ErrEmptyTranscript
	}
	return string(data), nil
}

func (c *CharacterChunker) Chunk(t domain.Transcript) ([]domain.Chunk, error) {
	runes := []rune(t.Text)
	if len(strings.TrimSpace(t.Text)) == 0 {
		return nil, domain.ErrEmptyTranscript
	}
	var chunks []domain.Chunk
	start := 0
	idx := 0
	for start < len(runes) {
		end := start + c.size
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = c.snapEnd(runes, start, end)
		}
		text := string(runes[start:end])
		if strings.TrimSpace(text) != "" {
			chunks = append(chunks, domain.Chunk{
				TranscriptID: t.ID,
				ChunkID:      t.ID + ":" + strconv.Itoa(idx),
				Text:         text,
				Index:        idx,
				Start:        start,
			})
			idx++
		}
		if end == len(runes) {
			break
		}
		next := end - c.overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return chunks, nil
}

// snapEnd moves the cut point backwards to a boundary, preferring paragraph
// breaks over sentence ends over whitespace. The search window is the last
// fifth of the chunk; if no boundary falls inside it, the hard limit stands.
func (c *CharacterChunker) snapEnd(runes []rune, start, end int) int {
	window := c.size / 5
	lo := end - window
	if lo < start+1 {
		lo = start + 1
	}
	if i := lastBoundary(runes, lo, end, isParagraphBreak); i > 0 {
		return i
	}
	if i := lastBoundary(runes, lo, end, isSentenceEnd); i > 0 {
		return i
	}
	if i := lastBoundary(runes, lo, end, isSpace); i > 0 {
		return i
	}
	return end
}

func lastBoundary(runes []rune, lo, hi int, at func([]rune, int) bool) int {
	for i := hi - 1; i >= lo; i-- {
		if at(runes, i) {
			return i + 1
		}
	}
	return -1
}

func isParagraphBreak(runes []rune, i int) bool {
	return runes[i] == '\n' && i > 0 && runes[i-1] == '\n'
}

func isSentenceEnd(runes []rune, i int) bool {
	if runes[i] != '.' && runes[i] != '!' && runes[i] != '?' {
		return false
	}
	return i+1 >= len(runes) || runes[i+1] == ' ' || runes[i+1] == '\n'
}

func isSpace(runes []rune, i int) bool {
	return runes[i] == ' ' || runes[i] == '\n' || runes[i] == '\t'
}
