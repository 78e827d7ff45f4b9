package chunker

import (
	"fmt"
	"strconv"

	"priorart/internal/domain"
	"priorart/internal/logger"
)

// WindowChunker splits document text into overlapping fixed-size windows.
// Size and overlap are in characters (runes); offsets count runes from the
// start of the text, so multibyte text never splits mid-character.
type WindowChunker struct {
	size    int
	overlap int
}

// NewWindowChunker validates the window parameters. overlap must be
// smaller than size; anything else is a configuration error, not retried.
func NewWindowChunker(size, overlap int) (*WindowChunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", domain.ErrConfiguration, size)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("%w: chunk overlap must not be negative, got %d", domain.ErrConfiguration, overlap)
	}
	if overlap >= size {
		return nil, fmt.Errorf("%w: chunk overlap %d must be smaller than chunk size %d", domain.ErrConfiguration, overlap, size)
	}
	return &WindowChunker{size: size, overlap: overlap}, nil
}

// Chunk walks doc.Text with a window of c.size runes, advancing the start
// by size-overlap each step and emitting a chunk at every start position
// before the end of the text. The final window is truncated to the
// remaining text. Text that fits a single window produces exactly one
// chunk; an empty document yields zero chunks with a warning.
func (c *WindowChunker) Chunk(doc domain.SourceDocument) ([]domain.Chunk, error) {
	runes := []rune(doc.Text)
	if len(runes) == 0 {
		logger.Warn("source %s has empty text, no chunks produced", doc.ID)
		return nil, nil
	}

	if len(runes) <= c.size {
		return []domain.Chunk{c.newChunk(doc, 0, runes)}, nil
	}

	step := c.size - c.overlap
	chunks := make([]domain.Chunk, 0, (len(runes)+step-1)/step)

	for start := 0; start < len(runes); start += step {
		end := start + c.size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, c.newChunk(doc, start, runes[start:end]))
	}

	return chunks, nil
}

func (c *WindowChunker) newChunk(doc domain.SourceDocument, start int, text []rune) domain.Chunk {
	meta := make(map[string]string, len(doc.Metadata)+1)
	for k, v := range doc.Metadata {
		meta[k] = v
	}
	meta[domain.MetaStartOffset] = strconv.Itoa(start)

	return domain.Chunk{
		SourceID:    doc.ID,
		StartOffset: start,
		Text:        string(text),
		Metadata:    meta,
	}
}
