package rag

import "fmt"

// ChunkText splits text into fixed-size overlapping windows. Offsets are
// rune positions, so multi-byte characters never split mid-rune. The window
// advances by size-overlap each step; the last chunk may be shorter. Empty
// text yields zero chunks and no error.
//
// For text of L runes, size C and overlap O, this produces
// ceil((L-O)/(C-O)) chunks with contiguous indices from 0.
func ChunkText(text string, size, overlap int) ([]Chunk, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size must be positive, got %d", ErrChunkConfig, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap must satisfy 0 <= overlap < size, got overlap=%d size=%d",
			ErrChunkConfig, overlap, size)
	}

	runes := []rune(text)
	if len(runes) == 0 {
		return nil, nil
	}

	step := size - overlap
	var chunks []Chunk
	for start := 0; start < len(runes); start += step {
		end := min(start+size, len(runes))

		chunkText := string(runes[start:end])
		chunks = append(chunks, Chunk{
			Index:      len(chunks),
			StartChar:  start,
			EndChar:    end,
			Text:       chunkText,
			TokenCount: estimateTokens(end - start),
		})

		if end == len(runes) {
			break
		}
	}

	return chunks, nil
}

// estimateTokens approximates token count as one token per four characters,
// rounded up.
func estimateTokens(runeCount int) int {
	return (runeCount + 3) / 4
}
