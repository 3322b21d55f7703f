package rag

import (
	"errors"
	"fmt"
)

// ErrChunkConfig indicates an invalid chunk size/overlap pair. Raised
// before any I/O so a bad configuration never reaches the stores.
var ErrChunkConfig = errors.New("invalid chunking configuration")

// ErrInvalidRequest indicates a malformed index or search request.
var ErrInvalidRequest = errors.New("invalid request")

// PartialIndexError reports an indexing run that wrote some chunks before
// failing. There is no rollback; indexing is at-least-once and a retry
// starts over from a clean delete.
type PartialIndexError struct {
	Written  int
	Expected int
	Err      error
}

func (e *PartialIndexError) Error() string {
	return fmt.Sprintf("indexing failed after %d of %d chunks: %v", e.Written, e.Expected, e.Err)
}

func (e *PartialIndexError) Unwrap() error {
	return e.Err
}
