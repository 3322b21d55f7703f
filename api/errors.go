package api

import (
	"errors"
	"net/http"

	"github.com/cairn-ai/cairn/internal/catalog"
	"github.com/cairn-ai/cairn/internal/embedder"
	"github.com/cairn-ai/cairn/internal/rag"
	"github.com/cairn-ai/cairn/internal/vectorstore"
)

// writeDomainError maps typed domain errors onto HTTP statuses. Unknown
// errors become a generic 500 so internals never leak to clients.
func writeDomainError(w http.ResponseWriter, err error) {
	var partial *rag.PartialIndexError

	switch {
	case errors.Is(err, catalog.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "resource not found")
	case errors.Is(err, rag.ErrInvalidRequest), errors.Is(err, rag.ErrChunkConfig):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, embedder.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate_limited", "embedding provider rate limited, retry later")
	case errors.Is(err, embedder.ErrProviderUnavailable):
		writeError(w, http.StatusBadGateway, "provider_unavailable", "embedding provider unavailable, retry later")
	case errors.Is(err, vectorstore.ErrQueryTimeout):
		writeError(w, http.StatusGatewayTimeout, "query_timeout", "vector search timed out")
	case errors.Is(err, vectorstore.ErrQuotaExceeded):
		writeError(w, http.StatusServiceUnavailable, "quota_exceeded", "vector store refused the query")
	case errors.As(err, &partial):
		writeError(w, http.StatusInternalServerError, "partial_index", partial.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal", "internal server error")
	}
}
