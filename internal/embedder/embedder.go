// Package embedder turns text into fixed-dimension vectors. The production
// implementation calls the Gemini embedding API; consumers depend on the
// Embedder interface so tests can substitute fakes.
package embedder

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/cairn-ai/cairn/internal/log"
)

var (
	// ErrRateLimited indicates the provider returned HTTP 429. Retryable.
	ErrRateLimited = errors.New("embedding provider rate limited")

	// ErrProviderUnavailable indicates a provider 5xx or transport
	// failure. Retryable.
	ErrProviderUnavailable = errors.New("embedding provider unavailable")
)

const (
	// Dimension is the vector size produced for every input. It must
	// match the vector(768) columns in the schema.
	Dimension = 768

	// MaxBatchSize is the provider's ceiling on texts per call. Larger
	// inputs are split transparently: 250 texts means 3 calls.
	MaxBatchSize = 100
)

// Embedder generates one vector per input text, order-preserving. A non-nil
// error may accompany a partial result covering the texts embedded before
// the failure.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// embedCaller is the single provider call the Gemini embedder is built on.
// Narrowed to an interface so batching and error mapping are testable
// without the network.
type embedCaller interface {
	embedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Gemini is an Embedder backed by the Gemini embedding API.
type Gemini struct {
	raw     embedCaller
	limiter *rate.Limiter
	logger  log.Logger
}

// NewGemini creates a Gemini embedder. ratePerSec caps outbound provider
// calls; a non-positive value disables proactive limiting.
func NewGemini(client *genai.Client, model string, ratePerSec float64, logger log.Logger) *Gemini {
	if logger == nil {
		logger = log.NewNop()
	}

	var limiter *rate.Limiter
	if ratePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(ratePerSec), 1)
	}

	return &Gemini{
		raw:     &genaiCaller{client: client, model: model},
		limiter: limiter,
		logger:  logger,
	}
}

// Embed generates embeddings for all texts, splitting the input into
// provider-sized batches. On failure it returns the vectors for the batches
// that completed along with the error, so callers can persist the prefix.
func (g *Gemini) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += MaxBatchSize {
		end := min(start+MaxBatchSize, len(texts))

		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return vectors, fmt.Errorf("waiting for rate limiter: %w", err)
			}
		}

		batch, err := g.raw.embedBatch(ctx, texts[start:end])
		if err != nil {
			return vectors, fmt.Errorf("embedding batch at offset %d: %w", start, err)
		}
		if len(batch) != end-start {
			return vectors, fmt.Errorf("%w: got %d embeddings for %d texts",
				ErrProviderUnavailable, len(batch), end-start)
		}

		vectors = append(vectors, batch...)
	}

	g.logger.Debug("embedded texts", "count", len(texts))
	return vectors, nil
}

// genaiCaller is the real provider call.
type genaiCaller struct {
	client *genai.Client
	model  string
}

func (c *genaiCaller) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}

	dim := int32(Dimension)
	resp, err := c.client.Models.EmbedContent(ctx, c.model, contents, &genai.EmbedContentConfig{
		TaskType:             "RETRIEVAL_DOCUMENT",
		OutputDimensionality: &dim,
	})
	if err != nil {
		return nil, mapProviderError(err)
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		if e == nil || len(e.Values) == 0 {
			return nil, fmt.Errorf("%w: empty embedding at index %d", ErrProviderUnavailable, i)
		}
		vectors[i] = e.Values
	}
	return vectors, nil
}

// mapProviderError classifies API failures into the package sentinels.
// Client errors other than 429 pass through unwrapped, they are not
// retryable.
func mapProviderError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 429:
			return fmt.Errorf("%w: %v", ErrRateLimited, err)
		case apiErr.Code >= 500:
			return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
		default:
			return err
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	// Transport-level failure without an API status
	return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
}
