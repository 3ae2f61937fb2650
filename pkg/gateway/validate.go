package gateway

import (
	"fmt"
	"strings"

	"github.com/nimbusworks/modelgate/pkg/backend"
)

// Request limits enforced before any network or breaker cost is incurred.
const (
	// MaxOutputTokens bounds a generation request's resolved max-tokens.
	MaxOutputTokens = 8000

	// MaxEstimatedInputTokens bounds an embedding request's estimated input
	// token count.
	MaxEstimatedInputTokens = 8000

	// charsPerToken is the deliberately cheap token estimate used for
	// embedding inputs: text length divided by four, rounded up. It is not
	// a real tokenizer.
	charsPerToken = 4
)

// EstimateTokens estimates the token count of a text.
func EstimateTokens(text string) int {
	return (len(text) + charsPerToken - 1) / charsPerToken
}

// ValidateGeneration rejects a malformed generation request. resolvedMaxTokens
// is the request's max-tokens after the configured default has been applied.
// Pure and safe for concurrent use.
func ValidateGeneration(req *backend.GenerationRequest, resolvedMaxTokens int) *backend.ClassifiedError {
	if req == nil || len(req.Messages) == 0 {
		return backend.NewValidationError(backend.CodeInvalidRequest,
			"generation request requires at least one message")
	}

	for i, msg := range req.Messages {
		if strings.TrimSpace(msg.Content) == "" {
			return backend.NewValidationError(backend.CodeInvalidRequest,
				fmt.Sprintf("message %d has empty content", i))
		}
	}

	if resolvedMaxTokens < 1 || resolvedMaxTokens > MaxOutputTokens {
		return backend.NewValidationError(backend.CodeTokenLimitExceeded,
			fmt.Sprintf("max tokens must be within [1, %d], got %d", MaxOutputTokens, resolvedMaxTokens))
	}

	if req.Temperature < 0 || req.Temperature > 1 {
		return backend.NewValidationError(backend.CodeInvalidRequest,
			fmt.Sprintf("temperature must be within [0.0, 1.0], got %g", req.Temperature))
	}

	return nil
}

// ValidateEmbedding rejects a malformed embedding request. resolvedDimensions
// is the request's dimensionality after the configured default has been
// applied. Pure and safe for concurrent use.
func ValidateEmbedding(req *backend.EmbeddingRequest, resolvedDimensions int) *backend.ClassifiedError {
	if req == nil || strings.TrimSpace(req.Text) == "" {
		return backend.NewValidationError(backend.CodeInvalidRequest,
			"embedding request requires non-empty text")
	}

	if !backend.DimensionAllowed(resolvedDimensions) {
		return backend.NewValidationError(backend.CodeEmbeddingDimensionMismatch,
			fmt.Sprintf("dimensionality %d is not supported (allowed: %v)",
				resolvedDimensions, backend.AllowedDimensions))
	}

	if estimated := EstimateTokens(req.Text); estimated > MaxEstimatedInputTokens {
		return backend.NewValidationError(backend.CodeTokenLimitExceeded,
			fmt.Sprintf("estimated input of %d tokens exceeds the limit of %d",
				estimated, MaxEstimatedInputTokens))
	}

	return nil
}
