package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Code identifies a kind of gateway failure.
type Code string

const (
	// CodeInvalidRequest indicates a malformed request, rejected before or
	// by the backend.
	CodeInvalidRequest Code = "invalid_request"

	// CodeTokenLimitExceeded indicates the request exceeds token limits.
	CodeTokenLimitExceeded Code = "token_limit_exceeded"

	// CodeEmbeddingDimensionMismatch indicates an unsupported or unexpected
	// embedding dimensionality.
	CodeEmbeddingDimensionMismatch Code = "embedding_dimension_mismatch"

	// CodeContentFiltered indicates the backend rejected the content for
	// safety reasons.
	CodeContentFiltered Code = "content_filtered"

	// CodeRateLimitExceeded indicates throttling or backend overload.
	CodeRateLimitExceeded Code = "rate_limit_exceeded"

	// CodeModelNotFound indicates an unknown or unsupported model identifier.
	CodeModelNotFound Code = "model_not_found"

	// CodeInvalidCredentials indicates an authentication or permission failure.
	CodeInvalidCredentials Code = "invalid_credentials"

	// CodeInvalidResponse indicates the backend returned a payload the
	// gateway could not decode.
	CodeInvalidResponse Code = "invalid_response"

	// CodeNetworkError indicates a connectivity failure or timeout.
	CodeNetworkError Code = "network_error"

	// CodeCircuitOpen indicates the circuit breaker rejected the call
	// without reaching the backend.
	CodeCircuitOpen Code = "circuit_open"

	// CodeUnknown is the conservative default for unrecognized failures.
	CodeUnknown Code = "unknown_error"
)

// Category groups error codes by their origin.
type Category string

const (
	// CategoryValidation covers failures detected before any network call.
	CategoryValidation Category = "validation"

	// CategoryBackend covers failures reported by the backend itself.
	CategoryBackend Category = "backend"

	// CategoryNetwork covers transport connectivity failures and timeouts.
	CategoryNetwork Category = "network"

	// CategoryCircuit covers rejections synthesized by the circuit breaker.
	CategoryCircuit Category = "circuit"
)

// ClassifiedError is the gateway's single error representation. Every failure
// path out of the gateway surfaces exactly one ClassifiedError; components
// other than the validator and the classifier propagate it unchanged.
type ClassifiedError struct {
	// Code is the error kind
	Code Code

	// Category groups the code by origin
	Category Category

	// Message is a human-readable description
	Message string

	// Retryable hints whether the caller may succeed by retrying.
	// The gateway itself never retries.
	Retryable bool

	// Context carries free-form observability context (operation, role, ...)
	Context map[string]string

	// Cause is the wrapped original error, if any
	Cause error
}

// Error implements the error interface.
func (e *ClassifiedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Code, e.Category, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Code, e.Category, e.Message)
}

// Unwrap returns the underlying error for error chain support.
func (e *ClassifiedError) Unwrap() error {
	return e.Cause
}

// WithContext returns e with an additional context key set. The receiver is
// returned for chaining; a nil context map is allocated on first use.
func (e *ClassifiedError) WithContext(key, value string) *ClassifiedError {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// AsClassified extracts a ClassifiedError from an error chain.
// Returns nil if the chain contains none.
func AsClassified(err error) *ClassifiedError {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce
	}
	return nil
}

// IsRetryable reports whether err carries a retryable classification.
// Unclassified errors are not retryable.
func IsRetryable(err error) bool {
	if ce := AsClassified(err); ce != nil {
		return ce.Retryable
	}
	return false
}

// NewValidationError creates a validation-category error. Validation failures
// are never retryable.
func NewValidationError(code Code, message string) *ClassifiedError {
	return &ClassifiedError{
		Code:      code,
		Category:  CategoryValidation,
		Message:   message,
		Retryable: false,
	}
}

// operationContext builds the base observability context every classified
// error carries.
func operationContext(operation string, role Role) map[string]string {
	return map[string]string{
		"operation": operation,
		"role":      string(role),
	}
}

// ClassifyTransportError maps a raw transport failure into exactly one
// ClassifiedError. Recognition is substring and type based against known
// patterns; anything unrecognized maps to CodeUnknown with the retryable
// flag set, the conservative default.
func ClassifyTransportError(operation string, role Role, err error) *ClassifiedError {
	if ce := AsClassified(err); ce != nil {
		// Already classified upstream; keep the original classification.
		return ce
	}

	ctx := operationContext(operation, role)
	msg := strings.ToLower(err.Error())

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout(),
		containsAny(msg, "timeout", "timed out", "deadline exceeded"):
		return &ClassifiedError{
			Code:      CodeNetworkError,
			Category:  CategoryNetwork,
			Message:   "backend call timed out",
			Retryable: true,
			Context:   ctx,
			Cause:     err,
		}

	case containsAny(msg, "connection refused", "connection reset", "no such host", "broken pipe", "network is unreachable", "eof"):
		return &ClassifiedError{
			Code:      CodeNetworkError,
			Category:  CategoryNetwork,
			Message:   "backend is unreachable",
			Retryable: true,
			Context:   ctx,
			Cause:     err,
		}

	case containsAny(msg, "throttl", "too many requests", "rate limit", "rate_limit"):
		return &ClassifiedError{
			Code:      CodeRateLimitExceeded,
			Category:  CategoryBackend,
			Message:   "backend throttled the request",
			Retryable: true,
			Context:   ctx,
			Cause:     err,
		}

	case containsAny(msg, "unauthorized", "forbidden", "access denied", "invalid api key", "credential", "authentication"):
		return &ClassifiedError{
			Code:      CodeInvalidCredentials,
			Category:  CategoryBackend,
			Message:   "backend rejected the credentials",
			Retryable: false,
			Context:   ctx,
			Cause:     err,
		}

	case containsAny(msg, "not found", "unsupported model", "unknown model", "model identifier"):
		return &ClassifiedError{
			Code:      CodeModelNotFound,
			Category:  CategoryBackend,
			Message:   "requested model is not available",
			Retryable: false,
			Context:   ctx,
			Cause:     err,
		}

	case containsAny(msg, "validation", "invalid request", "malformed", "bad request"):
		return &ClassifiedError{
			Code:      CodeInvalidRequest,
			Category:  CategoryValidation,
			Message:   "backend rejected the request as invalid",
			Retryable: false,
			Context:   ctx,
			Cause:     err,
		}
	}

	return &ClassifiedError{
		Code:      CodeUnknown,
		Category:  CategoryBackend,
		Message:   "unrecognized backend failure",
		Retryable: true,
		Context:   ctx,
		Cause:     err,
	}
}

// ClassifyPayloadError maps an error object found inside a backend response
// payload (including in-band stream errors) into exactly one ClassifiedError.
func ClassifyPayloadError(operation string, role Role, errType, message string) *ClassifiedError {
	ctx := operationContext(operation, role)
	lowered := strings.ToLower(errType + " " + message)

	switch {
	case containsAny(lowered, "content_filter", "content filter", "guardrail", "safety"):
		return &ClassifiedError{
			Code:      CodeContentFiltered,
			Category:  CategoryBackend,
			Message:   "backend filtered the content",
			Retryable: false,
			Context:   ctx,
			Cause:     fmt.Errorf("%s: %s", errType, message),
		}

	case containsAny(lowered, "overloaded", "rate_limit", "throttl"):
		return &ClassifiedError{
			Code:      CodeRateLimitExceeded,
			Category:  CategoryBackend,
			Message:   "backend is overloaded",
			Retryable: true,
			Context:   ctx,
			Cause:     fmt.Errorf("%s: %s", errType, message),
		}
	}

	return &ClassifiedError{
		Code:      CodeUnknown,
		Category:  CategoryBackend,
		Message:   "backend reported an error",
		Retryable: true,
		Context:   ctx,
		Cause:     fmt.Errorf("%s: %s", errType, message),
	}
}

// NewInvalidResponseError classifies a decode failure. Malformed backend
// payloads are fatal for the call and never retryable.
func NewInvalidResponseError(operation string, role Role, cause error) *ClassifiedError {
	return &ClassifiedError{
		Code:      CodeInvalidResponse,
		Category:  CategoryBackend,
		Message:   "backend returned an undecodable payload",
		Retryable: false,
		Context:   operationContext(operation, role),
		Cause:     cause,
	}
}

// NewCircuitOpenError classifies a circuit breaker rejection. Retryable is
// true: the caller may succeed once the breaker recovers.
func NewCircuitOpenError(operation string, role Role, cause error) *ClassifiedError {
	return &ClassifiedError{
		Code:      CodeCircuitOpen,
		Category:  CategoryCircuit,
		Message:   "circuit breaker is open for this backend",
		Retryable: true,
		Context:   operationContext(operation, role),
		Cause:     cause,
	}
}

func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
