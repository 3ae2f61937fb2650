package backend

import (
	"strconv"
	"time"
)

// Role identifies one of the backend model functions served by the gateway.
// Each role is guarded by its own circuit breaker with an independent lifecycle.
type Role string

const (
	// RoleTextGeneration is the text-generation backend.
	RoleTextGeneration Role = "text-generation"

	// RoleEmbedding is the embedding backend.
	RoleEmbedding Role = "embedding"
)

// Roles lists every backend role the gateway serves.
var Roles = []Role{RoleTextGeneration, RoleEmbedding}

// Message represents a single role-tagged message in a conversation.
type Message struct {
	// Role identifies the message sender (user, assistant)
	Role string `json:"role"`

	// Content is the message text content
	Content string `json:"content"`
}

// Message role constants
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ContentBlock is a single block of generated content.
type ContentBlock struct {
	// Type is the block type (currently always "text")
	Type string `json:"type"`

	// Text is the block's text content
	Text string `json:"text,omitempty"`
}

// TokenUsage tracks token consumption for a single call.
type TokenUsage struct {
	// InputTokens is the number of tokens in the prompt
	InputTokens int `json:"input_tokens"`

	// OutputTokens is the number of generated tokens
	OutputTokens int `json:"output_tokens"`

	// TotalTokens is input + output
	TotalTokens int `json:"total_tokens"`
}

// GenerationRequest is a request to the text-generation backend.
// It is constructed by the caller, validated once by the gateway, and
// treated as immutable afterwards.
type GenerationRequest struct {
	// Model is the model identifier. Empty means the configured default.
	Model string `json:"model,omitempty"`

	// Messages is the ordered conversation history. Must be non-empty.
	Messages []Message `json:"messages"`

	// System is an optional system prompt.
	System string `json:"system,omitempty"`

	// MaxTokens bounds the generated output. Zero means the configured
	// default; the resolved value must be within [1, 8000].
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature controls randomness (0.0 to 1.0). Zero means the
	// configured default.
	Temperature float64 `json:"temperature,omitempty"`

	// TopP controls nucleus sampling (0.0 to 1.0).
	TopP float64 `json:"top_p,omitempty"`

	// TopK limits sampling to the K most likely tokens.
	TopK int `json:"top_k,omitempty"`

	// Stop sequences that will halt generation.
	Stop []string `json:"stop,omitempty"`
}

// GenerationResponse is the normalized result of one generation call.
// It is produced exactly once per call and never mutated.
type GenerationResponse struct {
	// ID is the backend's response identifier
	ID string `json:"id"`

	// Model is the model that generated the response
	Model string `json:"model"`

	// Content is the generated content blocks
	Content []ContentBlock `json:"content"`

	// StopReason indicates why generation stopped
	StopReason string `json:"stop_reason"`

	// Usage contains token consumption. Missing counts default to zero.
	Usage TokenUsage `json:"usage"`

	// Latency is the measured wall-clock duration of the backend call
	Latency time.Duration `json:"latency"`

	// Timestamp is when the response was produced
	Timestamp time.Time `json:"timestamp"`
}

// Text returns the concatenated text of all content blocks.
func (r *GenerationResponse) Text() string {
	var out string
	for _, block := range r.Content {
		out += block.Text
	}
	return out
}

// EmbeddingRequest is a request to the embedding backend for a single text.
type EmbeddingRequest struct {
	// Text is the input to embed. Must be non-empty after trimming.
	Text string `json:"text"`

	// Dimensions is the requested vector dimensionality. Zero means the
	// configured default; the resolved value must be one of AllowedDimensions.
	Dimensions int `json:"dimensions,omitempty"`

	// Normalize requests a unit-length vector from the backend. Nil means
	// the configured default.
	Normalize *bool `json:"normalize,omitempty"`
}

// EmbeddingBatchRequest embeds an ordered list of texts.
type EmbeddingBatchRequest struct {
	// Texts is the ordered list of inputs to embed.
	Texts []string `json:"texts"`

	// BatchSize overrides the configured backpressure window size when > 0.
	BatchSize int `json:"batch_size,omitempty"`

	// Dimensions and Normalize apply to every text in the batch.
	Dimensions int   `json:"dimensions,omitempty"`
	Normalize  *bool `json:"normalize,omitempty"`
}

// EmbeddingResponse is the normalized result of one embedding call.
//
// The vector length is whatever the backend returned. Callers that require a
// fixed downstream dimensionality must validate it themselves, for example
// with ValidateVectorDimensions.
type EmbeddingResponse struct {
	// Vector is the embedding vector
	Vector []float64 `json:"vector"`

	// InputTokens is the backend-reported input token count
	InputTokens int `json:"input_tokens"`

	// Latency is the measured wall-clock duration of the backend call
	Latency time.Duration `json:"latency"`

	// Timestamp is when the response was produced
	Timestamp time.Time `json:"timestamp"`
}

// AllowedDimensions is the set of vector dimensionalities the embedding
// backend supports.
var AllowedDimensions = []int{256, 512, 1024}

// DimensionAllowed reports whether dims is a dimensionality the embedding
// backend supports.
func DimensionAllowed(dims int) bool {
	for _, d := range AllowedDimensions {
		if dims == d {
			return true
		}
	}
	return false
}

// ValidateVectorDimensions checks a returned vector against an expected
// dimensionality. The gateway itself does not enforce a single global
// dimension; this helper is for callers that store vectors downstream.
func ValidateVectorDimensions(vector []float64, expected int) error {
	if len(vector) != expected {
		return &ClassifiedError{
			Code:      CodeEmbeddingDimensionMismatch,
			Category:  CategoryValidation,
			Message:   "embedding vector dimensionality does not match expectation",
			Retryable: false,
			Context: map[string]string{
				"expected": strconv.Itoa(expected),
				"actual":   strconv.Itoa(len(vector)),
			},
		}
	}
	return nil
}

// StreamEventType identifies the kind of a stream event.
type StreamEventType string

const (
	// StreamEventMessageStart carries the initial message envelope.
	StreamEventMessageStart StreamEventType = "message_start"

	// StreamEventDelta carries an incremental piece of generated text.
	StreamEventDelta StreamEventType = "content_block_delta"

	// StreamEventMessageDelta carries message-level updates (stop reason, usage).
	StreamEventMessageDelta StreamEventType = "message_delta"

	// StreamEventMessageStop marks the normal end of the stream.
	StreamEventMessageStop StreamEventType = "message_stop"
)

// StreamEvent is one element of a streamed generation response.
type StreamEvent struct {
	// Type is the event kind
	Type StreamEventType `json:"type"`

	// Delta is the incremental text for content_block_delta events
	Delta string `json:"delta,omitempty"`

	// Message carries the aggregate message for message_start events
	Message *GenerationResponse `json:"message,omitempty"`

	// Usage is set on message_delta events when the backend reports it
	Usage *TokenUsage `json:"usage,omitempty"`

	// StopReason is set on message_delta events when generation stopped
	StopReason string `json:"stop_reason,omitempty"`

	// Timestamp is when the event was decoded
	Timestamp time.Time `json:"timestamp"`
}

// StreamResult tags each element of a stream as either an event or a
// classified error. A stream delivers zero or more results with Event set,
// optionally terminated by exactly one result with Err set; the channel is
// closed afterwards either way.
type StreamResult struct {
	Event *StreamEvent
	Err   *ClassifiedError
}
