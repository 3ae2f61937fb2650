package backend

import (
	"encoding/json"
	"fmt"
	"time"
)

// Wire types for the backend payloads. The generation backend speaks a
// messages-style protocol; the embedding backend takes a single text with an
// optional dimensionality. Both are decoded into the typed response structs
// before anything else looks at them; a decode failure maps to
// CodeInvalidResponse rather than an untyped parse error.

type generationPayload struct {
	Messages      []wireMessage `json:"messages"`
	System        string        `json:"system,omitempty"`
	MaxTokens     int           `json:"max_tokens"`
	Temperature   float64       `json:"temperature,omitempty"`
	TopP          float64       `json:"top_p,omitempty"`
	TopK          int           `json:"top_k,omitempty"`
	StopSequences []string      `json:"stop_sequences,omitempty"`
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type wireContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type wireUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type wireError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type generationResult struct {
	Type       string             `json:"type"`
	ID         string             `json:"id"`
	Model      string             `json:"model"`
	Content    []wireContentBlock `json:"content"`
	StopReason string             `json:"stop_reason"`
	Usage      *wireUsage         `json:"usage,omitempty"`
	Error      *wireError         `json:"error,omitempty"`
}

type embeddingPayload struct {
	InputText  string `json:"inputText"`
	Dimensions int    `json:"dimensions,omitempty"`
	Normalize  *bool  `json:"normalize,omitempty"`
}

type embeddingResult struct {
	Embedding           []float64  `json:"embedding"`
	InputTextTokenCount int        `json:"inputTextTokenCount"`
	Error               *wireError `json:"error,omitempty"`
}

// streamChunk is one decoded chunk of a streaming generation response.
type streamChunk struct {
	Type string `json:"type"`

	// message_start carries the initial message envelope
	Message *generationResult `json:"message,omitempty"`

	// content_block_delta carries incremental text
	Delta *streamDelta `json:"delta,omitempty"`

	// message_delta carries usage once the backend knows it
	Usage *wireUsage `json:"usage,omitempty"`

	// error chunks carry an in-band failure
	Error *wireError `json:"error,omitempty"`
}

type streamDelta struct {
	Type       string `json:"type"`
	Text       string `json:"text,omitempty"`
	StopReason string `json:"stop_reason,omitempty"`
}

// buildGenerationPayload marshals a validated GenerationRequest into the wire
// format, omitting unset optional fields.
func buildGenerationPayload(req *GenerationRequest, defaultMaxTokens int, defaultTemperature float64) ([]byte, error) {
	payload := generationPayload{
		Messages:      make([]wireMessage, 0, len(req.Messages)),
		System:        req.System,
		MaxTokens:     req.MaxTokens,
		Temperature:   req.Temperature,
		TopP:          req.TopP,
		TopK:          req.TopK,
		StopSequences: req.Stop,
	}

	if payload.MaxTokens == 0 {
		payload.MaxTokens = defaultMaxTokens
	}
	if payload.Temperature == 0 {
		payload.Temperature = defaultTemperature
	}

	for _, msg := range req.Messages {
		payload.Messages = append(payload.Messages, wireMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	return json.Marshal(payload)
}

// buildEmbeddingPayload marshals a validated EmbeddingRequest into the wire
// format.
func buildEmbeddingPayload(req *EmbeddingRequest) ([]byte, error) {
	return json.Marshal(embeddingPayload{
		InputText:  req.Text,
		Dimensions: req.Dimensions,
		Normalize:  req.Normalize,
	})
}

// decodeGenerationResponse decodes and validates a raw generation payload
// into a GenerationResponse. A backend-reported error inside the payload is
// classified; a decode failure maps to CodeInvalidResponse.
func decodeGenerationResponse(operation string, raw []byte, latency time.Duration) (*GenerationResponse, *ClassifiedError) {
	var result generationResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, NewInvalidResponseError(operation, RoleTextGeneration, err)
	}

	if result.Error != nil {
		return nil, ClassifyPayloadError(operation, RoleTextGeneration, result.Error.Type, result.Error.Message)
	}

	if len(result.Content) == 0 && result.ID == "" {
		return nil, NewInvalidResponseError(operation, RoleTextGeneration,
			fmt.Errorf("payload carries neither content nor a message id"))
	}

	resp := &GenerationResponse{
		ID:         result.ID,
		Model:      result.Model,
		Content:    make([]ContentBlock, 0, len(result.Content)),
		StopReason: result.StopReason,
		Latency:    latency,
		Timestamp:  time.Now(),
	}

	for _, block := range result.Content {
		resp.Content = append(resp.Content, ContentBlock{
			Type: block.Type,
			Text: block.Text,
		})
	}

	// Missing usage counts default to zero.
	if result.Usage != nil {
		resp.Usage = TokenUsage{
			InputTokens:  result.Usage.InputTokens,
			OutputTokens: result.Usage.OutputTokens,
			TotalTokens:  result.Usage.InputTokens + result.Usage.OutputTokens,
		}
	}

	return resp, nil
}

// decodeEmbeddingResponse decodes and validates a raw embedding payload into
// an EmbeddingResponse.
func decodeEmbeddingResponse(operation string, raw []byte, latency time.Duration) (*EmbeddingResponse, *ClassifiedError) {
	var result embeddingResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, NewInvalidResponseError(operation, RoleEmbedding, err)
	}

	if result.Error != nil {
		return nil, ClassifyPayloadError(operation, RoleEmbedding, result.Error.Type, result.Error.Message)
	}

	if len(result.Embedding) == 0 {
		return nil, NewInvalidResponseError(operation, RoleEmbedding,
			fmt.Errorf("payload carries no embedding vector"))
	}

	return &EmbeddingResponse{
		Vector:      result.Embedding,
		InputTokens: result.InputTextTokenCount,
		Latency:     latency,
		Timestamp:   time.Now(),
	}, nil
}

// decodeStreamChunk decodes one raw stream chunk.
func decodeStreamChunk(raw []byte) (*streamChunk, error) {
	var chunk streamChunk
	if err := json.Unmarshal(raw, &chunk); err != nil {
		return nil, fmt.Errorf("failed to decode stream chunk: %w", err)
	}
	if chunk.Type == "" && chunk.Error == nil {
		return nil, fmt.Errorf("stream chunk carries no type")
	}
	return &chunk, nil
}
