package backend

import (
	"context"
	"log/slog"
	"time"
)

// Operation names carried as error context and log fields.
const (
	OpGenerate       = "generate"
	OpGenerateStream = "generate_stream"
	OpEmbed          = "embed"
)

// InvokerConfig holds the backend defaults the invoker applies when a request
// leaves them unset.
type InvokerConfig struct {
	// GenerationModel is the default text-generation model identifier.
	GenerationModel string

	// EmbeddingModel is the default embedding model identifier.
	EmbeddingModel string

	// DefaultMaxTokens is applied when a generation request has MaxTokens 0.
	DefaultMaxTokens int

	// DefaultTemperature is applied when a generation request has Temperature 0.
	DefaultTemperature float64
}

// Invoker performs exactly one network call per operation and normalizes its
// outcome: a typed response on success, a ClassifiedError on any failure.
//
// Callers never use the Invoker directly; the gateway routes every call
// through the circuit breaker for the operation's role.
type Invoker struct {
	transport Transport
	config    InvokerConfig
	logger    *slog.Logger
}

// NewInvoker creates an invoker over the given transport.
func NewInvoker(transport Transport, config InvokerConfig) *Invoker {
	return &Invoker{
		transport: transport,
		config:    config,
		logger:    slog.Default().With("component", "backend.invoker"),
	}
}

// modelFor resolves the model identifier for a request, falling back to the
// configured default for the role.
func (iv *Invoker) modelFor(requested string, role Role) string {
	if requested != "" {
		return requested
	}
	if role == RoleEmbedding {
		return iv.config.EmbeddingModel
	}
	return iv.config.GenerationModel
}

// Generate performs one text-generation call.
func (iv *Invoker) Generate(ctx context.Context, req *GenerationRequest) (*GenerationResponse, error) {
	payload, err := buildGenerationPayload(req, iv.config.DefaultMaxTokens, iv.config.DefaultTemperature)
	if err != nil {
		return nil, NewInvalidResponseError(OpGenerate, RoleTextGeneration, err)
	}

	modelID := iv.modelFor(req.Model, RoleTextGeneration)
	start := time.Now()

	raw, err := iv.transport.InvokeModel(ctx, modelID, payload)
	latency := time.Since(start)
	if err != nil {
		classified := ClassifyTransportError(OpGenerate, RoleTextGeneration, err)
		iv.logger.Warn("generation call failed",
			"model", modelID,
			"code", string(classified.Code),
			"latency", latency,
		)
		return nil, classified
	}

	resp, cerr := decodeGenerationResponse(OpGenerate, raw, latency)
	if cerr != nil {
		return nil, cerr
	}
	if resp.Model == "" {
		resp.Model = modelID
	}

	iv.logger.Debug("generation call succeeded",
		"model", modelID,
		"tokens", resp.Usage.TotalTokens,
		"stop_reason", resp.StopReason,
		"latency", latency,
	)

	return resp, nil
}

// GenerateStream initiates one streaming text-generation call and returns the
// consumed event sequence. Only the initiating call is subject to the circuit
// breaker; reading already-obtained chunks is not.
func (iv *Invoker) GenerateStream(ctx context.Context, req *GenerationRequest) (<-chan StreamResult, error) {
	payload, err := buildGenerationPayload(req, iv.config.DefaultMaxTokens, iv.config.DefaultTemperature)
	if err != nil {
		return nil, NewInvalidResponseError(OpGenerateStream, RoleTextGeneration, err)
	}

	modelID := iv.modelFor(req.Model, RoleTextGeneration)

	stream, err := iv.transport.InvokeModelStream(ctx, modelID, payload)
	if err != nil {
		classified := ClassifyTransportError(OpGenerateStream, RoleTextGeneration, err)
		iv.logger.Warn("stream initiation failed",
			"model", modelID,
			"code", string(classified.Code),
		)
		return nil, classified
	}

	return ConsumeStream(ctx, stream, OpGenerateStream, iv.logger), nil
}

// Embed performs one embedding call. The returned vector's length is whatever
// the backend produced; callers needing a fixed dimensionality validate it
// themselves.
func (iv *Invoker) Embed(ctx context.Context, req *EmbeddingRequest) (*EmbeddingResponse, error) {
	payload, err := buildEmbeddingPayload(req)
	if err != nil {
		return nil, NewInvalidResponseError(OpEmbed, RoleEmbedding, err)
	}

	modelID := iv.modelFor("", RoleEmbedding)
	start := time.Now()

	raw, err := iv.transport.InvokeModel(ctx, modelID, payload)
	latency := time.Since(start)
	if err != nil {
		classified := ClassifyTransportError(OpEmbed, RoleEmbedding, err)
		iv.logger.Warn("embedding call failed",
			"model", modelID,
			"code", string(classified.Code),
			"latency", latency,
		)
		return nil, classified
	}

	resp, cerr := decodeEmbeddingResponse(OpEmbed, raw, latency)
	if cerr != nil {
		return nil, cerr
	}

	iv.logger.Debug("embedding call succeeded",
		"model", modelID,
		"dimensions", len(resp.Vector),
		"input_tokens", resp.InputTokens,
		"latency", latency,
	)

	return resp, nil
}
