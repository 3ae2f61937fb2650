package gateway

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nimbusworks/modelgate/pkg/backend"
	"github.com/nimbusworks/modelgate/pkg/config"
	"github.com/nimbusworks/modelgate/pkg/gateway/breaker"
	"github.com/nimbusworks/modelgate/pkg/telemetry/metrics"
	"github.com/nimbusworks/modelgate/pkg/usage"
)

// Deps are the gateway's collaborators. Transport is required; the rest are
// optional and skipped when nil.
type Deps struct {
	// Transport performs the raw backend calls.
	Transport backend.Transport

	// Metrics records request outcomes and breaker state.
	Metrics *metrics.GatewayMetrics

	// Usage records per-call token usage, best-effort.
	Usage usage.Recorder

	// Logger overrides slog.Default for gateway logging.
	Logger *slog.Logger
}

// Gateway is the single entry point for all model-backend calls. Every public
// operation validates the request, routes the call through the circuit
// breaker for its backend role, and guarantees that any failure leaves as a
// *backend.ClassifiedError.
//
// Breakers are explicit constructed values owned by the Gateway, one per
// backend role, built at construction time. Safe for concurrent use.
type Gateway struct {
	backendCfg config.BackendConfig
	batchCfg   config.BatchConfig

	invoker *backend.Invoker
	metrics *metrics.GatewayMetrics
	ledger  usage.Recorder
	logger  *slog.Logger

	// mu guards the breaker registry; breakers are swapped as a set when
	// reloaded tuning is applied.
	mu         sync.RWMutex
	breakers   map[backend.Role]*breaker.Breaker
	breakerCfg breaker.Config
}

// New constructs a gateway from configuration and collaborators.
func New(cfg *config.Config, deps Deps) (*Gateway, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "gateway")

	g := &Gateway{
		backendCfg: cfg.Backend,
		batchCfg:   cfg.Batch,
		metrics:    deps.Metrics,
		ledger:     deps.Usage,
		logger:     logger,
		breakerCfg: breaker.Config{
			FailureThreshold:         cfg.Breaker.FailureThreshold,
			OpenDuration:             cfg.Breaker.OpenDuration,
			HalfOpenSuccessesToClose: cfg.Breaker.HalfOpenSuccessesToClose,
		},
	}

	g.invoker = backend.NewInvoker(deps.Transport, backend.InvokerConfig{
		GenerationModel:    cfg.Backend.GenerationModel,
		EmbeddingModel:     cfg.Backend.EmbeddingModel,
		DefaultMaxTokens:   cfg.Backend.DefaultMaxTokens,
		DefaultTemperature: cfg.Backend.DefaultTemperature,
	})

	g.breakers = g.buildBreakers(g.breakerCfg)

	return g, nil
}

// buildBreakers constructs one breaker per backend role.
func (g *Gateway) buildBreakers(cfg breaker.Config) map[backend.Role]*breaker.Breaker {
	opts := []breaker.Option{}
	if g.metrics != nil {
		opts = append(opts, breaker.WithTransitionHook(func(name string, _, to breaker.Phase) {
			g.metrics.RecordBreakerTransition(name, string(to))
		}))
	}

	breakers := make(map[backend.Role]*breaker.Breaker, len(backend.Roles))
	for _, role := range backend.Roles {
		breakers[role] = breaker.New(string(role), cfg, opts...)
		if g.metrics != nil {
			// Seed the gauge so the phase is reported before any transition.
			g.metrics.SetBreakerPhase(string(role), string(breaker.PhaseClosed))
		}
	}
	return breakers
}

// breakerFor returns the breaker guarding a role.
func (g *Gateway) breakerFor(role backend.Role) *breaker.Breaker {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.breakers[role]
}

// GenerateText performs one validated, breaker-guarded text generation call.
func (g *Gateway) GenerateText(ctx context.Context, req *backend.GenerationRequest) (*backend.GenerationResponse, error) {
	requestID := uuid.NewString()
	start := time.Now()

	resolvedMax := g.resolveMaxTokens(req)
	if verr := ValidateGeneration(req, resolvedMax); verr != nil {
		return nil, g.fail(backend.RoleTextGeneration, backend.OpGenerate, requestID, verr)
	}

	var resp *backend.GenerationResponse
	err := g.breakerFor(backend.RoleTextGeneration).Execute(ctx, backend.OpGenerate, func(ctx context.Context) error {
		var callErr error
		resp, callErr = g.invoker.Generate(ctx, req)
		return callErr
	})
	if err != nil {
		return nil, g.fail(backend.RoleTextGeneration, backend.OpGenerate, requestID,
			g.ensureClassified(backend.OpGenerate, backend.RoleTextGeneration, err))
	}

	g.succeed(backend.RoleTextGeneration, backend.OpGenerate, requestID, resp.Model,
		resp.Usage.InputTokens, resp.Usage.OutputTokens, resp.Latency, time.Since(start))
	return resp, nil
}

// GenerateTextStream performs one validated, breaker-guarded streaming
// generation call. Only stream initiation is subject to the breaker; errors
// found mid-stream surface as StreamResults with Err set.
func (g *Gateway) GenerateTextStream(ctx context.Context, req *backend.GenerationRequest) (<-chan backend.StreamResult, error) {
	requestID := uuid.NewString()
	start := time.Now()

	resolvedMax := g.resolveMaxTokens(req)
	if verr := ValidateGeneration(req, resolvedMax); verr != nil {
		return nil, g.fail(backend.RoleTextGeneration, backend.OpGenerateStream, requestID, verr)
	}

	var stream <-chan backend.StreamResult
	err := g.breakerFor(backend.RoleTextGeneration).Execute(ctx, backend.OpGenerateStream, func(ctx context.Context) error {
		var callErr error
		stream, callErr = g.invoker.GenerateStream(ctx, req)
		return callErr
	})
	if err != nil {
		return nil, g.fail(backend.RoleTextGeneration, backend.OpGenerateStream, requestID,
			g.ensureClassified(backend.OpGenerateStream, backend.RoleTextGeneration, err))
	}

	if g.metrics != nil {
		g.metrics.RecordRequest(string(backend.RoleTextGeneration), backend.OpGenerateStream,
			time.Since(start).Seconds())
	}
	g.logger.Debug("stream initiated", "request_id", requestID)
	return stream, nil
}

// Embed performs one validated, breaker-guarded embedding call.
func (g *Gateway) Embed(ctx context.Context, req *backend.EmbeddingRequest) (*backend.EmbeddingResponse, error) {
	requestID := uuid.NewString()
	start := time.Now()

	resolved := g.resolveEmbedding(req)
	if verr := ValidateEmbedding(resolved, resolved.Dimensions); verr != nil {
		return nil, g.fail(backend.RoleEmbedding, backend.OpEmbed, requestID, verr)
	}

	resp, err := g.embedGuarded(ctx, resolved)
	if err != nil {
		return nil, g.fail(backend.RoleEmbedding, backend.OpEmbed, requestID,
			g.ensureClassified(backend.OpEmbed, backend.RoleEmbedding, err))
	}

	g.succeed(backend.RoleEmbedding, backend.OpEmbed, requestID, g.backendCfg.EmbeddingModel,
		resp.InputTokens, 0, resp.Latency, time.Since(start))
	return resp, nil
}

// embedGuarded runs one embedding call through the embedding breaker.
// The batch orchestrator uses it per item.
func (g *Gateway) embedGuarded(ctx context.Context, req *backend.EmbeddingRequest) (*backend.EmbeddingResponse, error) {
	var resp *backend.EmbeddingResponse
	err := g.breakerFor(backend.RoleEmbedding).Execute(ctx, backend.OpEmbed, func(ctx context.Context) error {
		var callErr error
		resp, callErr = g.invoker.Embed(ctx, req)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// ResetBreakers forces every breaker closed with zero counters.
// Administrative operation for recovery tooling and tests.
func (g *Gateway) ResetBreakers() {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for role, b := range g.breakers {
		b.Reset()
		g.logger.Info("breaker reset", "role", string(role))
	}
}

// ApplyBreakerConfig swaps in freshly tuned breakers for every role. Used by
// configuration hot-reload; in-flight calls finish against the breakers they
// were admitted by.
func (g *Gateway) ApplyBreakerConfig(cfg config.BreakerConfig) {
	bc := breaker.Config{
		FailureThreshold:         cfg.FailureThreshold,
		OpenDuration:             cfg.OpenDuration,
		HalfOpenSuccessesToClose: cfg.HalfOpenSuccessesToClose,
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.breakerCfg = bc
	g.breakers = g.buildBreakers(bc)
	g.logger.Info("breaker tuning applied",
		"failure_threshold", bc.FailureThreshold,
		"open_duration", bc.OpenDuration,
		"half_open_successes_to_close", bc.HalfOpenSuccessesToClose,
	)
}

// resolveMaxTokens applies the configured default when the request leaves
// max-tokens unset.
func (g *Gateway) resolveMaxTokens(req *backend.GenerationRequest) int {
	if req != nil && req.MaxTokens != 0 {
		return req.MaxTokens
	}
	return g.backendCfg.DefaultMaxTokens
}

// resolveEmbedding returns a copy of req with configured defaults applied.
func (g *Gateway) resolveEmbedding(req *backend.EmbeddingRequest) *backend.EmbeddingRequest {
	if req == nil {
		return nil
	}
	resolved := *req
	if resolved.Dimensions == 0 {
		resolved.Dimensions = g.backendCfg.DefaultDimensions
	}
	if resolved.Normalize == nil {
		resolved.Normalize = g.backendCfg.DefaultNormalize
	}
	return &resolved
}

// ensureClassified guarantees that every error leaving the facade is a
// *backend.ClassifiedError. Breaker rejections become CodeCircuitOpen; the
// invoker's errors are already classified.
func (g *Gateway) ensureClassified(operation string, role backend.Role, err error) *backend.ClassifiedError {
	if ce := backend.AsClassified(err); ce != nil {
		return ce
	}
	if openErr, ok := err.(*breaker.OpenError); ok {
		return backend.NewCircuitOpenError(operation, role, openErr)
	}
	return backend.ClassifyTransportError(operation, role, err)
}

// fail records a classified failure and returns it.
func (g *Gateway) fail(role backend.Role, operation, requestID string, cerr *backend.ClassifiedError) *backend.ClassifiedError {
	cerr.WithContext("request_id", requestID)
	if g.metrics != nil {
		g.metrics.RecordError(string(role), string(cerr.Code))
	}
	g.logger.Warn("request failed",
		"request_id", requestID,
		"role", string(role),
		"operation", operation,
		"code", string(cerr.Code),
		"retryable", cerr.Retryable,
	)
	return cerr
}

// succeed records metrics and usage for a successful call.
func (g *Gateway) succeed(role backend.Role, operation, requestID, model string,
	inputTokens, outputTokens int, backendLatency, total time.Duration) {

	if g.metrics != nil {
		g.metrics.RecordRequest(string(role), operation, total.Seconds())
		g.metrics.RecordTokens(string(role), inputTokens, outputTokens)
	}

	if g.ledger != nil {
		rec := usage.Record{
			ID:           requestID,
			Role:         string(role),
			Operation:    operation,
			Model:        model,
			InputTokens:  inputTokens,
			OutputTokens: outputTokens,
			LatencyMS:    backendLatency.Milliseconds(),
			CreatedAt:    time.Now(),
		}
		// Best-effort: a ledger failure never fails the request.
		if err := g.ledger.Record(context.Background(), rec); err != nil {
			g.logger.Error("usage record failed", "request_id", requestID, "error", err)
		}
	}

	g.logger.Debug("request succeeded",
		"request_id", requestID,
		"role", string(role),
		"operation", operation,
		"latency", backendLatency,
	)
}
