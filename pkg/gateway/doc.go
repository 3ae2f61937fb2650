// Package gateway is the resilient entry point for all model-backend calls:
// text generation (blocking and streaming) and embeddings (single and
// batched).
//
// # Architecture
//
// Every public operation follows the same path:
//
//	validate -> circuit breaker -> invoker -> typed result or ClassifiedError
//
// Validation is pure and rejects malformed requests before any network or
// breaker cost. Each backend role owns an independent three-state circuit
// breaker constructed by the gateway at initialization time. Any failure
// leaving the facade is a *backend.ClassifiedError carrying a code, category,
// and retryable hint; the gateway itself never retries.
//
// # Batching
//
// EmbedBatch processes texts in fixed-size windows with a fixed inter-window
// delay for backpressure. The policy is fail-fast: the first error within a
// window aborts the remaining windows and no partial results are returned.
//
// # Health
//
// GetHealth exposes a per-role and aggregate snapshot without blocking on
// in-flight backend calls; ResetBreakers forces every breaker closed for
// recovery tooling.
package gateway
