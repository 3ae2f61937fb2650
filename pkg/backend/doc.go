// Package backend normalizes all interaction with the external model
// backends: one text-generation backend and one embedding backend.
//
// # Overview
//
// The package has three layers:
//
//  1. Transport - the minimal network contract (InvokeModel, InvokeModelStream),
//     implemented by an adapter such as HTTPTransport
//  2. Invoker - performs exactly one call per operation, builds the wire
//     payload, measures latency, and decodes the raw response into typed
//     structs
//  3. Error classification - maps every failure signal (transport errors,
//     backend-reported error payloads, undecodable responses) into exactly
//     one ClassifiedError carrying a code, category, and retryable hint
//
// The invoker is never called directly by application code; the gateway
// routes every call through the circuit breaker for the operation's role.
//
// # Errors
//
// All failure paths surface a *ClassifiedError. The Retryable flag is a
// caller-facing hint only: nothing in this package retries.
//
//	resp, err := invoker.Generate(ctx, req)
//	if err != nil {
//	    if backend.IsRetryable(err) {
//	        // schedule a retry upstream
//	    }
//	    return err
//	}
//
// # Streaming
//
// ConsumeStream converts a raw ChunkStream into a channel of StreamResult
// values, each either an event or a classified error. The first error
// terminates the sequence; no further chunks are read.
package backend
