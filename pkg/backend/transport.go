package backend

import "context"

// Transport performs the raw network calls to a model backend. Adapters
// implementing it own connection management, authentication, and per-call
// deadlines; the gateway treats them as opaque collaborators.
//
// Implementations must respect context cancellation and return immediately
// when the context is cancelled.
type Transport interface {
	// InvokeModel issues one blocking model invocation and returns the raw
	// response payload, or an error if the call failed.
	InvokeModel(ctx context.Context, modelID string, payload []byte) ([]byte, error)

	// InvokeModelStream issues one streaming model invocation and returns a
	// handle over the incremental response chunks.
	InvokeModelStream(ctx context.Context, modelID string, payload []byte) (ChunkStream, error)
}

// ChunkStream iterates the raw chunks of a streaming response.
// It is finite and non-restartable.
type ChunkStream interface {
	// Next returns the next raw chunk payload.
	// Returns nil and io.EOF when the stream ends normally.
	// Returns nil and an error if the transport fails mid-stream.
	Next(ctx context.Context) ([]byte, error)

	// Close releases the underlying stream resources. Safe to call more
	// than once.
	Close() error
}
