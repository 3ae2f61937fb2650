package backend

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"
)

// streamBufferSize bounds how far chunk decoding can run ahead of the caller.
const streamBufferSize = 16

// ConsumeStream converts a raw chunk stream into an ordered, lazily-produced
// sequence of StreamResults. The sequence is finite and non-restartable:
// after the first result with Err set, or after the terminal chunk, the
// channel is closed and no further chunks are read from the transport.
//
// In-band backend errors (an error object inside a decoded chunk) and
// undecodable chunks both terminate the sequence with a classified error;
// malformed framing is never silently skipped. Transport closure without a
// terminal chunk is a normal end of stream.
func ConsumeStream(ctx context.Context, stream ChunkStream, operation string, logger *slog.Logger) <-chan StreamResult {
	if logger == nil {
		logger = slog.Default()
	}
	results := make(chan StreamResult, streamBufferSize)

	go func() {
		defer close(results)
		defer stream.Close()

		for {
			raw, err := stream.Next(ctx)
			if err != nil {
				if errors.Is(err, io.EOF) {
					// Transport closed without a terminal chunk: normal end.
					return
				}
				emit(ctx, results, StreamResult{
					Err: ClassifyTransportError(operation, RoleTextGeneration, err),
				})
				return
			}

			chunk, decodeErr := decodeStreamChunk(raw)
			if decodeErr != nil {
				logger.Warn("undecodable stream chunk", "operation", operation, "error", decodeErr)
				emit(ctx, results, StreamResult{
					Err: NewInvalidResponseError(operation, RoleTextGeneration, decodeErr),
				})
				return
			}

			if chunk.Error != nil {
				emit(ctx, results, StreamResult{
					Err: ClassifyPayloadError(operation, RoleTextGeneration, chunk.Error.Type, chunk.Error.Message),
				})
				return
			}

			event, terminal := transformChunk(chunk)
			if event != nil {
				if !emit(ctx, results, StreamResult{Event: event}) {
					return
				}
			}
			if terminal {
				return
			}
		}
	}()

	return results
}

// transformChunk maps a decoded chunk to a StreamEvent. Chunks that carry no
// caller-visible information (content_block_start, ping) produce nil.
// The second return value reports whether the chunk terminates the stream.
func transformChunk(chunk *streamChunk) (*StreamEvent, bool) {
	now := time.Now()

	switch StreamEventType(chunk.Type) {
	case StreamEventMessageStart:
		event := &StreamEvent{Type: StreamEventMessageStart, Timestamp: now}
		if chunk.Message != nil {
			msg := &GenerationResponse{
				ID:        chunk.Message.ID,
				Model:     chunk.Message.Model,
				Timestamp: now,
			}
			if chunk.Message.Usage != nil {
				msg.Usage = TokenUsage{
					InputTokens:  chunk.Message.Usage.InputTokens,
					OutputTokens: chunk.Message.Usage.OutputTokens,
					TotalTokens:  chunk.Message.Usage.InputTokens + chunk.Message.Usage.OutputTokens,
				}
			}
			event.Message = msg
		}
		return event, false

	case StreamEventDelta:
		if chunk.Delta == nil || chunk.Delta.Text == "" {
			return nil, false
		}
		return &StreamEvent{
			Type:      StreamEventDelta,
			Delta:     chunk.Delta.Text,
			Timestamp: now,
		}, false

	case StreamEventMessageDelta:
		event := &StreamEvent{Type: StreamEventMessageDelta, Timestamp: now}
		if chunk.Delta != nil {
			event.StopReason = chunk.Delta.StopReason
		}
		if chunk.Usage != nil {
			event.Usage = &TokenUsage{
				InputTokens:  chunk.Usage.InputTokens,
				OutputTokens: chunk.Usage.OutputTokens,
				TotalTokens:  chunk.Usage.InputTokens + chunk.Usage.OutputTokens,
			}
		}
		return event, false

	case StreamEventMessageStop:
		return &StreamEvent{Type: StreamEventMessageStop, Timestamp: now}, true
	}

	// Unknown but well-formed chunk types are skipped, not fatal.
	return nil, false
}

// emit sends a result unless the caller has gone away.
func emit(ctx context.Context, results chan<- StreamResult, r StreamResult) bool {
	select {
	case results <- r:
		return true
	case <-ctx.Done():
		return false
	}
}
