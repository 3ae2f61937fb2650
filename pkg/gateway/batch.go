package gateway

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nimbusworks/modelgate/pkg/backend"
)

// EmbedBatch embeds an ordered list of texts without exceeding backend
// per-call limits. Texts are processed in fixed-size windows: all requests
// within one window run concurrently, the orchestrator waits for the window
// to complete, then sleeps a fixed delay before the next window. The delay is
// a simple, non-adaptive backpressure mechanism for a backend that emits no
// other rate-limit signal.
//
// The policy is fail-fast: the first error encountered within a window aborts
// the remaining windows and the caller sees only that error, never partial
// results. The aggregated result list preserves input order even though
// execution within a window is concurrent.
func (g *Gateway) EmbedBatch(ctx context.Context, req *backend.EmbeddingBatchRequest) ([]*backend.EmbeddingResponse, error) {
	batchID := uuid.NewString()

	if req == nil || len(req.Texts) == 0 {
		return nil, g.fail(backend.RoleEmbedding, backend.OpEmbed, batchID,
			backend.NewValidationError(backend.CodeInvalidRequest,
				"batch embedding request requires at least one text"))
	}

	windowSize := req.BatchSize
	if windowSize <= 0 {
		windowSize = g.batchCfg.WindowSize
	}
	delay := g.batchCfg.WindowDelay

	// Validate every item before dispatching anything: a malformed item
	// must not cost network calls for the items before it.
	items := make([]*backend.EmbeddingRequest, len(req.Texts))
	for i, text := range req.Texts {
		item := g.resolveEmbedding(&backend.EmbeddingRequest{
			Text:       text,
			Dimensions: req.Dimensions,
			Normalize:  req.Normalize,
		})
		if verr := ValidateEmbedding(item, item.Dimensions); verr != nil {
			return nil, g.fail(backend.RoleEmbedding, backend.OpEmbed, batchID,
				verr.WithContext("batch_index", strconv.Itoa(i)))
		}
		items[i] = item
	}

	results := make([]*backend.EmbeddingResponse, len(items))

	for windowStart := 0; windowStart < len(items); windowStart += windowSize {
		if err := ctx.Err(); err != nil {
			return nil, g.ensureClassified(backend.OpEmbed, backend.RoleEmbedding, err)
		}

		windowEnd := windowStart + windowSize
		if windowEnd > len(items) {
			windowEnd = len(items)
		}

		var (
			wg       sync.WaitGroup
			errOnce  sync.Once
			firstErr error
		)

		for i := windowStart; i < windowEnd; i++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				resp, err := g.embedGuarded(ctx, items[idx])
				if err != nil {
					errOnce.Do(func() { firstErr = err })
					return
				}
				results[idx] = resp
			}(i)
		}
		wg.Wait()

		if g.metrics != nil {
			g.metrics.RecordBatchWindow()
		}

		if firstErr != nil {
			cerr := g.ensureClassified(backend.OpEmbed, backend.RoleEmbedding, firstErr)
			g.logger.Warn("batch aborted",
				"window_start", windowStart,
				"window_end", windowEnd,
				"code", string(cerr.Code),
			)
			return nil, g.fail(backend.RoleEmbedding, backend.OpEmbed, batchID, cerr)
		}

		// Backpressure delay between windows, skipped after the last one.
		if windowEnd < len(items) && delay > 0 {
			select {
			case <-ctx.Done():
				return nil, g.ensureClassified(backend.OpEmbed, backend.RoleEmbedding, ctx.Err())
			case <-time.After(delay):
			}
		}
	}

	g.logger.Debug("batch completed", "texts", len(items), "window_size", windowSize)
	return results, nil
}
