package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"testing"
)

// mockTransport returns canned payloads or errors and counts invocations.
type mockTransport struct {
	calls       int32
	streamCalls int32

	response []byte
	err      error

	chunks    [][]byte
	streamErr error
}

func (m *mockTransport) InvokeModel(ctx context.Context, modelID string, payload []byte) ([]byte, error) {
	atomic.AddInt32(&m.calls, 1)
	if m.err != nil {
		return nil, m.err
	}
	return m.response, nil
}

func (m *mockTransport) InvokeModelStream(ctx context.Context, modelID string, payload []byte) (ChunkStream, error) {
	atomic.AddInt32(&m.streamCalls, 1)
	if m.streamErr != nil {
		return nil, m.streamErr
	}
	return &mockChunkStream{chunks: m.chunks}, nil
}

// mockChunkStream replays chunks and counts how many were read.
type mockChunkStream struct {
	chunks [][]byte
	next   int32
	closed atomic.Bool

	// failAfter, when > 0, makes Next fail once that many chunks were read.
	failAfter int
	failWith  error
}

func (s *mockChunkStream) Next(ctx context.Context) ([]byte, error) {
	idx := int(atomic.AddInt32(&s.next, 1)) - 1
	if s.failAfter > 0 && idx >= s.failAfter {
		return nil, s.failWith
	}
	if idx >= len(s.chunks) {
		return nil, io.EOF
	}
	return s.chunks[idx], nil
}

func (s *mockChunkStream) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *mockChunkStream) reads() int {
	return int(atomic.LoadInt32(&s.next))
}

func testInvokerConfig() InvokerConfig {
	return InvokerConfig{
		GenerationModel:    "gen-model-v1",
		EmbeddingModel:     "embed-model-v1",
		DefaultMaxTokens:   4096,
		DefaultTemperature: 0.7,
	}
}

func TestInvoker_Generate(t *testing.T) {
	raw, _ := json.Marshal(generationResult{
		Type:       "message",
		ID:         "msg_001",
		Model:      "gen-model-v1",
		Content:    []wireContentBlock{{Type: "text", Text: "hello"}},
		StopReason: "end_turn",
		Usage:      &wireUsage{InputTokens: 12, OutputTokens: 5},
	})

	transport := &mockTransport{response: raw}
	iv := NewInvoker(transport, testInvokerConfig())

	resp, err := iv.Generate(context.Background(), &GenerationRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.Text() != "hello" {
		t.Errorf("text = %q, want %q", resp.Text(), "hello")
	}
	if resp.StopReason != "end_turn" {
		t.Errorf("stop reason = %q, want end_turn", resp.StopReason)
	}
	if resp.Usage.TotalTokens != 17 {
		t.Errorf("total tokens = %d, want 17", resp.Usage.TotalTokens)
	}
	if resp.Latency < 0 {
		t.Error("expected non-negative latency measurement")
	}
	if atomic.LoadInt32(&transport.calls) != 1 {
		t.Errorf("expected exactly one transport call, got %d", transport.calls)
	}
}

func TestInvoker_Generate_MissingUsageDefaultsToZero(t *testing.T) {
	raw, _ := json.Marshal(generationResult{
		Type:    "message",
		ID:      "msg_002",
		Content: []wireContentBlock{{Type: "text", Text: "ok"}},
	})

	iv := NewInvoker(&mockTransport{response: raw}, testInvokerConfig())
	resp, err := iv.Generate(context.Background(), &GenerationRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Usage.InputTokens != 0 || resp.Usage.OutputTokens != 0 || resp.Usage.TotalTokens != 0 {
		t.Errorf("expected zero usage, got %+v", resp.Usage)
	}
}

func TestInvoker_Generate_TransportErrorClassified(t *testing.T) {
	iv := NewInvoker(&mockTransport{err: errors.New("ThrottlingException: slow down")}, testInvokerConfig())

	_, err := iv.Generate(context.Background(), &GenerationRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})

	ce := AsClassified(err)
	if ce == nil {
		t.Fatalf("expected classified error, got %v", err)
	}
	if ce.Code != CodeRateLimitExceeded {
		t.Errorf("code = %s, want %s", ce.Code, CodeRateLimitExceeded)
	}
	if !ce.Retryable {
		t.Error("throttling should be retryable")
	}
}

func TestInvoker_Generate_PayloadErrorClassified(t *testing.T) {
	raw, _ := json.Marshal(generationResult{
		Type:  "error",
		Error: &wireError{Type: "overloaded_error", Message: "try later"},
	})

	iv := NewInvoker(&mockTransport{response: raw}, testInvokerConfig())
	_, err := iv.Generate(context.Background(), &GenerationRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})

	ce := AsClassified(err)
	if ce == nil {
		t.Fatalf("expected classified error, got %v", err)
	}
	if ce.Code != CodeRateLimitExceeded {
		t.Errorf("code = %s, want %s", ce.Code, CodeRateLimitExceeded)
	}
}

func TestInvoker_Generate_UndecodableResponse(t *testing.T) {
	iv := NewInvoker(&mockTransport{response: []byte("not json at all")}, testInvokerConfig())
	_, err := iv.Generate(context.Background(), &GenerationRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})

	ce := AsClassified(err)
	if ce == nil {
		t.Fatalf("expected classified error, got %v", err)
	}
	if ce.Code != CodeInvalidResponse {
		t.Errorf("code = %s, want %s", ce.Code, CodeInvalidResponse)
	}
	if ce.Retryable {
		t.Error("undecodable payloads should not be retryable")
	}
}

func TestInvoker_Embed(t *testing.T) {
	raw, _ := json.Marshal(embeddingResult{
		Embedding:           []float64{0.1, 0.2, 0.3},
		InputTextTokenCount: 4,
	})

	transport := &mockTransport{response: raw}
	iv := NewInvoker(transport, testInvokerConfig())

	normalize := true
	resp, err := iv.Embed(context.Background(), &EmbeddingRequest{
		Text:       "embed me",
		Dimensions: 256,
		Normalize:  &normalize,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The gateway does not enforce dimensionality; the vector is whatever
	// the backend returned.
	if len(resp.Vector) != 3 {
		t.Errorf("vector length = %d, want 3", len(resp.Vector))
	}
	if resp.InputTokens != 4 {
		t.Errorf("input tokens = %d, want 4", resp.InputTokens)
	}
}

func TestInvoker_Embed_EmptyVectorIsInvalidResponse(t *testing.T) {
	raw, _ := json.Marshal(embeddingResult{})
	iv := NewInvoker(&mockTransport{response: raw}, testInvokerConfig())

	_, err := iv.Embed(context.Background(), &EmbeddingRequest{Text: "x", Dimensions: 256})
	ce := AsClassified(err)
	if ce == nil || ce.Code != CodeInvalidResponse {
		t.Fatalf("expected invalid response, got %v", err)
	}
}

func TestBuildEmbeddingPayload_NormalizeTristate(t *testing.T) {
	on := true
	off := false
	tests := []struct {
		name      string
		normalize *bool
		want      string
	}{
		{name: "unset omits the flag", normalize: nil, want: ""},
		{name: "true is carried", normalize: &on, want: `"normalize":true`},
		{name: "false is carried", normalize: &off, want: `"normalize":false`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := buildEmbeddingPayload(&EmbeddingRequest{
				Text:       "x",
				Dimensions: 512,
				Normalize:  tt.normalize,
			})
			if err != nil {
				t.Fatalf("buildEmbeddingPayload: %v", err)
			}
			if tt.want == "" {
				if strings.Contains(string(raw), "normalize") {
					t.Errorf("unset flag must be omitted: %s", raw)
				}
				return
			}
			if !strings.Contains(string(raw), tt.want) {
				t.Errorf("payload = %s, want %s", raw, tt.want)
			}
		})
	}
}

func TestValidateVectorDimensions(t *testing.T) {
	if err := ValidateVectorDimensions(make([]float64, 512), 512); err != nil {
		t.Errorf("unexpected error for matching dimensions: %v", err)
	}
	err := ValidateVectorDimensions(make([]float64, 512), 1024)
	ce := AsClassified(err)
	if ce == nil || ce.Code != CodeEmbeddingDimensionMismatch {
		t.Fatalf("expected dimension mismatch, got %v", err)
	}
}

func TestBuildGenerationPayload_OmitsUnsetOptionalFields(t *testing.T) {
	raw, err := buildGenerationPayload(&GenerationRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	}, 4096, 0.7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}

	for _, absent := range []string{"top_p", "top_k", "stop_sequences", "system"} {
		if _, ok := decoded[absent]; ok {
			t.Errorf("expected %q to be omitted from payload", absent)
		}
	}
	if decoded["max_tokens"] != float64(4096) {
		t.Errorf("max_tokens = %v, want 4096 (default applied)", decoded["max_tokens"])
	}
	if decoded["temperature"] != 0.7 {
		t.Errorf("temperature = %v, want 0.7 (default applied)", decoded["temperature"])
	}
}
