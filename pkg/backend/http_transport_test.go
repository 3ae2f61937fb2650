package backend

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHTTPTransport_InvokeModel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if !strings.HasSuffix(r.URL.Path, "/model/gen-model-v1/invoke") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization = %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"input":true}` {
			t.Errorf("body = %s", body)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	transport := NewHTTPTransport(HTTPTransportConfig{
		BaseURL: server.URL,
		APIKey:  "test-key",
		Timeout: 5 * time.Second,
	})
	defer transport.Close()

	raw, err := transport.InvokeModel(context.Background(), "gen-model-v1", []byte(`{"input":true}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(raw) != `{"ok":true}` {
		t.Errorf("response = %s", raw)
	}
}

func TestHTTPTransport_StatusErrorsClassifiable(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantCode Code
	}{
		{name: "429", status: http.StatusTooManyRequests, wantCode: CodeRateLimitExceeded},
		{name: "401", status: http.StatusUnauthorized, wantCode: CodeInvalidCredentials},
		{name: "404", status: http.StatusNotFound, wantCode: CodeModelNotFound},
		{name: "400", status: http.StatusBadRequest, wantCode: CodeInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"message":"nope"}`))
			}))
			defer server.Close()

			transport := NewHTTPTransport(HTTPTransportConfig{BaseURL: server.URL, Timeout: 5 * time.Second})
			defer transport.Close()

			_, err := transport.InvokeModel(context.Background(), "m", []byte(`{}`))
			if err == nil {
				t.Fatal("expected error")
			}

			// The raw transport error must carry enough signal for the
			// classifier to pick the right code.
			ce := ClassifyTransportError(OpGenerate, RoleTextGeneration, err)
			if ce.Code != tt.wantCode {
				t.Errorf("classified code = %s, want %s", ce.Code, tt.wantCode)
			}
		})
	}
}

func TestHTTPTransport_Timeout(t *testing.T) {
	blocked := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-blocked
	}))
	defer server.Close()
	defer close(blocked)

	transport := NewHTTPTransport(HTTPTransportConfig{BaseURL: server.URL, Timeout: 50 * time.Millisecond})
	defer transport.Close()

	_, err := transport.InvokeModel(context.Background(), "m", []byte(`{}`))
	if err == nil {
		t.Fatal("expected timeout error")
	}
	ce := ClassifyTransportError(OpGenerate, RoleTextGeneration, err)
	if ce.Code != CodeNetworkError {
		t.Errorf("classified code = %s, want %s", ce.Code, CodeNetworkError)
	}
}

func TestHTTPTransport_ContextCancellation(t *testing.T) {
	blocked := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-blocked
	}))
	defer server.Close()
	defer close(blocked)

	transport := NewHTTPTransport(HTTPTransportConfig{BaseURL: server.URL, Timeout: 5 * time.Second})
	defer transport.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := transport.InvokeModel(ctx, "m", []byte(`{}`))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context deadline error, got %v", err)
	}
}

func TestHTTPTransport_StreamChunks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/invoke-stream") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		_, _ = io.WriteString(w, `{"type":"content_block_delta","delta":{"type":"text_delta","text":"a"}}`+"\n")
		_, _ = io.WriteString(w, "\n") // blank lines are skipped
		_, _ = io.WriteString(w, `{"type":"message_stop"}`+"\n")
	}))
	defer server.Close()

	transport := NewHTTPTransport(HTTPTransportConfig{BaseURL: server.URL, Timeout: 5 * time.Second})
	defer transport.Close()

	stream, err := transport.InvokeModelStream(context.Background(), "m", []byte(`{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer stream.Close()

	ctx := context.Background()
	var chunks []string
	for {
		raw, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("unexpected stream error: %v", err)
		}
		chunks = append(chunks, string(raw))
	}

	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %v", len(chunks), chunks)
	}
	if !strings.Contains(chunks[0], "content_block_delta") {
		t.Errorf("first chunk = %s", chunks[0])
	}
	if !strings.Contains(chunks[1], "message_stop") {
		t.Errorf("second chunk = %s", chunks[1])
	}
}

func TestHTTPTransport_StreamChunkLargerThanScannerDefault(t *testing.T) {
	// Well past bufio.Scanner's default 64KB token limit.
	big := strings.Repeat("x", 200*1024)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"type":"content_block_delta","delta":{"type":"text_delta","text":"`+big+`"}}`+"\n")
		_, _ = io.WriteString(w, `{"type":"message_stop"}`+"\n")
	}))
	defer server.Close()

	transport := NewHTTPTransport(HTTPTransportConfig{BaseURL: server.URL, Timeout: 5 * time.Second})
	defer transport.Close()

	stream, err := transport.InvokeModelStream(context.Background(), "m", []byte(`{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer stream.Close()

	raw, err := stream.Next(context.Background())
	if err != nil {
		t.Fatalf("oversized chunk should be readable: %v", err)
	}
	if !strings.Contains(string(raw), big) {
		t.Errorf("chunk truncated: %d bytes", len(raw))
	}

	if _, err := stream.Next(context.Background()); err != nil {
		t.Fatalf("unexpected error after large chunk: %v", err)
	}
}

func TestHTTPTransport_StreamInitiationStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("slow down"))
	}))
	defer server.Close()

	transport := NewHTTPTransport(HTTPTransportConfig{BaseURL: server.URL, Timeout: 5 * time.Second})
	defer transport.Close()

	_, err := transport.InvokeModelStream(context.Background(), "m", []byte(`{}`))
	if err == nil {
		t.Fatal("expected error")
	}
	ce := ClassifyTransportError(OpGenerateStream, RoleTextGeneration, err)
	if ce.Code != CodeRateLimitExceeded {
		t.Errorf("classified code = %s, want %s", ce.Code, CodeRateLimitExceeded)
	}
}
