package backend

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// HTTPTransportConfig configures the HTTP transport adapter.
type HTTPTransportConfig struct {
	// BaseURL is the backend endpoint base URL.
	BaseURL string

	// APIKey is sent as a bearer token when set.
	APIKey string

	// Timeout is the per-call deadline.
	Timeout time.Duration

	// Connection pool tuning.
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
}

// HTTPTransport is a Transport over HTTP with connection pooling. Model
// invocations POST to <base>/model/<modelID>/invoke; streaming invocations
// POST to <base>/model/<modelID>/invoke-stream and read newline-delimited
// JSON chunks.
//
// The transport performs no retries. Retryability is a classification hint
// for the caller; the gateway never retries internally.
type HTTPTransport struct {
	config HTTPTransportConfig
	client *http.Client
	logger *slog.Logger
}

// NewHTTPTransport creates an HTTP transport with pooled connections.
func NewHTTPTransport(config HTTPTransportConfig) *HTTPTransport {
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	if config.MaxIdleConns == 0 {
		config.MaxIdleConns = 100
	}
	if config.MaxIdleConnsPerHost == 0 {
		config.MaxIdleConnsPerHost = 10
	}
	if config.IdleConnTimeout == 0 {
		config.IdleConnTimeout = 90 * time.Second
	}

	transport := &http.Transport{
		MaxIdleConns:        config.MaxIdleConns,
		MaxIdleConnsPerHost: config.MaxIdleConnsPerHost,
		IdleConnTimeout:     config.IdleConnTimeout,
		ForceAttemptHTTP2:   true,
	}

	return &HTTPTransport{
		config: config,
		client: &http.Client{
			Transport: transport,
			Timeout:   config.Timeout,
		},
		logger: slog.Default().With("component", "backend.transport"),
	}
}

// InvokeModel implements Transport.
func (t *HTTPTransport) InvokeModel(ctx context.Context, modelID string, payload []byte) ([]byte, error) {
	url := fmt.Sprintf("%s/model/%s/invoke", strings.TrimRight(t.config.BaseURL, "/"), modelID)

	resp, err := t.post(ctx, url, payload, "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError(resp.StatusCode, body)
	}

	return body, nil
}

// InvokeModelStream implements Transport.
func (t *HTTPTransport) InvokeModelStream(ctx context.Context, modelID string, payload []byte) (ChunkStream, error) {
	url := fmt.Sprintf("%s/model/%s/invoke-stream", strings.TrimRight(t.config.BaseURL, "/"), modelID)

	resp, err := t.post(ctx, url, payload, "application/json")
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, statusError(resp.StatusCode, body)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), maxStreamChunkBytes)

	return &httpChunkStream{
		body:    resp.Body,
		scanner: scanner,
	}, nil
}

// maxStreamChunkBytes bounds a single newline-delimited chunk. The scanner's
// default 64KB token limit is too small for chunks carrying large deltas.
const maxStreamChunkBytes = 10 * 1024 * 1024

func (t *HTTPTransport) post(ctx context.Context, url string, payload []byte, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", contentType)
	if t.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.config.APIKey)
	}

	t.logger.Debug("sending backend request", "url", url, "bytes", len(payload))

	resp, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return resp, nil
}

// Close releases idle connections.
func (t *HTTPTransport) Close() error {
	t.client.CloseIdleConnections()
	return nil
}

// statusError turns a non-2xx response into an error whose text the
// classifier can recognize by pattern.
func statusError(status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("authentication rejected (status %d): %s", status, msg)
	case http.StatusTooManyRequests:
		return fmt.Errorf("too many requests (status %d): %s", status, msg)
	case http.StatusNotFound:
		return fmt.Errorf("model not found (status %d): %s", status, msg)
	case http.StatusBadRequest:
		return fmt.Errorf("invalid request (status %d): %s", status, msg)
	}
	return fmt.Errorf("backend returned status %d: %s", status, msg)
}

// httpChunkStream reads newline-delimited JSON chunks from a response body.
type httpChunkStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	mu      sync.Mutex
	closed  bool
}

// Next implements ChunkStream.
func (s *httpChunkStream) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for s.scanner.Scan() {
		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		// Copy: the scanner reuses its buffer on the next Scan.
		chunk := make([]byte, len(line))
		copy(chunk, line)
		return chunk, nil
	}

	if err := s.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// Close implements ChunkStream.
func (s *httpChunkStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.body.Close()
}
