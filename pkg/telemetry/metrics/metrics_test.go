package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/nimbusworks/modelgate/pkg/config"
)

func testMetrics() *GatewayMetrics {
	return New(&config.MetricsConfig{Namespace: "modelgate", Subsystem: "gateway"})
}

func TestGatewayMetrics_Counters(t *testing.T) {
	m := testMetrics()

	m.RecordRequest("text-generation", "generate", 0.2)
	m.RecordRequest("text-generation", "generate", 0.4)
	m.RecordError("embedding", "network_error")
	m.RecordTokens("text-generation", 10, 20)
	m.RecordBatchWindow()

	if got := testutil.ToFloat64(m.requests.WithLabelValues("text-generation", "generate")); got != 2 {
		t.Errorf("requests = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.errors.WithLabelValues("embedding", "network_error")); got != 1 {
		t.Errorf("errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.tokens.WithLabelValues("text-generation", "input")); got != 10 {
		t.Errorf("input tokens = %v, want 10", got)
	}
	if got := testutil.ToFloat64(m.tokens.WithLabelValues("text-generation", "output")); got != 20 {
		t.Errorf("output tokens = %v, want 20", got)
	}
	if got := testutil.ToFloat64(m.batchWindows); got != 1 {
		t.Errorf("batch windows = %v, want 1", got)
	}
}

func TestGatewayMetrics_ZeroTokensNotRecorded(t *testing.T) {
	m := testMetrics()

	m.RecordTokens("embedding", 7, 0)

	if got := testutil.ToFloat64(m.tokens.WithLabelValues("embedding", "input")); got != 7 {
		t.Errorf("input tokens = %v, want 7", got)
	}
	// No output series should have been created for the zero count.
	if got := testutil.CollectAndCount(m.tokens); got != 1 {
		t.Errorf("token series = %d, want 1", got)
	}
}

func TestGatewayMetrics_BreakerPhase(t *testing.T) {
	m := testMetrics()

	m.RecordBreakerTransition("text-generation", "open")
	if got := testutil.ToFloat64(m.breakerPhase.WithLabelValues("text-generation")); got != 2 {
		t.Errorf("phase gauge = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.transitions.WithLabelValues("text-generation", "open")); got != 1 {
		t.Errorf("transitions = %v, want 1", got)
	}

	m.RecordBreakerTransition("text-generation", "half-open")
	if got := testutil.ToFloat64(m.breakerPhase.WithLabelValues("text-generation")); got != 1 {
		t.Errorf("phase gauge = %v, want 1", got)
	}

	m.RecordBreakerTransition("text-generation", "closed")
	if got := testutil.ToFloat64(m.breakerPhase.WithLabelValues("text-generation")); got != 0 {
		t.Errorf("phase gauge = %v, want 0", got)
	}
}

func TestGatewayMetrics_Handler(t *testing.T) {
	m := testMetrics()
	m.RecordRequest("embedding", "embed", 0.1)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "modelgate_gateway_requests_total") {
		t.Errorf("exposition missing requests counter:\n%s", body)
	}
}
