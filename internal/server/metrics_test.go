package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// TestNewServerMetrics_Registers verifies all instruments register on a
// fresh registry without collision.
func TestNewServerMetrics_Registers(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := newServerMetrics(reg)

	m.askTurnsTotal.WithLabelValues(outcomeOK).Inc()
	m.webhookTasksTotal.WithLabelValues(outcomeDropped).Inc()
	m.httpRequestsTotal.WithLabelValues("POST", "upsert", "200").Inc()

	if got := testutil.ToFloat64(m.askTurnsTotal.WithLabelValues(outcomeOK)); got != 1 {
		t.Errorf("expected ask turn counter 1, got %v", got)
	}
	if got := testutil.ToFloat64(m.webhookTasksTotal.WithLabelValues(outcomeDropped)); got != 1 {
		t.Errorf("expected webhook drop counter 1, got %v", got)
	}
}

// TestMetricsEndpoint verifies /metrics exposes the server's instruments
// after traffic, without requiring auth.
func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)

	// Generate one authenticated request so the HTTP counters move.
	doJSON(t, env, http.MethodPost, "/querygpt", `{"queries":[{"query":"q"}]}`)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "mekonggpt_ask_turns_total") {
		t.Error("expected ask turn counter exposed")
	}
	if !strings.Contains(body, "mekonggpt_http_requests_total") {
		t.Error("expected http request counter exposed")
	}
}

// TestQueryGPTRecordsOutcome verifies the outcome label distinguishes
// success from failure.
func TestQueryGPTRecordsOutcome(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)

	doJSON(t, env, http.MethodPost, "/querygpt", `{"queries":[{"query":"q"}]}`)

	if got := testutil.ToFloat64(env.srv.metrics.askTurnsTotal.WithLabelValues(outcomeOK)); got != 1 {
		t.Errorf("expected 1 ok turn, got %v", got)
	}
	if got := testutil.ToFloat64(env.srv.metrics.askTurnsTotal.WithLabelValues(outcomeError)); got != 0 {
		t.Errorf("expected 0 error turns, got %v", got)
	}
}
