package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// TestHandleHealth verifies the liveness endpoint needs no auth and always
// reports ok.
func TestHandleHealth(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %q", body["status"])
	}
}

// TestHandleReady_AllHealthy verifies 200 with per-dependency checks when
// every probe succeeds.
func TestHandleReady_AllHealthy(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, func(cfg *Config) {
		cfg.Pingers = []Pinger{okPinger{name: "qdrant"}, okPinger{name: "redis"}}
	})

	req := httptest.NewRequest(http.MethodGet, "/api/ready", nil)
	w := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp readyResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Ready || len(resp.Checks) != 2 {
		t.Errorf("unexpected ready response: %+v", resp)
	}
}

// TestHandleReady_DependencyDown verifies 503 with the failing dependency
// named when any probe fails.
func TestHandleReady_DependencyDown(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, func(cfg *Config) {
		cfg.Pingers = []Pinger{okPinger{name: "qdrant"}, failingPinger{name: "redis"}}
	})

	req := httptest.NewRequest(http.MethodGet, "/api/ready", nil)
	w := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	var resp readyResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Ready {
		t.Error("expected ready false")
	}
	var foundFailure bool
	for _, c := range resp.Checks {
		if c.Name == "redis" && !c.OK && c.Error != "" {
			foundFailure = true
		}
	}
	if !foundFailure {
		t.Errorf("expected redis failure in checks, got %+v", resp.Checks)
	}
}

// TestHandleReady_NoPingers verifies liveness-only mode.
func TestHandleReady_NoPingers(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/ready", nil)
	w := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200 with no pingers, got %d", w.Code)
	}
}
