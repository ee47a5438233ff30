package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_NoFile(t *testing.T) {
	t.Parallel()

	log := slog.Default()
	path, err := Load("/nonexistent/path/config.yaml", log)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "" {
		t.Errorf("expected empty path, got %q", path)
	}
}

func TestLoad_ValidFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	content := []byte(`
server:
  host: 0.0.0.0
  port: 9000
  rate_limit: 25
  rate_burst: 50
  workers: 8
zalo:
  app_id: app-99
  oauth_url: https://oauth.example.com/token
creds:
  redis_url: redis://cache.internal:6379/0
qdrant:
  host: qdrant.internal
  port: 6334
  collection: my-docs
openai:
  model: gpt-4o-mini
  embedding_model: text-embedding-3-small
logging:
  level: debug
  format: text
`)

	if err := os.WriteFile(cfgPath, content, 0o644); err != nil {
		t.Fatal(err)
	}

	// Clear env vars that the YAML should set.
	envKeys := []string{
		"MGPT_HOST", "MGPT_PORT", "MGPT_RATE_LIMIT", "MGPT_RATE_BURST", "MGPT_WORKERS",
		"ZALO_APP_ID", "ZALO_OAUTH_URL",
		"REDIS_URL",
		"QDRANT_HOST", "QDRANT_PORT", "QDRANT_COLLECTION",
		"OPENAI_MODEL", "EMBEDDING_MODEL",
		"LOG_LEVEL", "LOG_FORMAT",
	}
	for _, k := range envKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	log := slog.Default()
	loaded, err := Load(cfgPath, log)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded != cfgPath {
		t.Errorf("loaded path: got %q, want %q", loaded, cfgPath)
	}

	checks := map[string]string{
		"MGPT_HOST":         "0.0.0.0",
		"MGPT_PORT":         "9000",
		"MGPT_RATE_LIMIT":   "25",
		"MGPT_RATE_BURST":   "50",
		"MGPT_WORKERS":      "8",
		"ZALO_APP_ID":       "app-99",
		"ZALO_OAUTH_URL":    "https://oauth.example.com/token",
		"REDIS_URL":         "redis://cache.internal:6379/0",
		"QDRANT_HOST":       "qdrant.internal",
		"QDRANT_PORT":       "6334",
		"QDRANT_COLLECTION": "my-docs",
		"OPENAI_MODEL":      "gpt-4o-mini",
		"EMBEDDING_MODEL":   "text-embedding-3-small",
		"LOG_LEVEL":         "debug",
		"LOG_FORMAT":        "text",
	}
	for k, want := range checks {
		got := os.Getenv(k)
		if got != want {
			t.Errorf("%s: got %q, want %q", k, got, want)
		}
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	content := []byte(`
qdrant:
  host: from-yaml
`)
	if err := os.WriteFile(cfgPath, content, 0o644); err != nil {
		t.Fatal(err)
	}

	// Set env var BEFORE loading — it should NOT be overwritten.
	t.Setenv("QDRANT_HOST", "from-env")

	log := slog.Default()
	if _, err := Load(cfgPath, log); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if got := os.Getenv("QDRANT_HOST"); got != "from-env" {
		t.Errorf("QDRANT_HOST: expected env override %q, got %q", "from-env", got)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	if err := os.WriteFile(cfgPath, []byte("{{invalid yaml"), 0o644); err != nil {
		t.Fatal(err)
	}

	log := slog.Default()
	if _, err := Load(cfgPath, log); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestIntStr(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   int
		want string
	}{
		{0, ""},
		{1, "1"},
		{9000, "9000"},
	}
	for _, tt := range tests {
		if got := intStr(tt.in); got != tt.want {
			t.Errorf("intStr(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFloatStr(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   float64
		want string
	}{
		{0.0, ""},
		{0.5, "0.5"},
		{25, "25"},
	}
	for _, tt := range tests {
		if got := floatStr(tt.in); got != tt.want {
			t.Errorf("floatStr(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
