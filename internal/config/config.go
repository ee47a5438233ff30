// Package config provides YAML-based configuration for the retrieval service.
// Configuration is loaded with a layered precedence: defaults → YAML file →
// env vars. Environment variables always win, so container deployments that
// only set env vars are unaffected by a stray config file.
//
// File search order:
//  1. --config CLI flag (explicit path)
//  2. MGPT_CONFIG environment variable
//  3. ~/.mekonggpt/config.yaml
//  4. ./mekonggpt.yaml
//
// If no file is found the system runs entirely from env vars.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration structure.
// Field names use yaml tags that mirror the env var naming.
type Config struct {
	// Server configures the HTTP server.
	Server ServerConfig `yaml:"server"`

	// Zalo configures the chat-platform messaging relay.
	Zalo ZaloConfig `yaml:"zalo"`

	// Creds configures the credential store backend.
	Creds CredsConfig `yaml:"creds"`

	// Qdrant configures the Qdrant vector datastore connection.
	Qdrant QdrantConfig `yaml:"qdrant"`

	// OpenAI configures the completion and embedding client.
	OpenAI OpenAIConfig `yaml:"openai"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the bind address.
	Host string `yaml:"host"`
	// Port is the TCP port.
	Port int `yaml:"port"`
	// BearerToken is the shared secret for protected routes.
	// Prefer env var BEARER_TOKEN. Required at serve startup.
	BearerToken string `yaml:"bearer_token"`
	// StaticDir is the directory served at /.well-known for platform
	// domain-verification files.
	StaticDir string `yaml:"static_dir"`
	// IndexFile is the HTML file served at / (verification artifact).
	IndexFile string `yaml:"index_file"`
	// RateLimit is the sustained per-IP request rate (requests/second).
	RateLimit float64 `yaml:"rate_limit"`
	// RateBurst is the maximum instantaneous per-IP burst.
	RateBurst int `yaml:"rate_burst"`
	// Workers is the background task pool size for webhook work.
	Workers int `yaml:"workers"`
}

// ZaloConfig holds chat-platform relay settings.
type ZaloConfig struct {
	// SecretKey authenticates the OAuth token exchange. Prefer env var
	// ZALO_SECRET_KEY.
	SecretKey string `yaml:"secret_key"`
	// AppID is the fixed application identifier sent with each exchange.
	AppID string `yaml:"app_id"`
	// OAuthURL is the token exchange endpoint.
	OAuthURL string `yaml:"oauth_url"`
	// MessageURL is the chat-send endpoint.
	MessageURL string `yaml:"message_url"`
}

// CredsConfig holds credential store settings. When RedisURL is set the
// remote Redis backend is used; otherwise a local SQLite file at DBPath.
type CredsConfig struct {
	// RedisURL is the remote database URL (redis://host:port/db).
	// Prefer env var REDIS_URL.
	RedisURL string `yaml:"redis_url"`
	// DBPath is the local SQLite fallback path. ":memory:" for tests.
	DBPath string `yaml:"db_path"`
}

// QdrantConfig holds Qdrant vector datastore settings.
type QdrantConfig struct {
	// Host is the Qdrant server hostname.
	Host string `yaml:"host"`
	// Port is the Qdrant gRPC port.
	Port int `yaml:"port"`
	// Collection is the Qdrant collection name.
	Collection string `yaml:"collection"`
	// APIKey is the Qdrant API key. Prefer env var QDRANT_API_KEY.
	APIKey string `yaml:"api_key"`
	// TLS enables TLS for the Qdrant connection.
	TLS bool `yaml:"tls"`
}

// OpenAIConfig holds completion/embedding client settings.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key. Prefer env var OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`
	// BaseURL overrides the API base for OpenAI-compatible servers.
	BaseURL string `yaml:"base_url"`
	// Model is the chat completion model name.
	Model string `yaml:"model"`
	// EmbeddingModel is the embedding model name.
	EmbeddingModel string `yaml:"embedding_model"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: json, text.
	Format string `yaml:"format"`
}

// envMapping maps YAML config fields to their corresponding env var names.
// Only non-empty YAML values are applied; env vars always take precedence.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"MGPT_HOST", func(c *Config) string { return c.Server.Host }},
	{"MGPT_PORT", func(c *Config) string { return intStr(c.Server.Port) }},
	{"BEARER_TOKEN", func(c *Config) string { return c.Server.BearerToken }},
	{"MGPT_STATIC_DIR", func(c *Config) string { return c.Server.StaticDir }},
	{"MGPT_INDEX_FILE", func(c *Config) string { return c.Server.IndexFile }},
	{"MGPT_RATE_LIMIT", func(c *Config) string { return floatStr(c.Server.RateLimit) }},
	{"MGPT_RATE_BURST", func(c *Config) string { return intStr(c.Server.RateBurst) }},
	{"MGPT_WORKERS", func(c *Config) string { return intStr(c.Server.Workers) }},
	{"ZALO_SECRET_KEY", func(c *Config) string { return c.Zalo.SecretKey }},
	{"ZALO_APP_ID", func(c *Config) string { return c.Zalo.AppID }},
	{"ZALO_OAUTH_URL", func(c *Config) string { return c.Zalo.OAuthURL }},
	{"ZALO_MESSAGE_URL", func(c *Config) string { return c.Zalo.MessageURL }},
	{"REDIS_URL", func(c *Config) string { return c.Creds.RedisURL }},
	{"CREDS_DB", func(c *Config) string { return c.Creds.DBPath }},
	{"QDRANT_HOST", func(c *Config) string { return c.Qdrant.Host }},
	{"QDRANT_PORT", func(c *Config) string { return intStr(c.Qdrant.Port) }},
	{"QDRANT_COLLECTION", func(c *Config) string { return c.Qdrant.Collection }},
	{"QDRANT_API_KEY", func(c *Config) string { return c.Qdrant.APIKey }},
	{"QDRANT_TLS", func(c *Config) string { return boolStr(c.Qdrant.TLS) }},
	{"OPENAI_API_KEY", func(c *Config) string { return c.OpenAI.APIKey }},
	{"OPENAI_BASE_URL", func(c *Config) string { return c.OpenAI.BaseURL }},
	{"OPENAI_MODEL", func(c *Config) string { return c.OpenAI.Model }},
	{"EMBEDDING_MODEL", func(c *Config) string { return c.OpenAI.EmbeddingModel }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
}

// Load reads a YAML config file and applies non-empty values as environment
// variables. Existing env vars are never overwritten (env always wins).
// Returns the path that was loaded, or empty string if no file was found.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path := resolveConfigPath(explicitPath)
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applied := 0
	for _, m := range envMapping {
		yamlVal := m.value(&cfg)
		if yamlVal == "" || yamlVal == "0" || yamlVal == "false" {
			continue
		}
		if os.Getenv(m.envKey) != "" {
			continue // env var already set — do not override
		}
		os.Setenv(m.envKey, yamlVal)
		applied++
	}

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)

	return path, nil
}

// resolveConfigPath returns the first config file path that exists.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if envPath := os.Getenv("MGPT_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		p := filepath.Join(home, ".mekonggpt", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if _, err := os.Stat("mekonggpt.yaml"); err == nil {
		return "mekonggpt.yaml"
	}

	return ""
}

// intStr converts an int to string, returning "" for zero values.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return fmt.Sprintf("%d", v)
}

// floatStr converts a float64 to string, returning "" for zero values.
func floatStr(v float64) string {
	if v == 0 {
		return ""
	}
	return fmt.Sprintf("%g", v)
}

// boolStr converts a bool to string, returning "" for false.
func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}
