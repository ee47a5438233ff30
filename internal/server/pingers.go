package server

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
	"github.com/redis/go-redis/v9"
)

// QdrantPinger probes a Qdrant instance using its native HealthCheck RPC.
// It satisfies the Pinger interface and is used by GET /api/ready.
type QdrantPinger struct {
	// client is the Qdrant gRPC client to probe.
	client *qdrant.Client
}

// NewQdrantPinger constructs a QdrantPinger for the given Qdrant client.
func NewQdrantPinger(client *qdrant.Client) *QdrantPinger {
	return &QdrantPinger{client: client}
}

// Name returns the dependency label used in readiness responses.
func (p *QdrantPinger) Name() string { return "qdrant" }

// Ping calls the Qdrant HealthCheck RPC.
// Returns nil if Qdrant is reachable, or a descriptive error otherwise.
func (p *QdrantPinger) Ping(ctx context.Context) error {
	_, err := p.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// RedisPinger probes the remote credential database with a Redis PING.
type RedisPinger struct {
	// client is the Redis client to probe.
	client *redis.Client
}

// NewRedisPinger constructs a RedisPinger for the given Redis client.
func NewRedisPinger(client *redis.Client) *RedisPinger {
	return &RedisPinger{client: client}
}

// Name returns the dependency label used in readiness responses.
func (p *RedisPinger) Name() string { return "redis" }

// Ping issues a Redis PING.
func (p *RedisPinger) Ping(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}

// CredsPinger adapts any credential store exposing a Ping method (the
// SQLite backend) into a Pinger.
type CredsPinger struct {
	// ping is the store's connection check.
	ping func(ctx context.Context) error
	// name identifies the backend in readiness responses.
	name string
}

// NewCredsPinger constructs a CredsPinger for the given backend.
func NewCredsPinger(name string, ping func(ctx context.Context) error) *CredsPinger {
	return &CredsPinger{ping: ping, name: name}
}

// Name returns the dependency label used in readiness responses.
func (p *CredsPinger) Name() string { return p.name }

// Ping delegates to the store's connection check.
func (p *CredsPinger) Ping(ctx context.Context) error {
	if err := p.ping(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}
