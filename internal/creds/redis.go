package creds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// refreshTokenKey is the Redis key holding the single mutable refresh token.
const refreshTokenKey = "REFRESH_TOKEN"

// repliesKey is the Redis list holding the append-only reply log.
const repliesKey = "replies"

// RedisStore is a Store backed by a remote Redis database.
type RedisStore struct {
	// client is the underlying Redis client.
	client *redis.Client
}

// NewRedisStore connects to the Redis instance at the given URL
// (redis://host:port/db) and verifies the connection with a ping.
func NewRedisStore(ctx context.Context, url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("creds: invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("creds: failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// Client exposes the underlying Redis client for readiness probes.
func (s *RedisStore) Client() *redis.Client { return s.client }

// RefreshToken returns the current refresh token.
func (s *RedisStore) RefreshToken(ctx context.Context) (string, error) {
	token, err := s.client.Get(ctx, refreshTokenKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNoRefreshToken
	}
	if err != nil {
		return "", fmt.Errorf("creds: get refresh token: %w", err)
	}
	return token, nil
}

// SetRefreshToken overwrites the stored refresh token.
func (s *RedisStore) SetRefreshToken(ctx context.Context, token string) error {
	if err := s.client.Set(ctx, refreshTokenKey, token, 0).Err(); err != nil {
		return fmt.Errorf("creds: set refresh token: %w", err)
	}
	return nil
}

// AppendReply appends one query/answer pair to the reply log.
func (s *RedisStore) AppendReply(ctx context.Context, query, answer string) error {
	rec := ReplyRecord{
		ID:     uuid.NewString(),
		Query:  query,
		Answer: answer,
		Time:   time.Now().UTC(),
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("creds: marshal reply: %w", err)
	}
	if err := s.client.RPush(ctx, repliesKey, payload).Err(); err != nil {
		return fmt.Errorf("creds: append reply: %w", err)
	}
	return nil
}

// RecentReplies returns up to n reply records, newest first.
func (s *RedisStore) RecentReplies(ctx context.Context, n int) ([]ReplyRecord, error) {
	if n <= 0 {
		return nil, nil
	}
	raw, err := s.client.LRange(ctx, repliesKey, int64(-n), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("creds: list replies: %w", err)
	}

	// LRange returns oldest-first within the tail; reverse to newest-first.
	records := make([]ReplyRecord, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var rec ReplyRecord
		if err := json.Unmarshal([]byte(raw[i]), &rec); err != nil {
			return nil, fmt.Errorf("creds: decode reply: %w", err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
