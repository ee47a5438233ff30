// Package creds implements the credential store: the single mutable chat
// refresh token and the append-only log of query/answer pairs. Two backends
// exist — Redis for the remote production database and SQLite for local
// development and tests — behind one interface so the relay and
// orchestration layers never know which one they talk to.
package creds

import (
	"context"
	"errors"
	"time"
)

// ErrNoRefreshToken is returned when no refresh token has been stored yet.
// Token exchange cannot proceed without one.
var ErrNoRefreshToken = errors.New("creds: no refresh token stored")

// ReplyRecord is one append-only entry in the reply log. Records are never
// mutated or deleted by this system.
type ReplyRecord struct {
	// ID is the push-generated identifier assigned at append time.
	ID string `json:"id"`
	// Query is the user's original question.
	Query string `json:"query"`
	// Answer is the generated answer that was delivered.
	Answer string `json:"answer"`
	// Time is when the record was appended.
	Time time.Time `json:"time"`
}

// Store owns the refresh token and the reply log exclusively. No other
// component retains these values beyond the single call that reads or
// writes them. Implementations must be safe for concurrent use; note that
// no transaction spans the read-then-write of a token refresh sequence.
type Store interface {
	// RefreshToken returns the current refresh token.
	// Returns ErrNoRefreshToken when none has been stored.
	RefreshToken(ctx context.Context) (string, error)

	// SetRefreshToken overwrites the stored refresh token. Called with the
	// rotated value returned by every token exchange.
	SetRefreshToken(ctx context.Context, token string) error

	// AppendReply appends one query/answer pair to the reply log with the
	// current timestamp.
	AppendReply(ctx context.Context, query, answer string) error

	// RecentReplies returns up to n reply records, newest first.
	RecentReplies(ctx context.Context, n int) ([]ReplyRecord, error)

	// Close releases any resources held by the store.
	Close() error
}
