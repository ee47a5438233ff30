package creds

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // register "sqlite" driver
)

// SQLiteStore is a Store backed by a local SQLite database. It serves local
// development and tests where no remote Redis is available.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// OpenSQLite opens (or creates) a SQLiteStore at the given path and runs
// the schema migration. Use ":memory:" for an in-memory database in tests.
func OpenSQLite(path string) (*SQLiteStore, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("creds: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS credentials (
    key    TEXT PRIMARY KEY,
    value  TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS replies (
    id          TEXT    PRIMARY KEY,
    query       TEXT    NOT NULL,
    answer      TEXT    NOT NULL,
    created_at  INTEGER NOT NULL  -- Unix timestamp (seconds)
);
CREATE INDEX IF NOT EXISTS idx_replies_created
    ON replies (created_at);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("creds: migrate: %w", err)
	}
	return nil
}

// RefreshToken returns the current refresh token.
func (s *SQLiteStore) RefreshToken(ctx context.Context) (string, error) {
	const q = `SELECT value FROM credentials WHERE key = ?`
	var token string
	err := s.db.QueryRowContext(ctx, q, refreshTokenKey).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoRefreshToken
	}
	if err != nil {
		return "", fmt.Errorf("creds: get refresh token: %w", err)
	}
	return token, nil
}

// SetRefreshToken overwrites the stored refresh token.
func (s *SQLiteStore) SetRefreshToken(ctx context.Context, token string) error {
	const q = `INSERT INTO credentials (key, value) VALUES (?, ?)
	           ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	if _, err := s.db.ExecContext(ctx, q, refreshTokenKey, token); err != nil {
		return fmt.Errorf("creds: set refresh token: %w", err)
	}
	return nil
}

// AppendReply appends one query/answer pair to the reply log.
func (s *SQLiteStore) AppendReply(ctx context.Context, query, answer string) error {
	const q = `INSERT INTO replies (id, query, answer, created_at) VALUES (?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q, uuid.NewString(), query, answer, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("creds: append reply: %w", err)
	}
	return nil
}

// RecentReplies returns up to n reply records, newest first.
func (s *SQLiteStore) RecentReplies(ctx context.Context, n int) ([]ReplyRecord, error) {
	if n <= 0 {
		return nil, nil
	}
	const q = `SELECT id, query, answer, created_at FROM replies
	           ORDER BY created_at DESC, id DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, n)
	if err != nil {
		return nil, fmt.Errorf("creds: list replies: %w", err)
	}
	defer rows.Close()

	var records []ReplyRecord
	for rows.Next() {
		var rec ReplyRecord
		var ts int64
		if err := rows.Scan(&rec.ID, &rec.Query, &rec.Answer, &ts); err != nil {
			return nil, fmt.Errorf("creds: scan reply: %w", err)
		}
		rec.Time = time.Unix(ts, 0).UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("creds: list replies: %w", err)
	}
	return records, nil
}

// Ping verifies the database connection for readiness probes.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
