// Package kv is a durable string key-value store backed by local SQLite file.
// It keeps client state that must survive restarts: session, recovery progress and pending navigation hints.
package kv

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/nkiryanov/newsdesk/internal/apperrors"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store interface used by consumers. Implemented by *SQLite and *Memory
type Store interface {
	// Has to return apperrors.ErrKeyNotFound if key not set
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string) error

	// Remove is no-op for missing key
	Remove(ctx context.Context, key string) error

	// Get and remove the value in one step
	// Has to return apperrors.ErrKeyNotFound if key not set
	Take(ctx context.Context, key string) (string, error)
}

type SQLite struct {
	db *sql.DB
}

// Open opens SQLite database at the path and runs migrations
// Use ":memory:" for throwaway store
func Open(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open kv db: %w", err)
	}

	// In-memory database lives per connection
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close() // nolint:errcheck
		return nil, fmt.Errorf("ping kv db: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close() // nolint:errcheck
		return nil, fmt.Errorf("run kv migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

func migrate(db *sql.DB) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}

	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)

	switch {
	case err == nil:
		return value, nil
	case errors.Is(err, sql.ErrNoRows):
		return "", apperrors.ErrKeyNotFound
	default:
		return "", fmt.Errorf("get key %q: %w", key, err)
	}
}

func (s *SQLite) Set(ctx context.Context, key string, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set key %q: %w", key, err)
	}
	return nil
}

func (s *SQLite) Remove(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("remove key %q: %w", key, err)
	}
	return nil
}

func (s *SQLite) Take(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `DELETE FROM kv WHERE key = ? RETURNING value`, key).Scan(&value)

	switch {
	case err == nil:
		return value, nil
	case errors.Is(err, sql.ErrNoRows):
		return "", apperrors.ErrKeyNotFound
	default:
		return "", fmt.Errorf("take key %q: %w", key, err)
	}
}
