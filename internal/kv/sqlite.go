package kv

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SQLite is a persistent Store backed by the kv_store table.
type SQLite struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed store.
func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db}
}

// Write saves a value with the given key.
func (s *SQLite) Write(ctx context.Context, namespace, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	now := time.Now().UTC().Unix()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO kv_store (namespace, key, value, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(namespace, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, namespace, key, string(data), now, now)
	if err != nil {
		return fmt.Errorf("failed to store value: %w", err)
	}

	return nil
}

// Read retrieves a value by key.
func (s *SQLite) Read(ctx context.Context, namespace, key string) (json.RawMessage, error) {
	var value string

	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM kv_store
		WHERE namespace = ? AND key = ?
	`, namespace, key).Scan(&value)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get value: %w", err)
	}

	return json.RawMessage(value), nil
}
