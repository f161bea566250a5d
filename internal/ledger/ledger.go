// Package ledger provides an append-only history of channel registrations
// and actuation outcomes.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// EventType represents the type of event in the ledger
type EventType string

const (
	EventChannelRegistered EventType = "channel_registered"
	EventActuationApplied  EventType = "actuation_applied"
	EventActuationRejected EventType = "actuation_rejected"
	EventActuationFailed   EventType = "actuation_failed"
)

// Entry represents a single event in the ledger
type Entry struct {
	ID            int64
	EventType     EventType
	Timestamp     time.Time
	ChannelID     string
	CorrelationID string
	Payload       map[string]any
}

// Ledger provides append-only event logging
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a new Ledger using the provided database connection
func New(db *sql.DB) *Ledger {
	return &Ledger{db: db, now: time.Now}
}

// Append adds a new event to the ledger. correlationID ties together the
// entries produced for one inbound event and may be empty.
func (l *Ledger) Append(ctx context.Context, eventType EventType, channelID, correlationID string, payload map[string]any) error {
	var payloadJSON []byte
	var err error

	if payload != nil {
		payloadJSON, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
	}

	_, err = l.db.ExecContext(ctx, `
		INSERT INTO event_ledger (event_type, timestamp, channel_id, correlation_id, payload)
		VALUES (?, ?, ?, ?, ?)
	`, string(eventType), l.now().UTC().UnixMilli(), channelID, correlationID, string(payloadJSON))
	if err != nil {
		return fmt.Errorf("failed to append %s: %w", eventType, err)
	}
	return nil
}

// Recent returns the newest entries of the given types, newest first.
// With no types, all entries are considered.
func (l *Ledger) Recent(ctx context.Context, limit int, types ...EventType) ([]*Entry, error) {
	query := `SELECT id, event_type, timestamp, channel_id, correlation_id, payload FROM event_ledger`
	args := make([]any, 0, len(types)+1)
	if len(types) > 0 {
		query += ` WHERE event_type IN (?` + strings.Repeat(",?", len(types)-1) + `)`
		for _, t := range types {
			args = append(args, string(t))
		}
	}
	query += ` ORDER BY timestamp DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

// DeleteOlderThan removes entries older than the specified duration (retention policy)
func (l *Ledger) DeleteOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := l.now().Add(-retention).UTC().UnixMilli()
	result, err := l.db.ExecContext(ctx, `
		DELETE FROM event_ledger WHERE timestamp < ?
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		var entry Entry
		var payloadStr sql.NullString
		var timestamp int64

		err := rows.Scan(
			&entry.ID, &entry.EventType, &timestamp, &entry.ChannelID, &entry.CorrelationID, &payloadStr,
		)
		if err != nil {
			return nil, err
		}

		entry.Timestamp = time.UnixMilli(timestamp).UTC()

		if payloadStr.Valid && payloadStr.String != "" {
			entry.Payload = make(map[string]any)
			if err := json.Unmarshal([]byte(payloadStr.String), &entry.Payload); err != nil {
				return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
			}
		}

		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}
