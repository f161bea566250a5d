// Package settings persists the paired bridge address and credential.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/me-box/databox-driver-phillipshue/internal/kv"
)

// Storage location of the settings record.
const (
	Namespace = "philipsHueSettings"
	Key       = "settings"
)

var (
	// ErrNotConfigured is returned when no bridge has been paired yet.
	ErrNotConfigured = errors.New("settings: bridge not configured")

	// ErrWriteFailed is returned when the settings record could not be persisted.
	ErrWriteFailed = errors.New("settings: write failed")
)

// Settings identifies a paired bridge.
type Settings struct {
	Hostname   string `json:"hostname"`
	Credential string `json:"credential"`
}

// IsZero reports whether the record is missing either field.
func (s Settings) IsZero() bool {
	return strings.TrimSpace(s.Hostname) == "" || strings.TrimSpace(s.Credential) == ""
}

// Store reads and writes the settings record.
type Store struct {
	kv kv.Store
}

// NewStore creates a settings store over the given key-value store.
func NewStore(store kv.Store) *Store {
	return &Store{kv: store}
}

// Get returns the stored settings, or ErrNotConfigured when the record is
// absent or empty.
func (s *Store) Get(ctx context.Context) (Settings, error) {
	raw, err := s.kv.Read(ctx, Namespace, Key)
	if errors.Is(err, kv.ErrNotFound) {
		return Settings{}, ErrNotConfigured
	}
	if err != nil {
		return Settings{}, fmt.Errorf("read settings: %w", err)
	}

	var out Settings
	if err := json.Unmarshal(raw, &out); err != nil {
		return Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	if out.IsZero() {
		return Settings{}, ErrNotConfigured
	}
	return out, nil
}

// Set persists settings. A later Get, including after restart, observes them.
func (s *Store) Set(ctx context.Context, in Settings) error {
	if in.IsZero() {
		return fmt.Errorf("%w: hostname and credential are required", ErrWriteFailed)
	}
	if err := s.kv.Write(ctx, Namespace, Key, in); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	return nil
}

// WaitFor blocks until settings are available or ctx is cancelled, checking
// again every backoff.
func (s *Store) WaitFor(ctx context.Context, backoff time.Duration) (Settings, error) {
	for {
		out, err := s.Get(ctx)
		if err == nil {
			return out, nil
		}

		if errors.Is(err, ErrNotConfigured) {
			log.Info().Dur("retry_in", backoff).Msg("Bridge not paired yet, waiting for settings")
		} else {
			log.Error().Err(err).Dur("retry_in", backoff).Msg("Failed to read settings")
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Settings{}, ctx.Err()
		case <-timer.C:
		}
	}
}
