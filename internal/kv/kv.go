// Package kv provides namespaced key-value storage with JSON values.
package kv

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrNotFound is returned by Read when the key does not exist.
var ErrNotFound = errors.New("kv: key not found")

// Store is the key-value contract used for durable driver state.
type Store interface {
	// Read returns the raw JSON stored under namespace/key, or ErrNotFound.
	Read(ctx context.Context, namespace, key string) (json.RawMessage, error)

	// Write stores value (marshalled to JSON) under namespace/key, replacing
	// any previous value.
	Write(ctx context.Context, namespace, key string, value any) error
}
