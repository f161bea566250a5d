// Package store is the driver's client for the external data store: channel
// registration, telemetry writes and actuation subscriptions.
package store

import (
	"context"
	"time"
)

// Store types for Descriptor.StoreType.
const (
	StoreTypeTS     = "ts"
	StoreTypeTSBlob = "tsblob"
)

// Descriptor describes a channel as registered with the store.
type Descriptor struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Vendor      string `json:"vendor"`
	ContentType string `json:"content_type"`
	StoreType   string `json:"store_type"`
	IsActuator  bool   `json:"is_actuator"`
}

// Event is one message received on an actuator channel.
type Event struct {
	// ID is assigned on receipt and correlates log lines and ledger entries.
	ID         string
	ChannelID  string
	Payload    []byte
	ReceivedAt time.Time
}

// Record is the payload written to a telemetry channel.
type Record struct {
	Timestamp int64 `json:"timestamp"` // unix milliseconds
	Data      any   `json:"data"`
}

// Client is the data store contract used by the reconciler and the relay.
type Client interface {
	// RegisterChannel announces a channel. Registering the same descriptor
	// again is harmless.
	RegisterChannel(ctx context.Context, d Descriptor) error

	// Write appends a value to a registered channel.
	Write(ctx context.Context, channelID string, value any) error

	// Subscribe delivers events arriving on channelID until ctx is done,
	// then closes the returned channel.
	Subscribe(ctx context.Context, channelID string) (<-chan Event, error)

	// Close releases the connection.
	Close() error
}
