package store

import "errors"

// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConnected is returned when attempting operations on a disconnected client.
	ErrNotConnected = errors.New("store: client not connected")

	// ErrConnectionFailed is returned when the initial connection attempt fails.
	ErrConnectionFailed = errors.New("store: connection failed")

	// ErrPublishFailed is returned when a registration or write could not be delivered.
	ErrPublishFailed = errors.New("store: publish failed")

	// ErrSubscribeFailed is returned when an actuation subscription fails.
	ErrSubscribeFailed = errors.New("store: subscribe failed")

	// ErrNotRegistered is returned when writing to a channel that was never registered.
	ErrNotRegistered = errors.New("store: channel not registered")

	// ErrInvalidChannel is returned for an empty channel id.
	ErrInvalidChannel = errors.New("store: channel id cannot be empty")
)
