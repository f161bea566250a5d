// Package reconcile provides the polling loop that keeps data store channels
// in step with the lights and sensors on the bridge.
package reconcile

import (
	"context"

	"github.com/me-box/databox-driver-phillipshue/internal/hue"
	"github.com/me-box/databox-driver-phillipshue/internal/ledger"
)

// Bridge lists devices on the bridge.
type Bridge interface {
	Lights(ctx context.Context) ([]hue.Light, error)
	Sensors(ctx context.Context) ([]hue.Sensor, error)
}

// Watcher starts actuation listeners for actuator channels.
type Watcher interface {
	Watch(ctx context.Context, channelID string) error
}

// Recorder appends registration events to the ledger.
type Recorder interface {
	Append(ctx context.Context, eventType ledger.EventType, channelID, correlationID string, payload map[string]any) error
}
