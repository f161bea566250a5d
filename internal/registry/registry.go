// Package registry tracks which devices already have their channels
// registered with the data store.
package registry

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrChannelConflict is returned when a device's channel key is already
// claimed by a different device.
var ErrChannelConflict = errors.New("channel key claimed by another device")

// Kind distinguishes lights from sensors.
type Kind string

const (
	KindLight  Kind = "light"
	KindSensor Kind = "sensor"
)

// Device is the record kept per observed device. Records are never removed.
type Device struct {
	UniqueID   string
	Kind       Kind
	Ordinal    string // bridge ordinal the channels were registered under
	Current    string // bridge ordinal the device was last seen at
	ChannelKey string
	Registered bool
	FirstSeen  time.Time
}

// Registry maps device unique ids to their registration state.
// It is owned by the reconciler and not safe for concurrent use; the
// routing table it maintains is.
type Registry struct {
	devices map[string]*Device
	owners  map[string]string // channel key -> unique id
	routes  *Routes
	now     func() time.Time
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		devices: make(map[string]*Device),
		owners:  make(map[string]string),
		routes:  NewRoutes(),
		now:     time.Now,
	}
}

// Routes returns the channel key to bridge ordinal table kept current by
// Observe.
func (r *Registry) Routes() *Routes {
	return r.routes
}

// Observe returns the record for uniqueID, creating it on first sight.
//
// A known device keeps the channel key it was first seen with. If the
// bridge renumbers it, a warning is logged, the first registered channels
// stay in use and the device's route follows it to the new ordinal. A new
// device whose channel key is owned by another device is refused with
// ErrChannelConflict and not recorded.
func (r *Registry) Observe(kind Kind, uniqueID, ordinal, channelKey string) (Device, error) {
	if d, ok := r.devices[uniqueID]; ok {
		if d.Current != ordinal {
			log.Warn().
				Str("uniqueid", uniqueID).
				Str("registered_ordinal", d.Ordinal).
				Str("previous_ordinal", d.Current).
				Str("ordinal", ordinal).
				Msg("Device ordinal changed, keeping registered channels")
			d.Current = ordinal
			r.routes.set(d.ChannelKey, ordinal)
		}
		return *d, nil
	}

	if owner, ok := r.owners[channelKey]; ok && owner != uniqueID {
		return Device{}, fmt.Errorf("%w: %s owned by %s, wanted by %s", ErrChannelConflict, channelKey, owner, uniqueID)
	}

	d := &Device{
		UniqueID:   uniqueID,
		Kind:       kind,
		Ordinal:    ordinal,
		Current:    ordinal,
		ChannelKey: channelKey,
		FirstSeen:  r.now(),
	}
	r.devices[uniqueID] = d
	r.owners[channelKey] = uniqueID
	r.routes.set(channelKey, ordinal)
	return *d, nil
}

// IsRegistered reports whether the device's channels have all been registered.
func (r *Registry) IsRegistered(uniqueID string) bool {
	d, ok := r.devices[uniqueID]
	return ok && d.Registered
}

// MarkRegistered records that every channel of the device was registered.
// It is a no-op for devices that were never observed.
func (r *Registry) MarkRegistered(uniqueID string) {
	if d, ok := r.devices[uniqueID]; ok {
		d.Registered = true
	}
}

// Len returns the number of observed devices.
func (r *Registry) Len() int {
	return len(r.devices)
}
