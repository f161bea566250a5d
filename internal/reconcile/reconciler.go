package reconcile

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/me-box/databox-driver-phillipshue/internal/channel"
	"github.com/me-box/databox-driver-phillipshue/internal/hue"
	"github.com/me-box/databox-driver-phillipshue/internal/ledger"
	"github.com/me-box/databox-driver-phillipshue/internal/registry"
	"github.com/me-box/databox-driver-phillipshue/internal/store"
)

// Options tune the loop.
type Options struct {
	Interval    time.Duration // pause between the end of one tick and the next
	CallTimeout time.Duration // bound on each store call
	Vendor      string
}

// Reconciler registers channels for new devices exactly once and writes
// their current state on every tick. It is the only writer of the registry
// and the state cache.
type Reconciler struct {
	bridge   Bridge
	store    store.Client
	registry *registry.Registry
	cache    *hue.StateCache
	watcher  Watcher
	recorder Recorder

	interval    time.Duration
	callTimeout time.Duration
	vendor      string
}

// New creates a new Reconciler. watcher and recorder may be nil.
func New(bridge Bridge, st store.Client, reg *registry.Registry, cache *hue.StateCache, watcher Watcher, recorder Recorder, opts Options) *Reconciler {
	if opts.Interval == 0 {
		opts.Interval = time.Second
	}
	if opts.CallTimeout == 0 {
		opts.CallTimeout = 5 * time.Second
	}
	return &Reconciler{
		bridge:      bridge,
		store:       st,
		registry:    reg,
		cache:       cache,
		watcher:     watcher,
		recorder:    recorder,
		interval:    opts.Interval,
		callTimeout: opts.CallTimeout,
		vendor:      opts.Vendor,
	}
}

// Run ticks until ctx is cancelled. The next tick is scheduled only after
// the previous one has finished, so ticks never overlap.
func (r *Reconciler) Run(ctx context.Context) error {
	log.Info().Dur("interval", r.interval).Msg("Reconciler started")

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Reconciler stopping")
			return nil
		case <-timer.C:
			r.Tick(ctx)
			timer.Reset(r.interval)
		}
	}
}

// Tick runs one pass over lights then sensors. A failure fetching one
// device class does not affect the other.
func (r *Reconciler) Tick(ctx context.Context) {
	if lights, err := r.bridge.Lights(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to fetch lights")
	} else {
		for _, l := range lights {
			if ctx.Err() != nil {
				return
			}
			r.syncLight(ctx, l)
		}
	}

	if sensors, err := r.bridge.Sensors(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to fetch sensors")
	} else {
		for _, s := range sensors {
			if ctx.Err() != nil {
				return
			}
			r.syncSensor(ctx, s)
		}
	}

	lights, sensors := r.cache.Len()
	log.Debug().
		Int("devices", r.registry.Len()).
		Int("lights", lights).
		Int("sensors", sensors).
		Msg("Reconcile tick finished")
}

func (r *Reconciler) syncLight(ctx context.Context, l hue.Light) {
	if l.UniqueID == "" {
		log.Debug().Str("light", l.ID).Msg("Skipping light without unique id")
		return
	}
	r.cache.SetLight(l)

	dev, err := r.registry.Observe(registry.KindLight, l.UniqueID, l.ID, channel.LightKey(l.ID))
	if err != nil {
		log.Warn().Err(err).Str("light", l.ID).Str("uniqueid", l.UniqueID).Msg("Light not tracked")
		return
	}

	// channels stay bound to the ordinal seen at first registration
	l.ID = dev.Ordinal

	if !r.registry.IsRegistered(l.UniqueID) {
		descriptors := channel.LightDescriptors(l, r.vendor)
		if !r.register(ctx, descriptors) {
			log.Warn().Str("light", l.ID).Str("name", l.Name).Msg("Light registration incomplete, retrying next tick")
			return
		}
		r.registry.MarkRegistered(l.UniqueID)
		r.recordRegistration(ctx, channel.LightKey(l.ID), l.UniqueID, l.Name, len(descriptors))
		log.Info().Str("light", l.ID).Str("name", l.Name).Int("channels", len(descriptors)).Msg("Light registered")
	}

	r.watchActuators(ctx, l.ID)

	for _, attr := range channel.Attributes {
		r.write(ctx, channel.TelemetryID(attr, l.ID), attr.Value(l.State))
	}
}

func (r *Reconciler) syncSensor(ctx context.Context, s hue.Sensor) {
	r.cache.SetSensor(s)

	id := channel.SensorID(s.UniqueID)
	_, err := r.registry.Observe(registry.KindSensor, s.UniqueID, s.ID, id)
	if err != nil {
		log.Warn().Err(err).Str("sensor", s.ID).Str("uniqueid", s.UniqueID).Msg("Sensor not tracked")
		return
	}

	if !r.registry.IsRegistered(s.UniqueID) {
		if !r.register(ctx, []store.Descriptor{channel.SensorDescriptor(s, r.vendor)}) {
			log.Warn().Str("sensor", s.ID).Str("name", s.Name).Msg("Sensor registration failed, retrying next tick")
			return
		}
		r.registry.MarkRegistered(s.UniqueID)
		r.recordRegistration(ctx, id, s.UniqueID, s.Name, 1)
		log.Info().Str("sensor", s.ID).Str("name", s.Name).Str("channel", id).Msg("Sensor registered")
	}

	r.write(ctx, id, s.State)
}

// register registers descriptors in order and stops at the first failure.
func (r *Reconciler) register(ctx context.Context, descriptors []store.Descriptor) bool {
	for _, d := range descriptors {
		callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
		err := r.store.RegisterChannel(callCtx, d)
		cancel()
		if err != nil {
			log.Error().Err(err).Str("channel", d.ID).Msg("Failed to register channel")
			return false
		}
	}
	return true
}

func (r *Reconciler) write(ctx context.Context, channelID string, value any) {
	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()

	if err := r.store.Write(callCtx, channelID, value); err != nil {
		log.Error().Err(err).Str("channel", channelID).Msg("Failed to write telemetry")
	}
}

// watchActuators (re)starts listeners for a registered light. The watcher
// ignores channels it already listens on, so a failed subscribe is retried
// on the next tick.
func (r *Reconciler) watchActuators(ctx context.Context, lightID string) {
	if r.watcher == nil {
		return
	}
	for _, id := range channel.ActuatorIDs(lightID) {
		if err := r.watcher.Watch(ctx, id); err != nil {
			log.Warn().Err(err).Str("channel", id).Msg("Failed to watch actuator channel")
		}
	}
}

func (r *Reconciler) recordRegistration(ctx context.Context, key, uniqueID, name string, channels int) {
	if r.recorder == nil {
		return
	}
	err := r.recorder.Append(ctx, ledger.EventChannelRegistered, key, "", map[string]any{
		"uniqueid": uniqueID,
		"name":     name,
		"channels": channels,
	})
	if err != nil {
		log.Warn().Err(err).Str("channel", key).Msg("Failed to record registration")
	}
}
