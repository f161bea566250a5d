// Package actuation relays commands received on actuator channels to the
// bridge.
package actuation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/me-box/databox-driver-phillipshue/internal/channel"
	"github.com/me-box/databox-driver-phillipshue/internal/ledger"
	"github.com/me-box/databox-driver-phillipshue/internal/store"
)

// Actuator applies light state on the bridge.
type Actuator interface {
	SetLightState(ctx context.Context, lightID string, attrs map[string]any) error
}

// Subscriber opens actuator channel subscriptions.
type Subscriber interface {
	Subscribe(ctx context.Context, channelID string) (<-chan store.Event, error)
}

// Recorder appends actuation outcomes to the ledger.
type Recorder interface {
	Append(ctx context.Context, eventType ledger.EventType, channelID, correlationID string, payload map[string]any) error
}

// Resolver maps a light's channel key to the bridge ordinal it currently
// answers at.
type Resolver interface {
	Resolve(channelKey string) (string, bool)
}

// Relay runs one listener per actuator channel. Events on a channel are
// handled in arrival order; channels are independent of each other.
// Each event is applied at most once; failures are logged, not retried.
type Relay struct {
	subscriber  Subscriber
	bridge      Actuator
	recorder    Recorder
	resolver    Resolver
	callTimeout time.Duration

	mu     sync.Mutex
	active map[string]struct{}
	wg     sync.WaitGroup
}

// New creates a relay. recorder and resolver may be nil; without a resolver
// the ordinal in the channel id is used as is.
func New(subscriber Subscriber, bridge Actuator, recorder Recorder, resolver Resolver, callTimeout time.Duration) *Relay {
	if callTimeout == 0 {
		callTimeout = 10 * time.Second
	}
	return &Relay{
		subscriber:  subscriber,
		bridge:      bridge,
		recorder:    recorder,
		resolver:    resolver,
		callTimeout: callTimeout,
		active:      make(map[string]struct{}),
	}
}

// Watch subscribes to channelID and starts its listener. Watching a channel
// that already has a live listener is a no-op.
func (r *Relay) Watch(ctx context.Context, channelID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.active[channelID]; ok {
		return nil
	}

	events, err := r.subscriber.Subscribe(ctx, channelID)
	if err != nil {
		return err
	}
	r.active[channelID] = struct{}{}

	r.wg.Add(1)
	go r.listen(ctx, channelID, events)

	log.Debug().Str("channel", channelID).Msg("Watching actuator channel")
	return nil
}

// IsWatching reports whether channelID has a live listener.
func (r *Relay) IsWatching(channelID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.active[channelID]
	return ok
}

// Wait blocks until every listener has exited.
func (r *Relay) Wait() {
	r.wg.Wait()
}

func (r *Relay) listen(ctx context.Context, channelID string, events <-chan store.Event) {
	defer r.wg.Done()
	defer func() {
		r.mu.Lock()
		delete(r.active, channelID)
		r.mu.Unlock()
	}()

	for ev := range events {
		r.handleSafely(ctx, ev)
	}
}

func (r *Relay) handleSafely(ctx context.Context, ev store.Event) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Str("channel", ev.ChannelID).Msg("Actuation handler panic recovered")
		}
	}()
	r.Handle(ctx, ev)
}

// Handle decodes one event and applies it. Malformed events are dropped
// with a warning.
func (r *Relay) Handle(ctx context.Context, ev store.Event) {
	cmd, err := Decode(ev)
	if err != nil {
		log.Warn().
			Err(err).
			Str("event", ev.ID).
			Str("channel", ev.ChannelID).
			Bytes("payload", ev.Payload).
			Msg("Dropping malformed actuation event")
		r.record(ctx, ledger.EventActuationRejected, ev, map[string]any{
			"error":   err.Error(),
			"payload": string(ev.Payload),
		})
		return
	}

	target := r.bridgeID(cmd.LightID)

	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()

	if err := r.bridge.SetLightState(callCtx, target, cmd.State()); err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return
		}
		log.Error().
			Err(err).
			Str("event", ev.ID).
			Str("light", target).
			Str("attribute", string(cmd.Attribute)).
			Msg("Failed to apply actuation")
		r.record(ctx, ledger.EventActuationFailed, ev, map[string]any{
			"light":              target,
			string(cmd.Attribute): cmd.Value,
			"error":              err.Error(),
		})
		return
	}

	log.Info().
		Str("event", ev.ID).
		Str("light", target).
		Str("attribute", string(cmd.Attribute)).
		Interface("value", cmd.Value).
		Msg("Actuation applied")
	r.record(ctx, ledger.EventActuationApplied, ev, map[string]any{
		"light":              target,
		string(cmd.Attribute): cmd.Value,
	})
}

// bridgeID returns the ordinal the light behind a channel answers at now.
// Channels keep the ordinal they were registered under even after the
// bridge renumbers the light.
func (r *Relay) bridgeID(channelOrdinal string) string {
	if r.resolver == nil {
		return channelOrdinal
	}
	if ordinal, ok := r.resolver.Resolve(channel.LightKey(channelOrdinal)); ok {
		return ordinal
	}
	return channelOrdinal
}

func (r *Relay) record(ctx context.Context, eventType ledger.EventType, ev store.Event, payload map[string]any) {
	if r.recorder == nil {
		return
	}
	if err := r.recorder.Append(context.WithoutCancel(ctx), eventType, ev.ChannelID, ev.ID, payload); err != nil {
		log.Warn().Err(err).Str("event", ev.ID).Msg("Failed to record actuation outcome")
	}
}
