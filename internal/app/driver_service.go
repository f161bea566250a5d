package app

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/me-box/databox-driver-phillipshue/internal/actuation"
	"github.com/me-box/databox-driver-phillipshue/internal/config"
	"github.com/me-box/databox-driver-phillipshue/internal/hue"
	"github.com/me-box/databox-driver-phillipshue/internal/ledger"
	"github.com/me-box/databox-driver-phillipshue/internal/reconcile"
	"github.com/me-box/databox-driver-phillipshue/internal/registry"
	"github.com/me-box/databox-driver-phillipshue/internal/settings"
	"github.com/me-box/databox-driver-phillipshue/internal/store"
)

// StatusSetter is told when the driver becomes active.
type StatusSetter interface {
	SetActive(active bool)
}

// DriverService waits for pairing, then runs the reconciler and the
// actuation relay against the paired bridge.
type DriverService struct {
	cfg      *config.Config
	settings *settings.Store
	store    store.Client
	ledger   *ledger.Ledger
	cache    *hue.StateCache
	status   StatusSetter

	done chan struct{}
}

// NewDriverService creates a new DriverService.
func NewDriverService(
	cfg *config.Config,
	st *settings.Store,
	client store.Client,
	l *ledger.Ledger,
	cache *hue.StateCache,
	status StatusSetter,
) *DriverService {
	return &DriverService{
		cfg:      cfg,
		settings: st,
		store:    client,
		ledger:   l,
		cache:    cache,
		status:   status,
		done:     make(chan struct{}),
	}
}

// Start runs the driver in the background until ctx is cancelled.
func (d *DriverService) Start(ctx context.Context) {
	go d.run(ctx)
}

// Wait blocks until the driver has stopped or timeout elapses. It reports
// whether the driver stopped.
func (d *DriverService) Wait(timeout time.Duration) bool {
	select {
	case <-d.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (d *DriverService) run(ctx context.Context) {
	defer close(d.done)

	creds, err := d.settings.WaitFor(ctx, d.cfg.Poll.SettingsBackoff.Duration())
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Stopped waiting for bridge settings")
		}
		return
	}

	hueCfg := d.cfg.Hue
	client := hue.NewClient(creds.Hostname, creds.Credential, hueCfg.Timeout.Duration(), hueCfg.RateLimitRPS)
	defer client.Close()

	devices := registry.New()
	relay := actuation.New(d.store, client, d.ledger, devices.Routes(), hueCfg.Timeout.Duration())
	reconciler := reconcile.New(client, d.store, devices, d.cache, relay, d.ledger, reconcile.Options{
		Interval:    d.cfg.Poll.Interval.Duration(),
		CallTimeout: d.cfg.Store.CallTimeout.Duration(),
		Vendor:      hueCfg.Vendor,
	})

	log.Info().Str("bridge", client.Address()).Msg("Driver active")
	d.status.SetActive(true)

	if err := reconciler.Run(ctx); err != nil {
		log.Error().Err(err).Msg("Reconciler error")
	}
	relay.Wait()
}
