package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/me-box/databox-driver-phillipshue/internal/config"
	"github.com/me-box/databox-driver-phillipshue/internal/db"
	"github.com/me-box/databox-driver-phillipshue/internal/hue"
	"github.com/me-box/databox-driver-phillipshue/internal/kv"
	"github.com/me-box/databox-driver-phillipshue/internal/ledger"
	"github.com/me-box/databox-driver-phillipshue/internal/settings"
	"github.com/me-box/databox-driver-phillipshue/internal/store"
	"github.com/me-box/databox-driver-phillipshue/internal/web"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB       *db.DB
	Ledger   *ledger.Ledger
	Settings *settings.Store

	// Data store client, optionally wrapped by the historian
	Store store.Client

	Cache   *hue.StateCache
	Pairing *hue.Pairing

	// High-level services
	Web     *web.Server
	Driver  *DriverService
	Cleanup *CleanupService
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	s.DB = database

	s.Ledger = ledger.New(database.DB)
	s.Settings = settings.NewStore(kv.NewSQLite(database.DB))

	s.Store, err = newStoreClient(cfg.Store)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.Cache = hue.NewStateCache()
	s.Pairing = hue.NewPairing(cfg.Hue.AppName, cfg.Hue.Timeout.Duration(), cfg.Hue.DiscoveryTimeout.Duration())

	s.Web = web.NewServer(cfg.HTTP, s.Cache, s.Pairing, s.Settings, s.Ledger)
	s.Driver = NewDriverService(cfg, s.Settings, s.Store, s.Ledger, s.Cache, s.Web)
	s.Cleanup = NewCleanupService(cfg.Ledger, s.Ledger)

	return s, nil
}

func newStoreClient(cfg config.StoreConfig) (store.Client, error) {
	var client store.Client
	switch cfg.Backend {
	case "memory":
		log.Warn().Msg("Using in-memory data store, nothing leaves this process")
		client = store.NewMemory()
	case "mqtt", "":
		mqttClient, err := store.ConnectMQTT(cfg.MQTT, cfg.CallTimeout.Duration())
		if err != nil {
			return nil, err
		}
		client = mqttClient
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}

	if !cfg.Influx.Enabled {
		return client, nil
	}
	historian, err := store.NewHistorian(client, cfg.Influx)
	if err != nil {
		client.Close()
		return nil, err
	}
	return historian, nil
}

// Start starts all services in the correct order.
// The onFatalError callback is called when a service cannot keep running.
func (s *Services) Start(ctx context.Context, onFatalError func(error)) error {
	if err := s.Cleanup.Start(ctx); err != nil {
		return err
	}

	go func() {
		if err := s.Web.Run(ctx, s.cfg.ShutdownTimeout.Duration()); err != nil {
			onFatalError(fmt.Errorf("status server: %w", err))
		}
	}()

	s.Driver.Start(ctx)
	return nil
}

// Stop waits for the driver to wind down, then releases all resources.
func (s *Services) Stop() error {
	if s.Driver != nil {
		timeout := s.cfg.ShutdownTimeout.Duration()
		if timeout == 0 {
			timeout = 5 * time.Second
		}
		if !s.Driver.Wait(timeout) {
			log.Warn().Dur("timeout", timeout).Msg("Driver did not stop in time")
		}
	}
	s.Close()
	return nil
}

// Close releases all resources.
func (s *Services) Close() {
	if s.Store != nil {
		if err := s.Store.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close data store client")
		}
	}
	if s.DB != nil {
		s.DB.Close()
	}
}
