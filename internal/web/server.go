// Package web serves the status and pairing surface.
package web

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog/log"

	"github.com/me-box/databox-driver-phillipshue/internal/config"
	"github.com/me-box/databox-driver-phillipshue/internal/hue"
	"github.com/me-box/databox-driver-phillipshue/internal/ledger"
	"github.com/me-box/databox-driver-phillipshue/internal/settings"
)

const recentActivityLimit = 20

// Pairer finds bridges and obtains credentials from them.
type Pairer interface {
	Discover(ctx context.Context) ([]hue.DiscoveredBridge, error)
	Pair(ctx context.Context, address string) (string, error)
}

// SettingsWriter persists pairing results.
type SettingsWriter interface {
	Set(ctx context.Context, s settings.Settings) error
}

// ActivityReader lists recent ledger entries.
type ActivityReader interface {
	Recent(ctx context.Context, limit int, types ...ledger.EventType) ([]*ledger.Entry, error)
}

// Server is the HTTP status and pairing server.
type Server struct {
	cfg      config.HTTPConfig
	cache    *hue.StateCache
	pairer   Pairer
	settings SettingsWriter
	activity ActivityReader

	active     atomic.Bool
	httpServer *http.Server
}

// NewServer creates a new Server. activity may be nil.
func NewServer(cfg config.HTTPConfig, cache *hue.StateCache, pairer Pairer, sw SettingsWriter, activity ActivityReader) *Server {
	return &Server{
		cfg:      cfg,
		cache:    cache,
		pairer:   pairer,
		settings: sw,
		activity: activity,
	}
}

// SetActive flips /status between "requiresConfig" and "active".
func (s *Server) SetActive(active bool) {
	s.active.Store(active)
}

// Active reports whether the driver is running against a paired bridge.
func (s *Server) Active() bool {
	return s.active.Load()
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogging)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Get("/ui", s.handleUI)
	r.With(rateLimitByIP(s.cfg.PairRequestsPerMinute)).Post("/ui", s.handlePair)

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	addr := s.cfg.Addr()
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().Str("addr", addr).Bool("tls", s.cfg.TLSEnabled()).Msg("Starting status server")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Status server shutdown error")
		}
	}()

	var err error
	if s.cfg.TLSEnabled() {
		err = s.httpServer.ListenAndServeTLS(s.cfg.TLSCert, s.cfg.TLSKey)
	} else {
		err = s.httpServer.ListenAndServe()
	}
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func rateLimitByIP(requestsPerMinute int) func(http.Handler) http.Handler {
	if requestsPerMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.LimitByIP(requestsPerMinute, time.Minute)
}

func requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
