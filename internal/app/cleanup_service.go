package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/me-box/databox-driver-phillipshue/internal/config"
	"github.com/me-box/databox-driver-phillipshue/internal/ledger"
)

// CleanupService prunes old ledger entries on a cron schedule.
type CleanupService struct {
	schedule  string
	retention time.Duration
	ledger    *ledger.Ledger
}

// NewCleanupService creates a new CleanupService.
func NewCleanupService(cfg config.LedgerConfig, l *ledger.Ledger) *CleanupService {
	return &CleanupService{
		schedule:  cfg.CleanupSchedule,
		retention: cfg.Retention(),
		ledger:    l,
	}
}

// Start schedules the cleanup job. The scheduler stops with ctx.
func (s *CleanupService) Start(ctx context.Context) error {
	if s.schedule == "" || s.retention <= 0 {
		log.Info().Msg("Ledger cleanup is disabled")
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(s.schedule, func() { s.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("ledger cleanup schedule %q: %w", s.schedule, err)
	}
	c.Start()

	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()

	log.Info().Str("schedule", s.schedule).Dur("retention", s.retention).Msg("Ledger cleanup scheduled")
	return nil
}

// RunOnce deletes entries older than the retention window.
func (s *CleanupService) RunOnce(ctx context.Context) (int64, error) {
	deleted, err := s.ledger.DeleteOlderThan(ctx, s.retention)
	if err != nil {
		log.Error().Err(err).Msg("Failed to cleanup old ledger entries")
		return 0, err
	}
	if deleted > 0 {
		log.Info().Int64("deleted", deleted).Dur("retention", s.retention).Msg("Cleaned up old ledger entries")
	}
	return deleted, nil
}
