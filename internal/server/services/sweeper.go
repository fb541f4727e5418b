package services

import (
	"context"
	"time"

	"github.com/dmitrijs2005/safeshare/internal/logging"
	"github.com/dmitrijs2005/safeshare/internal/server/config"
	"github.com/dmitrijs2005/safeshare/internal/server/models"
	"github.com/dmitrijs2005/safeshare/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/safeshare/internal/server/repositories/sessions"
)

// Sweeper periodically deletes sessions that outlived their retention.
// Deletion and archiving share one transaction. With the Postgres store a
// failed upload rolls the deletion back and leaves the rows for the next
// run; the in-memory store has no rollback, so those sessions are lost.
type Sweeper struct {
	manager            repomanager.RepositoryManager
	archiver           Archiver
	interval           time.Duration
	retention          time.Duration
	abandonedRetention time.Duration
	now                func() time.Time
	logger             logging.Logger
}

const (
	defaultSweepInterval = time.Hour
	defaultRetention     = 2 * time.Hour
)

// NewSweeper builds a sweeper; archiver may be nil. Non-positive interval or
// retention fall back to the defaults.
func NewSweeper(rm repomanager.RepositoryManager, archiver Archiver, cfg *config.Config, logger logging.Logger) *Sweeper {
	interval, retention := cfg.SweepInterval, cfg.Retention
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	if retention <= 0 {
		retention = defaultRetention
	}
	return &Sweeper{
		manager:            rm,
		archiver:           archiver,
		interval:           interval,
		retention:          retention,
		abandonedRetention: cfg.AbandonedRetention,
		now:                time.Now,
		logger:             logger.With("module", "sweeper"),
	}
}

// Run sweeps once immediately and then every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Info(ctx, "Starting sweeper", "interval", s.interval.String(), "retention", s.retention.String())

	s.tick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "Stopping sweeper...")
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Sweeper) tick(ctx context.Context) {
	n, err := s.RunOnce(ctx)
	if err != nil {
		s.logger.Error(ctx, "sweep failed", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info(ctx, "swept sessions", "count", n)
	}
}

// RunOnce deletes every sweep-eligible session and returns how many were
// removed.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	now := s.now()
	var count int

	err := s.manager.InTx(ctx, func(ctx context.Context, repo sessions.Repository) error {
		swept, err := repo.Sweep(ctx, now.Add(-s.retention))
		if err != nil {
			return err
		}

		if s.abandonedRetention > 0 {
			abandoned, err := repo.SweepAbandoned(ctx, now.Add(-s.abandonedRetention))
			if err != nil {
				return err
			}
			swept = append(swept, abandoned...)
		}

		count = len(swept)
		if count > 0 {
			s.logger.Debug(ctx, "sweeping", "codes", sweptCodes(swept))
		}
		if s.archiver == nil || len(swept) == 0 {
			return nil
		}
		return s.archiver.Archive(ctx, swept, now)
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func sweptCodes(swept []*models.Session) []string {
	codes := make([]string, len(swept))
	for i, s := range swept {
		codes[i] = s.Code
	}
	return codes
}
