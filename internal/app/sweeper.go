package app

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Purger removes open availability dated before a cutoff.
type Purger interface {
	PurgeExpiredAvailability(ctx context.Context, before time.Time) (int, error)
}

// Sweeper periodically purges open slots whose date has passed.
type Sweeper struct {
	purger   Purger
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

func NewSweeper(purger Purger, interval time.Duration, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		purger:   purger,
		interval: interval,
		logger:   logger.Named("sweeper"),
		now:      time.Now,
	}
}

// Run sweeps once immediately, then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info("starting availability sweeper", zap.Duration("interval", s.interval))

	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("shutdown signal received, stopping availability sweeper")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

func (s *Sweeper) RunOnce(ctx context.Context) int {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	purged, err := s.purger.PurgeExpiredAvailability(runCtx, s.now().UTC())
	if err != nil {
		s.logger.Error("sweep failed", zap.Error(err))
		return 0
	}
	s.logger.Info("sweep complete", zap.Int("purged", purged), zap.Duration("took", time.Since(start)))
	return purged
}
