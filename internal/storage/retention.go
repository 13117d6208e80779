package storage

import (
	"context"
	"time"

	"healthmate/internal/config"
	"healthmate/internal/logger"
	"healthmate/internal/metrics"
)

// Purger deletes readings older than a cutoff
type Purger interface {
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Sweeper enforces the reading retention window in the background
type Sweeper struct {
	purger Purger
	cfg    config.RetentionConfig
	now    func() time.Time
}

// NewSweeper creates a retention sweeper
func NewSweeper(p Purger, cfg config.RetentionConfig) *Sweeper {
	return &Sweeper{purger: p, cfg: cfg, now: time.Now}
}

// SweepOnce purges everything taken before the retention cutoff
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	cutoff := s.cfg.Cutoff(s.now())
	n, err := s.purger.PurgeBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	metrics.RetentionPurgedTotal.Add(float64(n))
	log := logger.WithComponent("retention")
	log.Info().
		Int64("purged", n).
		Time("cutoff", cutoff).
		Msg("retention sweep finished")
	return n, nil
}

// Run sweeps immediately and then on every interval until ctx is cancelled.
// A failed sweep is logged and retried on the next tick.
func (s *Sweeper) Run(ctx context.Context) error {
	log := logger.WithComponent("retention")
	log.Info().
		Int("days", config.RetentionDays).
		Dur("interval", s.cfg.Interval()).
		Msg("retention sweeper started")

	ticker := time.NewTicker(s.cfg.Interval())
	defer ticker.Stop()

	for {
		if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("retention sweep failed")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
