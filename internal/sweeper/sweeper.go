package sweeper

import (
	"context"
	"log/slog"
	"time"
)

type ReservationSweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

// Sweeper reclaims expired holds on a fixed interval. One instance runs
// per process; a sweep pass is idempotent, so overlapping deployments
// only waste a query.
type Sweeper struct {
	svc      ReservationSweeper
	interval time.Duration
	logger   *slog.Logger
}

func New(svc ReservationSweeper, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Sweeper{svc: svc, interval: interval, logger: logger}
}

// Run blocks until ctx is canceled, sweeping once per interval. The
// first sweep runs immediately so a restart does not extend stale holds
// by a full interval.
func (s *Sweeper) Run(ctx context.Context) error {
	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	released, err := s.svc.Sweep(ctx)
	if err != nil {
		s.logger.Error("sweep failed", "err", err)
		return
	}

	if released > 0 {
		s.logger.Info("released expired holds", "count", released)
	}
}
