package reconcile

import (
	"context"
	"log/slog"
	"time"
)

const defaultBatch = 100

type reconciler interface {
	Reconcile(ctx context.Context, points int64, batch int) (int, error)
}

// Scheduler periodically credits attendances whose reputation award was
// deferred after a failed write.
type Scheduler struct {
	ledger   reconciler
	points   int64
	interval time.Duration
	logger   *slog.Logger
}

func New(ledger reconciler, points int64, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		ledger:   ledger,
		points:   points,
		interval: interval,
		logger:   logger,
	}
}

// Start blocks until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("reconciler started", slog.Duration("interval", s.interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("reconciler stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	awarded, err := s.ledger.Reconcile(ctx, s.points, defaultBatch)
	if err != nil {
		s.logger.Error("failed to reconcile reputation awards",
			slog.Int("awarded", awarded),
			slog.String("error", err.Error()),
		)
	}
}
