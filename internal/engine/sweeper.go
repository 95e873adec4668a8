package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/example/ride-dispatch/internal/observability"
	"github.com/example/ride-dispatch/internal/store"
)

// Sweeper periodically marks past-expiry pending offers as expired so
// dashboards reflect reality without waiting for an accept attempt. It is
// purely advisory: the accept path enforces TTLs on its own.
type Sweeper struct {
	store    store.Store
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

func NewSweeper(st store.Store, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Sweeper{store: st, interval: interval, logger: logger, now: time.Now}
}

// Run blocks until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	n, err := s.store.ExpireStaleOffers(ctx, s.now().UTC())
	if err != nil {
		s.logger.Error("offer sweep failed", "error", err)
		return
	}
	if n > 0 {
		observability.OffersSwept.Add(float64(n))
		s.logger.Info("stale offers expired", "count", n)
	}
}
