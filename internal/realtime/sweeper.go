package realtime

import (
	"context"
	"log/slog"
	"time"

	"github.com/sandeepkv93/capture-session-service/internal/observability"
)

type ExpiredRoomCleaner interface {
	CleanupExpiredRooms(ctx context.Context, now time.Time) (int64, error)
}

// Sweeper deletes rooms past their expiry on a fixed interval.
type Sweeper struct {
	store    ExpiredRoomCleaner
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

func NewSweeper(store ExpiredRoomCleaner, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{store: store, interval: interval, logger: logger.With("module", "sweeper"), now: time.Now}
}

// Run sweeps once immediately, then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("room sweep failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	deleted, err := s.store.CleanupExpiredRooms(ctx, s.now())
	if err != nil {
		return deleted, err
	}
	observability.RecordSweptRooms(ctx, deleted)
	if deleted > 0 {
		s.logger.Info("expired rooms deleted", "count", deleted)
	}
	return deleted, nil
}
