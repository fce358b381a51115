package sync

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper periodically re-syncs every connected business, catching rows whose
// event-driven sync failed or whose event was lost.
type Sweeper struct {
	engine   *Engine
	logger   *slog.Logger
	interval time.Duration
}

func NewSweeper(engine *Engine, logger *slog.Logger, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{engine: engine, logger: logger, interval: interval}
}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.engine.SyncAll(ctx)
		}
	}
}
