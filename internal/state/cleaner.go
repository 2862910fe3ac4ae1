package state

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper drops expired states and reports how many it removed. *MemoryStorage implements it;
// Redis states expire through key TTLs and need no sweeping.
type Sweeper interface {
	Sweep() int
}

// Cleaner removes expired FSM states on a schedule.
type Cleaner struct {
	storage  Sweeper
	log      *slog.Logger
	interval time.Duration
}

// NewCleaner constructs a Cleaner instance.
func NewCleaner(storage Sweeper, log *slog.Logger, interval time.Duration) *Cleaner {
	if log == nil {
		log = slog.Default()
	}

	return &Cleaner{
		storage:  storage,
		log:      log,
		interval: interval,
	}
}

// Run starts the cleanup loop until the context is cancelled.
func (c *Cleaner) Run(ctx context.Context) {
	if c == nil || c.storage == nil || c.interval <= 0 {
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Info("state cleaner stopped", slog.String("reason", ctx.Err().Error()))
			return
		case <-ticker.C:
			c.cleanup()
		}
	}
}

func (c *Cleaner) cleanup() int {
	removed := c.storage.Sweep()
	if removed > 0 {
		c.log.Debug("expired conversation states removed", slog.Int("count", removed))
	}
	return removed
}
