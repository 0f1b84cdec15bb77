package cleanup

import (
	"context"
	"log/slog"
	"time"
)

// Pruner deletes validation runs created before a cutoff
type Pruner interface {
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Cleaner handles periodic pruning of old validation runs
type Cleaner struct {
	pruner    Pruner
	interval  time.Duration
	retention time.Duration
	now       func() time.Time
}

// NewCleaner creates a new cleanup worker
func NewCleaner(pruner Pruner, interval, retention time.Duration) *Cleaner {
	if interval <= 0 {
		interval = time.Hour
	}
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}

	return &Cleaner{
		pruner:    pruner,
		interval:  interval,
		retention: retention,
		now:       time.Now,
	}
}

// Start begins the cleanup worker in a goroutine
func (c *Cleaner) Start(ctx context.Context) {
	go c.run(ctx)
}

// run is the main loop for the cleanup worker
func (c *Cleaner) run(ctx context.Context) {
	slog.Info("cleanup worker started", "interval", c.interval, "retention", c.retention)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	// Run immediately on start
	c.cleanup(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("cleanup worker stopped")
			return
		case <-ticker.C:
			c.cleanup(ctx)
		}
	}
}

// cleanup removes runs older than the retention window
func (c *Cleaner) cleanup(ctx context.Context) int64 {
	cutoff := c.now().UTC().Add(-c.retention)
	slog.Debug("running cleanup cycle", "cutoff", cutoff)

	n, err := c.pruner.PruneBefore(ctx, cutoff)
	if err != nil {
		slog.Error("failed to prune validation runs", "error", err, "cutoff", cutoff)
		return 0
	}

	if n == 0 {
		slog.Debug("no expired runs found")
	}
	return n
}
