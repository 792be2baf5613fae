package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/terra-clan/coaching-engine/internal/metrics"
	"github.com/terra-clan/coaching-engine/internal/session"
)

// Cleaner handles periodic cleanup of expired sessions
type Cleaner struct {
	manager  session.Manager
	interval time.Duration
}

// NewCleaner creates a new cleanup worker
func NewCleaner(manager session.Manager, interval time.Duration) *Cleaner {
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	return &Cleaner{
		manager:  manager,
		interval: interval,
	}
}

// Start begins the cleanup worker in a goroutine
func (c *Cleaner) Start(ctx context.Context) {
	go c.run(ctx)
}

// run is the main loop for the cleanup worker
func (c *Cleaner) run(ctx context.Context) {
	slog.Info("cleanup worker started", "interval", c.interval)

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

// cleanup finds and removes expired sessions, then resyncs the active gauge
func (c *Cleaner) cleanup(ctx context.Context) {
	slog.Debug("running cleanup cycle")

	expired, err := c.manager.GetExpired(ctx)
	if err != nil {
		slog.Error("failed to get expired sessions", "error", err)
		return
	}

	if len(expired) > 0 {
		slog.Info("found expired sessions", "count", len(expired))
	}

	for _, s := range expired {
		if err := c.manager.Delete(ctx, s.ID); err != nil {
			slog.Error("failed to delete expired session",
				"error", err,
				"id", s.ID,
			)
			continue
		}

		slog.Debug("expired session deleted", "id", s.ID, "expired_at", s.ExpiresAt)
	}

	// Store-side TTLs (Redis) expire sessions the manager never sees
	n, err := c.manager.Count(ctx)
	if err != nil {
		slog.Warn("failed to count sessions", "error", err)
		return
	}
	metrics.SessionsActive.Set(float64(n))
}
