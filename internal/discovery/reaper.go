package discovery

import (
	"context"
	"time"

	"github.com/sebas/rtprecv/internal/session"
)

// Reaper periodically destroys sessions whose last_activity_sec is
// older than session.DeathTimeout.
type Reaper struct {
	registry *session.Registry
	interval time.Duration
}

// NewReaper creates a reaper that checks every interval (the original
// module re-arms a DEATH_TIMEOUT timer on each fire; checking more often
// than the timeout itself keeps destruction latency bounded without
// changing the timeout's meaning).
func NewReaper(reg *session.Registry, interval time.Duration) *Reaper {
	return &Reaper{registry: reg, interval: interval}
}

// Run fires the liveness check every interval until ctx is canceled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.registry.ReapExpired(now)
		}
	}
}
