package core

// scheduler.go runs background maintenance.
//
// The session sweeper drops PINFL sessions that were abandoned halfway, so
// uploaded source registers do not pile up in memory. It is long-running
// and stops when its context is cancelled.

import (
	"context"
	"log/slog"
	"time"
)

// DefaultSweepInterval is used when no interval is configured.
const DefaultSweepInterval = time.Minute

// StartSweeper removes expired sessions every interval until ctx is
// cancelled. It sweeps once immediately.
func (s *SessionStore) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	slog.Info("session sweeper started", "interval", interval, "ttl", s.ttl)

	s.runSweep()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("session sweeper stopped")
			return
		case <-ticker.C:
			s.runSweep()
		}
	}
}

func (s *SessionStore) runSweep() {
	start := time.Now()
	removed := s.Sweep()
	if removed > 0 {
		slog.Info("expired sessions removed",
			"removed", removed,
			"remaining", s.Len(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return
	}
	slog.Debug("session sweep found nothing to remove")
}
