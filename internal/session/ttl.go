package session

import (
	"context"
	"log/slog"
	"time"
)

const sweepInterval = 5 * time.Minute

// CleanupCallback is called with each thread id removed by the TTL worker,
// letting callers drop associated resources such as transcripts.
type CleanupCallback func(threadID string)

// StartTTLWorker runs a background goroutine that periodically removes
// sessions idle beyond ttl. It stops when ctx is canceled.
func StartTTLWorker(ctx context.Context, m *Manager, ttl time.Duration, onCleanup CleanupCallback) {
	ticker := time.NewTicker(sweepInterval)
	go func() {
		defer ticker.Stop()
		slog.Info("Session TTL worker started", "interval", sweepInterval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				expired := m.Sweep(ttl)
				if len(expired) == 0 {
					continue
				}
				slog.Info("Session TTL worker removed idle sessions", "count", len(expired))
				if onCleanup != nil {
					for _, threadID := range expired {
						onCleanup(threadID)
					}
				}
			case <-ctx.Done():
				slog.Info("Session TTL worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}
