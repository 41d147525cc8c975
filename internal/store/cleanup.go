package store

import (
	"context"
	"log/slog"
	"time"
)

const cleanupWorkerInterval = 1 * time.Hour

// StartCleanupWorker runs a background goroutine that periodically removes
// conversation entries older than the TTL. Synthesized audio files are
// referenced only through entries, so pruning entries is enough to keep the
// feed bounded.
func StartCleanupWorker(ctx context.Context, repo Repository, ttl time.Duration) {
	ticker := time.NewTicker(cleanupWorkerInterval)
	go func() {
		defer ticker.Stop()
		slog.Info("Cleanup worker started", "interval", cleanupWorkerInterval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				deleted, err := repo.CleanupExpiredEntries(ctx, ttl)
				if err != nil {
					slog.Error("Cleanup worker failed to prune entries", "error", err)
					continue
				}
				if deleted > 0 {
					slog.Info("Cleanup worker pruned expired entries", "count", deleted)
				}
			case <-ctx.Done():
				slog.Info("Cleanup worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}
