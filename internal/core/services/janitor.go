package services

import (
	"context"
	"log/slog"
	"time"

	"pdf2md/internal/core/ports"
)

// Janitor periodically prunes task rows older than the retention window.
// Cache entries are deliberately left alone; the orchestrator's readiness
// check at lookup time is the safety net for the resulting dangling keys.
type Janitor struct {
	logger        *slog.Logger
	registry      ports.Registry
	retentionDays int
	interval      time.Duration
}

func NewJanitor(logger *slog.Logger, registry ports.Registry, retentionDays int, interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Janitor{
		logger:        logger,
		registry:      registry,
		retentionDays: retentionDays,
		interval:      interval,
	}
}

// Run blocks until ctx is cancelled. A retention of zero disables pruning.
func (j *Janitor) Run(ctx context.Context) error {
	if j.retentionDays <= 0 {
		j.logger.Info("task retention disabled")
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := j.registry.PruneOlderThan(ctx, j.retentionDays)
			if err != nil {
				j.logger.Error("task pruning failed", "error", err)
				continue
			}
			if n > 0 {
				j.logger.Info("old tasks pruned", "count", n, "retention_days", j.retentionDays)
			}
		}
	}
}
