package background

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/authgate/internal/metrics"
)

// ExpiredPurger deletes ledger records past their expiry
type ExpiredPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// Pruner drops expired entries from an in-process store
type Pruner interface {
	Prune() int
}

// RetentionSweeper periodically purges expired attempt records off the hot path
type RetentionSweeper struct {
	purger   ExpiredPurger
	pruners  []Pruner
	logger   *slog.Logger
	metrics  *metrics.Metrics
	interval time.Duration
	timeout  time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewRetentionSweeper creates a new retention sweeper
func NewRetentionSweeper(
	purger ExpiredPurger,
	logger *slog.Logger,
	m *metrics.Metrics,
	interval time.Duration,
	timeout time.Duration,
	pruners ...Pruner,
) *RetentionSweeper {
	return &RetentionSweeper{
		purger:   purger,
		pruners:  pruners,
		logger:   logger,
		metrics:  m,
		interval: interval,
		timeout:  timeout,
		stopCh:   make(chan struct{}),
	}
}

// Start runs a sweep immediately and then on every tick until stopped
func (rs *RetentionSweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(rs.interval)
	defer ticker.Stop()

	rs.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			rs.RunOnce(ctx)
		case <-rs.stopCh:
			rs.logger.Info("retention sweeper stopped")
			return
		case <-ctx.Done():
			rs.logger.Info("retention sweeper context cancelled")
			return
		}
	}
}

// RunOnce performs a single sweep bounded by the configured timeout
func (rs *RetentionSweeper) RunOnce(ctx context.Context) {
	started := time.Now()

	sweepCtx, cancel := context.WithTimeout(ctx, rs.timeout)
	defer cancel()

	deleted, err := rs.purger.PurgeExpired(sweepCtx)
	if err != nil {
		rs.metrics.ObserveSweep("error", time.Since(started).Seconds())
		rs.logger.Error("retention sweep failed",
			slog.Int64("rows_deleted", deleted),
			slog.Any("error", err))
		return
	}

	pruned := 0
	for _, p := range rs.pruners {
		pruned += p.Prune()
	}

	rs.metrics.ObserveSweep("success", time.Since(started).Seconds())
	if deleted > 0 || pruned > 0 {
		rs.logger.Info("retention sweep completed",
			slog.Int64("rows_deleted", deleted),
			slog.Int("lockouts_pruned", pruned),
			slog.Duration("duration", time.Since(started)))
	}
}

// Stop signals the sweeper to stop; safe to call more than once
func (rs *RetentionSweeper) Stop() {
	rs.stopOnce.Do(func() {
		close(rs.stopCh)
	})
}
