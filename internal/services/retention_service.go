package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/authgate/internal/metrics"
	"github.com/BradenHooton/authgate/internal/models"
	"github.com/google/uuid"
)

// DefaultPurgeBatchSize bounds every delete statement issued by a purge
const DefaultPurgeBatchSize = 1000

// RetentionService purges aged ledger records. Deletes are issued in bounded
// batches so a large purge never holds the store for long.
type RetentionService struct {
	ledger    RetentionLedger
	batchSize int
	audit     SecurityEventSink
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// RetentionOption configures a RetentionService
type RetentionOption func(*RetentionService)

// WithBatchSize sets the per-statement delete limit
func WithBatchSize(n int) RetentionOption {
	return func(s *RetentionService) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithRetentionClock overrides the time source
func WithRetentionClock(now func() time.Time) RetentionOption {
	return func(s *RetentionService) {
		s.now = now
	}
}

// WithRetentionAudit records each purge as a security event
func WithRetentionAudit(sink SecurityEventSink) RetentionOption {
	return func(s *RetentionService) {
		s.audit = sink
	}
}

// WithRetentionMetrics enables Prometheus instrumentation
func WithRetentionMetrics(m *metrics.Metrics) RetentionOption {
	return func(s *RetentionService) {
		s.metrics = m
	}
}

// NewRetentionService creates a new RetentionService
func NewRetentionService(ledger RetentionLedger, logger *slog.Logger, opts ...RetentionOption) *RetentionService {
	s := &RetentionService{
		ledger:    ledger,
		batchSize: DefaultPurgeBatchSize,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PurgeExpired deletes every record whose expiry has passed
func (s *RetentionService) PurgeExpired(ctx context.Context) (int64, error) {
	now := s.now()
	total, err := s.drain(ctx, func(ctx context.Context) (int64, error) {
		return s.ledger.DeleteExpired(ctx, now, s.batchSize)
	})
	s.metrics.AddSweepDeleted("expired", total)
	if err != nil {
		return total, fmt.Errorf("%w: purge expired: %w", models.ErrLedgerUnavailable, err)
	}

	// an idle sweep is not an audit event
	if total > 0 {
		s.logger.InfoContext(ctx, "purged expired attempts", slog.Int64("deleted", total))
		s.emitPurge(ctx, "expired", total)
	}
	return total, nil
}

// PurgeOlderThan deletes every record attempted strictly before cutoff,
// regardless of its expiry. A cutoff in the future is rejected.
func (s *RetentionService) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if cutoff.IsZero() || cutoff.After(s.now()) {
		return 0, models.ErrInvalidTimeRange
	}

	total, err := s.drain(ctx, func(ctx context.Context) (int64, error) {
		return s.ledger.DeleteOlderThan(ctx, cutoff, s.batchSize)
	})
	s.metrics.AddSweepDeleted("cutoff", total)
	if err != nil {
		return total, fmt.Errorf("%w: purge older than: %w", models.ErrLedgerUnavailable, err)
	}

	s.logger.InfoContext(ctx, "purged attempts before cutoff",
		slog.Time("cutoff", cutoff),
		slog.Int64("deleted", total))

	s.emitPurge(ctx, "cutoff", total)
	return total, nil
}

func (s *RetentionService) emitPurge(ctx context.Context, scope string, deleted int64) {
	if s.audit == nil {
		return
	}
	s.audit.Emit(ctx, &models.SecurityEvent{
		ID:         uuid.NewString(),
		Action:     models.ActionLedgerPurge,
		Success:    true,
		Severity:   models.SeverityInfo,
		Context:    models.SecurityContext{Purged: deleted, PurgeScope: scope},
		OccurredAt: s.now(),
	})
}

// drain repeats a bounded delete until a short batch shows nothing is left
func (s *RetentionService) drain(ctx context.Context, deleteBatch func(context.Context) (int64, error)) (int64, error) {
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		n, err := deleteBatch(ctx)
		if err != nil {
			return total, err
		}
		total += n

		if n < int64(s.batchSize) {
			return total, nil
		}
	}
}
