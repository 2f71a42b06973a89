package services

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/BradenHooton/authgate/internal/metrics"
	"github.com/BradenHooton/authgate/internal/models"
	"github.com/BradenHooton/authgate/pkg/logger"
	"github.com/mssola/useragent"
)

const (
	auditQueueSize      = 1024
	auditPersistTimeout = 5 * time.Second
)

// SecurityEventRepository persists security events
type SecurityEventRepository interface {
	Create(ctx context.Context, event *models.SecurityEvent) error
}

// AuditService handles audit logging with dual-write pattern (slog + database).
// The log line is written synchronously; persistence happens on a background
// worker and its failures are logged and dropped.
type AuditService struct {
	repo    SecurityEventRepository
	audit   *logger.AuditLogger
	logger  *slog.Logger
	metrics *metrics.Metrics

	queue  chan *models.SecurityEvent
	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewAuditService creates a new AuditService and starts its persistence worker.
// A nil repo makes it log-only.
func NewAuditService(repo SecurityEventRepository, log *slog.Logger, m *metrics.Metrics) *AuditService {
	s := &AuditService{
		repo:    repo,
		audit:   logger.NewAuditLogger(log),
		logger:  log,
		metrics: m,
		queue:   make(chan *models.SecurityEvent, auditQueueSize),
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

// Emit implements SecurityEventSink. It never blocks on the database.
func (s *AuditService) Emit(ctx context.Context, event *models.SecurityEvent) {
	if event.Context.UserAgent != "" && event.Context.DeviceLabel == "" {
		event.Context.DeviceLabel = DeviceLabel(event.Context.UserAgent)
	}

	s.audit.LogSecurityEvent(ctx, logger.AuditEvent{
		Action:      string(event.Action),
		Severity:    string(event.Severity),
		Success:     event.Success,
		ActorID:     event.ActorID,
		Identifier:  event.Context.Identifier,
		IPAddress:   event.Context.IPAddress,
		DeviceLabel: event.Context.DeviceLabel,
		OccurredAt:  event.OccurredAt,
		Attrs:       eventAttrs(event.Context),
	})

	if s.repo == nil {
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.metrics.IncAuditDropped()
		return
	}

	select {
	case s.queue <- event:
	default:
		s.metrics.IncAuditDropped()
		s.logger.WarnContext(ctx, "audit queue full, dropping security event",
			slog.String("action", string(event.Action)))
	}
}

func (s *AuditService) run() {
	defer close(s.done)
	for event := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), auditPersistTimeout)
		if err := s.repo.Create(ctx, event); err != nil {
			s.metrics.IncAuditDropped()
			s.logger.Error("failed to persist security event",
				slog.String("action", string(event.Action)),
				slog.Any("error", err))
		}
		cancel()
	}
}

// Close stops accepting events and waits for queued ones to be written
func (s *AuditService) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()
	<-s.done
}

func eventAttrs(c models.SecurityContext) []slog.Attr {
	attrs := []slog.Attr{
		slog.Bool("blocked", c.Blocked),
		slog.Bool("requires_otp", c.RequiresOTP),
		slog.Int("failures_in_window", c.FailuresInWindow),
	}
	if c.BlockReason != "" {
		attrs = append(attrs, slog.String("block_reason", c.BlockReason))
	}
	if c.BlockedUntil != nil {
		attrs = append(attrs, slog.Time("blocked_until", *c.BlockedUntil))
	}
	if c.RiskLevel != "" {
		attrs = append(attrs,
			slog.Int("risk_score", c.RiskScore),
			slog.String("risk_level", string(c.RiskLevel)),
			slog.Bool("requires_human_review", c.RequiresHumanReview))
	}
	if c.Purged > 0 {
		attrs = append(attrs, slog.Int64("purged", c.Purged))
	}
	return attrs
}

// DeviceLabel renders a user agent as "Browser on OS"
func DeviceLabel(userAgent string) string {
	if userAgent == "" {
		return "Unknown Device"
	}

	ua := useragent.New(userAgent)
	browser, _ := ua.Browser()
	os := ua.OS()

	if ua.Mobile() {
		if platform := ua.Platform(); platform != "" {
			return strings.TrimSpace(browser + " on " + platform)
		}
	}

	if browser == "" {
		browser = "Unknown Browser"
	}
	if os == "" {
		os = "Unknown OS"
	}
	return strings.TrimSpace(browser + " on " + os)
}
