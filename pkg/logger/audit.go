package logger

import (
	"context"
	"log/slog"
	"time"
)

// AuditEvent is a security event rendered as an "audit" log line
type AuditEvent struct {
	Action      string
	Severity    string
	Success     bool
	ActorID     string
	Identifier  string
	IPAddress   string
	DeviceLabel string
	OccurredAt  time.Time
	Attrs       []slog.Attr
}

// AuditLogger provides audit logging functionality
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
	}
}

// LogSecurityEvent writes one audit line. The identifier is masked; warning
// severity is logged at WARN, everything else at INFO.
func (al *AuditLogger) LogSecurityEvent(ctx context.Context, event AuditEvent) {
	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}

	attrs := []slog.Attr{
		slog.String("audit_type", "security"),
		slog.String("action", event.Action),
		slog.String("severity", event.Severity),
		slog.Bool("success", event.Success),
		slog.String("identifier", SanitizedIdentifier(event.Identifier)),
		slog.String("timestamp", occurred.UTC().Format(time.RFC3339)),
	}

	if event.ActorID != "" {
		attrs = append(attrs, slog.String("actor_id", event.ActorID))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.DeviceLabel != "" {
		attrs = append(attrs, slog.String("device", event.DeviceLabel))
	}
	attrs = append(attrs, event.Attrs...)

	level := slog.LevelInfo
	if event.Severity == "WARNING" {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(ctx, level, "audit", attrs...)
}
