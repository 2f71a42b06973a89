package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/BradenHooton/authgate/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizedIdentifier(t *testing.T) {
	tests := []struct {
		name       string
		identifier string
		expected   string
	}{
		{"email", "alice@example.com", "a****@*******.com"},
		{"single char user", "a@x.com", "a@*.com"},
		{"phone", "+15551234542", "+*********42"},
		{"formatted phone", "555-0142", "***-**42"},
		{"too short", "12", "[invalid-phone]"},
		{"malformed email", "a@b@c", "[invalid-email]"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, logger.SanitizedIdentifier(tt.identifier))
		})
	}
}

func TestHasSensitiveQuery(t *testing.T) {
	tests := []struct {
		query string
		want  bool
	}{
		{"identifier=a%40x.com&limit=5", true},
		{"IP=1.1.1.1&Email=x", true},
		{"ip=1.1.1.1&limit=10", false},
		{"authority=x", false},
		{"%zz=1", true},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, logger.HasSensitiveQuery(tt.query))
		})
	}
}

func TestAuditLogger_LogSecurityEvent(t *testing.T) {
	var buf bytes.Buffer
	al := logger.NewAuditLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	al.LogSecurityEvent(context.Background(), logger.AuditEvent{
		Action:     "LOGIN_ATTEMPT",
		Severity:   "WARNING",
		Identifier: "bob@example.com",
		IPAddress:  "10.0.0.1",
		Attrs:      []slog.Attr{slog.Bool("blocked", true)},
	})

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "WARN", line["level"])
	assert.Equal(t, "audit", line["msg"])
	assert.Equal(t, "b**@*******.com", line["identifier"])
	assert.Equal(t, "10.0.0.1", line["ip_address"])
	assert.Equal(t, true, line["blocked"])
}
