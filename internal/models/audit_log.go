package models

import (
	"database/sql/driver"
	"encoding/json"
	"strings"
	"time"
)

// ActionKind identifies which gate operation produced a security event
type ActionKind string

const (
	ActionLoginGate       ActionKind = "LOGIN_GATE"
	ActionLoginAttempt    ActionKind = "LOGIN_ATTEMPT"
	ActionLoginOtpAttempt ActionKind = "LOGIN_OTP_ATTEMPT"
	ActionLoginOtpGate    ActionKind = "LOGIN_OTP_GATE"
	ActionLedgerPurge     ActionKind = "LEDGER_PURGE"
)

// Severity of a security event
type Severity string

const (
	SeverityInfo    Severity = "INFO"
	SeverityWarning Severity = "WARNING"
)

var severityLabels = map[string]Severity{
	"info":    SeverityInfo,
	"warn":    SeverityWarning,
	"warning": SeverityWarning,
}

// ParseSeverity maps a label to a Severity, falling back to INFO
func ParseSeverity(label string) Severity {
	if sev, ok := severityLabels[strings.ToLower(strings.TrimSpace(label))]; ok {
		return sev
	}
	return SeverityInfo
}

// SecurityEvent is one structured audit record emitted by the gate
type SecurityEvent struct {
	ID         string          `db:"id" json:"id"`
	Action     ActionKind      `db:"action" json:"action"`
	Success    bool            `db:"success" json:"success"`
	Severity   Severity        `db:"severity" json:"severity"`
	ActorID    string          `db:"actor_id" json:"actor_id,omitempty"`
	Context    SecurityContext `db:"context" json:"context"`
	OccurredAt time.Time       `db:"occurred_at" json:"occurred_at"`
}

// SecurityContext is the fixed-shape context blob attached to every security event
type SecurityContext struct {
	Identifier          string     `json:"identifier"`
	IPAddress           string     `json:"ip,omitempty"`
	DeviceID            string     `json:"device_id,omitempty"`
	UserAgent           string     `json:"user_agent,omitempty"`
	DeviceLabel         string     `json:"device_label,omitempty"`
	Blocked             bool       `json:"blocked"`
	BlockReason         string     `json:"block_reason,omitempty"`
	BlockedUntil        *time.Time `json:"blocked_until,omitempty"`
	RequiresOTP         bool       `json:"requires_otp"`
	FailuresInWindow    int        `json:"failures_in_window"`
	RiskScore           int        `json:"risk_score"`
	RiskLevel           RiskLevel  `json:"risk_level,omitempty"`
	RequiresHumanReview bool       `json:"requires_human_review"`
	RiskFactors         []string   `json:"risk_factors,omitempty"`
	Purged              int64      `json:"purged,omitempty"`
	PurgeScope          string     `json:"purge_scope,omitempty"`
}

// Scan implements sql.Scanner for JSONB. The risk level is normalized through
// ParseRiskLevel.
func (c *SecurityContext) Scan(value interface{}) error {
	if value == nil {
		*c = SecurityContext{}
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return ErrBadRequest
	}
	if err := json.Unmarshal(raw, c); err != nil {
		return err
	}
	if c.RiskLevel != "" {
		c.RiskLevel = ParseRiskLevel(string(c.RiskLevel))
	}
	return nil
}

// Value implements driver.Valuer for JSONB
func (c SecurityContext) Value() (driver.Value, error) {
	return json.Marshal(c)
}
