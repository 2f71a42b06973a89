package models

import (
	"math"
	"time"
)

// BlockReason names the lockout that closed the gate
type BlockReason string

const (
	BlockReasonNone       BlockReason = ""
	BlockReasonIdentifier BlockReason = "IDENTIFIER"
	BlockReasonIP         BlockReason = "IP"
)

// GateDecision is the pre-authentication verdict for a login attempt
type GateDecision struct {
	Blocked          bool        `json:"blocked"`
	BlockedUntil     *time.Time  `json:"blocked_until,omitempty"`
	BlockReason      BlockReason `json:"block_reason,omitempty"`
	RequiresOTP      bool        `json:"requires_otp"`
	FailuresInWindow int         `json:"failures_in_window"`
}

// OtpGateDecision is the pre-check verdict for a second-factor attempt
type OtpGateDecision struct {
	Blocked             bool       `json:"blocked"`
	BlockedUntil        *time.Time `json:"blocked_until,omitempty"`
	OtpFailuresInWindow int        `json:"otp_failures_in_window"`
}

// AttemptDecision is returned after a login attempt has been recorded
type AttemptDecision struct {
	Blocked          bool            `json:"blocked"`
	BlockedUntil     *time.Time      `json:"blocked_until,omitempty"`
	RequiresOTP      bool            `json:"requires_otp"`
	FailuresInWindow int             `json:"failures_in_window"`
	Risk             *RiskAssessment `json:"risk"`
}

// OtpAttemptDecision is returned after a second-factor attempt has been recorded
type OtpAttemptDecision struct {
	Blocked             bool            `json:"blocked"`
	BlockedUntil        *time.Time      `json:"blocked_until,omitempty"`
	OtpFailuresInWindow int             `json:"otp_failures_in_window"`
	Risk                *RiskAssessment `json:"risk"`
}

// RetryAfter returns the whole seconds left until the deadline, never negative
func RetryAfter(until *time.Time, now time.Time) int {
	if until == nil || !until.After(now) {
		return 0
	}
	return int(math.Ceil(until.Sub(now).Seconds()))
}
