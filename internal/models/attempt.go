package models

import (
	"strings"
	"time"
)

// Channel separates the primary login step from the second-factor step in the ledger
type Channel string

const (
	ChannelLogin Channel = "login"
	ChannelOTP   Channel = "otp"
)

// Outcome is the result reported by the external authenticator
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// OutcomeOf maps the authenticator's boolean result to an Outcome
func OutcomeOf(success bool) Outcome {
	if success {
		return OutcomeSuccess
	}
	return OutcomeFailure
}

// AttemptRecord is a single immutable entry in the attempt ledger
type AttemptRecord struct {
	ID               string     `db:"id" json:"id"`
	Channel          Channel    `db:"channel" json:"channel"`
	Identifier       string     `db:"identifier" json:"identifier"`
	AttemptedAt      time.Time  `db:"attempted_at" json:"attempted_at"`
	Outcome          Outcome    `db:"outcome" json:"outcome"`
	ActorID          string     `db:"actor_id" json:"actor_id,omitempty"`
	IPAddress        string     `db:"ip_address" json:"ip,omitempty"`
	DeviceID         string     `db:"device_id" json:"device_id,omitempty"`
	UserAgent        string     `db:"user_agent" json:"user_agent,omitempty"`
	RequiresOTP      bool       `db:"requires_otp" json:"requires_otp"`
	TemporaryBlocked bool       `db:"temporary_blocked" json:"temporary_blocked"`
	BlockedUntil     *time.Time `db:"blocked_until" json:"blocked_until,omitempty"`
	ExpiresAt        time.Time  `db:"expires_at" json:"expires_at"`
}

// Succeeded reports whether the attempt was successful
func (a *AttemptRecord) Succeeded() bool {
	return a.Outcome == OutcomeSuccess
}

// LockActiveAt reports whether this record carries a lockout that is still running at t
func (a *AttemptRecord) LockActiveAt(t time.Time) bool {
	return a.TemporaryBlocked && a.BlockedUntil != nil && a.BlockedUntil.After(t)
}

// NormalizeIdentifier trims and lower-cases an email-or-phone identifier so that
// case and whitespace variants collide in windowed counts
func NormalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

// AttemptSummary aggregates ledger activity over a time range
type AttemptSummary struct {
	From                time.Time `json:"from"`
	To                  time.Time `json:"to"`
	Total               int64     `json:"total"`
	Successes           int64     `json:"successes"`
	Failures            int64     `json:"failures"`
	OtpFailures         int64     `json:"otp_failures"`
	Lockouts            int64     `json:"lockouts"`
	DistinctIdentifiers int64     `json:"distinct_identifiers"`
	DistinctIPs         int64     `json:"distinct_ips"`
}

// OffenderCount is a failure tally for one IP address or device
type OffenderCount struct {
	Key          string    `json:"key"`
	Failures     int64     `json:"failures"`
	LastFailedAt time.Time `json:"last_failed_at"`
}
