package policy

import (
	"context"
	"time"
)

// Tunable parameter keys. Every key is optional; absent keys resolve to Defaults().
const (
	KeyLoginWindowMinutes       = "security.login.windowMinutes"
	KeyLoginMaxFailsBeforeBlock = "security.login.maxFailsBeforeBlock"
	KeyLoginBlockMinutes        = "security.login.blockMinutes"
	KeyLoginFailsBeforeOtp      = "security.login.failsBeforeOtp"

	KeyOtpWindowMinutes = "security.login.otp.windowMinutes"
	KeyOtpMaxFails      = "security.login.otp.maxFails"
	KeyOtpBlockMinutes  = "security.login.otp.blockMinutes"

	KeyIPWindowMinutes = "security.login.ip.windowMinutes"
	KeyIPMaxFails      = "security.login.ip.maxFails"
	KeyIPBlockMinutes  = "security.login.ip.blockMinutes"

	KeyDeviceWindowMinutes           = "security.login.device.windowMinutes"
	KeyDeviceMaxDevicesPerIdentifier = "security.login.device.maxDevicesPerIdentifier"
	KeyDeviceMaxIdentifiersPerDevice = "security.login.device.maxIdentifiersPerDevice"
	KeyDeviceMaxIPsPerIdentifier     = "security.login.device.maxIpsPerIdentifier"
	KeyDeviceChecksEnabled           = "security.login.device.enabled"

	KeyRetentionDays = "security.login.retentionDays"
)

// Window is a trailing counting window with a failure threshold and lock duration
type Window struct {
	Span          time.Duration
	MaxFails      int
	BlockDuration time.Duration
}

// Since returns the start of the window ending at now
func (w Window) Since(now time.Time) time.Time {
	return now.Add(-w.Span)
}

// DeviceLimits holds the fan-out thresholds used by the OTP heuristics
type DeviceLimits struct {
	Enabled                 bool
	Span                    time.Duration
	MaxDevicesPerIdentifier int
	MaxIdentifiersPerDevice int
	MaxIPsPerIdentifier     int
}

// Policy is an immutable snapshot of every gating parameter
type Policy struct {
	Login          Window
	FailsBeforeOtp int
	Otp            Window
	IP             Window
	Device         DeviceLimits
	Retention      time.Duration
}

// Defaults returns the built-in policy used whenever the parameter store has no value
func Defaults() Policy {
	return Policy{
		Login: Window{
			Span:          10 * time.Minute,
			MaxFails:      3,
			BlockDuration: 5 * time.Minute,
		},
		FailsBeforeOtp: 2,
		Otp: Window{
			Span:          10 * time.Minute,
			MaxFails:      3,
			BlockDuration: 15 * time.Minute,
		},
		IP: Window{
			Span:          5 * time.Minute,
			MaxFails:      12,
			BlockDuration: 10 * time.Minute,
		},
		Device: DeviceLimits{
			Enabled:                 true,
			Span:                    60 * time.Minute,
			MaxDevicesPerIdentifier: 4,
			MaxIdentifiersPerDevice: 6,
			MaxIPsPerIdentifier:     3,
		},
		Retention: 30 * 24 * time.Hour,
	}
}

// Provider hands out the policy in force for a call
type Provider interface {
	Current(ctx context.Context) Policy
}

// Static is a Provider that always returns the same policy
type Static Policy

// Current implements Provider
func (s Static) Current(context.Context) Policy {
	return Policy(s)
}
