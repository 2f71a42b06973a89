package services

import (
	"context"
	"time"

	"github.com/BradenHooton/authgate/internal/models"
	"github.com/BradenHooton/authgate/internal/policy"
	"golang.org/x/sync/errgroup"
)

// attemptSignals is the ledger state around one attempt. Distinct counts
// already include the attempt's own device, IP and identifier.
type attemptSignals struct {
	activeLockUntil *time.Time

	failures   int
	ipFailures int

	ipChanged      bool
	novelDevice    bool
	novelUserAgent bool
	deviceHop      bool

	distinctDevices              int
	distinctIPs                  int
	distinctIdentifiersForDevice int
}

// gatherSignals runs the independent ledger reads concurrently. Any read
// failure fails the whole call.
func (s *GateService) gatherSignals(ctx context.Context, pol policy.Policy, channel models.Channel, window policy.Window, in attemptInput, now time.Time) (*attemptSignals, error) {
	sig := &attemptSignals{}
	deviceSince := now.Add(-pol.Device.Span)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		lock, err := s.ledger.LatestLockout(gctx, channel, in.identifier)
		if err != nil {
			return ledgerError("latest lockout", err)
		}
		if lock != nil && lock.LockActiveAt(now) {
			sig.activeLockUntil = lock.BlockedUntil
		}
		return nil
	})

	g.Go(func() error {
		n, err := s.ledger.CountFailures(gctx, channel, in.identifier, window.Since(now))
		if err != nil {
			return ledgerError("count failures", err)
		}
		sig.failures = n
		return nil
	})

	if in.ipAddress != "" {
		g.Go(func() error {
			n, err := s.ledger.CountFailuresByIP(gctx, channel, in.ipAddress, pol.IP.Since(now))
			if err != nil {
				return ledgerError("count ip failures", err)
			}
			sig.ipFailures = n
			return nil
		})

		g.Go(func() error {
			last, err := s.ledger.LastSuccess(gctx, in.identifier)
			if err != nil {
				return ledgerError("last success", err)
			}
			sig.ipChanged = last != nil && last.IPAddress != "" && last.IPAddress != in.ipAddress
			return nil
		})
	}

	if in.deviceID != "" {
		g.Go(func() error {
			seen, err := s.ledger.HasSeenDevice(gctx, in.identifier, in.deviceID)
			if err != nil {
				return ledgerError("device history", err)
			}
			sig.novelDevice = !seen
			return nil
		})
	}

	if in.userAgent != "" {
		g.Go(func() error {
			seen, err := s.ledger.HasSeenUserAgent(gctx, in.identifier, in.userAgent)
			if err != nil {
				return ledgerError("user agent history", err)
			}
			sig.novelUserAgent = !seen
			return nil
		})
	}

	if pol.Device.Enabled {
		if in.deviceID != "" && in.ipAddress != "" {
			g.Go(func() error {
				last, err := s.ledger.LastSeenForDevice(gctx, in.deviceID, deviceSince)
				if err != nil {
					return ledgerError("device last seen", err)
				}
				sig.deviceHop = last != nil && last.IPAddress != "" && last.IPAddress != in.ipAddress
				return nil
			})
		}

		g.Go(func() error {
			n, err := s.ledger.CountDistinctDevices(gctx, in.identifier, deviceSince, in.deviceID)
			if err != nil {
				return ledgerError("distinct devices", err)
			}
			sig.distinctDevices = n
			return nil
		})

		g.Go(func() error {
			n, err := s.ledger.CountDistinctIPs(gctx, in.identifier, deviceSince, in.ipAddress)
			if err != nil {
				return ledgerError("distinct ips", err)
			}
			sig.distinctIPs = n
			return nil
		})
	}

	// the fan-out count also feeds the risk score, so it is read even with device checks off
	if in.deviceID != "" {
		g.Go(func() error {
			n, err := s.ledger.CountDistinctIdentifiersForDevice(gctx, in.deviceID, deviceSince, in.identifier)
			if err != nil {
				return ledgerError("distinct identifiers for device", err)
			}
			sig.distinctIdentifiersForDevice = n
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sig, nil
}

// afterAppend is the view of sig once the attempt itself is in the ledger:
// its device and user agent are known and the device was last seen at its IP
func (sig *attemptSignals) afterAppend() *attemptSignals {
	next := *sig
	next.novelDevice = false
	next.novelUserAgent = false
	next.deviceHop = false
	return &next
}

// requiresOTP applies the second-factor heuristics against a failure count
func (sig *attemptSignals) requiresOTP(pol policy.Policy, failures int) bool {
	if failures >= pol.FailsBeforeOtp {
		return true
	}
	if sig.novelDevice || sig.novelUserAgent || sig.ipChanged {
		return true
	}
	if !pol.Device.Enabled {
		return false
	}
	if sig.deviceHop {
		return true
	}
	if sig.distinctDevices > pol.Device.MaxDevicesPerIdentifier ||
		sig.distinctIdentifiersForDevice > pol.Device.MaxIdentifiersPerDevice {
		return true
	}
	return sig.distinctIPs >= pol.Device.MaxIPsPerIdentifier
}
