package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/authgate/internal/metrics"
	"github.com/BradenHooton/authgate/internal/models"
	"github.com/BradenHooton/authgate/internal/policy"
	"github.com/BradenHooton/authgate/internal/traces"
	"github.com/BradenHooton/authgate/pkg/logger"
	"github.com/google/uuid"
)

// GateRequest carries the provenance of an attempt. Empty optional fields mean
// the caller did not supply them.
type GateRequest struct {
	Identifier string
	IPAddress  string
	DeviceID   string
	UserAgent  string
}

// AttemptRequest is the authenticator's report of a verified (or rejected) attempt
type AttemptRequest struct {
	Identifier string
	Success    bool
	ActorID    string
	IPAddress  string
	DeviceID   string
	UserAgent  string
}

// GateService evaluates and records login and second-factor attempts.
//
// It holds no per-identifier state and takes no lock: the gate read and the
// recorder write are not atomic, so a burst of concurrent failures may each see
// "open" and the lockout can land one or two attempts past the threshold. Every
// failure is still appended, so sustained attempts always reach the lock.
type GateService struct {
	ledger  AttemptLedger
	policy  policy.Provider
	ipLocks IPLockoutStore
	audit   SecurityEventSink
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string
}

// GateOption configures a GateService
type GateOption func(*GateService)

// WithClock overrides the time source
func WithClock(now func() time.Time) GateOption {
	return func(s *GateService) {
		s.now = now
	}
}

// WithIPLockoutStore persists IP lockout deadlines on first trip
func WithIPLockoutStore(store IPLockoutStore) GateOption {
	return func(s *GateService) {
		s.ipLocks = store
	}
}

// WithAuditSink sets the security event sink
func WithAuditSink(sink SecurityEventSink) GateOption {
	return func(s *GateService) {
		s.audit = sink
	}
}

// WithMetrics enables Prometheus instrumentation
func WithMetrics(m *metrics.Metrics) GateOption {
	return func(s *GateService) {
		s.metrics = m
	}
}

// NewGateService creates a new GateService
func NewGateService(ledger AttemptLedger, provider policy.Provider, logger *slog.Logger, opts ...GateOption) *GateService {
	if provider == nil {
		provider = policy.Static(policy.Defaults())
	}
	s := &GateService{
		ledger: ledger,
		policy: provider,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// attemptInput is a request with its identifier already normalized
type attemptInput struct {
	identifier string
	ipAddress  string
	deviceID   string
	userAgent  string
}

func normalizeInput(identifier, ip, deviceID, userAgent string) (attemptInput, error) {
	in := attemptInput{
		identifier: models.NormalizeIdentifier(identifier),
		ipAddress:  ip,
		deviceID:   deviceID,
		userAgent:  userAgent,
	}
	if in.identifier == "" {
		return in, models.ErrInvalidIdentifier
	}
	return in, nil
}

func ledgerError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", models.ErrLedgerUnavailable, op, err)
}

// EvaluateGate is the read-only pre-authentication check. The first blocking
// condition wins: an active identifier lockout, then an IP lockout. An open gate
// reports whether the attempt will need a second factor.
func (s *GateService) EvaluateGate(ctx context.Context, req GateRequest) (*models.GateDecision, error) {
	in, err := normalizeInput(req.Identifier, req.IPAddress, req.DeviceID, req.UserAgent)
	if err != nil {
		return nil, err
	}

	ctx, span := traces.StartSpan(ctx, "gate.evaluate", traces.Channel(string(models.ChannelLogin)))
	defer span.End()

	started := time.Now()
	pol := s.policy.Current(ctx)
	now := s.now()

	sig, err := s.gatherSignals(ctx, pol, models.ChannelLogin, pol.Login, in, now)
	if err != nil {
		traces.RecordError(span, err)
		s.metrics.IncLedgerError("gate")
		return nil, err
	}

	decision := &models.GateDecision{FailuresInWindow: sig.failures}

	switch {
	case sig.activeLockUntil != nil:
		decision.Blocked = true
		decision.BlockReason = models.BlockReasonIdentifier
		decision.BlockedUntil = sig.activeLockUntil
	default:
		if until := s.ipBlockDeadline(ctx, pol, in.ipAddress, sig.ipFailures, now); until != nil {
			decision.Blocked = true
			decision.BlockReason = models.BlockReasonIP
			decision.BlockedUntil = until
		} else {
			decision.RequiresOTP = sig.requiresOTP(pol, sig.failures)
		}
	}

	span.SetAttributes(traces.Blocked(decision.Blocked), traces.RequiresOTP(decision.RequiresOTP))
	s.metrics.ObserveGate(string(models.ChannelLogin), gateLabel(decision), time.Since(started).Seconds())

	s.emit(ctx, models.ActionLoginGate, !decision.Blocked, "", in, models.SecurityContext{
		Blocked:          decision.Blocked,
		BlockReason:      string(decision.BlockReason),
		BlockedUntil:     decision.BlockedUntil,
		RequiresOTP:      decision.RequiresOTP,
		FailuresInWindow: decision.FailuresInWindow,
	}, nil, now)

	return decision, nil
}

// ipBlockDeadline returns the IP lockout deadline, or nil when the IP is not locked.
// A persisted first-trip deadline wins over the synthesized one.
func (s *GateService) ipBlockDeadline(ctx context.Context, pol policy.Policy, ip string, ipFailures int, now time.Time) *time.Time {
	if ip == "" {
		return nil
	}

	if s.ipLocks != nil {
		stored, err := s.ipLocks.Get(ctx, ip)
		if err != nil {
			s.logger.WarnContext(ctx, "ip lockout lookup failed, using synthesized deadline",
				slog.String("ip_address", ip),
				slog.Any("error", err))
		} else if stored != nil && stored.After(now) {
			return stored
		}
	}

	if ipFailures >= pol.IP.MaxFails {
		until := now.Add(pol.IP.BlockDuration)
		return &until
	}
	return nil
}

// EvaluateOtpGate is the read-only pre-check for the second-factor step
func (s *GateService) EvaluateOtpGate(ctx context.Context, identifier string) (*models.OtpGateDecision, error) {
	in, err := normalizeInput(identifier, "", "", "")
	if err != nil {
		return nil, err
	}

	ctx, span := traces.StartSpan(ctx, "gate.evaluate", traces.Channel(string(models.ChannelOTP)))
	defer span.End()

	started := time.Now()
	pol := s.policy.Current(ctx)
	now := s.now()

	lock, err := s.ledger.LatestLockout(ctx, models.ChannelOTP, in.identifier)
	if err != nil {
		err = ledgerError("latest otp lockout", err)
		traces.RecordError(span, err)
		s.metrics.IncLedgerError("otp_gate")
		return nil, err
	}
	failures, err := s.ledger.CountFailures(ctx, models.ChannelOTP, in.identifier, pol.Otp.Since(now))
	if err != nil {
		err = ledgerError("count otp failures", err)
		traces.RecordError(span, err)
		s.metrics.IncLedgerError("otp_gate")
		return nil, err
	}

	decision := &models.OtpGateDecision{OtpFailuresInWindow: failures}
	if lock != nil && lock.LockActiveAt(now) {
		decision.Blocked = true
		decision.BlockedUntil = lock.BlockedUntil
	}

	label := "open"
	if decision.Blocked {
		label = "blocked_identifier"
	}
	span.SetAttributes(traces.Blocked(decision.Blocked))
	s.metrics.ObserveGate(string(models.ChannelOTP), label, time.Since(started).Seconds())

	s.emit(ctx, models.ActionLoginOtpGate, !decision.Blocked, "", in, models.SecurityContext{
		Blocked:          decision.Blocked,
		BlockedUntil:     decision.BlockedUntil,
		FailuresInWindow: failures,
	}, nil, now)

	return decision, nil
}

// RecordAttempt appends the outcome of a primary login attempt, opens a lockout
// when this failure reaches the threshold, and scores the attempt
func (s *GateService) RecordAttempt(ctx context.Context, req AttemptRequest) (*models.AttemptDecision, error) {
	in, err := normalizeInput(req.Identifier, req.IPAddress, req.DeviceID, req.UserAgent)
	if err != nil {
		return nil, err
	}

	ctx, span := traces.StartSpan(ctx, "gate.record", traces.Channel(string(models.ChannelLogin)))
	defer span.End()

	pol := s.policy.Current(ctx)
	res, err := s.record(ctx, pol, models.ChannelLogin, pol.Login, in, req.Success, req.ActorID)
	if err != nil {
		traces.RecordError(span, err)
		return nil, err
	}

	decision := &models.AttemptDecision{
		Blocked:          res.blocked,
		BlockedUntil:     res.blockedUntil,
		RequiresOTP:      res.nextRequiresOTP,
		FailuresInWindow: res.failuresAfter,
		Risk:             res.risk,
	}
	span.SetAttributes(traces.Blocked(decision.Blocked), traces.RequiresOTP(decision.RequiresOTP), traces.RiskScore(res.risk.Score))

	s.emit(ctx, models.ActionLoginAttempt, req.Success, req.ActorID, in, models.SecurityContext{
		Blocked:          decision.Blocked,
		BlockReason:      blockReasonIf(decision.Blocked),
		BlockedUntil:     decision.BlockedUntil,
		RequiresOTP:      decision.RequiresOTP,
		FailuresInWindow: decision.FailuresInWindow,
	}, res.risk, res.record.AttemptedAt)

	return decision, nil
}

// RecordOtpAttempt is RecordAttempt for the second-factor step. It uses its own
// window, threshold and lock duration and never touches the login lockout.
func (s *GateService) RecordOtpAttempt(ctx context.Context, req AttemptRequest) (*models.OtpAttemptDecision, error) {
	in, err := normalizeInput(req.Identifier, req.IPAddress, req.DeviceID, req.UserAgent)
	if err != nil {
		return nil, err
	}

	ctx, span := traces.StartSpan(ctx, "gate.record", traces.Channel(string(models.ChannelOTP)))
	defer span.End()

	pol := s.policy.Current(ctx)
	res, err := s.record(ctx, pol, models.ChannelOTP, pol.Otp, in, req.Success, req.ActorID)
	if err != nil {
		traces.RecordError(span, err)
		return nil, err
	}

	decision := &models.OtpAttemptDecision{
		Blocked:             res.blocked,
		BlockedUntil:        res.blockedUntil,
		OtpFailuresInWindow: res.failuresAfter,
		Risk:                res.risk,
	}
	span.SetAttributes(traces.Blocked(decision.Blocked), traces.RiskScore(res.risk.Score))

	s.emit(ctx, models.ActionLoginOtpAttempt, req.Success, req.ActorID, in, models.SecurityContext{
		Blocked:          decision.Blocked,
		BlockReason:      blockReasonIf(decision.Blocked),
		BlockedUntil:     decision.BlockedUntil,
		FailuresInWindow: decision.OtpFailuresInWindow,
	}, res.risk, res.record.AttemptedAt)

	return decision, nil
}

type recordResult struct {
	record        *models.AttemptRecord
	failuresAfter int
	blocked       bool
	blockedUntil  *time.Time
	// nextRequiresOTP is what the gate will answer for the same inputs once
	// this record is in the ledger
	nextRequiresOTP bool
	risk            *models.RiskAssessment
}

// record is the write path shared by both channels
func (s *GateService) record(ctx context.Context, pol policy.Policy, channel models.Channel, window policy.Window, in attemptInput, success bool, actorID string) (*recordResult, error) {
	started := time.Now()
	now := s.now()

	sig, err := s.gatherSignals(ctx, pol, channel, window, in, now)
	if err != nil {
		s.metrics.IncLedgerError("record_" + string(channel))
		return nil, err
	}

	res := &recordResult{failuresAfter: sig.failures}
	newLock := false
	if !success {
		res.failuresAfter++
		switch {
		case sig.activeLockUntil != nil:
			// the running lock stands; no second window is opened on top of it
			res.blocked = true
			res.blockedUntil = sig.activeLockUntil
		case res.failuresAfter >= window.MaxFails:
			until := now.Add(window.BlockDuration)
			res.blocked = true
			res.blockedUntil = &until
			newLock = true
		}
	}

	record := &models.AttemptRecord{
		ID:          s.newID(),
		Channel:     channel,
		Identifier:  in.identifier,
		AttemptedAt: now,
		Outcome:     models.OutcomeOf(success),
		ActorID:     actorID,
		IPAddress:   in.ipAddress,
		DeviceID:    in.deviceID,
		UserAgent:   in.userAgent,
		ExpiresAt:   now.Add(pol.Retention),
	}
	if channel == models.ChannelLogin && !success {
		record.RequiresOTP = sig.requiresOTP(pol, res.failuresAfter)
	}
	if newLock {
		record.TemporaryBlocked = true
		record.BlockedUntil = res.blockedUntil
	}

	if err := s.ledger.Append(ctx, record); err != nil {
		s.metrics.IncLedgerError("append")
		return nil, ledgerError("append attempt", err)
	}
	res.record = record
	if channel == models.ChannelLogin && !success {
		res.nextRequiresOTP = sig.afterAppend().requiresOTP(pol, res.failuresAfter)
	}

	ipFailuresAfter := sig.ipFailures
	if !success && in.ipAddress != "" {
		ipFailuresAfter++
	}

	if newLock {
		s.metrics.IncLockout(lockoutKind(channel))
		s.logger.WarnContext(ctx, "lockout opened",
			slog.String("channel", string(channel)),
			slog.String("identifier", logger.SanitizedIdentifier(in.identifier)),
			slog.Int("failures_in_window", res.failuresAfter),
			slog.Time("blocked_until", *res.blockedUntil))
	}
	if channel == models.ChannelLogin && !success && in.ipAddress != "" && ipFailuresAfter >= pol.IP.MaxFails {
		s.tripIPLockout(ctx, in.ipAddress, now.Add(pol.IP.BlockDuration))
	}

	fanout := 0
	if in.deviceID != "" {
		fanout = sig.distinctIdentifiersForDevice
	}
	res.risk = ScoreRisk(RiskSignals{
		FailuresAfter:                res.failuresAfter,
		IPFailuresInWindow:           ipFailuresAfter,
		IPChanged:                    sig.ipChanged,
		DistinctIdentifiersForDevice: fanout,
		NovelDevice:                  sig.novelDevice,
		NovelUserAgent:               sig.novelUserAgent,
		Success:                      success,
	})

	s.metrics.IncRiskLevel(string(res.risk.Level))
	s.metrics.ObserveAttempt(string(channel), string(record.Outcome), time.Since(started).Seconds())

	return res, nil
}

func (s *GateService) tripIPLockout(ctx context.Context, ip string, until time.Time) {
	s.metrics.IncLockout("ip")
	if s.ipLocks == nil {
		return
	}
	if err := s.ipLocks.SetIfAbsent(ctx, ip, until); err != nil {
		s.logger.WarnContext(ctx, "failed to persist ip lockout",
			slog.String("ip_address", ip),
			slog.Any("error", err))
	}
}

// emit hands a security event to the sink; the sink owns any failure
func (s *GateService) emit(ctx context.Context, action models.ActionKind, success bool, actorID string, in attemptInput, sc models.SecurityContext, risk *models.RiskAssessment, at time.Time) {
	if s.audit == nil {
		return
	}

	sc.Identifier = in.identifier
	sc.IPAddress = in.ipAddress
	sc.DeviceID = in.deviceID
	sc.UserAgent = in.userAgent

	severity := models.SeverityInfo
	if sc.Blocked {
		severity = models.SeverityWarning
	}
	if risk != nil {
		sc.RiskScore = risk.Score
		sc.RiskLevel = risk.Level
		sc.RequiresHumanReview = risk.RequiresHumanReview
		sc.RiskFactors = risk.Factors
		if risk.Level == models.RiskLevelHigh {
			severity = models.SeverityWarning
		}
	}

	s.audit.Emit(ctx, &models.SecurityEvent{
		ID:         s.newID(),
		Action:     action,
		Success:    success,
		Severity:   severity,
		ActorID:    actorID,
		Context:    sc,
		OccurredAt: at,
	})
}

func gateLabel(d *models.GateDecision) string {
	switch {
	case d.BlockReason == models.BlockReasonIdentifier:
		return "blocked_identifier"
	case d.BlockReason == models.BlockReasonIP:
		return "blocked_ip"
	case d.RequiresOTP:
		return "otp_required"
	default:
		return "open"
	}
}

func blockReasonIf(blocked bool) string {
	if blocked {
		return string(models.BlockReasonIdentifier)
	}
	return ""
}

func lockoutKind(channel models.Channel) string {
	if channel == models.ChannelOTP {
		return "otp"
	}
	return "identifier"
}
