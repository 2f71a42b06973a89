package policy

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultScope is used when no scope is configured
const DefaultScope = "global"

// Source looks up raw parameter values. found=false means the key is not set.
type Source interface {
	Lookup(ctx context.Context, scope, key string) (value string, found bool, err error)
}

// Resolver reads typed parameters from a Source and never fails: any lookup
// problem resolves to the supplied default
type Resolver struct {
	source Source
	scope  string
	logger *slog.Logger

	cacheTTL time.Duration
	mu       sync.Mutex
	cached   *Policy
	cachedAt time.Time
	now      func() time.Time
}

// Option configures a Resolver
type Option func(*Resolver)

// WithCacheTTL keeps a resolved snapshot for ttl before consulting the source again
func WithCacheTTL(ttl time.Duration) Option {
	return func(r *Resolver) {
		r.cacheTTL = ttl
	}
}

// WithClock overrides the time source used for cache expiry
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		r.now = now
	}
}

// NewResolver creates a Resolver. A nil source resolves every key to its default.
func NewResolver(source Source, scope string, logger *slog.Logger, opts ...Option) *Resolver {
	if scope == "" {
		scope = DefaultScope
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Resolver{source: source, scope: scope, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Resolver) lookup(ctx context.Context, scope, key string) (string, bool) {
	if r.source == nil {
		return "", false
	}

	value, found, err := r.source.Lookup(ctx, scope, key)
	if err != nil {
		r.logger.DebugContext(ctx, "policy lookup failed, using default",
			slog.String("scope", scope),
			slog.String("key", key),
			slog.Any("error", err))
		return "", false
	}
	if !found {
		return "", false
	}
	return strings.TrimSpace(value), true
}

// GetInt returns an integer parameter or def
func (r *Resolver) GetInt(ctx context.Context, scope, key string, def int) int {
	raw, ok := r.lookup(ctx, scope, key)
	if !ok {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		r.logger.DebugContext(ctx, "malformed policy value, using default",
			slog.String("key", key), slog.String("value", raw))
		return def
	}
	return v
}

// GetBool returns a boolean parameter or def
func (r *Resolver) GetBool(ctx context.Context, scope, key string, def bool) bool {
	raw, ok := r.lookup(ctx, scope, key)
	if !ok {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		r.logger.DebugContext(ctx, "malformed policy value, using default",
			slog.String("key", key), slog.String("value", raw))
		return def
	}
	return v
}

// GetDuration returns a duration parameter written as a Go duration ("90s", "10m") or def
func (r *Resolver) GetDuration(ctx context.Context, scope, key string, def time.Duration) time.Duration {
	raw, ok := r.lookup(ctx, scope, key)
	if !ok {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		r.logger.DebugContext(ctx, "malformed policy value, using default",
			slog.String("key", key), slog.String("value", raw))
		return def
	}
	return v
}

// getPositiveInt rejects zero and negative thresholds, which would lock everyone out
func (r *Resolver) getPositiveInt(ctx context.Context, key string, def int) int {
	if v := r.GetInt(ctx, r.scope, key, def); v > 0 {
		return v
	}
	return def
}

func (r *Resolver) getMinutes(ctx context.Context, key string, def time.Duration) time.Duration {
	minutes := r.getPositiveInt(ctx, key, int(def/time.Minute))
	return time.Duration(minutes) * time.Minute
}

// Current returns the policy snapshot for the resolver's scope, served from
// cache while it is younger than the configured TTL
func (r *Resolver) Current(ctx context.Context) Policy {
	if r.cacheTTL <= 0 {
		return r.resolve(ctx)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if r.cached != nil && now.Sub(r.cachedAt) < r.cacheTTL {
		return *r.cached
	}
	p := r.resolve(ctx)
	r.cached = &p
	r.cachedAt = now
	return p
}

func (r *Resolver) resolve(ctx context.Context) Policy {
	d := Defaults()

	return Policy{
		Login: Window{
			Span:          r.getMinutes(ctx, KeyLoginWindowMinutes, d.Login.Span),
			MaxFails:      r.getPositiveInt(ctx, KeyLoginMaxFailsBeforeBlock, d.Login.MaxFails),
			BlockDuration: r.getMinutes(ctx, KeyLoginBlockMinutes, d.Login.BlockDuration),
		},
		FailsBeforeOtp: r.getPositiveInt(ctx, KeyLoginFailsBeforeOtp, d.FailsBeforeOtp),
		Otp: Window{
			Span:          r.getMinutes(ctx, KeyOtpWindowMinutes, d.Otp.Span),
			MaxFails:      r.getPositiveInt(ctx, KeyOtpMaxFails, d.Otp.MaxFails),
			BlockDuration: r.getMinutes(ctx, KeyOtpBlockMinutes, d.Otp.BlockDuration),
		},
		IP: Window{
			Span:          r.getMinutes(ctx, KeyIPWindowMinutes, d.IP.Span),
			MaxFails:      r.getPositiveInt(ctx, KeyIPMaxFails, d.IP.MaxFails),
			BlockDuration: r.getMinutes(ctx, KeyIPBlockMinutes, d.IP.BlockDuration),
		},
		Device: DeviceLimits{
			Enabled:                 r.GetBool(ctx, r.scope, KeyDeviceChecksEnabled, d.Device.Enabled),
			Span:                    r.getMinutes(ctx, KeyDeviceWindowMinutes, d.Device.Span),
			MaxDevicesPerIdentifier: r.getPositiveInt(ctx, KeyDeviceMaxDevicesPerIdentifier, d.Device.MaxDevicesPerIdentifier),
			MaxIdentifiersPerDevice: r.getPositiveInt(ctx, KeyDeviceMaxIdentifiersPerDevice, d.Device.MaxIdentifiersPerDevice),
			MaxIPsPerIdentifier:     r.getPositiveInt(ctx, KeyDeviceMaxIPsPerIdentifier, d.Device.MaxIPsPerIdentifier),
		},
		Retention: time.Duration(r.getPositiveInt(ctx, KeyRetentionDays, int(d.Retention/(24*time.Hour)))) * 24 * time.Hour,
	}
}

// MapSource is an in-process Source keyed by parameter name, shared across scopes
type MapSource map[string]string

// Lookup implements Source
func (m MapSource) Lookup(_ context.Context, _, key string) (string, bool, error) {
	v, ok := m[key]
	return v, ok, nil
}
