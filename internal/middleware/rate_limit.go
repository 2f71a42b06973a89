package middleware

import (
	"net/http"
	"time"

	"github.com/BradenHooton/authgate/internal/auth"
	pkghttp "github.com/BradenHooton/authgate/pkg/http"
	"github.com/go-chi/httprate"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int
}

// DefaultServiceRateLimit returns the limit applied to authenticator callers
func DefaultServiceRateLimit() RateLimitConfig {
	return RateLimitConfig{RequestsPerMinute: 600}
}

// DefaultAdminRateLimit returns the limit applied to operator endpoints
func DefaultAdminRateLimit() RateLimitConfig {
	return RateLimitConfig{RequestsPerMinute: 60}
}

// RateLimitByIP limits requests per client IP, resolved through the trusted proxy list
func RateLimitByIP(config RateLimitConfig, ipConfig *pkghttp.IPConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.RequestsPerMinute,
		1*time.Minute,
		httprate.WithKeyFuncs(clientIPKey(ipConfig)),
		httprate.WithLimitHandler(limitExceeded),
	)
}

// RateLimitBySubject limits requests per authenticated caller. Requests that
// reach it without claims fall back to the client IP.
func RateLimitBySubject(config RateLimitConfig, ipConfig *pkghttp.IPConfig) func(next http.Handler) http.Handler {
	byIP := clientIPKey(ipConfig)
	return httprate.Limit(
		config.RequestsPerMinute,
		1*time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if claims := auth.GetClaimsFromContext(r); claims != nil && claims.Subject != "" {
				return "sub:" + claims.Subject, nil
			}
			return byIP(r)
		}),
		httprate.WithLimitHandler(limitExceeded),
	)
}

func clientIPKey(ipConfig *pkghttp.IPConfig) httprate.KeyFunc {
	return func(r *http.Request) (string, error) {
		return "ip:" + pkghttp.ExtractClientIP(r, ipConfig), nil
	}
}

func limitExceeded(w http.ResponseWriter, r *http.Request) {
	pkghttp.WriteTooManyRequests(w, "Too many requests")
}
