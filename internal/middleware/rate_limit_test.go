package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/authgate/internal/auth"
	"github.com/BradenHooton/authgate/internal/models"
	pkghttp "github.com/BradenHooton/authgate/pkg/http"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func withSubject(req *http.Request, subject string) *http.Request {
	claims := &models.TokenClaims{
		Type:             "access",
		Role:             models.RoleService,
		RegisteredClaims: jwt.RegisteredClaims{Subject: subject},
	}
	return req.WithContext(context.WithValue(req.Context(), auth.ClaimsContextKey, claims))
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRateLimitByIP_EnforcesLimit(t *testing.T) {
	handler := RateLimitByIP(RateLimitConfig{RequestsPerMinute: 3}, nil)(okHandler())

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("POST", "/v1/gate", nil)
		req.RemoteAddr = "198.51.100.1:4000"
		assert.Equal(t, http.StatusOK, serve(handler, req).Code, "request %d", i+1)
	}

	req := httptest.NewRequest("POST", "/v1/gate", nil)
	req.RemoteAddr = "198.51.100.1:4001"
	w := serve(handler, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"rate_limit_exceeded","message":"Too many requests"}`, w.Body.String())

	// another client has its own bucket
	other := httptest.NewRequest("POST", "/v1/gate", nil)
	other.RemoteAddr = "198.51.100.2:4000"
	assert.Equal(t, http.StatusOK, serve(handler, other).Code)
}

func TestRateLimitByIP_UsesTrustedForwardedFor(t *testing.T) {
	ipConfig, err := pkghttp.NewIPConfig([]string{"10.0.0.0/8"})
	require.NoError(t, err)
	handler := RateLimitByIP(RateLimitConfig{RequestsPerMinute: 1}, ipConfig)(okHandler())

	send := func(client string) int {
		req := httptest.NewRequest("POST", "/v1/gate", nil)
		req.RemoteAddr = "10.0.0.5:443"
		req.Header.Set("X-Forwarded-For", client)
		return serve(handler, req).Code
	}

	assert.Equal(t, http.StatusOK, send("203.0.113.10"))
	assert.Equal(t, http.StatusOK, send("203.0.113.11"))
	assert.Equal(t, http.StatusTooManyRequests, send("203.0.113.10"))
}

func TestRateLimitBySubject_IsolatesCallers(t *testing.T) {
	handler := RateLimitBySubject(RateLimitConfig{RequestsPerMinute: 2}, nil)(okHandler())

	newReq := func(subject string) *http.Request {
		req := httptest.NewRequest("POST", "/v1/attempts", nil)
		req.RemoteAddr = "198.51.100.9:5000"
		return withSubject(req, subject)
	}

	assert.Equal(t, http.StatusOK, serve(handler, newReq("login-frontend")).Code)
	assert.Equal(t, http.StatusOK, serve(handler, newReq("login-frontend")).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(handler, newReq("login-frontend")).Code)

	// same address, different caller
	assert.Equal(t, http.StatusOK, serve(handler, newReq("sso-bridge")).Code)
}

func TestRateLimitBySubject_FallsBackToIP(t *testing.T) {
	handler := RateLimitBySubject(RateLimitConfig{RequestsPerMinute: 1}, nil)(okHandler())

	req := httptest.NewRequest("GET", "/v1/admin/summary", nil)
	req.RemoteAddr = "192.168.1.1:8080"
	assert.Equal(t, http.StatusOK, serve(handler, req).Code)

	req = httptest.NewRequest("GET", "/v1/admin/summary", nil)
	req.RemoteAddr = "192.168.1.1:8081"
	assert.Equal(t, http.StatusTooManyRequests, serve(handler, req).Code)
}
