package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/authgate/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := GetClaimsFromContext(r)
		if claims != nil {
			w.Header().Set("X-Subject", claims.Subject)
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestTokenManager_RoundTrip(t *testing.T) {
	tm := NewTokenManager(testSecret, "authgate")

	token, err := tm.GenerateToken("login-service", models.RoleService, time.Hour)
	require.NoError(t, err)

	claims, err := tm.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "login-service", claims.Subject)
	assert.Equal(t, models.RoleService, claims.Role)
	assert.NotEmpty(t, claims.ID)
}

func TestTokenManager_Rejects(t *testing.T) {
	tm := NewTokenManager(testSecret, "authgate")

	t.Run("expired", func(t *testing.T) {
		expired := NewTokenManager(testSecret, "authgate")
		expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
		token, err := expired.GenerateToken("svc", models.RoleService, time.Hour)
		require.NoError(t, err)

		_, err = tm.ValidateToken(token)
		assert.Error(t, err)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewTokenManager("ffffffffffffffffffffffffffffffff", "authgate")
		token, err := other.GenerateToken("svc", models.RoleService, time.Hour)
		require.NoError(t, err)

		_, err = tm.ValidateToken(token)
		assert.Error(t, err)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other := NewTokenManager(testSecret, "someone-else")
		token, err := other.GenerateToken("svc", models.RoleService, time.Hour)
		require.NoError(t, err)

		_, err = tm.ValidateToken(token)
		assert.Error(t, err)
	})

	t.Run("missing role", func(t *testing.T) {
		token, err := tm.GenerateToken("svc", "", time.Hour)
		require.NoError(t, err)

		_, err = tm.ValidateToken(token)
		assert.Error(t, err)
	})

	t.Run("none algorithm", func(t *testing.T) {
		claims := &models.TokenClaims{Type: accessTokenType, Role: models.RoleAdmin}
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = tm.ValidateToken(token)
		assert.Error(t, err)
	})
}

func TestAuthMiddleware(t *testing.T) {
	tm := NewTokenManager(testSecret, "authgate")
	valid, err := tm.GenerateToken("login-service", models.RoleService, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized},
		{"valid token", "Bearer " + valid, http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/gate", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()

			AuthMiddleware(tm)(okHandler()).ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusNoContent {
				assert.Equal(t, "login-service", w.Header().Get("X-Subject"))
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	tm := NewTokenManager(testSecret, "authgate")
	chain := func(h http.Handler) http.Handler {
		return AuthMiddleware(tm)(RequireRole(models.RoleAdmin)(h))
	}

	serviceToken, err := tm.GenerateToken("login-service", models.RoleService, time.Hour)
	require.NoError(t, err)
	adminToken, err := tm.GenerateToken("ops", models.RoleAdmin, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/v1/admin/summary", nil)
	req.Header.Set("Authorization", "Bearer "+serviceToken)
	w := httptest.NewRecorder()
	chain(okHandler()).ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/admin/summary", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	w = httptest.NewRecorder()
	chain(okHandler()).ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)

	// without claims in context
	w = httptest.NewRecorder()
	RequireRole(models.RoleAdmin)(okHandler()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
