package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/BradenHooton/authgate/internal/auth"
	"github.com/BradenHooton/authgate/internal/database"
	"github.com/BradenHooton/authgate/internal/handlers"
	"github.com/BradenHooton/authgate/internal/metrics"
	middlewareCustom "github.com/BradenHooton/authgate/internal/middleware"
	"github.com/BradenHooton/authgate/internal/models"
	"github.com/BradenHooton/authgate/internal/policy"
	"github.com/BradenHooton/authgate/internal/repositories"
	"github.com/BradenHooton/authgate/internal/routes"
	"github.com/BradenHooton/authgate/internal/services"
	pkghttp "github.com/BradenHooton/authgate/pkg/http"
)

const testJWTSecret = "test-secret-32-characters-long-for-testing"

// TestServer wraps httptest.Server with a Postgres-backed gate stack
type TestServer struct {
	Server       *httptest.Server
	DB           *database.DB
	Policies     *repositories.PolicyRepository
	Events       *repositories.SecurityEventRepository
	Metrics      *metrics.Metrics
	TokenManager *auth.TokenManager

	audit *services.AuditService
}

// NewTestServer initializes the full HTTP stack over the given database.
// Policy is read from the security_policies table with caching disabled.
func NewTestServer(db *database.DB) *TestServer {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	ledger := repositories.NewAttemptRepository(db)
	policies := repositories.NewPolicyRepository(db)
	events := repositories.NewSecurityEventRepository(db)
	m := metrics.New()

	resolver := policy.NewResolver(policies, "global", logger, policy.WithCacheTTL(0))
	audit := services.NewAuditService(events, logger, m)

	gateService := services.NewGateService(ledger, resolver, logger,
		services.WithIPLockoutStore(repositories.NewMemoryIPLockoutStore(time.Now)),
		services.WithAuditSink(audit),
		services.WithMetrics(m))
	retentionService := services.NewRetentionService(ledger, logger,
		services.WithBatchSize(2),
		services.WithRetentionAudit(audit),
		services.WithRetentionMetrics(m))
	queryService := services.NewAttemptQueryService(ledger)

	tokenManager := auth.NewTokenManager(testJWTSecret, "authgate-test")
	ipConfig, _ := pkghttp.NewIPConfig(nil)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: "test"}))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(10 * time.Second))

	routes.RegisterRoutes(r, routes.Deps{
		Gate:             handlers.NewGateHandler(gateService, logger),
		Admin:            handlers.NewAdminHandler(queryService, retentionService, logger),
		Health:           handlers.NewHealthHandler(logger, map[string]handlers.Pinger{"postgres": db}),
		Metrics:          m.Handler(),
		TokenManager:     tokenManager,
		IPConfig:         ipConfig,
		ServiceRateLimit: middlewareCustom.RateLimitConfig{RequestsPerMinute: 10000},
		AdminRateLimit:   middlewareCustom.RateLimitConfig{RequestsPerMinute: 10000},
	})

	return &TestServer{
		Server:       httptest.NewServer(r),
		DB:           db,
		Policies:     policies,
		Events:       events,
		Metrics:      m,
		TokenManager: tokenManager,
		audit:        audit,
	}
}

// Close shuts down the test server and drains pending audit writes
func (ts *TestServer) Close() {
	if ts.Server != nil {
		ts.Server.Close()
	}
	if ts.audit != nil {
		ts.audit.Close()
	}
}

// ServiceToken mints a bearer token for an authenticator caller
func (ts *TestServer) ServiceToken() string {
	token, err := ts.TokenManager.GenerateToken("login-frontend", models.RoleService, time.Hour)
	if err != nil {
		panic(err)
	}
	return token
}

// AdminToken mints a bearer token for an operator
func (ts *TestServer) AdminToken() string {
	token, err := ts.TokenManager.GenerateToken("operator", models.RoleAdmin, time.Hour)
	if err != nil {
		panic(err)
	}
	return token
}

// Request makes an HTTP request to the test server
func (ts *TestServer) Request(method, path string, body interface{}, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, ts.Server.URL+path, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return http.DefaultClient.Do(req)
}

// RequestWithAuth makes an authenticated HTTP request with a bearer token
func (ts *TestServer) RequestWithAuth(method, path, token string, body interface{}) (*http.Response, error) {
	return ts.Request(method, path, body, map[string]string{"Authorization": "Bearer " + token})
}

// ParseJSONResponse parses JSON response body into target struct
func ParseJSONResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}

// GetErrorMessage extracts error message from error response
func GetErrorMessage(resp *http.Response) (string, error) {
	var errResp pkghttp.ErrorResponse
	if err := ParseJSONResponse(resp, &errResp); err != nil {
		return "", err
	}
	return errResp.Message, nil
}
