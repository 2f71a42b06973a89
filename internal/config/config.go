package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Ledger backends
const (
	LedgerPostgres = "postgres"
	LedgerMemory   = "memory"
)

// IP lockout stores
const (
	IPLockoutStoreMemory = "memory"
	IPLockoutStoreRedis  = "redis"
)

// Policy sources
const (
	PolicySourceStatic   = "static"
	PolicySourceRedis    = "redis"
	PolicySourcePostgres = "postgres"
)

type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Ledger    LedgerConfig
	Policy    PolicyConfig
	Retention RetentionConfig
	Tracing   TracingConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port             string
	Env              string
	LogLevel         string
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	RequestTimeout   time.Duration
	TrustedProxies   []string
	RateLimitPerMin  int
	AdminRateLimit   int
	ShutdownDeadline time.Duration
}

// RedisConfig is only dialed when the policy source or IP lockout store uses Redis
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	EnableTLS bool
	Namespace string
}

type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

type LedgerConfig struct {
	Backend string

	// IPLockoutStore is "redis" or "memory"
	IPLockoutStore string
}

type PolicyConfig struct {
	Scope    string
	Source   string
	CacheTTL time.Duration

	// Overrides are applied by the static source, e.g. POLICY_OVERRIDES="security.login.maxFailsBeforeBlock=5"
	Overrides map[string]string
}

type RetentionConfig struct {
	Enabled   bool
	Interval  time.Duration
	BatchSize int
	Timeout   time.Duration
}

type TracingConfig struct {
	OTLPEndpoint string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: loadDatabase(),
		Server: ServerConfig{
			Port:             getEnv("PORT", "8080"),
			Env:              env,
			LogLevel:         getEnv("LOG_LEVEL", "info"),
			ReadTimeout:      getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:     getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:      getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			RequestTimeout:   getEnvAsDuration("SERVER_REQUEST_TIMEOUT", 10*time.Second),
			TrustedProxies:   getEnvAsList("TRUSTED_PROXIES"),
			RateLimitPerMin:  getEnvAsInt("RATE_LIMIT_PER_MINUTE", 600),
			AdminRateLimit:   getEnvAsInt("ADMIN_RATE_LIMIT_PER_MINUTE", 60),
			ShutdownDeadline: getEnvAsDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Redis: RedisConfig{
			Addr:      getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        getEnvAsInt("REDIS_DB", 0),
			EnableTLS: getEnvAsBool("REDIS_ENABLE_TLS", false),
			Namespace: getEnv("REDIS_NAMESPACE", "authgate"),
		},
		Auth: AuthConfig{
			JWTSecret: jwtSecret,
			Issuer:    getEnv("JWT_ISSUER", ""),
		},
		Ledger: LedgerConfig{
			Backend:        strings.ToLower(getEnv("LEDGER_BACKEND", LedgerPostgres)),
			IPLockoutStore: strings.ToLower(getEnv("IP_LOCKOUT_STORE", IPLockoutStoreMemory)),
		},
		Policy: PolicyConfig{
			Scope:     getEnv("POLICY_SCOPE", "global"),
			Source:    strings.ToLower(getEnv("POLICY_SOURCE", PolicySourceStatic)),
			CacheTTL:  getEnvAsDuration("POLICY_CACHE_TTL", 30*time.Second),
			Overrides: getEnvAsMap("POLICY_OVERRIDES"),
		},
		Retention: RetentionConfig{
			Enabled:   getEnvAsBool("RETENTION_ENABLED", true),
			Interval:  getEnvAsDuration("RETENTION_INTERVAL", 1*time.Hour),
			BatchSize: getEnvAsInt("RETENTION_BATCH_SIZE", 1000),
			Timeout:   getEnvAsDuration("RETENTION_TIMEOUT", 5*time.Minute),
		},
		Tracing: TracingConfig{
			OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	// Validate JWT secret strength
	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadDatabase reads only the DB_* settings, for tools that need no other configuration
func LoadDatabase() DatabaseConfig {
	_ = godotenv.Load()
	return loadDatabase()
}

func loadDatabase() DatabaseConfig {
	return DatabaseConfig{
		Host:              getEnv("DB_HOST", "localhost"),
		Port:              getEnvAsInt("DB_PORT", 5432),
		User:              getEnv("DB_USER", "postgres"),
		Password:          getEnv("DB_PASSWORD", ""),
		Name:              getEnv("DB_NAME", "authgate"),
		SSLMode:           getEnv("DB_SSLMODE", "disable"),
		MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
		MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
		MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
		MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
		HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
	}
}

// NeedsPostgres reports whether any configured component reads the database
func (c *Config) NeedsPostgres() bool {
	return c.Ledger.Backend == LedgerPostgres || c.Policy.Source == PolicySourcePostgres
}

// NeedsRedis reports whether any configured component uses Redis
func (c *Config) NeedsRedis() bool {
	return c.Policy.Source == PolicySourceRedis || c.Ledger.IPLockoutStore == IPLockoutStoreRedis
}

func (c *Config) validate() error {
	switch c.Ledger.Backend {
	case LedgerPostgres, LedgerMemory:
	default:
		return fmt.Errorf("LEDGER_BACKEND must be %q or %q (got %q)", LedgerPostgres, LedgerMemory, c.Ledger.Backend)
	}

	switch c.Ledger.IPLockoutStore {
	case IPLockoutStoreMemory, IPLockoutStoreRedis:
	default:
		return fmt.Errorf("IP_LOCKOUT_STORE must be %q or %q (got %q)", IPLockoutStoreMemory, IPLockoutStoreRedis, c.Ledger.IPLockoutStore)
	}

	switch c.Policy.Source {
	case PolicySourceStatic, PolicySourceRedis, PolicySourcePostgres:
	default:
		return fmt.Errorf("POLICY_SOURCE must be one of static, redis, postgres (got %q)", c.Policy.Source)
	}

	if c.NeedsPostgres() && c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}

	if c.Retention.BatchSize <= 0 {
		return fmt.Errorf("RETENTION_BATCH_SIZE must be positive (got %d)", c.Retention.BatchSize)
	}

	return nil
}

// validateJWTSecret enforces minimum security standards for JWT secret
func validateJWTSecret(secret, env string) error {
	minLength := 16 // Development minimum
	if env == "production" {
		minLength = 32 // 256 bits
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// URL renders the connection as a postgres:// URL for database/sql drivers
func (c *DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

// getEnvAsList splits a comma-separated value, dropping blanks
func getEnvAsList(key string) []string {
	out := []string{}
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// getEnvAsMap parses "k1=v1,k2=v2"; malformed pairs are skipped
func getEnvAsMap(key string) map[string]string {
	out := make(map[string]string)
	for _, pair := range getEnvAsList(key) {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(k) == "" {
			continue
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out
}
