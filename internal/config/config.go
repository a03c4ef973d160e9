package config

import (
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/srivardhan-kondu/EmpathyAI/internal/notifier"
	pkgconfig "github.com/srivardhan-kondu/EmpathyAI/pkg/config"
	"github.com/srivardhan-kondu/EmpathyAI/pkg/middleware"
)

// Supported STORE_DRIVER values.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

const (
	developmentEnv   = "development"
	devJWTSecret     = "change-this-to-a-secure-secret"
	minJWTSecretSize = 32
)

// Config holds all configuration for the identity service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"HTTP_PORT" envDefault:"3000"`

	// Credential store
	StoreDriver     string `env:"STORE_DRIVER" envDefault:"postgres"`
	StoreTimeoutRaw string `env:"STORE_TIMEOUT" envDefault:"5s"`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"identity"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"identity_secret"`
	PostgresDB   string `env:"POSTGRES_DB" envDefault:"identity"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	DBMaxConns            int32 `env:"DB_MAX_CONNS" envDefault:"20"`
	DBMinConns            int32 `env:"DB_MIN_CONNS" envDefault:"2"`
	DBMaxConnLifetimeMins int   `env:"DB_MAX_CONN_LIFETIME_MINS" envDefault:"60"`
	DBMaxConnIdleTimeMins int   `env:"DB_MAX_CONN_IDLE_TIME_MINS" envDefault:"30"`
	SlowQueryThresholdMs  int   `env:"DB_SLOW_QUERY_THRESHOLD_MS" envDefault:"200"`

	// Tokens
	JWTSecret           string `env:"JWT_SECRET" envDefault:"change-this-to-a-secure-secret"`
	JWTIssuer           string `env:"JWT_ISSUER" envDefault:"empathyai-identity"`
	SessionTTLRaw       string `env:"SESSION_TOKEN_TTL" envDefault:"1h"`
	RecoveryTTLRaw      string `env:"RECOVERY_TOKEN_TTL" envDefault:"15m"`
	PasswordHasher      string `env:"PASSWORD_HASHER" envDefault:"bcrypt"`
	BcryptCost          int    `env:"BCRYPT_COST" envDefault:"10"`
	ConcealUnknownEmail bool   `env:"RECOVERY_CONCEAL_UNKNOWN_EMAIL" envDefault:"false"`

	// Google sign-in
	GoogleClientID  string `env:"GOOGLE_CLIENT_ID"`
	GoogleJWKSURL   string `env:"GOOGLE_JWKS_URL" envDefault:"https://www.googleapis.com/oauth2/v3/certs"`
	JWKSCacheTTLRaw string `env:"JWKS_CACHE_TTL" envDefault:"1h"`

	// Redis shares the Google key set between replicas. Empty host disables it.
	RedisHost     string `env:"REDIS_HOST"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Kafka carries domain events and, with NOTIFIER_DRIVER=kafka, reset
	// emails. No brokers disables both.
	KafkaBrokers           []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaNotificationTopic string   `env:"KAFKA_NOTIFICATION_TOPIC" envDefault:"empathyai.notification.email_requested"`

	// Recovery email delivery
	NotifierDriver string `env:"NOTIFIER_DRIVER" envDefault:"log"`
	SMTPHost       string `env:"SMTP_HOST"`
	SMTPPort       int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser       string `env:"SMTP_USER"`
	SMTPPass       string `env:"SMTP_PASS"`
	SMTPFrom       string `env:"SMTP_FROM"`
	SMTPRequireTLS bool   `env:"SMTP_REQUIRE_TLS" envDefault:"true"`
	SMTPTimeoutRaw string `env:"SMTP_TIMEOUT" envDefault:"10s"`
	ClientURL      string `env:"CLIENT_URL" envDefault:"http://localhost:5173"`

	// Optional per-client throttle on the credential endpoints, off unless
	// RATE_LIMIT_RPS is set. Forwarding headers are only honoured from
	// RATE_LIMIT_TRUSTED_PROXIES (CIDRs or addresses).
	RateLimitRPS      float64  `env:"RATE_LIMIT_RPS" envDefault:"0"`
	RateLimitBurst    int      `env:"RATE_LIMIT_BURST" envDefault:"10"`
	TrustedProxiesRaw []string `env:"RATE_LIMIT_TRUSTED_PROXIES" envSeparator:","`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:5173" envSeparator:","`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// Parsed from the *Raw fields by Load.
	StoreTimeout time.Duration
	SessionTTL   time.Duration
	RecoveryTTL  time.Duration
	JWKSCacheTTL time.Duration
	SMTPTimeout  time.Duration

	TrustedProxies []netip.Prefix
}

// Load reads configuration from environment variables. Missing secrets are
// fatal outside development.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load identity config: %w", err)
	}
	if cfg.HTTPPort < 1 || cfg.HTTPPort > 65535 {
		return nil, fmt.Errorf("invalid HTTP port: %d", cfg.HTTPPort)
	}

	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"STORE_TIMEOUT", cfg.StoreTimeoutRaw, &cfg.StoreTimeout},
		{"SESSION_TOKEN_TTL", cfg.SessionTTLRaw, &cfg.SessionTTL},
		{"RECOVERY_TOKEN_TTL", cfg.RecoveryTTLRaw, &cfg.RecoveryTTL},
		{"JWKS_CACHE_TTL", cfg.JWKSCacheTTLRaw, &cfg.JWKSCacheTTL},
		{"SMTP_TIMEOUT", cfg.SMTPTimeoutRaw, &cfg.SMTPTimeout},
	}
	for _, d := range durations {
		v, err := pkgconfig.Duration(d.name, d.raw)
		if err != nil {
			return nil, err
		}
		*d.dst = v
	}

	switch cfg.StoreDriver {
	case StoreDriverPostgres, StoreDriverMemory:
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}

	switch cfg.NotifierDriver {
	case notifier.DriverSMTP, notifier.DriverKafka, notifier.DriverLog:
	default:
		return nil, fmt.Errorf("unknown NOTIFIER_DRIVER %q", cfg.NotifierDriver)
	}
	if cfg.RateLimitRPS < 0 || cfg.RateLimitBurst < 0 {
		return nil, errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must not be negative")
	}
	proxies, err := middleware.ParseTrustedProxies(cfg.TrustedProxiesRaw)
	if err != nil {
		return nil, fmt.Errorf("RATE_LIMIT_TRUSTED_PROXIES: %w", err)
	}
	cfg.TrustedProxies = proxies
	if cfg.NotifierDriver == notifier.DriverKafka && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("NOTIFIER_DRIVER=kafka requires KAFKA_BROKERS")
	}

	if !cfg.IsDevelopment() {
		if err := cfg.validateProduction(); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// validateProduction enforces the settings that may only be defaulted in
// development.
func (c *Config) validateProduction() error {
	if c.JWTSecret == devJWTSecret || c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET must be explicitly set via environment variable in %q mode", c.Environment)
	}
	if len(c.JWTSecret) < minJWTSecretSize {
		return fmt.Errorf("JWT_SECRET must be at least %d characters long, got %d", minJWTSecretSize, len(c.JWTSecret))
	}
	if c.GoogleClientID == "" {
		return fmt.Errorf("GOOGLE_CLIENT_ID must be set in %q mode", c.Environment)
	}
	if c.StoreDriver == StoreDriverMemory {
		return fmt.Errorf("STORE_DRIVER=memory is only allowed in development, not %q", c.Environment)
	}

	switch c.NotifierDriver {
	case notifier.DriverLog:
		return fmt.Errorf("NOTIFIER_DRIVER=log is only allowed in development, not %q", c.Environment)
	case notifier.DriverSMTP:
		if c.SMTPHost == "" || c.SMTPFrom == "" {
			return errors.New("SMTP_HOST and SMTP_FROM must be set when NOTIFIER_DRIVER=smtp")
		}
		if c.SMTPUser == "" || c.SMTPPass == "" {
			return errors.New("SMTP_USER and SMTP_PASS must be set when NOTIFIER_DRIVER=smtp")
		}
	}
	return nil
}

// IsDevelopment reports whether the service runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == developmentEnv
}
