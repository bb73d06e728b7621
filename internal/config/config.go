package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store drivers.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config holds all application configuration.
type Config struct {
	Env      string
	HTTPAddr string
	BaseURL  string

	Store     string
	DBDSN     string
	JWTSecret string

	LogLevel string

	RateLimitRPM       int
	SearchRateLimitRPM int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	LockTTL       time.Duration
	LockWait      time.Duration

	AuditRetentionDays int
	RetentionSchedule  string

	CORSOrigins []string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Env = strings.TrimSpace(os.Getenv("OC_ENV"))
	if cfg.Env == "" {
		return nil, fmt.Errorf("OC_ENV is required")
	}
	if cfg.Env != "dev" && cfg.Env != "prod" {
		return nil, fmt.Errorf("OC_ENV must be one of: dev, prod (got: %s)", cfg.Env)
	}

	cfg.HTTPAddr = getEnvOrDefault("OC_HTTP_ADDR", ":8080")
	cfg.BaseURL = strings.TrimRight(getEnvOrDefault("OC_BASE_URL", "http://localhost:8080"), "/")

	cfg.Store = getEnvOrDefault("OC_STORE", StorePostgres)
	switch cfg.Store {
	case StorePostgres:
		cfg.DBDSN = strings.TrimSpace(os.Getenv("OC_DB_DSN"))
		if cfg.DBDSN == "" {
			return nil, fmt.Errorf("OC_DB_DSN is required when OC_STORE=%s", StorePostgres)
		}
	case StoreMemory:
		if cfg.Env == "prod" {
			return nil, fmt.Errorf("OC_STORE=%s is not allowed in prod", StoreMemory)
		}
	default:
		return nil, fmt.Errorf("OC_STORE must be one of: postgres, memory (got: %s)", cfg.Store)
	}

	cfg.JWTSecret = os.Getenv("OC_JWT_SECRET")
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("OC_JWT_SECRET is required")
	}
	if cfg.Env == "prod" && len(cfg.JWTSecret) < 32 {
		return nil, fmt.Errorf("OC_JWT_SECRET must be at least 32 characters (currently %d)", len(cfg.JWTSecret))
	}

	cfg.LogLevel = getEnvOrDefault("OC_LOG_LEVEL", "info")
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("OC_LOG_LEVEL must be one of: debug, info, warn, error (got: %s)", cfg.LogLevel)
	}

	var err error
	cfg.RateLimitRPM, err = getEnvIntOrDefault("OC_RATE_LIMIT_RPM", 120)
	if err != nil {
		return nil, err
	}
	cfg.SearchRateLimitRPM, err = getEnvIntOrDefault("OC_SEARCH_RATE_LIMIT_RPM", 60)
	if err != nil {
		return nil, err
	}
	if cfg.RateLimitRPM <= 0 || cfg.SearchRateLimitRPM <= 0 {
		return nil, fmt.Errorf("rate limits must be positive")
	}

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("OC_REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("OC_REDIS_PASSWORD")
	cfg.RedisDB, err = getEnvIntOrDefault("OC_REDIS_DB", 0)
	if err != nil {
		return nil, err
	}

	lockTTLMS, err := getEnvIntOrDefault("OC_LOCK_TTL_MS", 5000)
	if err != nil {
		return nil, err
	}
	if lockTTLMS < 100 || lockTTLMS > 60000 {
		return nil, fmt.Errorf("OC_LOCK_TTL_MS must be between 100 and 60000 (got: %d)", lockTTLMS)
	}
	cfg.LockTTL = time.Duration(lockTTLMS) * time.Millisecond

	lockWaitMS, err := getEnvIntOrDefault("OC_LOCK_WAIT_MS", 2000)
	if err != nil {
		return nil, err
	}
	if lockWaitMS < 0 || lockWaitMS > 30000 {
		return nil, fmt.Errorf("OC_LOCK_WAIT_MS must be between 0 and 30000 (got: %d)", lockWaitMS)
	}
	cfg.LockWait = time.Duration(lockWaitMS) * time.Millisecond

	cfg.AuditRetentionDays, err = getEnvIntOrDefault("OC_AUDIT_RETENTION_DAYS", 180)
	if err != nil {
		return nil, err
	}
	if cfg.AuditRetentionDays < 1 {
		return nil, fmt.Errorf("OC_AUDIT_RETENTION_DAYS must be at least 1 (got: %d)", cfg.AuditRetentionDays)
	}
	cfg.RetentionSchedule = getEnvOrDefault("OC_RETENTION_SCHEDULE", "0 3 * * *")

	for _, origin := range strings.Split(os.Getenv("OC_CORS_ORIGINS"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, origin)
		}
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{cfg.BaseURL}
	}

	return cfg, nil
}

// IsDev returns true if running in development mode.
func (c *Config) IsDev() bool {
	return c.Env == "dev"
}

// UsesRedisLocks reports whether organization locks are shared through Redis.
func (c *Config) UsesRedisLocks() bool {
	return c.RedisAddr != ""
}

// RedactedValues returns a map of config values with secrets redacted.
func (c *Config) RedactedValues() map[string]string {
	redisPassword := ""
	if c.RedisPassword != "" {
		redisPassword = "[REDACTED]"
	}
	return map[string]string{
		"OC_ENV":                   c.Env,
		"OC_HTTP_ADDR":             c.HTTPAddr,
		"OC_BASE_URL":              c.BaseURL,
		"OC_STORE":                 c.Store,
		"OC_DB_DSN":                redactDSN(c.DBDSN),
		"OC_JWT_SECRET":            "[REDACTED]",
		"OC_LOG_LEVEL":             c.LogLevel,
		"OC_RATE_LIMIT_RPM":        strconv.Itoa(c.RateLimitRPM),
		"OC_SEARCH_RATE_LIMIT_RPM": strconv.Itoa(c.SearchRateLimitRPM),
		"OC_REDIS_ADDR":            c.RedisAddr,
		"OC_REDIS_PASSWORD":        redisPassword,
		"OC_REDIS_DB":              strconv.Itoa(c.RedisDB),
		"OC_LOCK_TTL_MS":           strconv.FormatInt(c.LockTTL.Milliseconds(), 10),
		"OC_LOCK_WAIT_MS":          strconv.FormatInt(c.LockWait.Milliseconds(), 10),
		"OC_AUDIT_RETENTION_DAYS":  strconv.Itoa(c.AuditRetentionDays),
		"OC_RETENTION_SCHEDULE":    c.RetentionSchedule,
		"OC_CORS_ORIGINS":          strings.Join(c.CORSOrigins, ","),
	}
}

func redactDSN(dsn string) string {
	if start := strings.Index(dsn, "://"); start != -1 {
		if end := strings.Index(dsn[start+3:], "@"); end != -1 {
			return dsn[:start+3] + "[REDACTED]" + dsn[start+3+end:]
		}
	}
	return dsn
}

func getEnvOrDefault(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvIntOrDefault(key string, defaultValue int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer (got: %q)", key, value)
	}
	return parsed, nil
}
