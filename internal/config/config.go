package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/spec-kit/locate-tracker/internal/expiration"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
	Expiration   ExpirationConfig
	Scheduler    SchedulerConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
	AllowedOrigins        string
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values. An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines bearer token parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
}

// NotificationConfig controls the daily expiration digest.
type NotificationConfig struct {
	Driver             string
	AdminRecipient     string
	WebhookURL         string
	WebhookTimeoutSec  int
	RedisStream        string
	DispatchConcurrent int
	Hour               int
	TimeZone           string
}

// ExpirationConfig holds the jurisdiction table and the warning window.
type ExpirationConfig struct {
	WarningWindowDays int
	DefaultDays       int
	Rules             map[string]int
}

// SchedulerConfig controls the background jobs.
type SchedulerConfig struct {
	Enabled            bool
	ReconcileSchedule  string
	LockTTLSeconds     int
	DistributedLocking bool
}

// Notification drivers.
const (
	DriverLog     = "log"
	DriverWebhook = "webhook"
	DriverRedis   = "redis"
)

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	rules, err := expiration.ParseRules(getEnv("EXPIRATION_RULES", "VA=30,MD=15,DC=30"))
	if err != nil {
		return nil, fmt.Errorf("invalid EXPIRATION_RULES: %w", err)
	}

	warningDays, err := strconv.Atoi(getEnv("EXPIRATION_WARNING_DAYS", strconv.Itoa(expiration.DefaultWarningDays)))
	if err != nil {
		return nil, fmt.Errorf("invalid EXPIRATION_WARNING_DAYS: %w", err)
	}

	hour, err := strconv.Atoi(getEnv("NOTIFICATION_HOUR", "8"))
	if err != nil {
		return nil, fmt.Errorf("invalid NOTIFICATION_HOUR: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "locate-ticket-tracker"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
			AllowedOrigins:        getEnv("ALLOWED_ORIGINS", "http://localhost:5173"),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             os.Getenv("AUTH_JWT_SECRET"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 7*24*60),
		},
		Notification: NotificationConfig{
			Driver:             strings.ToLower(getEnv("NOTIFY_DRIVER", DriverLog)),
			AdminRecipient:     os.Getenv("NOTIFY_ADMIN_RECIPIENT"),
			WebhookURL:         os.Getenv("NOTIFY_WEBHOOK_URL"),
			WebhookTimeoutSec:  getEnvAsInt("NOTIFY_WEBHOOK_TIMEOUT_SECONDS", 10),
			RedisStream:        getEnv("NOTIFY_REDIS_STREAM", "notifications:expiring"),
			DispatchConcurrent: getEnvAsInt("NOTIFY_DISPATCH_CONCURRENCY", 4),
			Hour:               hour,
			TimeZone:           getEnv("NOTIFICATION_TIMEZONE", "America/New_York"),
		},
		Expiration: ExpirationConfig{
			WarningWindowDays: warningDays,
			DefaultDays:       getEnvAsInt("EXPIRATION_DEFAULT_DAYS", expiration.DefaultValidityDays),
			Rules:             rules,
		},
		Scheduler: SchedulerConfig{
			Enabled:            getEnvAsBool("SCHEDULER_ENABLED", true),
			ReconcileSchedule:  getEnv("SCHEDULER_RECONCILE_CRON", "0 * * * *"),
			LockTTLSeconds:     getEnvAsInt("SCHEDULER_LOCK_TTL_SECONDS", 900),
			DistributedLocking: getEnvAsBool("SCHEDULER_DISTRIBUTED_LOCKING", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports missing or malformed settings. Any error is fatal at startup.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		errs = append(errs, errors.New("AUTH_JWT_SECRET is required"))
	}
	if strings.TrimSpace(c.Notification.AdminRecipient) == "" {
		errs = append(errs, errors.New("NOTIFY_ADMIN_RECIPIENT is required"))
	}
	if c.Notification.Hour < 0 || c.Notification.Hour > 23 {
		errs = append(errs, fmt.Errorf("NOTIFICATION_HOUR must be within 0-23, got %d", c.Notification.Hour))
	}
	if _, err := time.LoadLocation(c.Notification.TimeZone); err != nil {
		errs = append(errs, fmt.Errorf("NOTIFICATION_TIMEZONE: %w", err))
	}
	switch c.Notification.Driver {
	case DriverLog, DriverRedis:
	case DriverWebhook:
		if c.Notification.WebhookURL == "" {
			errs = append(errs, errors.New("NOTIFY_WEBHOOK_URL is required for the webhook driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("NOTIFY_DRIVER %q is not supported", c.Notification.Driver))
	}
	if c.Notification.Driver == DriverRedis && c.Redis.Addr == "" {
		errs = append(errs, errors.New("REDIS_ADDR is required for the redis driver"))
	}
	if c.Expiration.WarningWindowDays < 0 {
		errs = append(errs, fmt.Errorf("EXPIRATION_WARNING_DAYS must not be negative, got %d", c.Expiration.WarningWindowDays))
	}
	if c.Expiration.DefaultDays <= 0 {
		errs = append(errs, fmt.Errorf("EXPIRATION_DEFAULT_DAYS must be positive, got %d", c.Expiration.DefaultDays))
	}
	return errors.Join(errs...)
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// Location resolves the notification time zone. Validate has already checked it.
func (n NotificationConfig) Location() *time.Location {
	loc, err := time.LoadLocation(n.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DailySchedule returns the cron expression for the daily digest.
func (n NotificationConfig) DailySchedule() string {
	return fmt.Sprintf("0 %d * * *", n.Hour)
}

// WebhookTimeout returns the webhook client timeout.
func (n NotificationConfig) WebhookTimeout() time.Duration {
	if n.WebhookTimeoutSec <= 0 {
		return 10 * time.Second
	}
	return time.Duration(n.WebhookTimeoutSec) * time.Second
}

// RulesTable builds the immutable jurisdiction table.
func (e ExpirationConfig) RulesTable() expiration.Rules {
	return expiration.NewRules(e.Rules, e.DefaultDays)
}

// LockTTL returns how long a job lock is held before Redis expires it.
func (s SchedulerConfig) LockTTL() time.Duration {
	if s.LockTTLSeconds <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(s.LockTTLSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
