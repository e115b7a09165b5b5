package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const minBodyBytes = 5<<20 + 64<<10

type Config struct {
	Addr               string
	Environment        string
	APIBaseURL         string
	APIToken           string
	APITimeout         time.Duration
	SessionKey         string
	SessionIdleTimeout time.Duration
	SweepInterval      time.Duration
	DatabaseURL        string
	RunMigrations      bool
	MigrationsDir      string
	AuditRetention     time.Duration
	AuditPruneInterval time.Duration
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	SnapshotTTL        time.Duration
	CORSAllowedOrigins []string
	MaxBodyBytes       int64
	MetricsEnabled     bool
	MutationRateLimit  int
	Currency           string
	LogLevel           string
}

// Load reads .env (when present), an optional YAML file and the environment,
// in increasing order of precedence.
func Load() Config {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(envOr("PANEL_CONFIG_FILE", "configs/panel.yaml"))
	v.AutomaticEnv()

	v.SetDefault("APP_ADDR", ":8090")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("API_TIMEOUT", 15*time.Second)
	v.SetDefault("SESSION_IDLE_TIMEOUT", 30*time.Minute)
	v.SetDefault("SESSION_SWEEP_INTERVAL", time.Minute)
	v.SetDefault("RUN_MIGRATIONS", true)
	v.SetDefault("MIGRATIONS_DIR", "migrations")
	v.SetDefault("AUDIT_RETENTION_DAYS", 90)
	v.SetDefault("AUDIT_PRUNE_INTERVAL", 6*time.Hour)
	v.SetDefault("SNAPSHOT_TTL", 5*time.Minute)
	v.SetDefault("MAX_BODY_BYTES", 8<<20)
	v.SetDefault("METRICS_ENABLED", true)
	v.SetDefault("MUTATION_RATE_LIMIT", 120)
	v.SetDefault("CURRENCY", "INR")
	v.SetDefault("LOG_LEVEL", "info")

	if err := v.ReadInConfig(); err != nil {
		slog.Debug("no config file, using environment and defaults", "err", err)
	}

	return Config{
		Addr:               v.GetString("APP_ADDR"),
		Environment:        v.GetString("APP_ENV"),
		APIBaseURL:         strings.TrimRight(v.GetString("API_BASE_URL"), "/"),
		APIToken:           v.GetString("API_TOKEN"),
		APITimeout:         v.GetDuration("API_TIMEOUT"),
		SessionKey:         v.GetString("SESSION_KEY"),
		SessionIdleTimeout: v.GetDuration("SESSION_IDLE_TIMEOUT"),
		SweepInterval:      v.GetDuration("SESSION_SWEEP_INTERVAL"),
		DatabaseURL:        v.GetString("DATABASE_URL"),
		RunMigrations:      v.GetBool("RUN_MIGRATIONS"),
		MigrationsDir:      v.GetString("MIGRATIONS_DIR"),
		AuditRetention:     time.Duration(v.GetInt("AUDIT_RETENTION_DAYS")) * 24 * time.Hour,
		AuditPruneInterval: v.GetDuration("AUDIT_PRUNE_INTERVAL"),
		RedisAddr:          v.GetString("REDIS_ADDR"),
		RedisPassword:      v.GetString("REDIS_PASSWORD"),
		RedisDB:            v.GetInt("REDIS_DB"),
		SnapshotTTL:        v.GetDuration("SNAPSHOT_TTL"),
		CORSAllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		MaxBodyBytes:       v.GetInt64("MAX_BODY_BYTES"),
		MetricsEnabled:     v.GetBool("METRICS_ENABLED"),
		MutationRateLimit:  v.GetInt("MUTATION_RATE_LIMIT"),
		Currency:           v.GetString("CURRENCY"),
		LogLevel:           v.GetString("LOG_LEVEL"),
	}
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIBaseURL) == "" {
		return fmt.Errorf("API_BASE_URL is required")
	}
	u, err := url.Parse(c.APIBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("API_BASE_URL must be an absolute URL")
	}
	if c.IsProduction() && strings.TrimSpace(c.SessionKey) == "" {
		return fmt.Errorf("SESSION_KEY must be set in production to seal session cookies")
	}
	if c.APITimeout <= 0 {
		return fmt.Errorf("API_TIMEOUT must be positive")
	}
	if c.SessionIdleTimeout <= 0 {
		return fmt.Errorf("SESSION_IDLE_TIMEOUT must be positive")
	}
	if c.MaxBodyBytes < minBodyBytes {
		return fmt.Errorf("MAX_BODY_BYTES must leave room for a 5 MB image upload")
	}
	if c.AuditRetention < 0 {
		return fmt.Errorf("AUDIT_RETENTION_DAYS must not be negative")
	}
	if c.MutationRateLimit < 0 {
		return fmt.Errorf("MUTATION_RATE_LIMIT must not be negative")
	}
	if strings.TrimSpace(c.Currency) == "" {
		return fmt.Errorf("CURRENCY must not be empty")
	}
	return nil
}

// SlogLevel maps LOG_LEVEL onto slog.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
