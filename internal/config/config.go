package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the core runtime configuration for the service.
// Values are sourced from environment variables, with sensible defaults
// where appropriate. Admin-editable runtime values (API domains, bot token,
// maintenance mode) live in the settings table instead. See .env.example.
type Config struct {
	AdminUser     string
	AdminPassword string
	AdminEmail    string

	DatabaseURL string

	ListenAddr string

	// JWTSecret signs admin session tokens.
	JWTSecret  string
	SessionTTL time.Duration

	UpstreamTimeout time.Duration

	TelegramAPIURL  string
	TelegramTimeout time.Duration
	// BulkSendDelay is the pause between messages of a send-all run.
	BulkSendDelay time.Duration

	LogEnv   string
	LogLevel string

	// RedisURL enables the redis settings bus when set.
	RedisURL         string
	SettingsCacheTTL time.Duration

	// LogRetentionDays bounds how long api and telegram logs are kept.
	LogRetentionDays int

	// ExpirySweepInterval of 0 disables the expiry sweep.
	ExpirySweepInterval time.Duration
	ExpiringWindow      time.Duration

	// TrustProxyHeaders makes the trend API read the caller IP from
	// X-Forwarded-For / X-Real-IP.
	TrustProxyHeaders bool
}

// Load reads configuration from environment variables and applies defaults.
func Load() *Config {
	cfg := &Config{
		AdminUser:           getenv("APP_ADMIN_USER", "admin"),
		AdminPassword:       getenv("APP_ADMIN_PASSWORD", "changeme"),
		AdminEmail:          getenv("APP_ADMIN_EMAIL", "admin@localhost"),
		DatabaseURL:         os.Getenv("APP_DATABASE_URL"),
		ListenAddr:          getenv("APP_LISTEN_ADDR", ":8080"),
		JWTSecret:           getenv("APP_JWT_SECRET", "change-this-secret"),
		SessionTTL:          getduration("APP_SESSION_TTL", 24*time.Hour),
		UpstreamTimeout:     getduration("APP_UPSTREAM_TIMEOUT", 5*time.Second),
		TelegramAPIURL:      getenv("APP_TELEGRAM_API_URL", "https://api.telegram.org"),
		TelegramTimeout:     getduration("APP_TELEGRAM_TIMEOUT", 5*time.Second),
		BulkSendDelay:       getduration("APP_BULK_SEND_DELAY", time.Second),
		LogEnv:              getenv("APP_LOG_ENV", "prod"),
		LogLevel:            getenv("APP_LOG_LEVEL", "info"),
		RedisURL:            os.Getenv("APP_REDIS_URL"),
		SettingsCacheTTL:    getduration("APP_SETTINGS_CACHE_TTL", 30*time.Second),
		LogRetentionDays:    30,
		ExpirySweepInterval: getduration("APP_EXPIRY_SWEEP_INTERVAL", time.Hour),
		ExpiringWindow:      getduration("APP_EXPIRING_WINDOW", 72*time.Hour),
		TrustProxyHeaders:   os.Getenv("APP_TRUST_PROXY_HEADERS") == "true",
	}

	if v := os.Getenv("APP_LOG_RETENTION_DAYS"); v != "" {
		if days, err := strconv.Atoi(v); err == nil && days > 0 {
			cfg.LogRetentionDays = days
		}
	}

	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getduration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return def
	}
	return d
}
