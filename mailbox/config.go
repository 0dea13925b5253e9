package mailbox

import (
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"time"
)

// MailboxConfig holds the immutable configuration a MailboxService is
// constructed with.
type MailboxConfig struct {
	Host     string
	Port     int
	DB       int
	Password string

	StreamPrefix string

	MaxStreamLength     int64
	PollInterval        time.Duration
	EnableRecovery      bool
	RecoveryMinIdleTime time.Duration
	RecoveryBatchSize   int64
}

// DefaultMailboxConfig returns the documented default configuration.
func DefaultMailboxConfig() MailboxConfig {
	return MailboxConfig{
		Host:                "localhost",
		Port:                6379,
		DB:                  0,
		StreamPrefix:        "beast:mailbox",
		MaxStreamLength:     1000,
		PollInterval:        2 * time.Second,
		EnableRecovery:      true,
		RecoveryMinIdleTime: 0,
		RecoveryBatchSize:   50,
	}
}

// Addr returns the host:port pair go-redis expects.
func (c MailboxConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// ConfigFromEnv resolves a MailboxConfig from the environment, following the
// resolution order:
//  1. MAILBOX_REDIS_HOST (+ MAILBOX_REDIS_PORT/PASSWORD/DB) if host is set
//  2. MAILBOX_REDIS_URL (redis:// or rediss://) otherwise
//  3. DefaultMailboxConfig()
//
// Invalid input never fails construction. A MAILBOX_REDIS_URL with an
// unsupported scheme or that does not parse logs a warning and yields the
// defaults. A non-integer MAILBOX_REDIS_PORT or MAILBOX_REDIS_DB logs a
// warning and keeps that field's default; the host step is still used.
func ConfigFromEnv(logger *slog.Logger) MailboxConfig {
	if logger == nil {
		logger = slog.Default()
	}

	if host := os.Getenv("MAILBOX_REDIS_HOST"); host != "" {
		cfg := DefaultMailboxConfig()
		cfg.Host = host
		cfg.Port = envInt(logger, "MAILBOX_REDIS_PORT", cfg.Port)
		cfg.Password = os.Getenv("MAILBOX_REDIS_PASSWORD")
		cfg.DB = envInt(logger, "MAILBOX_REDIS_DB", cfg.DB)
		return cfg
	}

	if raw := os.Getenv("MAILBOX_REDIS_URL"); raw != "" {
		if cfg, ok := configFromURL(logger, raw); ok {
			return cfg
		}
		return DefaultMailboxConfig()
	}

	return DefaultMailboxConfig()
}

func configFromURL(logger *slog.Logger, raw string) (MailboxConfig, bool) {
	parsed, err := url.Parse(raw)
	if err != nil {
		logger.Warn("invalid MAILBOX_REDIS_URL, falling back to defaults", "url", raw, "error", err)
		return MailboxConfig{}, false
	}

	if parsed.Scheme != "redis" && parsed.Scheme != "rediss" {
		logger.Warn("unsupported MAILBOX_REDIS_URL scheme, falling back to defaults",
			"scheme", parsed.Scheme, "want", "redis:// or rediss://")
		return MailboxConfig{}, false
	}

	cfg := DefaultMailboxConfig()
	if host := parsed.Hostname(); host != "" {
		cfg.Host = host
	}
	if portStr := parsed.Port(); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil {
			cfg.Port = port
		}
	}
	if pw, ok := parsed.User.Password(); ok {
		cfg.Password = pw
	}
	if len(parsed.Path) > 1 {
		if db, err := strconv.Atoi(parsed.Path[1:]); err == nil {
			cfg.DB = db
		}
	}
	return cfg, true
}

func envInt(logger *slog.Logger, key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		logger.Warn("invalid integer env var, using fallback", "var", key, "value", raw)
		return fallback
	}
	return v
}
