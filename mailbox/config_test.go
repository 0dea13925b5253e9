package mailbox

import (
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func clearMailboxEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"MAILBOX_REDIS_HOST", "MAILBOX_REDIS_PORT", "MAILBOX_REDIS_PASSWORD",
		"MAILBOX_REDIS_DB", "MAILBOX_REDIS_URL",
	} {
		os.Unsetenv(k)
	}
}

func TestConfigFromEnvDefaults(t *testing.T) {
	clearMailboxEnv(t)
	cfg := ConfigFromEnv(slog.Default())
	assert.Equal(t, DefaultMailboxConfig(), cfg)
}

func TestConfigFromEnvIndividualVarsTakePriority(t *testing.T) {
	clearMailboxEnv(t)
	t.Setenv("MAILBOX_REDIS_HOST", "prod-redis.example.com")
	t.Setenv("MAILBOX_REDIS_PORT", "6400")
	t.Setenv("MAILBOX_REDIS_PASSWORD", "secret")
	t.Setenv("MAILBOX_REDIS_DB", "3")
	t.Setenv("MAILBOX_REDIS_URL", "redis://should-be-ignored:1111/9")

	cfg := ConfigFromEnv(slog.Default())
	assert.Equal(t, "prod-redis.example.com", cfg.Host)
	assert.Equal(t, 6400, cfg.Port)
	assert.Equal(t, "secret", cfg.Password)
	assert.Equal(t, 3, cfg.DB)
}

func TestConfigFromEnvURLFallback(t *testing.T) {
	clearMailboxEnv(t)
	t.Setenv("MAILBOX_REDIS_URL", "rediss://:pw@cache.example.com:6390/2")

	cfg := ConfigFromEnv(slog.Default())
	assert.Equal(t, "cache.example.com", cfg.Host)
	assert.Equal(t, 6390, cfg.Port)
	assert.Equal(t, "pw", cfg.Password)
	assert.Equal(t, 2, cfg.DB)
}

func TestConfigFromEnvInvalidURLSchemeFallsBackToDefaults(t *testing.T) {
	clearMailboxEnv(t)
	t.Setenv("MAILBOX_REDIS_URL", "http://cache.example.com:6390/2")

	cfg := ConfigFromEnv(slog.Default())
	assert.Equal(t, DefaultMailboxConfig(), cfg)
}

func TestConfigFromEnvUnparseableURLFallsBackToDefaults(t *testing.T) {
	clearMailboxEnv(t)
	t.Setenv("MAILBOX_REDIS_URL", "redis://%zz")

	cfg := ConfigFromEnv(slog.Default())
	assert.Equal(t, DefaultMailboxConfig(), cfg)
}

func TestConfigFromEnvInvalidPortFallsBackToDefaultPort(t *testing.T) {
	clearMailboxEnv(t)
	t.Setenv("MAILBOX_REDIS_HOST", "redis.example.com")
	t.Setenv("MAILBOX_REDIS_PORT", "not-a-number")

	cfg := ConfigFromEnv(slog.Default())
	assert.Equal(t, "redis.example.com", cfg.Host)
	assert.Equal(t, DefaultMailboxConfig().Port, cfg.Port)
}
