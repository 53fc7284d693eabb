package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, 3, cfg.ProcureMaxAttempts)
	require.Equal(t, 25*time.Millisecond, cfg.ProcureRetryBackoff)
	require.Equal(t, 72*time.Hour, cfg.IdempotencyRetention)
	require.True(t, cfg.ProcureLocksEnabled)
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("PROCURE_MAX_ATTEMPTS", "5")
	t.Setenv("PROCURE_LOCKS_ENABLED", "false")
	t.Setenv("SMTP_PORT", "2525")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.True(t, cfg.IsProduction())
	require.Equal(t, 5, cfg.ProcureMaxAttempts)
	require.False(t, cfg.ProcureLocksEnabled)
	require.Equal(t, 2525, cfg.SMTPPort)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	t.Setenv("PROCURE_MAX_ATTEMPTS", "0")
	_, err := LoadConfig()
	require.ErrorContains(t, err, "max attempts")

	t.Setenv("PROCURE_MAX_ATTEMPTS", "3")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "0")
	_, err = LoadConfig()
	require.ErrorContains(t, err, "rate limit")
}
