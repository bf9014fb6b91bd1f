package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "unit-test-secret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.ServerPort)
	assert.Equal(t, "tcc.db", cfg.DatabasePath)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, 1.0, cfg.SignupRatePerSecond)
	assert.Equal(t, 5, cfg.SignupBurst)
}

func TestLoad_ReadsEnvironment(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "unit-test-secret")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DATABASE_PATH", "/var/lib/tcc/tcc.db")
	t.Setenv("TOKEN_TTL", "2h")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("ALLOWED_ORIGINS", " https://one.test , https://two.test ")
	t.Setenv("SIGNUP_RATE_PER_SECOND", "2.5")
	t.Setenv("SIGNUP_BURST", "10")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.ServerPort)
	assert.Equal(t, "/var/lib/tcc/tcc.db", cfg.DatabasePath)
	assert.Equal(t, 2*time.Hour, cfg.TokenTTL)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, []string{"https://one.test", "https://two.test"}, cfg.AllowedOrigins)
	assert.Equal(t, 2.5, cfg.SignupRatePerSecond)
	assert.Equal(t, 10, cfg.SignupBurst)
}

func TestLoad_RequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET_KEY")
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"SERVER_PORT", "not-a-port"},
		{"SERVER_PORT", "70000"},
		{"TOKEN_TTL", "yesterday"},
		{"TOKEN_TTL", "-1h"},
		{"LOG_LEVEL", "loud"},
		{"SIGNUP_RATE_PER_SECOND", "0"},
		{"SIGNUP_BURST", "-2"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv("JWT_SECRET_KEY", "unit-test-secret")
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
