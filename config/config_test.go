package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, EnvLocal, cfg.App.Env)
	assert.Equal(t, "8080", cfg.HTTP.Port)
	assert.Equal(t, []string{"*"}, cfg.HTTP.CORSAllowedOrigins)
	assert.Equal(t, 100, cfg.Ledger.TransactionListLimit)
	assert.Equal(t, time.Hour, cfg.Ledger.ReconcileInterval)
	assert.True(t, cfg.Cache.Enabled)
	assert.False(t, cfg.IsProduction())

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "America/Sao_Paulo", loc.String())
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("APP_ENV", "PRODUCTION")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.org,https://b.org")
	t.Setenv("CACHE_SLOTS_SIZE", "0")
	t.Setenv("AUTH_TOKEN_TTL", "30m")

	cfg, err := Load()

	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, []string{"https://a.org", "https://b.org"}, cfg.HTTP.CORSAllowedOrigins)
	assert.False(t, cfg.Cache.Enabled, "a zero cache size disables the cache")
	assert.Equal(t, 30*time.Minute, cfg.Auth.TokenTTL)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string][2]string{
		"limit too high": {"TRANSACTION_LIST_LIMIT", "5000"},
		"limit zero":     {"TRANSACTION_LIST_LIMIT", "0"},
		"bad timezone":   {"APP_TIMEZONE", "Mars/Olympus"},
		"bad duration":   {"RECONCILE_INTERVAL", "soon"},
	}
	for name, kv := range tests {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])

			_, err := Load()

			assert.Error(t, err)
		})
	}
}
