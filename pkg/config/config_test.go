package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromViper_Defaults(t *testing.T) {
	cfg := FromViper(newViper())

	assert.Equal(t, "3000", cfg.Server.Port)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, 90*24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 10*time.Minute, cfg.Auth.ResetTokenTTL)
	assert.Equal(t, 100, cfg.RateLimit.Requests)
	assert.Equal(t, time.Hour, cfg.RateLimit.Window)
	assert.Equal(t, "usd", cfg.Stripe.Currency)
	assert.True(t, cfg.Email.DevMode)
	assert.Zero(t, cfg.RateLimit.TrustedHops)
}

func TestFromViper_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "8088")
	t.Setenv("APP_ENV", "Production")
	t.Setenv("BASE_URL", "https://tours.example.com/")
	t.Setenv("JWT_EXPIRES_IN", "2h")
	t.Setenv("RATE_LIMIT_REQUESTS", "5")
	t.Setenv("HASH_PARALLELISM", "4")
	t.Setenv("TRUSTED_PROXY_HOPS", "1")

	cfg := FromViper(newViper())

	assert.Equal(t, "8088", cfg.Server.Port)
	assert.False(t, cfg.IsDevelopment())
	assert.Equal(t, "https://tours.example.com", cfg.Server.BaseURL)
	assert.Equal(t, 2*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 5, cfg.RateLimit.Requests)
	assert.Equal(t, uint8(4), cfg.Auth.HashParallelism)
	assert.Equal(t, 1, cfg.RateLimit.TrustedHops)
}

func TestValidate(t *testing.T) {
	cfg := FromViper(newViper())
	require.NoError(t, cfg.Validate(), "development accepts the dev secret")

	cfg.Server.Env = "production"
	require.Error(t, cfg.Validate())

	cfg.Auth.JWTSecret = "a-real-secret"
	require.NoError(t, cfg.Validate())

	cfg.Stripe.SecretKey = "sk_live_x"
	require.Error(t, cfg.Validate())
}
