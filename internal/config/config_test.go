package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_USER", "postgres")
	t.Setenv("DB_NAME", "shopcore")

	cfg := LoadConfig()

	assert.Equal(t, "localhost", cfg.DBHost)
	assert.Equal(t, "5432", cfg.DBPort)
	assert.Equal(t, "8080", cfg.AppPort)
	assert.Equal(t, "payos", cfg.DefaultProvider)
	assert.Equal(t, 30*time.Minute, cfg.PaymentWindow)
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	assert.Equal(t, time.Minute, cfg.SweepInterval)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("APP_PORT", "9000")
	t.Setenv("PAYMENT_WINDOW_MINUTES", "15")
	t.Setenv("IDEMPOTENCY_TTL_MINUTES", "60")
	t.Setenv("DEFAULT_PROVIDER", "vnpay")

	cfg := LoadConfig()

	assert.Equal(t, "9000", cfg.AppPort)
	assert.Equal(t, 15*time.Minute, cfg.PaymentWindow)
	assert.Equal(t, time.Hour, cfg.IdempotencyTTL)
	assert.Equal(t, "vnpay", cfg.DefaultProvider)
}

func TestGetEnvMinutes_Invalid(t *testing.T) {
	t.Setenv("PAYMENT_WINDOW_MINUTES", "not-a-number")
	assert.Equal(t, 30*time.Minute, getEnvMinutes("PAYMENT_WINDOW_MINUTES", 30))

	t.Setenv("PAYMENT_WINDOW_MINUTES", "-5")
	assert.Equal(t, 30*time.Minute, getEnvMinutes("PAYMENT_WINDOW_MINUTES", 30))
}
