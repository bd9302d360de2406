package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("APP_PORT", "")
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("PAYMENT_PROVIDER", "")

	cfg := LoadConfig()

	assert.Equal(t, "8080", cfg.AppPort)
	assert.Equal(t, "mysql", cfg.StoreBackend)
	assert.Equal(t, "none", cfg.PaymentProvider)
	assert.Equal(t, "USD", cfg.PaymentCurrency)
	assert.True(t, cfg.OTELExporterOTLPInsecure)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("APP_PORT", "9090")
	t.Setenv("DB_USER", "shop")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_PORT", "3307")
	t.Setenv("DB_NAME", "affordeals")
	t.Setenv("METRICS_ENABLED", "false")
	t.Setenv("PAYMENT_PROVIDER", "stripe")

	cfg := LoadConfig()

	assert.Equal(t, 9090, cfg.GetAppPortInt())
	assert.Equal(t, "shop:secret@tcp(db:3307)/affordeals?parseTime=true&charset=utf8mb4", cfg.GetDSN())
	assert.False(t, cfg.MetricsEnabled)
	assert.Equal(t, "stripe", cfg.PaymentProvider)
}

func TestGetAppPortIntFallback(t *testing.T) {
	cfg := &Config{AppPort: "not-a-port"}
	assert.Equal(t, 8080, cfg.GetAppPortInt())
}
