package app

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SESSION_SECRET", "session-secret")
	t.Setenv("CSRF_SECRET", "csrf-secret")
	t.Setenv("JWT_SECRET", "jwt-secret")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequiredEnv(t)
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, 30*time.Second, cfg.AppRequestTimeout)
	assert.True(t, decimal.RequireFromString("0.20").Equal(cfg.VATRate))
	assert.Equal(t, int64(10<<20), cfg.UploadMaxBytes)
	assert.Empty(t, cfg.GCSBucket)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigValidation(t *testing.T) {
	t.Run("missing secret", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("JWT_SECRET", "")
		_, err := LoadConfig()
		assert.Error(t, err)
	})
	t.Run("vat as percentage", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("PRICING_VAT_RATE", "20")
		_, err := LoadConfig()
		assert.ErrorContains(t, err, "PRICING_VAT_RATE")
	})
	t.Run("upload limit", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("UPLOAD_MAX_BYTES", "0")
		_, err := LoadConfig()
		assert.ErrorContains(t, err, "UPLOAD_MAX_BYTES")
	})
}

func TestLoggerFormat(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, &Config{AppEnv: "production", LogFormat: "json"}).Info("hello")
	assert.Contains(t, buf.String(), `"msg":"hello"`)
	assert.Contains(t, buf.String(), `"env":"production"`)

	buf.Reset()
	newLogger(&buf, &Config{AppEnv: "development"}).Debug("verbose")
	assert.Contains(t, buf.String(), "msg=verbose")
}
