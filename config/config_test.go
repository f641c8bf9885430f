package config

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestParseDefaults(t *testing.T) {
	t.Setenv("QR_SECRET_KEY", testSecret)

	cfg, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, DriverPostgres, cfg.DBDriver)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, int64(10), cfg.AwardPoints)
	assert.Equal(t, 5*time.Second, cfg.StoreTimeout)
	assert.Len(t, cfg.CORSOrigins, 3)
}

func TestParseRequiresSecret(t *testing.T) {
	t.Setenv("QR_SECRET_KEY", "")
	_, err := Parse()
	assert.Error(t, err)

	t.Setenv("QR_SECRET_KEY", "too-short")
	_, err = Parse()
	assert.ErrorContains(t, err, "at least 32 bytes")
}

func TestParseDriver(t *testing.T) {
	t.Setenv("QR_SECRET_KEY", testSecret)

	t.Setenv("DB_DRIVER", " SQLite ")
	cfg, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, cfg.DBDriver)

	t.Setenv("DB_DRIVER", "mysql")
	_, err = Parse()
	assert.ErrorContains(t, err, "unsupported DB_DRIVER")
}

func TestParseInvalidDuration(t *testing.T) {
	t.Setenv("QR_SECRET_KEY", testSecret)
	t.Setenv("TOKEN_TTL", "soon")

	_, err := Parse()
	assert.ErrorContains(t, err, "parse env:")
}

func TestParseRejectsNonPositiveReconcileInterval(t *testing.T) {
	t.Setenv("QR_SECRET_KEY", testSecret)

	for _, interval := range []string{"0s", "-1m"} {
		t.Run(interval, func(t *testing.T) {
			t.Setenv("RECONCILE_INTERVAL", interval)
			_, err := Parse()
			assert.ErrorContains(t, err, "RECONCILE_INTERVAL must be positive")
		})
	}

	t.Setenv("RECONCILE_INTERVAL", "30s")
	cfg, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.ReconcileInterval)
}

func TestLogValueOmitsSecrets(t *testing.T) {
	t.Setenv("QR_SECRET_KEY", testSecret)
	t.Setenv("DATABASE_URL", "postgres://admin:hunter2@db/presence")
	cfg, err := Parse()
	require.NoError(t, err)

	var buf bytes.Buffer
	slog.New(slog.NewJSONHandler(&buf, nil)).Info("config", slog.Any("config", cfg))

	assert.NotContains(t, buf.String(), testSecret)
	assert.NotContains(t, buf.String(), "hunter2")
	assert.Contains(t, buf.String(), `"db_driver":"postgres"`)
}

func TestSlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, Config{LogLevel: "debug"}.SlogLevel())
	assert.Equal(t, slog.LevelInfo, Config{LogLevel: "nonsense"}.SlogLevel())
}
