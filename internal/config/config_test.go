package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
}

func TestLoad_DefaultsAndOverrides(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
db:
  host: localhost
  password: ${DB_PASSWORD}
redis:
  password: ${REDIS_PASSWORD}
jwt:
  secret: ${JWT_SECRET}
app:
  timezone: Asia/Tokyo
cache:
  ttl: 1m
outbox:
  breaker:
    failure_threshold: 2
`)
	writeFile(t, dir, "test.yaml", `
app:
  weekly_average: legacy
consumer:
  max_retries: 7
`)
	writeFile(t, dir, "secrets.env", "JWT_SECRET=topsecret\n")
	t.Setenv("DB_HOST", "db.internal")

	cfg, err := Load("test", dir)
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.DB.Host)
	assert.Equal(t, 5432, cfg.DB.Port)
	assert.Empty(t, cfg.DB.Password)
	assert.Empty(t, cfg.Redis.Password)
	assert.Equal(t, "topsecret", cfg.JWT.Secret)
	assert.Equal(t, ":8080", cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "legacy", cfg.App.WeeklyAverage)
	assert.Equal(t, 3, cfg.App.MaxUpdateAttempts)
	assert.Equal(t, time.Minute, cfg.Cache.TTL)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, 2, cfg.Outbox.Breaker.FailureThreshold)
	assert.Equal(t, 30*time.Second, cfg.Outbox.Breaker.Timeout)
	assert.Equal(t, int64(7), cfg.Consumer.MaxRetries)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Tokyo", loc.String())
}

func TestLoad_RequiresJWTSecret(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", "jwt:\n  secret: ${TASKFLOW_TEST_UNSET_SECRET}\n")

	_, err := Load("", dir)
	assert.ErrorContains(t, err, "jwt.secret")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.JWT.Secret = "s"
	cfg.App.MaxUpdateAttempts = 0
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 3, cfg.App.MaxUpdateAttempts)

	cfg.App.Timezone = "Mars/Olympus"
	assert.Error(t, cfg.Validate())

	cfg.App.Timezone = "UTC"
	cfg.App.WeeklyAverage = "fortnightly"
	assert.Error(t, cfg.Validate())
}
