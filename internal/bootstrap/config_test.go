package bootstrap

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/innerscope/authcore"
)

const (
	testAccessSecret  = "access-secret-0123456789abcdefghijklmnop"
	testRefreshSecret = "refresh-secret-0123456789abcdefghijklmno"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("AUTHCORE_DB_URL", "postgres://env/authcore")
	t.Setenv("AUTHCORE_JWT_ACCESS_SECRET", testAccessSecret)
	t.Setenv("AUTHCORE_JWT_REFRESH_SECRET", testRefreshSecret)
	t.Setenv("AUTHCORE_COOKIE_SECRET", "cookie-secret-0123456789abcdefghijklmn")
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigDefaultsWithoutFile(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	defaults := authcore.DefaultConfig()
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, "postgres://env/authcore", cfg.DatabaseURL)
	assert.Equal(t, int32(20), cfg.MaxDBConns)
	assert.Equal(t, defaults.JWT.AccessTTL, cfg.AccessTTL)
	assert.Equal(t, defaults.JWT.RefreshTTL, cfg.RefreshTTL)
	assert.Equal(t, "bcrypt", cfg.PasswordAlgorithm)
	assert.True(t, cfg.SecureCookies)
	assert.False(t, cfg.TrustProxy)
	assert.Empty(t, cfg.RedisURL)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, 10*time.Second, cfg.SMTPTimeout)
}

func TestLoadConfigFileThenEnv(t *testing.T) {
	setRequiredEnv(t)
	path := writeConfig(t, `
service:
  http_port: 9000
  log_level: debug
dependencies:
  postgres_url: postgres://file/authcore
  redis_url: redis://file:6379/0
  kafka_brokers: ["k1:9092", "k2:9092"]
auth:
  access_ttl: 5m
  refresh_ttl: 48h
  lockout_max_attempts: 3
  revoke_family_on_reuse: true
http:
  secure_cookies: false
observability:
  latency_histograms: true
`)
	t.Setenv("AUTHCORE_HTTP_PORT", "9100")
	t.Setenv("AUTHCORE_KAFKA_BROKERS", " k3:9092, ,k4:9092 ")
	t.Setenv("AUTHCORE_ACCESS_TTL", "10m")
	t.Setenv("AUTHCORE_SMTP_TIMEOUT", "3s")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.HTTPPort)
	assert.Equal(t, "debug", cfg.LogLevel)
	// env wins over the file
	assert.Equal(t, "postgres://env/authcore", cfg.DatabaseURL)
	assert.Equal(t, "redis://file:6379/0", cfg.RedisURL)
	assert.Equal(t, []string{"k3:9092", "k4:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 10*time.Minute, cfg.AccessTTL)
	assert.Equal(t, 3*time.Second, cfg.SMTPTimeout)
	assert.Equal(t, 48*time.Hour, cfg.RefreshTTL)
	assert.Equal(t, 3, cfg.LockoutMaxAttempts)
	assert.True(t, cfg.RevokeFamilyOnReuse)
	assert.False(t, cfg.SecureCookies)
	assert.True(t, cfg.LatencyHistograms)
}

func TestLoadConfigIgnoresMalformedEnv(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("AUTHCORE_HTTP_PORT", "eighty")
	t.Setenv("AUTHCORE_TRUST_PROXY", "maybe")
	t.Setenv("AUTHCORE_REFRESH_TTL", "-1h")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.False(t, cfg.TrustProxy)
	assert.Equal(t, authcore.DefaultConfig().JWT.RefreshTTL, cfg.RefreshTTL)
}

func TestLoadConfigRequiredSettings(t *testing.T) {
	tests := []struct {
		name  string
		unset string
		want  string
	}{
		{name: "database", unset: "AUTHCORE_DB_URL", want: "AUTHCORE_DB_URL"},
		{name: "jwt", unset: "AUTHCORE_JWT_REFRESH_SECRET", want: "AUTHCORE_JWT_ACCESS_SECRET"},
		{name: "cookie", unset: "AUTHCORE_COOKIE_SECRET", want: "AUTHCORE_COOKIE_SECRET"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(tc.unset, "")

			_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoadConfigRejectsBadFile(t *testing.T) {
	setRequiredEnv(t)

	_, err := LoadConfig(writeConfig(t, "service: [unterminated"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config file")

	_, err = LoadConfig(writeConfig(t, "auth:\n  access_ttl: soon\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth.access_ttl")
}

func TestEngineConfigPassesValidation(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("AUTHCORE_REDIS_URL", "localhost:6379")
	t.Setenv("AUTHCORE_REVOKE_FAMILY_ON_REUSE", "true")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	engineCfg := cfg.EngineConfig()
	require.NoError(t, engineCfg.Validate())
	assert.Equal(t, []byte(testAccessSecret), engineCfg.JWT.AccessSecret)
	assert.Equal(t, []byte(testRefreshSecret), engineCfg.JWT.RefreshSecret)
	assert.True(t, engineCfg.RateLimit.Enabled)
	assert.True(t, engineCfg.Security.RevokeFamilyOnReuse)
	assert.False(t, engineCfg.Metrics.EnableLatencyHistograms)
}

func TestShippedDefaultConfigParses(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig(filepath.Join("..", "..", "configs", "default.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.LockoutMaxAttempts)
	assert.Equal(t, 15*time.Minute, cfg.AccessTTL)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	engineCfg := cfg.EngineConfig()
	require.NoError(t, engineCfg.Validate())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", parseLevel("debug").String())
	assert.Equal(t, "ERROR", parseLevel("error").String())
	assert.Equal(t, "INFO", parseLevel("loud").String())
}
