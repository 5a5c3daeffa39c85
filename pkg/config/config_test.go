package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"WIDGET_ENV", "WIDGET_HTTP_ADDR", "IP_SOURCE", "IP_ECHO_FIELD", "HTTP_TIMEOUT_SEC", "SESSION_TTL_SEC", "DB_MAX_CONNS", "TRUSTED_PROXIES"} {
		t.Setenv(k, "")
	}
	cfg := Load()
	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "ip", cfg.IPEchoField)
	assert.Equal(t, 10*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.Equal(t, int32(8), cfg.DBMaxConns)
	assert.Empty(t, cfg.TrustedProxies)
	assert.False(t, cfg.UseEchoIP())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("AUTH_API_URL", "https://auth.example.com/")
	t.Setenv("IP_SOURCE", "ECHO")
	t.Setenv("HTTP_TIMEOUT_SEC", "3")
	t.Setenv("SESSION_TTL_SEC", "not-a-number")
	t.Setenv("DB_MAX_CONNS", "20")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 192.0.2.1,")

	cfg := Load()
	assert.Equal(t, "https://auth.example.com", cfg.AuthAPIURL)
	assert.True(t, cfg.UseEchoIP())
	assert.Equal(t, 3*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.Equal(t, int32(20), cfg.DBMaxConns)
	assert.Equal(t, []string{"10.0.0.0/8", "192.0.2.1"}, cfg.TrustedProxies)
}

func TestSecureCookieFollowsEnv(t *testing.T) {
	t.Setenv("WIDGET_SECURE_COOKIE", "")
	t.Setenv("WIDGET_ENV", "prod")
	assert.True(t, Load().SecureCookie)

	t.Setenv("WIDGET_SECURE_COOKIE", "false")
	assert.False(t, Load().SecureCookie)
}
