// pkg/config/config.go
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	HTTPAddr string

	// Remote auth API (gateway + reputation check)
	AuthAPIURL     string
	AuthAPIAnonKey string
	ClientInfo     string

	// Client IP determination
	IPEchoURL   string
	IPEchoField string // JMESPath expression applied to the echo response
	IPSource    string // request | echo
	// Peers allowed to name the client in X-Forwarded-For / X-Real-IP
	TrustedProxies []string

	// Used when the query string carries no app_id
	DefaultAppID string

	HTTPTimeout time.Duration
	LoadTimeout time.Duration
	SessionTTL  time.Duration

	// Redis & Postgres
	RedisURL    string
	DatabaseURL string
	DBMaxConns  int32

	SecureCookie     bool
	DebugDoubleWrite bool
}

func Load() Config {
	_ = godotenv.Load()
	cfg := Config{
		Env:            env("WIDGET_ENV", "dev"),
		HTTPAddr:       env("WIDGET_HTTP_ADDR", ":8080"),
		AuthAPIURL:     strings.TrimRight(env("AUTH_API_URL", ""), "/"),
		AuthAPIAnonKey: env("AUTH_API_ANON_KEY", ""),
		ClientInfo:     env("AUTH_CLIENT_INFO", "authsystem-public-form/1.0"),
		IPEchoURL:      env("IP_ECHO_URL", "https://api.ipify.org?format=json"),
		IPEchoField:    env("IP_ECHO_FIELD", "ip"),
		IPSource:       strings.ToLower(env("IP_SOURCE", "request")),
		DefaultAppID:   env("DEFAULT_APP_ID", ""),
		HTTPTimeout:    envDur("HTTP_TIMEOUT_SEC", 10) * time.Second,
		LoadTimeout:    envDur("LOAD_TIMEOUT_SEC", 15) * time.Second,
		SessionTTL:     envDur("SESSION_TTL_SEC", 1800) * time.Second,
		RedisURL:       env("REDIS_URL", ""),
		DatabaseURL:    env("DATABASE_URL", ""),
		DBMaxConns:     int32(envInt("DB_MAX_CONNS", 8)),
	}
	cfg.TrustedProxies = envList("TRUSTED_PROXIES")
	cfg.SecureCookie = envBool("WIDGET_SECURE_COOKIE", cfg.Env == "prod")
	cfg.DebugDoubleWrite = envBool("WIDGET_DEBUG_DOUBLE_WRITE", false)
	if cfg.DatabaseURL == "" {
		log.Println("[WARN] DATABASE_URL not set; using in-memory tenant provider for dev")
	}
	if cfg.AuthAPIURL == "" {
		log.Println("[WARN] AUTH_API_URL not set; submissions and reputation checks will fail open")
	}
	return cfg
}

// UseEchoIP reports whether the client IP must come from the echo service
// instead of the inbound request.
func (c Config) UseEchoIP() bool { return c.IPSource == "echo" }

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil && i > 0 {
			return i
		}
	}
	return def
}

func envDur(k string, def int) time.Duration { return time.Duration(envInt(k, def)) }

func envList(k string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(k), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func envBool(k string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(k)))
	if v == "" {
		return def
	}
	return strings.HasPrefix(v, "1") || strings.HasPrefix(v, "t") || strings.HasPrefix(v, "y")
}
