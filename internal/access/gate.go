// Package access queries the IP reputation service once per form session.
package access

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"authwidget/internal/ipecho"
)

// Verdict is the reputation judgment for one client address.
type Verdict struct {
	Blocked   bool       `json:"blocked"`
	Reason    string     `json:"reason,omitempty"`
	BlockedAt *time.Time `json:"blocked_at,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	IP        string     `json:"ip"`
}

// Checker is what the form session depends on.
type Checker interface {
	Check(ctx context.Context, ip string) Verdict
}

type Config struct {
	URL        string // full check-ip-status endpoint
	AnonKey    string
	ClientInfo string
}

// Gate never denies because of its own unavailability: every failure path
// yields an allowed verdict.
type Gate struct {
	cfg  Config
	http *http.Client
	echo ipecho.Resolver
	log  *zap.SugaredLogger
}

func NewGate(cfg Config, hc *http.Client, echo ipecho.Resolver, log *zap.SugaredLogger) *Gate {
	return &Gate{cfg: cfg, http: hc, echo: echo, log: log}
}

type statusResponse struct {
	Success bool `json:"success"`
	Data    *struct {
		IsBlocked   bool   `json:"is_blocked"`
		IPAddress   string `json:"ip_address"`
		BlockedInfo *struct {
			Reason    string     `json:"reason"`
			BlockedAt *time.Time `json:"blocked_at"`
			ExpiresAt *time.Time `json:"expires_at"`
		} `json:"blocked_info"`
	} `json:"data"`
}

// Check resolves the address through the echo service when ip is empty.
func (g *Gate) Check(ctx context.Context, ip string) Verdict {
	if ip == "" {
		ip = g.echo.ClientIP(ctx)
	}
	res, err := g.query(ctx, ip)
	if err != nil {
		g.log.Warnw("reputation check unavailable, allowing", "ip", ip, "err", err)
		return Verdict{IP: ipecho.Unknown}
	}
	if !res.Success || res.Data == nil {
		return Verdict{IP: ip}
	}
	v := Verdict{Blocked: res.Data.IsBlocked, IP: res.Data.IPAddress}
	if v.IP == "" {
		v.IP = ip
	}
	if info := res.Data.BlockedInfo; info != nil {
		v.Reason = info.Reason
		v.BlockedAt = info.BlockedAt
		v.ExpiresAt = info.ExpiresAt
	}
	if v.Blocked {
		g.log.Infow("client ip blocked", "ip", v.IP, "reason", v.Reason)
	}
	return v
}

func (g *Gate) query(ctx context.Context, ip string) (statusResponse, error) {
	var out statusResponse
	if g.cfg.URL == "" {
		return out, fmt.Errorf("reputation endpoint not configured")
	}
	body, _ := json.Marshal(map[string]string{"client_ip": ip})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return out, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.cfg.AnonKey)
	req.Header.Set("apikey", g.cfg.AnonKey)
	if g.cfg.ClientInfo != "" {
		req.Header.Set("X-Client-Info", g.cfg.ClientInfo)
	}
	resp, err := g.http.Do(req)
	if err != nil {
		return out, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("decoding response: %w", err)
	}
	return out, nil
}
