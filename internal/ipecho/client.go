// Package ipecho determines the caller's public address through an external
// echo service.
package ipecho

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"

	jmes "github.com/jmespath/go-jmespath"
	"go.uber.org/zap"
)

// Unknown is reported whenever the address cannot be determined.
const Unknown = "0.0.0.0"

// Resolver yields a client IP. Implementations never fail; they fall back to Unknown.
type Resolver interface {
	ClientIP(ctx context.Context) string
}

// Client queries an echo service such as api.ipify.org.
type Client struct {
	url   string
	field *jmes.JMESPath
	http  *http.Client
	log   *zap.SugaredLogger
}

// NewClient compiles the JMESPath expression used to pull the address out of
// the echo response ("ip" for ipify, "origin" for httpbin).
func NewClient(url, field string, hc *http.Client, log *zap.SugaredLogger) (*Client, error) {
	if field == "" {
		field = "ip"
	}
	expr, err := jmes.Compile(field)
	if err != nil {
		return nil, fmt.Errorf("ipecho: compile %q: %w", field, err)
	}
	return &Client{url: url, field: expr, http: hc, log: log}, nil
}

func (c *Client) ClientIP(ctx context.Context) string {
	ip, err := c.lookup(ctx)
	if err != nil {
		c.log.Warnw("client ip lookup failed", "err", err)
		return Unknown
	}
	return ip
}

func (c *Client) lookup(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var body any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	v, err := c.field.Search(body)
	if err != nil {
		return "", fmt.Errorf("extracting address: %w", err)
	}
	s, _ := v.(string)
	if net.ParseIP(s) == nil {
		return "", fmt.Errorf("not an ip address: %v", v)
	}
	return s, nil
}

// Static always reports the same address; used when the address is already
// known from the inbound request.
type Static string

func (s Static) ClientIP(context.Context) string {
	if s == "" {
		return Unknown
	}
	return string(s)
}
