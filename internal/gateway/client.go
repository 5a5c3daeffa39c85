// Package gateway talks to the remote authentication API.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"authwidget/internal/forms"
	"authwidget/pkg/logger"
)

// Endpoint paths below the API base URL.
var endpoints = map[forms.Type]string{
	forms.Login:         "/functions/v1/auth-login",
	forms.Register:      "/functions/v1/auth-register",
	forms.ResetPassword: "/functions/v1/auth-reset-password",
}

// ReputationPath is the IP status endpoint served by the same API.
const ReputationPath = "/functions/v1/check-ip-status"

const maxBody = 1 << 20

// Request carries everything a submission may send; Payload picks the fields
// each form type expects.
type Request struct {
	Form          forms.Type
	Fields        forms.Fields
	ApplicationID string
	APIKey        string
	CallbackURL   string
	Role          string
	ClientIP      string
}

type loginPayload struct {
	Email         string  `json:"email"`
	Password      string  `json:"password"`
	ApplicationID string  `json:"application_id"`
	APIKey        string  `json:"api_key"`
	CallbackURL   *string `json:"callback_url"`
	ClientIP      string  `json:"client_ip"`
}

type registerPayload struct {
	Email         string  `json:"email"`
	Password      string  `json:"password"`
	Name          string  `json:"name"`
	ApplicationID string  `json:"application_id"`
	APIKey        string  `json:"api_key"`
	CallbackURL   *string `json:"callback_url"`
	Role          string  `json:"role,omitempty"`
	ClientIP      string  `json:"client_ip"`
}

type resetPayload struct {
	Email         string  `json:"email"`
	ApplicationID string  `json:"application_id"`
	APIKey        string  `json:"api_key"`
	RedirectURI   *string `json:"redirect_uri"`
	ClientIP      string  `json:"client_ip"`
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Payload returns the JSON body for the request's form type.
func (r Request) Payload() any {
	switch r.Form {
	case forms.Register:
		return registerPayload{
			Email: r.Fields.Email, Password: r.Fields.Password, Name: r.Fields.Name,
			ApplicationID: r.ApplicationID, APIKey: r.APIKey, CallbackURL: optional(r.CallbackURL),
			Role: r.Role, ClientIP: r.ClientIP,
		}
	case forms.ResetPassword:
		return resetPayload{
			Email: r.Fields.Email, ApplicationID: r.ApplicationID, APIKey: r.APIKey,
			RedirectURI: optional(r.CallbackURL), ClientIP: r.ClientIP,
		}
	default:
		return loginPayload{
			Email: r.Fields.Email, Password: r.Fields.Password,
			ApplicationID: r.ApplicationID, APIKey: r.APIKey, CallbackURL: optional(r.CallbackURL),
			ClientIP: r.ClientIP,
		}
	}
}

// Submitter is what the form session depends on.
type Submitter interface {
	Submit(ctx context.Context, req Request) (Result, error)
}

type Config struct {
	BaseURL    string
	AnonKey    string
	ClientInfo string
}

type Client struct {
	cfg  Config
	http *http.Client
	log  *zap.SugaredLogger
}

func NewClient(cfg Config, hc *http.Client, log *zap.SugaredLogger) *Client {
	return &Client{cfg: cfg, http: hc, log: log}
}

// Submit posts the form. The HTTP status is not consulted: the envelope alone
// decides success. A returned error is a transport or parse failure.
func (c *Client) Submit(ctx context.Context, req Request) (Result, error) {
	path, ok := endpoints[req.Form]
	if !ok {
		return nil, fmt.Errorf("gateway: unknown form type %q", req.Form)
	}
	body, err := json.Marshal(req.Payload())
	if err != nil {
		return nil, fmt.Errorf("gateway: encoding payload: %w", err)
	}
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("gateway: building request: %w", err)
	}
	hreq.Header.Set("Content-Type", "application/json")
	hreq.Header.Set("Authorization", "Bearer "+c.cfg.AnonKey)
	hreq.Header.Set("apikey", c.cfg.AnonKey)
	if c.cfg.ClientInfo != "" {
		hreq.Header.Set("X-Client-Info", c.cfg.ClientInfo)
	}

	c.log.Debugw("gateway request", "form", req.Form, "app_id", req.ApplicationID, "api_key", logger.Redact(req.APIKey, 8))
	resp, err := c.http.Do(hreq)
	if err != nil {
		return nil, fmt.Errorf("gateway: request failed: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("gateway: reading response: %w", err)
	}
	res, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	if f, ok := res.(Failure); ok {
		c.log.Infow("gateway rejected submission", "form", req.Form, "status", resp.StatusCode, "code", f.Code)
	}
	return res, nil
}
