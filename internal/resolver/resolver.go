// Package resolver turns the app_id/api_key query parameters into the
// immutable tenant context of a form session.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"authwidget/pkg/tenants"
)

var (
	// ErrMissingAppID is a configuration error: no lookup is attempted.
	ErrMissingAppID = errors.New("app_id is required")
	ErrNotFound     = errors.New("application not found")
	ErrLookupFailed = errors.New("application lookup failed")
)

// TenantContext identifies the application a session authenticates against.
type TenantContext struct {
	ExternalID  string `json:"app_id"`
	InternalID  string `json:"-"`
	DisplayName string `json:"name"`
	// APIKey comes from the query string; empty means absent.
	APIKey string `json:"-"`
}

func (t TenantContext) HasAPIKey() bool { return t.APIKey != "" }

// Initial is the first letter of the display name, used as logo placeholder.
func (t TenantContext) Initial() string {
	for _, r := range strings.TrimSpace(t.DisplayName) {
		return strings.ToUpper(string(r))
	}
	return "A"
}

type Resolver struct {
	prov tenants.Provider
	log  *zap.SugaredLogger
}

func New(prov tenants.Provider, log *zap.SugaredLogger) *Resolver {
	return &Resolver{prov: prov, log: log}
}

// Resolve looks up the application. A missing API key is not an error here;
// it surfaces when the form is submitted.
func (r *Resolver) Resolve(ctx context.Context, externalID, apiKey string) (TenantContext, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return TenantContext{}, ErrMissingAppID
	}
	app, err := r.prov.ResolveApplication(ctx, externalID)
	if err != nil {
		if errors.Is(err, tenants.ErrNotFound) {
			r.log.Infow("application not found", "app_id", externalID)
			return TenantContext{}, fmt.Errorf("%w: %s", ErrNotFound, externalID)
		}
		r.log.Errorw("application lookup failed", "app_id", externalID, "err", err)
		return TenantContext{}, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	if apiKey == "" {
		r.log.Warnw("no api key in query", "app_id", externalID)
	}
	return TenantContext{
		ExternalID:  app.ApplicationID,
		InternalID:  app.ID,
		DisplayName: app.Name,
		APIKey:      apiKey,
	}, nil
}

// IsNotFound reports whether err must be shown as "application not found".
// Missing records and failed lookups share that terminal view.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrLookupFailed)
}
