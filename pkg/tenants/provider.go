package tenants

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no record exists for the key. Transport
// failures are returned wrapped and never match it.
var ErrNotFound = errors.New("tenants: not found")

type Provider interface {
	// Resolve an application from its external id.
	ResolveApplication(ctx context.Context, applicationID string) (Application, error)
	// Branding, custom texts and roles are keyed by the internal id.
	GetBranding(ctx context.Context, internalID string) (Branding, error)
	GetCustomTexts(ctx context.Context, internalID string) (map[string]string, error)
	// ListRoles returns roles ordered by display name.
	ListRoles(ctx context.Context, internalID string) ([]Role, error)
}
