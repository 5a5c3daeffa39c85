// pkg/tenants/memory.go
package tenants

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"go.uber.org/zap"
)

// SeedEntry is the JSON shape of TENANT_SEED_JSON, shared by the memory
// provider and the Postgres seeder.
type SeedEntry struct {
	ID            string            `json:"id"`
	ApplicationID string            `json:"application_id"`
	Name          string            `json:"name"`
	Branding      *Branding         `json:"branding"`
	CustomTexts   map[string]string `json:"custom_texts"`
	Roles         []Role            `json:"roles"`
}

type memProvider struct {
	log      *zap.SugaredLogger
	byAppID  map[string]Application
	branding map[string]Branding
	texts    map[string]map[string]string
	roles    map[string][]Role
}

const devInternalID = "00000000-0000-0000-0000-000000000001"

func NewMemoryProviderFromEnv(log *zap.SugaredLogger) Provider {
	p, err := NewMemoryProvider(log, os.Getenv("TENANT_SEED_JSON"))
	if err != nil {
		log.Warnw("tenant seed ignored", "err", err)
		p, _ = NewMemoryProvider(log, "")
	}
	return p
}

// NewMemoryProvider builds a provider from a JSON seed. An empty seed yields a
// single "demo" application for local bring-up.
func NewMemoryProvider(log *zap.SugaredLogger, seed string) (Provider, error) {
	p := &memProvider{
		log:      log,
		byAppID:  map[string]Application{},
		branding: map[string]Branding{},
		texts:    map[string]map[string]string{},
		roles:    map[string][]Role{},
	}
	var entries []SeedEntry
	if seed != "" {
		if err := json.Unmarshal([]byte(seed), &entries); err != nil {
			return nil, fmt.Errorf("parse tenant seed: %w", err)
		}
	} else {
		entries = []SeedEntry{{
			ID: devInternalID, ApplicationID: "demo", Name: "Demo",
			Roles: []Role{
				{ID: "r1", Name: "user", DisplayName: "User", IsDefault: true},
				{ID: "r2", Name: "admin", DisplayName: "Administrator"},
			},
		}}
	}
	for _, e := range entries {
		if e.ApplicationID == "" || e.ID == "" {
			continue
		}
		p.byAppID[e.ApplicationID] = Application{ID: e.ID, ApplicationID: e.ApplicationID, Name: e.Name}
		if e.Branding != nil {
			p.branding[e.ID] = *e.Branding
		}
		if e.CustomTexts != nil {
			p.texts[e.ID] = e.CustomTexts
		}
		roles := append([]Role(nil), e.Roles...)
		sort.SliceStable(roles, func(i, j int) bool { return roles[i].DisplayName < roles[j].DisplayName })
		p.roles[e.ID] = roles
	}
	return p, nil
}

func (m *memProvider) ResolveApplication(ctx context.Context, applicationID string) (Application, error) {
	if a, ok := m.byAppID[applicationID]; ok {
		return a, nil
	}
	return Application{}, ErrNotFound
}

func (m *memProvider) GetBranding(ctx context.Context, internalID string) (Branding, error) {
	if b, ok := m.branding[internalID]; ok {
		return b, nil
	}
	return Branding{}, ErrNotFound
}

func (m *memProvider) GetCustomTexts(ctx context.Context, internalID string) (map[string]string, error) {
	t, ok := m.texts[internalID]
	if !ok {
		return nil, ErrNotFound
	}
	out := make(map[string]string, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out, nil
}

func (m *memProvider) ListRoles(ctx context.Context, internalID string) ([]Role, error) {
	return append([]Role(nil), m.roles[internalID]...), nil
}
