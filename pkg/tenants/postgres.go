// pkg/tenants/postgres.go
package tenants

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"authwidget/pkg/db"
)

// pgProvider implements Provider backed by PostgreSQL.
type pgProvider struct {
	dbPool *pgxpool.Pool      // Connection pool to PostgreSQL
	log    *zap.SugaredLogger // Logger for diagnostic output
}

// NewPostgresProvider constructs a PostgreSQL-backed tenant provider.
func NewPostgresProvider(dbPool *pgxpool.Pool, log *zap.SugaredLogger) Provider {
	return &pgProvider{dbPool: dbPool, log: log}
}

// EnsureSchema creates required tables if they do not already exist.
// Safe to call repeatedly (idempotent).
func EnsureSchema(ctx context.Context, dbPool *pgxpool.Pool) error {
	_, err := dbPool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS applications (
  id uuid PRIMARY KEY,
  application_id text UNIQUE NOT NULL,
  name text,
  created_at timestamptz NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS branding_configs (
  application_id uuid PRIMARY KEY REFERENCES applications(id) ON DELETE CASCADE,
  primary_color text,
  secondary_color text,
  accent_color text,
  background_color text,
  text_color text,
  font_family text,
  logo_url text,
  border_radius int,
  button_style text,
  custom_texts jsonb DEFAULT '{}'::jsonb,
  updated_at timestamptz NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS application_roles (
  id uuid PRIMARY KEY,
  application_id uuid NOT NULL REFERENCES applications(id) ON DELETE CASCADE,
  name text NOT NULL,
  display_name text NOT NULL,
  description text,
  is_default boolean NOT NULL DEFAULT false,
  UNIQUE(application_id, name)
);
-- Eligibility flag arrived later; rows read through to_jsonb so older
-- schemas without the column keep working.
ALTER TABLE application_roles ADD COLUMN IF NOT EXISTS available_for_registration boolean;
`)
	return err
}

// Execer is the part of *pgxpool.Pool the seed needs.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// SeedFromEnv ingests applications, branding and roles. Format is the same
// TENANT_SEED_JSON accepted by the memory provider. The first failing
// statement aborts the seed.
func SeedFromEnv(ctx context.Context, dbPool Execer, jsonSeed string) error {
	if jsonSeed == "" {
		return nil
	}
	var entries []SeedEntry
	if err := json.Unmarshal([]byte(jsonSeed), &entries); err != nil {
		return fmt.Errorf("seed json: %w", err)
	}
	for _, entry := range entries {
		if _, err := dbPool.Exec(ctx, `INSERT INTO applications(id,application_id,name) VALUES ($1,$2,$3)
		  ON CONFLICT (id) DO UPDATE SET application_id=EXCLUDED.application_id,name=EXCLUDED.name`,
			entry.ID, entry.ApplicationID, entry.Name); err != nil {
			return fmt.Errorf("seed application %s: %w", entry.ApplicationID, err)
		}
		if entry.Branding != nil || entry.CustomTexts != nil {
			b := Branding{}
			if entry.Branding != nil {
				b = *entry.Branding
			}
			texts := entry.CustomTexts
			if texts == nil {
				texts = map[string]string{}
			}
			if _, err := dbPool.Exec(ctx, `INSERT INTO branding_configs(application_id,primary_color,secondary_color,accent_color,background_color,text_color,font_family,logo_url,border_radius,button_style,custom_texts)
			  VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
			  ON CONFLICT (application_id) DO UPDATE SET primary_color=EXCLUDED.primary_color,secondary_color=EXCLUDED.secondary_color,accent_color=EXCLUDED.accent_color,
			  background_color=EXCLUDED.background_color,text_color=EXCLUDED.text_color,font_family=EXCLUDED.font_family,logo_url=EXCLUDED.logo_url,
			  border_radius=EXCLUDED.border_radius,button_style=EXCLUDED.button_style,custom_texts=EXCLUDED.custom_texts,updated_at=NOW()`,
				entry.ID, b.PrimaryColor, b.SecondaryColor, b.AccentColor, b.BackgroundColor, b.TextColor, b.FontFamily, b.LogoURL, b.BorderRadius, b.ButtonStyle, texts); err != nil {
				return fmt.Errorf("seed branding %s: %w", entry.ApplicationID, err)
			}
		}
		for _, r := range entry.Roles {
			if _, err := dbPool.Exec(ctx, `INSERT INTO application_roles(id,application_id,name,display_name,description,is_default,available_for_registration)
			  VALUES ($1,$2,$3,$4,$5,$6,$7) ON CONFLICT (application_id,name) DO NOTHING`,
				uuid.New(), entry.ID, r.Name, r.DisplayName, r.Description, r.IsDefault, r.AvailableForRegistration); err != nil {
				return fmt.Errorf("seed role %s/%s: %w", entry.ApplicationID, r.Name, err)
			}
		}
	}
	return nil
}

// ResolveApplication fetches an application by its external id.
func (p *pgProvider) ResolveApplication(ctx context.Context, applicationID string) (Application, error) {
	row := p.dbPool.QueryRow(ctx, `SELECT id::text, application_id, COALESCE(name,'') FROM applications WHERE application_id=$1`, applicationID)
	var a Application
	if err := row.Scan(&a.ID, &a.ApplicationID, &a.Name); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Application{}, ErrNotFound
		}
		return Application{}, fmt.Errorf("resolve application: %w", err)
	}
	return a, nil
}

// GetBranding fetches the stored branding row for an application.
func (p *pgProvider) GetBranding(ctx context.Context, internalID string) (Branding, error) {
	tx, err := db.BeginTxWithApplication(ctx, p.dbPool, internalID)
	if err != nil {
		return Branding{}, fmt.Errorf("branding tx: %w", err)
	}
	defer tx.Rollback(ctx)
	var b Branding
	err = tx.QueryRow(ctx, `SELECT COALESCE(primary_color,''),COALESCE(secondary_color,''),COALESCE(accent_color,''),COALESCE(background_color,''),
	  COALESCE(text_color,''),COALESCE(font_family,''),COALESCE(logo_url,''),COALESCE(border_radius,0),COALESCE(button_style,'')
	  FROM branding_configs WHERE application_id=$1`, internalID).
		Scan(&b.PrimaryColor, &b.SecondaryColor, &b.AccentColor, &b.BackgroundColor, &b.TextColor, &b.FontFamily, &b.LogoURL, &b.BorderRadius, &b.ButtonStyle)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Branding{}, ErrNotFound
		}
		return Branding{}, fmt.Errorf("branding: %w", err)
	}
	return b, nil
}

// GetCustomTexts returns the string-valued entries of branding_configs.custom_texts.
func (p *pgProvider) GetCustomTexts(ctx context.Context, internalID string) (map[string]string, error) {
	tx, err := db.BeginTxWithApplication(ctx, p.dbPool, internalID)
	if err != nil {
		return nil, fmt.Errorf("custom texts tx: %w", err)
	}
	defer tx.Rollback(ctx)
	var raw []byte
	if err := tx.QueryRow(ctx, `SELECT COALESCE(custom_texts,'{}'::jsonb) FROM branding_configs WHERE application_id=$1`, internalID).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("custom texts: %w", err)
	}
	return decodeTexts(raw)
}

// ListRoles returns all roles of an application ordered by display name.
func (p *pgProvider) ListRoles(ctx context.Context, internalID string) ([]Role, error) {
	tx, err := db.BeginTxWithApplication(ctx, p.dbPool, internalID)
	if err != nil {
		return nil, fmt.Errorf("roles tx: %w", err)
	}
	defer tx.Rollback(ctx)
	rows, err := tx.Query(ctx, `SELECT to_jsonb(r) FROM application_roles r WHERE r.application_id=$1 ORDER BY r.display_name`, internalID)
	if err != nil {
		return nil, fmt.Errorf("roles: %w", err)
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("roles scan: %w", err)
		}
		r, err := decodeRole(raw)
		if err != nil {
			p.log.Warnw("skipping malformed role row", "application", internalID, "err", err)
			continue
		}
		roles = append(roles, r)
	}
	return roles, rows.Err()
}

func decodeTexts(raw []byte) (map[string]string, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("custom texts decode: %w", err)
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out, nil
}

// decodeRole keeps the difference between a missing eligibility column and a
// present one: a present null counts as "not eligible".
func decodeRole(raw []byte) (Role, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Role{}, err
	}
	var r Role
	if err := json.Unmarshal(raw, &r); err != nil {
		return Role{}, err
	}
	if v, ok := fields["available_for_registration"]; ok {
		eligible := string(v) == "true"
		r.AvailableForRegistration = &eligible
	}
	return r, nil
}
