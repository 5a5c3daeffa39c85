// Package renderconfig assembles the per-tenant branding, texts and
// selectable roles a form is rendered with.
package renderconfig

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"authwidget/internal/forms"
	"authwidget/pkg/tenants"
)

// Branding is always fully populated; see Defaults.
type Branding struct {
	PrimaryColor    string `json:"primary_color"`
	SecondaryColor  string `json:"secondary_color"`
	AccentColor     string `json:"accent_color"`
	BackgroundColor string `json:"background_color"`
	TextColor       string `json:"text_color"`
	FontFamily      string `json:"font_family"`
	LogoURL         string `json:"logo_url"`
	BorderRadius    int    `json:"border_radius"`
	ButtonStyle     string `json:"button_style"`
}

type RenderConfig struct {
	Branding    Branding          `json:"branding"`
	CustomTexts map[string]string `json:"custom_texts"`
	Roles       []RoleOption      `json:"roles"`
}

// Defaults is the branding used for every field the tenant leaves unset.
func Defaults() Branding {
	return Branding{
		PrimaryColor:    "#3B82F6",
		SecondaryColor:  "#1E40AF",
		AccentColor:     "#F59E0B",
		BackgroundColor: "#FFFFFF",
		TextColor:       "#1F2937",
		FontFamily:      "Inter",
		LogoURL:         "",
		BorderRadius:    8,
		ButtonStyle:     "rounded",
	}
}

// Default is the configuration of a tenant with no stored customization.
func Default() RenderConfig {
	return RenderConfig{Branding: Defaults(), CustomTexts: map[string]string{}, Roles: []RoleOption{}}
}

var (
	cssColor = regexp.MustCompile(`^(#[0-9A-Fa-f]{3,8}|[A-Za-z]{3,20}|(rgb|rgba|hsl|hsla)\(\s*[0-9.%]+(\s*[,/ ]\s*[0-9.%]+){2,3}\s*\))$`)
	cssFont  = regexp.MustCompile(`^[A-Za-z0-9 ,'"_-]{1,120}$`)
)

// SafeColor reports whether v is a hex, named, rgb(a) or hsl(a) color.
func SafeColor(v string) bool { return cssColor.MatchString(v) }

// SafeFontFamily reports whether v is a plain font list with balanced quotes.
func SafeFontFamily(v string) bool {
	return cssFont.MatchString(v) && strings.Count(v, "'")%2 == 0 && strings.Count(v, `"`)%2 == 0
}

// MergeBranding fills every empty (or zero radius) field of stored from
// Defaults. Colors and fonts that are not plain CSS values fall back too.
func MergeBranding(stored tenants.Branding) Branding {
	b := Defaults()
	pick := func(dst *string, v string, ok func(string) bool) {
		v = strings.TrimSpace(v)
		if v != "" && (ok == nil || ok(v)) {
			*dst = v
		}
	}
	pick(&b.PrimaryColor, stored.PrimaryColor, SafeColor)
	pick(&b.SecondaryColor, stored.SecondaryColor, SafeColor)
	pick(&b.AccentColor, stored.AccentColor, SafeColor)
	pick(&b.BackgroundColor, stored.BackgroundColor, SafeColor)
	pick(&b.TextColor, stored.TextColor, SafeColor)
	pick(&b.FontFamily, stored.FontFamily, SafeFontFamily)
	pick(&b.LogoURL, stored.LogoURL, nil)
	pick(&b.ButtonStyle, stored.ButtonStyle, nil)
	if stored.BorderRadius != 0 {
		b.BorderRadius = stored.BorderRadius
	}
	return b
}

// ButtonRadius is the corner radius applied to the submit button.
func (b Branding) ButtonRadius() int {
	if b.ButtonStyle == "rounded" {
		return b.BorderRadius
	}
	return 4
}

type Option func(*Loader)

// WithFailureHook is called with "branding", "custom_texts" or "roles" for
// every lookup that degraded to defaults.
func WithFailureHook(fn func(lookup string)) Option {
	return func(l *Loader) { l.onFailure = fn }
}

type Loader struct {
	prov      tenants.Provider
	log       *zap.SugaredLogger
	onFailure func(string)
}

func NewLoader(prov tenants.Provider, log *zap.SugaredLogger, opts ...Option) *Loader {
	l := &Loader{prov: prov, log: log, onFailure: func(string) {}}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Load never fails: each lookup that errors degrades to its defaults without
// affecting the others. Roles are only looked up for registration forms.
func (l *Loader) Load(ctx context.Context, internalID string, formType forms.Type) RenderConfig {
	cfg := Default()
	if internalID == "" {
		return cfg
	}

	var g errgroup.Group
	g.Go(func() error {
		stored, err := l.prov.GetBranding(ctx, internalID)
		if err != nil {
			l.degraded("branding", internalID, err)
			return nil
		}
		cfg.Branding = MergeBranding(stored)
		return nil
	})
	g.Go(func() error {
		texts, err := l.prov.GetCustomTexts(ctx, internalID)
		if err != nil {
			l.degraded("custom_texts", internalID, err)
			return nil
		}
		clean := make(map[string]string, len(texts))
		for k, v := range texts {
			if s := sanitizeText(v); s != "" {
				clean[k] = s
			}
		}
		cfg.CustomTexts = clean
		return nil
	})
	if formType == forms.Register {
		g.Go(func() error {
			roles, err := l.prov.ListRoles(ctx, internalID)
			if err != nil {
				l.degraded("roles", internalID, err)
				return nil
			}
			cfg.Roles = FilterRoles(roles)
			return nil
		})
	}
	_ = g.Wait()
	return cfg
}

func (l *Loader) degraded(lookup, internalID string, err error) {
	if errors.Is(err, tenants.ErrNotFound) {
		l.log.Debugw("no stored "+lookup+", using defaults", "application", internalID)
		return
	}
	l.log.Warnw(lookup+" lookup failed, using defaults", "application", internalID, "err", err)
	l.onFailure(lookup)
}
