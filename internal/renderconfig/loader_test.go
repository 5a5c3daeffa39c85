package renderconfig

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authwidget/internal/forms"
	"authwidget/pkg/logger"
	"authwidget/pkg/tenants"
)

type fakeProvider struct {
	tenants.Provider
	branding    tenants.Branding
	brandingErr error
	texts       map[string]string
	textsErr    error
	roles       []tenants.Role
	rolesErr    error

	mu        sync.Mutex
	roleCalls int
}

func (f *fakeProvider) GetBranding(context.Context, string) (tenants.Branding, error) {
	return f.branding, f.brandingErr
}

func (f *fakeProvider) GetCustomTexts(context.Context, string) (map[string]string, error) {
	return f.texts, f.textsErr
}

func (f *fakeProvider) ListRoles(context.Context, string) ([]tenants.Role, error) {
	f.mu.Lock()
	f.roleCalls++
	f.mu.Unlock()
	return f.roles, f.rolesErr
}

func boolPtr(b bool) *bool { return &b }

func TestLoadWithoutBrandingRecordIsDefault(t *testing.T) {
	prov := &fakeProvider{brandingErr: tenants.ErrNotFound, textsErr: tenants.ErrNotFound}
	got := NewLoader(prov, logger.Nop()).Load(context.Background(), "app", forms.Login)

	want := RenderConfig{
		Branding: Branding{
			PrimaryColor: "#3B82F6", SecondaryColor: "#1E40AF", AccentColor: "#F59E0B",
			BackgroundColor: "#FFFFFF", TextColor: "#1F2937", FontFamily: "Inter",
			LogoURL: "", BorderRadius: 8, ButtonStyle: "rounded",
		},
		CustomTexts: map[string]string{},
		Roles:       []RoleOption{},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("render config mismatch (-want +got):\n%s", diff)
	}
	assert.Zero(t, prov.roleCalls)
}

func TestLoadPartialBranding(t *testing.T) {
	prov := &fakeProvider{
		branding: tenants.Branding{PrimaryColor: "#111111", LogoURL: "https://cdn/logo.png", ButtonStyle: "square"},
		texts:    map[string]string{"login_title": "<b>Hello</b> & welcome", "empty": "<script></script>"},
	}
	got := NewLoader(prov, logger.Nop()).Load(context.Background(), "app", forms.Login)

	want := Defaults()
	want.PrimaryColor = "#111111"
	want.LogoURL = "https://cdn/logo.png"
	want.ButtonStyle = "square"
	if diff := cmp.Diff(want, got.Branding); diff != "" {
		t.Fatalf("branding mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, map[string]string{"login_title": "Hello & welcome"}, got.CustomTexts)
	assert.Equal(t, 4, got.Branding.ButtonRadius())
}

func TestLoadFailuresAreIndependent(t *testing.T) {
	var failed []string
	var mu sync.Mutex
	hook := WithFailureHook(func(l string) {
		mu.Lock()
		failed = append(failed, l)
		mu.Unlock()
	})

	prov := &fakeProvider{
		branding: tenants.Branding{AccentColor: "#ABCDEF"},
		textsErr: errors.New("timeout"),
		rolesErr: errors.New("relation does not exist"),
	}
	got := NewLoader(prov, logger.Nop(), hook).Load(context.Background(), "app", forms.Register)
	assert.Equal(t, "#ABCDEF", got.Branding.AccentColor)
	assert.Empty(t, got.CustomTexts)
	assert.Empty(t, got.Roles)
	assert.ElementsMatch(t, []string{"custom_texts", "roles"}, failed)

	prov = &fakeProvider{
		brandingErr: errors.New("timeout"),
		texts:       map[string]string{"register_title": "Join"},
		roles:       []tenants.Role{{Name: "user", DisplayName: "User", IsDefault: true}},
	}
	got = NewLoader(prov, logger.Nop()).Load(context.Background(), "app", forms.Register)
	assert.Equal(t, Defaults(), got.Branding)
	assert.Equal(t, "Join", got.Text("register_title"))
	require.Len(t, got.Roles, 1)
	assert.Equal(t, "user", DefaultRole(got.Roles))
}

func TestLoadRolesOnlyForRegister(t *testing.T) {
	for _, ft := range []forms.Type{forms.Login, forms.ResetPassword} {
		prov := &fakeProvider{roles: []tenants.Role{{Name: "user"}}}
		got := NewLoader(prov, logger.Nop()).Load(context.Background(), "app", ft)
		assert.Empty(t, got.Roles)
		assert.Zero(t, prov.roleCalls, ft)
	}
}

func TestLoadWithoutInternalID(t *testing.T) {
	prov := &fakeProvider{}
	got := NewLoader(prov, logger.Nop()).Load(context.Background(), "", forms.Register)
	assert.Equal(t, Default(), got)
	assert.Zero(t, prov.roleCalls)
}

func TestFilterRolesWithoutEligibilityFlag(t *testing.T) {
	roles := []tenants.Role{
		{Name: "admin", DisplayName: "Admin"},
		{Name: "admin", DisplayName: "Admin (default)", IsDefault: true},
		{Name: "editor", DisplayName: "Editor"},
		{Name: "Admin", DisplayName: "Capitalized"},
	}
	got := FilterRoles(roles)
	names := []string{}
	for _, r := range got {
		names = append(names, r.DisplayName)
	}
	assert.Equal(t, []string{"Admin (default)", "Editor", "Capitalized"}, names)
}

func TestFilterRolesHonorsEligibilityFlag(t *testing.T) {
	roles := []tenants.Role{
		{Name: "admin", AvailableForRegistration: boolPtr(true)},
		{Name: "user", IsDefault: true, AvailableForRegistration: boolPtr(false)},
		{Name: "guest", AvailableForRegistration: boolPtr(true)},
	}
	got := FilterRoles(roles)
	require.Len(t, got, 2)
	assert.Equal(t, "admin", got[0].Name)
	assert.Equal(t, "guest", got[1].Name)
	assert.Equal(t, "", DefaultRole(got))
}

func TestText(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "Sign in", cfg.Text("login_title"))
	assert.Equal(t, "unknown_key", cfg.Text("unknown_key"))
	cfg.CustomTexts["login_title"] = "Log in to Acme"
	assert.Equal(t, "Log in to Acme", cfg.Text("login_title"))
}

func TestSplitLink(t *testing.T) {
	lead, link := SplitLink("Don't have an account? Sign up here", "Sign up")
	assert.Equal(t, "Don't have an account? ", lead)
	assert.Equal(t, "Sign up here", link)

	lead, link = SplitLink("Create one", "Sign up")
	assert.Equal(t, "Create one ", lead)
	assert.Equal(t, "Sign up", link)
}

func TestMergeBrandingZeroRadius(t *testing.T) {
	assert.Equal(t, 8, MergeBranding(tenants.Branding{BorderRadius: 0}).BorderRadius)
	assert.Equal(t, 16, MergeBranding(tenants.Branding{BorderRadius: 16}).BorderRadius)
}

func TestMergeBrandingKeepsPlainCSSOnly(t *testing.T) {
	b := MergeBranding(tenants.Branding{
		PrimaryColor:    "rgb(59,130,246)",
		SecondaryColor:  "hsla(220, 90%, 40%, 0.8)",
		AccentColor:     "red;}</style><script>",
		BackgroundColor: "url(javascript:x)",
		TextColor:       " #111 ",
		FontFamily:      "'Open Sans', sans-serif",
	})
	assert.Equal(t, "rgb(59,130,246)", b.PrimaryColor)
	assert.Equal(t, "hsla(220, 90%, 40%, 0.8)", b.SecondaryColor)
	assert.Equal(t, Defaults().AccentColor, b.AccentColor)
	assert.Equal(t, Defaults().BackgroundColor, b.BackgroundColor)
	assert.Equal(t, "#111", b.TextColor)
	assert.Equal(t, "'Open Sans', sans-serif", b.FontFamily)

	assert.Equal(t, "Inter", MergeBranding(tenants.Branding{FontFamily: "'Open Sans, serif"}).FontFamily)
	assert.Equal(t, "Inter", MergeBranding(tenants.Branding{FontFamily: "x; background: red"}).FontFamily)
}
