package flow

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authwidget/internal/access"
	"authwidget/internal/forms"
	"authwidget/internal/gateway"
	"authwidget/internal/ipecho"
	"authwidget/internal/renderconfig"
	"authwidget/internal/resolver"
	"authwidget/internal/tokens"
	"authwidget/pkg/logger"
)

type fakeAccess struct {
	verdict access.Verdict
	release chan struct{}
	calls   atomic.Int32
}

func (f *fakeAccess) Check(ctx context.Context, ip string) access.Verdict {
	f.calls.Add(1)
	if f.release != nil {
		<-f.release
	}
	return f.verdict
}

type fakeTenants struct {
	tc    resolver.TenantContext
	err   error
	calls atomic.Int32
}

func (f *fakeTenants) Resolve(ctx context.Context, externalID, apiKey string) (resolver.TenantContext, error) {
	f.calls.Add(1)
	if f.err != nil {
		return resolver.TenantContext{}, f.err
	}
	tc := f.tc
	tc.APIKey = apiKey
	return tc, nil
}

type fakeConfigs struct {
	roles []renderconfig.RoleOption
}

func (f *fakeConfigs) Load(ctx context.Context, internalID string, formType forms.Type) renderconfig.RenderConfig {
	cfg := renderconfig.Default()
	if formType == forms.Register {
		cfg.Roles = f.roles
	}
	return cfg
}

type fakeGateway struct {
	mu   sync.Mutex
	res  gateway.Result
	err  error
	reqs []gateway.Request
}

func (f *fakeGateway) Submit(ctx context.Context, req gateway.Request) (gateway.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	return f.res, f.err
}

func (f *fakeGateway) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}

type harness struct {
	access  *fakeAccess
	tenants *fakeTenants
	configs *fakeConfigs
	gw      *fakeGateway
	store   tokens.Store
	deps    Deps
}

func newHarness() *harness {
	h := &harness{
		access:  &fakeAccess{verdict: access.Verdict{IP: "198.51.100.7"}},
		tenants: &fakeTenants{tc: resolver.TenantContext{ExternalID: "acme", InternalID: "int-1", DisplayName: "Acme"}},
		configs: &fakeConfigs{},
		gw:      &fakeGateway{},
		store:   tokens.NewMemoryStore(),
	}
	h.deps = Deps{
		Tenants: h.tenants,
		Access:  h.access,
		Configs: h.configs,
		Gateway: h.gw,
		Echo:    ipecho.Static("203.0.113.9"),
		Tokens:  h.store,
		Log:     logger.Nop(),
	}
	return h
}

func (h *harness) ready(t *testing.T, p Params) *Session {
	t.Helper()
	if p.AppID == "" {
		p.AppID = "acme"
	}
	s := NewSession(h.deps, p)
	s.Start()
	require.True(t, s.Wait(context.Background()))
	require.Equal(t, Ready, s.View().State)
	return s
}

func TestStartReachesReady(t *testing.T) {
	h := newHarness()
	s := h.ready(t, Params{APIKey: "k", Form: forms.Login})

	v := s.View()
	assert.True(t, v.ShowForm)
	require.NotNil(t, v.Tenant)
	assert.Equal(t, "Acme", v.Tenant.DisplayName)
	require.NotNil(t, v.Verdict)
	assert.False(t, v.Verdict.Blocked)
	assert.Equal(t, "#3B82F6", v.Config.Branding.PrimaryColor)
}

func TestStartIsIdempotent(t *testing.T) {
	h := newHarness()
	s := NewSession(h.deps, Params{AppID: "acme", Form: forms.Login})
	s.Start()
	s.Start()
	require.True(t, s.Wait(context.Background()))
	assert.EqualValues(t, 1, h.access.calls.Load())
	assert.EqualValues(t, 1, h.tenants.calls.Load())
}

func TestMissingAppIDFailsWithoutLookups(t *testing.T) {
	h := newHarness()
	s := NewSession(h.deps, Params{Form: forms.Login})
	s.Start()
	require.True(t, s.Wait(context.Background()))

	v := s.View()
	assert.Equal(t, Failed, v.State)
	assert.Equal(t, FailureNoAppID, v.Failure)
	assert.Equal(t, MsgMissingAppID, v.FailureText)
	assert.False(t, v.ShowForm)
	assert.Zero(t, h.access.calls.Load())
	assert.Zero(t, h.tenants.calls.Load())
}

func TestUnknownApplicationFails(t *testing.T) {
	h := newHarness()
	h.tenants.err = resolver.ErrNotFound
	s := NewSession(h.deps, Params{AppID: "ghost", Form: forms.Login})
	s.Start()
	require.True(t, s.Wait(context.Background()))

	v := s.View()
	assert.Equal(t, Failed, v.State)
	assert.Equal(t, FailureNotFound, v.Failure)
	assert.Equal(t, MsgNotFound, v.FailureText)
	assert.False(t, v.ShowForm)
}

func TestBlockedShowsNoInputs(t *testing.T) {
	h := newHarness()
	h.access.verdict = access.Verdict{Blocked: true, Reason: "abuse", IP: "198.51.100.7"}
	s := NewSession(h.deps, Params{AppID: "acme", APIKey: "k", Form: forms.Register})
	s.Start()
	require.True(t, s.Wait(context.Background()))

	v := s.View()
	assert.Equal(t, Blocked, v.State)
	assert.False(t, v.ShowForm)
	assert.Equal(t, "abuse", v.Verdict.Reason)

	_, err := s.Submit(context.Background())
	assert.ErrorIs(t, err, ErrNotInteractive)
	assert.ErrorIs(t, s.Input(forms.Fields{Email: "a@b.c"}, ""), ErrNotInteractive)
	assert.Zero(t, h.gw.calls())
}

func TestBlockedWinsOverUnknownApplication(t *testing.T) {
	h := newHarness()
	h.access.verdict = access.Verdict{Blocked: true}
	h.tenants.err = resolver.ErrNotFound
	s := NewSession(h.deps, Params{AppID: "ghost", Form: forms.Login})
	s.Start()
	require.True(t, s.Wait(context.Background()))
	assert.Equal(t, Blocked, s.View().State)
}

func TestLateResultsAfterCloseAreDiscarded(t *testing.T) {
	h := newHarness()
	h.access.release = make(chan struct{})
	h.access.verdict = access.Verdict{Blocked: true}
	s := NewSession(h.deps, Params{AppID: "acme", Form: forms.Login})
	s.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.False(t, s.Wait(ctx))
	assert.Equal(t, Loading, s.View().State)

	s.Close()
	close(h.access.release)
	require.True(t, s.Wait(context.Background()))

	v := s.View()
	assert.Equal(t, Loading, v.State)
	assert.Nil(t, v.Verdict)
	assert.False(t, s.Alive())
	_, err := s.Submit(context.Background())
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestRegisterPasswordMismatchIsLocal(t *testing.T) {
	h := newHarness()
	s := h.ready(t, Params{APIKey: "k", Form: forms.Register})
	require.NoError(t, s.Input(forms.Fields{Name: "Ann", Email: "ann@x.io", Password: "secret1", ConfirmPassword: "secret2"}, ""))

	out, err := s.Submit(context.Background())
	assert.ErrorIs(t, err, ErrPasswordMismatch)
	assert.Equal(t, ErrorDisplayed, out.State)
	assert.Equal(t, Message{Kind: KindError, Text: MsgPasswordMismatch}, out.Message)
	assert.Zero(t, h.gw.calls())
}

func TestMissingAPIKeyIsLocal(t *testing.T) {
	h := newHarness()
	s := h.ready(t, Params{Form: forms.Login})
	require.NoError(t, s.Input(forms.Fields{Email: "ann@x.io", Password: "pw"}, ""))

	out, err := s.Submit(context.Background())
	assert.ErrorIs(t, err, ErrMissingAPIKey)
	assert.Equal(t, MsgMissingAPIKey, out.Message.Text)
	assert.Equal(t, ErrorDisplayed, s.View().State)
	assert.Zero(t, h.gw.calls())
}

func TestSubmitSendsTenantAndEchoedIP(t *testing.T) {
	h := newHarness()
	h.configs.roles = []renderconfig.RoleOption{{Name: "member", DisplayName: "Member", IsDefault: true}}
	h.gw.res = gateway.Success{}
	q := url.Values{"redirect_uri": {"https://app.example/cb"}}
	s := h.ready(t, Params{APIKey: "k", Form: forms.Register, Query: q})
	assert.Equal(t, "member", s.View().SelectedRole)
	require.NoError(t, s.Input(forms.Fields{Name: "Ann", Email: "ann@x.io", Password: "pw", ConfirmPassword: "pw"}, "member"))

	_, err := s.Submit(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, h.gw.calls())
	req := h.gw.reqs[0]
	assert.Equal(t, "acme", req.ApplicationID)
	assert.Equal(t, "k", req.APIKey)
	assert.Equal(t, "member", req.Role)
	assert.Equal(t, "203.0.113.9", req.ClientIP)
	assert.Equal(t, "https://app.example/cb", req.CallbackURL)
}

func TestSubmitPrefersRequestIP(t *testing.T) {
	h := newHarness()
	h.gw.res = gateway.Success{}
	s := h.ready(t, Params{APIKey: "k", Form: forms.Login, ClientIP: "192.0.2.1"})
	_, err := s.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.1", h.gw.reqs[0].ClientIP)
}

func TestDatabaseErrorIsOpaque(t *testing.T) {
	h := newHarness()
	h.gw.res = gateway.Failure{Code: "DATABASE_ERROR", Message: "relation users does not exist"}
	s := h.ready(t, Params{APIKey: "k", Form: forms.Login})

	out, err := s.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, MsgDatabaseError, out.Message.Text)
	assert.NotContains(t, out.Message.Text, "relation")
}

func TestLoginSuccessPersistsTokens(t *testing.T) {
	h := newHarness()
	h.gw.res = gateway.Success{Data: gateway.Data{AccessToken: "at", RefreshToken: "rt", User: json.RawMessage(`{"id":"u1"}`)}}
	s := h.ready(t, Params{APIKey: "k", Form: forms.Login, ClientID: "client-1"})

	out, err := s.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SuccessDisplayed, out.State)
	assert.Equal(t, MsgLoginSuccess, out.Message.Text)
	assert.Nil(t, out.Redirect)

	stored, err := h.store.Load(context.Background(), "client-1")
	require.NoError(t, err)
	assert.Equal(t, "at", stored[tokens.KeyAccessToken])
	assert.Equal(t, "rt", stored[tokens.KeyRefreshToken])
	assert.JSONEq(t, `{"id":"u1"}`, stored[tokens.KeyUser])
}

func TestSuccessWithCallbackRedirectsWithoutPersisting(t *testing.T) {
	h := newHarness()
	h.gw.res = gateway.Success{Data: gateway.Data{AccessToken: "at", CallbackURL: "https://app.example/done"}}
	s := h.ready(t, Params{APIKey: "k", Form: forms.Login, ClientID: "client-1"})

	out, err := s.Submit(context.Background())
	require.NoError(t, err)
	require.NotNil(t, out.Redirect)
	assert.Equal(t, "https://app.example/done", out.Redirect.URL)
	assert.Equal(t, 2000*time.Millisecond, out.Redirect.After)

	stored, err := h.store.Load(context.Background(), "client-1")
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestRetryDoesNotRecheckAccess(t *testing.T) {
	h := newHarness()
	h.gw.res = gateway.Failure{Message: "Invalid credentials"}
	s := h.ready(t, Params{APIKey: "k", Form: forms.Login})

	out, err := s.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Invalid credentials", out.Message.Text)

	require.NoError(t, s.Input(forms.Fields{Email: "ann@x.io", Password: "pw2"}, ""))
	h.gw.res = gateway.Success{}
	out, err = s.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SuccessDisplayed, out.State)

	assert.Equal(t, 2, h.gw.calls())
	assert.EqualValues(t, 1, h.access.calls.Load())
	assert.EqualValues(t, 1, h.tenants.calls.Load())
}

func TestResetSuccessIsTerminal(t *testing.T) {
	h := newHarness()
	h.gw.res = gateway.Success{}
	s := h.ready(t, Params{APIKey: "k", Form: forms.ResetPassword})

	out, err := s.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, MsgResetSuccess, out.Message.Text)

	v := s.View()
	assert.False(t, v.ShowForm)
	assert.Equal(t, "/login?api_key=k&app_id=acme", v.Links[forms.Login])
	assert.ErrorIs(t, s.Input(forms.Fields{Email: "x@y.z"}, ""), ErrNotInteractive)
}

func TestResetNeverComparesPasswords(t *testing.T) {
	h := newHarness()
	h.gw.res = gateway.Success{}
	s := h.ready(t, Params{APIKey: "k", Form: forms.ResetPassword})

	require.NoError(t, s.Input(forms.Fields{Email: "a@b.c", Password: "x", ConfirmPassword: "y"}, ""))
	out, err := s.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SuccessDisplayed, out.State)
	require.Equal(t, 1, h.gw.calls())

	raw, err := json.Marshal(h.gw.reqs[0].Payload())
	require.NoError(t, err)
	var sent map[string]any
	require.NoError(t, json.Unmarshal(raw, &sent))
	assert.Equal(t, "a@b.c", sent["email"])
	assert.NotContains(t, sent, "password")
	assert.NotContains(t, sent, "confirm_password")
}

func TestTransportErrorIsGeneric(t *testing.T) {
	h := newHarness()
	h.gw.err = errors.New("dial tcp: connection refused")
	s := h.ready(t, Params{APIKey: "k", Form: forms.Login})
	out, err := s.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, MsgGenericError, out.Message.Text)
	assert.Equal(t, ErrorDisplayed, out.State)
}

func TestViewHidesPasswords(t *testing.T) {
	h := newHarness()
	s := h.ready(t, Params{APIKey: "k", Form: forms.Register})
	require.NoError(t, s.Input(forms.Fields{Name: "Ann", Email: "ann@x.io", Password: "pw", ConfirmPassword: "pw"}, ""))
	v := s.View()
	assert.Equal(t, "ann@x.io", v.Fields.Email)
	assert.Empty(t, v.Fields.Password)
	assert.Empty(t, v.Fields.ConfirmPassword)
}
