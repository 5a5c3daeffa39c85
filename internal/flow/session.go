// Package flow drives one embedded authentication form from first load to
// the final redirect.
package flow

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"authwidget/internal/access"
	"authwidget/internal/forms"
	"authwidget/internal/gateway"
	"authwidget/internal/ipecho"
	"authwidget/internal/renderconfig"
	"authwidget/internal/resolver"
	"authwidget/internal/tokens"
)

type TenantResolver interface {
	Resolve(ctx context.Context, externalID, apiKey string) (resolver.TenantContext, error)
}

type ConfigLoader interface {
	Load(ctx context.Context, internalID string, formType forms.Type) renderconfig.RenderConfig
}

// Deps are shared by every session of the process.
type Deps struct {
	Tenants     TenantResolver
	Access      access.Checker
	Configs     ConfigLoader
	Gateway     gateway.Submitter
	Echo        ipecho.Resolver
	Tokens      tokens.Store
	Metrics     *Metrics
	Log         *zap.SugaredLogger
	LoadTimeout time.Duration
}

// Params describe the page a session serves.
type Params struct {
	AppID    string
	APIKey   string
	Form     forms.Type
	Query    url.Values
	ClientIP string // empty: ask the echo service
	ClientID string // token store key
}

// Key identifies the page a client asked for; equal keys may share a session.
func (p Params) Key() string {
	return strings.Join([]string{p.ClientID, string(p.Form), p.AppID, p.APIKey, p.ClientIP, p.Query.Encode()}, "\x00")
}

type Session struct {
	id     string
	deps   Deps
	params Params

	startOnce sync.Once
	settled   chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
	alive     atomic.Bool

	mu           sync.Mutex
	state        State
	tenant       *resolver.TenantContext
	tenantErr    error
	verdict      *access.Verdict
	config       *renderconfig.RenderConfig
	fields       forms.Fields
	selectedRole string
	message      *Message
	redirect     *Redirect
}

func NewSession(deps Deps, p Params) *Session {
	if p.Query == nil {
		p.Query = url.Values{}
	}
	if deps.LoadTimeout <= 0 {
		deps.LoadTimeout = 15 * time.Second
	}
	if deps.Log == nil {
		deps.Log = zap.NewNop().Sugar()
	}
	s := &Session{
		id:      uuid.NewString(),
		deps:    deps,
		params:  p,
		settled: make(chan struct{}),
		state:   Init,
	}
	s.alive.Store(true)
	return s
}

func (s *Session) ID() string { return s.id }

// ClientID is the token store key the session was created for.
func (s *Session) ClientID() string { return s.params.ClientID }

// Start issues the access check and the tenant/render config loads
// concurrently and returns without waiting. Only the first call has effect.
func (s *Session) Start() {
	s.startOnce.Do(func() {
		s.mu.Lock()
		s.state = Loading
		s.mu.Unlock()

		if strings.TrimSpace(s.params.AppID) == "" {
			s.apply(func() {
				s.tenantErr = resolver.ErrMissingAppID
				s.state = Failed
			})
			close(s.settled)
			return
		}
		s.mu.Lock()
		s.ctx, s.cancel = context.WithTimeout(context.Background(), s.deps.LoadTimeout)
		s.mu.Unlock()
		if !s.Alive() {
			s.cancel()
		}
		go s.load()
	})
}

func (s *Session) load() {
	defer close(s.settled)
	defer s.cancel()
	log := s.deps.Log.With("session", s.id, "app_id", s.params.AppID, "form", s.params.Form)

	var g errgroup.Group
	g.Go(func() error {
		v := s.deps.Access.Check(s.ctx, s.params.ClientIP)
		s.apply(func() {
			s.verdict = &v
			if v.Blocked {
				s.state = Blocked
			}
		})
		s.deps.Metrics.verdict(v.Blocked)
		return nil
	})
	g.Go(func() error {
		tc, err := s.deps.Tenants.Resolve(s.ctx, s.params.AppID, s.params.APIKey)
		if err != nil {
			if errors.Is(err, resolver.ErrLookupFailed) {
				s.deps.Metrics.LookupFailed("tenant")
			}
			s.apply(func() { s.tenantErr = err })
			return nil
		}
		s.apply(func() { s.tenant = &tc })
		cfg := s.deps.Configs.Load(s.ctx, tc.InternalID, s.params.Form)
		s.apply(func() {
			s.config = &cfg
			if s.params.Form == forms.Register {
				s.selectedRole = renderconfig.DefaultRole(cfg.Roles)
			}
		})
		return nil
	})
	_ = g.Wait()

	s.apply(func() {
		switch {
		case s.verdict != nil && s.verdict.Blocked:
			s.state = Blocked
		case s.tenantErr != nil:
			s.state = Failed
		default:
			s.state = Ready
		}
		log.Debugw("session ready", "state", s.state)
	})
}

// apply runs fn under the session lock unless the session was closed.
func (s *Session) apply(fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.alive.Load() {
		return false
	}
	fn()
	return true
}

// Wait blocks until the start-up loads settled or ctx ends. It reports
// whether the loads settled.
func (s *Session) Wait(ctx context.Context) bool {
	select {
	case <-s.settled:
		return true
	case <-ctx.Done():
		return false
	}
}

// Close marks the session dead; late asynchronous results are discarded.
func (s *Session) Close() {
	if !s.alive.CompareAndSwap(true, false) {
		return
	}
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (s *Session) Alive() bool { return s.alive.Load() }

// Untouched reports whether nothing was submitted or entered yet, so the
// session can serve a repeated load of the same page.
func (s *Session) Untouched() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.alive.Load() || s.message != nil || s.fields != (forms.Fields{}) {
		return false
	}
	switch s.state {
	case Init, Loading, Ready, Blocked, Failed:
		return true
	}
	return false
}

// interactive reports whether fields may change and the form may be submitted.
// Callers hold s.mu.
func (s *Session) interactive() bool {
	switch s.state {
	case Ready, ErrorDisplayed:
		return true
	case SuccessDisplayed:
		return s.params.Form != forms.ResetPassword
	default:
		return false
	}
}

// Input replaces the field values and the selected role.
func (s *Session) Input(f forms.Fields, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.alive.Load() {
		return ErrSessionClosed
	}
	if !s.interactive() {
		return ErrNotInteractive
	}
	s.fields = f
	if s.params.Form == forms.Register {
		s.selectedRole = role
	}
	s.state = Ready
	return nil
}

// Outcome is what one submission left on screen.
type Outcome struct {
	State    State
	Message  Message
	Redirect *Redirect
}

// Submit sends the current fields to the gateway and classifies the answer.
// Local failures (missing API key, password mismatch) never reach the network
// and are returned both as outcome and as error.
func (s *Session) Submit(ctx context.Context) (Outcome, error) {
	s.mu.Lock()
	if !s.alive.Load() {
		s.mu.Unlock()
		return Outcome{}, ErrSessionClosed
	}
	if !s.interactive() || s.tenant == nil {
		s.mu.Unlock()
		return Outcome{}, ErrNotInteractive
	}
	s.state = Submitting
	s.message = nil
	s.redirect = nil
	tenant := *s.tenant
	fields := s.fields
	role := s.selectedRole
	s.mu.Unlock()

	form := s.params.Form
	log := s.deps.Log.With("session", s.id, "app_id", tenant.ExternalID, "form", form)

	if !tenant.HasAPIKey() {
		log.Warnw("submission without api key")
		return s.finish(form, failed(MsgMissingAPIKey, "config_error")), ErrMissingAPIKey
	}
	if form == forms.Register && fields.Password != fields.ConfirmPassword {
		return s.finish(form, failed(MsgPasswordMismatch, "password_mismatch")), ErrPasswordMismatch
	}

	ip := s.params.ClientIP
	if ip == "" {
		ip = s.deps.Echo.ClientIP(ctx)
	}
	res, err := s.deps.Gateway.Submit(ctx, gateway.Request{
		Form:          form,
		Fields:        fields,
		ApplicationID: tenant.ExternalID,
		APIKey:        tenant.APIKey,
		CallbackURL:   CallbackFromQuery(s.params.Query),
		Role:          role,
		ClientIP:      ip,
	})
	if err != nil {
		log.Errorw("gateway submission failed", "err", err)
	}
	out := classify(form, res, err)
	if out.persist != nil && s.Alive() {
		if s.params.ClientID == "" {
			log.Warnw("tokens issued but no client id to store them under")
		} else if perr := s.deps.Tokens.Save(ctx, s.params.ClientID, *out.persist); perr != nil {
			log.Errorw("persisting tokens failed", "err", perr)
		}
	}
	o := s.finish(form, out)
	if !s.Alive() {
		return o, ErrSessionClosed
	}
	return o, nil
}

func (s *Session) finish(form forms.Type, out outcome) Outcome {
	msg := out.message
	s.apply(func() {
		s.state = out.state
		s.message = &msg
		s.redirect = out.redirect
	})
	s.deps.Metrics.submission(string(form), out.label)
	return Outcome{State: out.state, Message: msg, Redirect: out.redirect}
}

// NavURL links to another form of the same tenant.
func (s *Session) NavURL(form forms.Type) string {
	s.mu.Lock()
	t := resolver.TenantContext{ExternalID: s.params.AppID, APIKey: s.params.APIKey}
	if s.tenant != nil {
		t = *s.tenant
	}
	s.mu.Unlock()
	return BuildURL(form.Path(), t, s.params.Query)
}
