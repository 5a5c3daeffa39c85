// Package web serves the widget pages and its JSON API.
package web

import (
	"bytes"
	"context"
	"net"
	"net/netip"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"authwidget/internal/flow"
	"authwidget/internal/forms"
	"authwidget/pkg/middleware"
)

const paramSession = "session_id"

type Options struct {
	DefaultAppID string
	// UseEchoIP leaves the client address to the echo service instead of the request.
	UseEchoIP bool
	// RenderWait bounds how long a page request waits for the start-up loads
	// before answering with the loading view.
	RenderWait       time.Duration
	SecureCookie     bool
	DebugDoubleWrite bool
	// TrustedProxies may set the client address through forwarding headers.
	// Without any, the socket peer is the client.
	TrustedProxies []netip.Prefix
}

type Server struct {
	opts     Options
	deps     flow.Deps
	reg      *flow.Registry
	log      *zap.SugaredLogger
	gatherer prometheus.Gatherer
}

func New(opts Options, deps flow.Deps, reg *flow.Registry, log *zap.SugaredLogger, gatherer prometheus.Gatherer) *Server {
	if opts.RenderWait <= 0 {
		opts.RenderWait = 3 * time.Second
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{opts: opts, deps: deps, reg: reg, log: log, gatherer: gatherer}
}

// Handler builds the HTTP handler with routes and middleware.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(),
		middleware.TrustedRealIP(s.opts.TrustedProxies),
		middleware.Tracing(),
		middleware.AccessLog(s.log),
		middleware.Recover(s.log),
		middleware.DebugWriteHeader(s.opts.DebugDoubleWrite, s.log),
		middleware.WithClient(s.opts.SecureCookie),
	)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	for _, ft := range []forms.Type{forms.Login, forms.Register, forms.ResetPassword} {
		ft := ft
		r.Get(ft.Path(), func(w http.ResponseWriter, r *http.Request) { s.getForm(w, r, ft) })
		r.Post(ft.Path(), func(w http.ResponseWriter, r *http.Request) { s.postForm(w, r, ft) })
	}

	r.Route("/api/v1/session", func(ar chi.Router) {
		ar.Get("/", s.apiStart)
		ar.Get("/{id}", s.apiGet)
		ar.Post("/{id}/submit", s.apiSubmit)
	})
	r.Get("/api/v1/tokens", s.apiTokens)
	r.Get("/api/v1/openapi.json", apiDoc().ServeHandler("authwidget", "1.0.0"))

	r.NotFound(s.toLogin)
	return r
}

// toLogin sends unknown paths to the login form, keeping the query.
func (s *Server) toLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.NotFound(w, r)
		return
	}
	target := forms.FromPath(r.URL.Path).Path()
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// params turns a request into session parameters.
func (s *Server) params(r *http.Request, ft forms.Type) flow.Params {
	q := r.URL.Query()
	q.Del(paramSession)
	appID := strings.TrimSpace(q.Get(flow.ParamAppID))
	if appID == "" {
		appID = s.opts.DefaultAppID
	}
	p := flow.Params{
		AppID:    appID,
		APIKey:   q.Get(flow.ParamAPIKey),
		Form:     ft,
		Query:    q,
		ClientID: middleware.ClientFrom(r.Context()),
	}
	if !s.opts.UseEchoIP {
		p.ClientIP = requestIP(r)
	}
	return p
}

// requestIP is the client address after TrustedRealIP; "" lets the echo service decide.
func requestIP(r *http.Request) string {
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if ip := net.ParseIP(strings.TrimSpace(host)); ip != nil {
		return ip.String()
	}
	return ""
}

// session attaches to the session named in the request or starts a new one.
// A session is only reused by the client that created it. Without an id, a
// repeated load of the same page by the same client shares the untouched
// session it opened before instead of querying the reputation service again.
func (s *Server) session(r *http.Request, id string, ft forms.Type) *flow.Session {
	if id != "" {
		if sess, ok := s.reg.Get(id); ok && sess.ClientID() == middleware.ClientFrom(r.Context()) {
			if sess.View().Form == ft {
				return sess
			}
		}
	}
	p := s.params(r, ft)
	if id == "" && p.ClientID != "" {
		if sess, ok := s.reg.Find(p); ok && sess.Untouched() {
			return sess
		}
	}
	sess := flow.NewSession(s.deps, p)
	s.reg.Add(sess)
	sess.Start()
	return sess
}

func (s *Server) wait(ctx context.Context, sess *flow.Session) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.RenderWait)
	defer cancel()
	sess.Wait(ctx)
}

// action is the form's own URL without the session id.
func action(r *http.Request) string {
	q := r.URL.Query()
	q.Del(paramSession)
	if len(q) == 0 {
		return r.URL.Path
	}
	return r.URL.Path + "?" + q.Encode()
}

func (s *Server) getForm(w http.ResponseWriter, r *http.Request, ft forms.Type) {
	sess := s.session(r, r.URL.Query().Get(paramSession), ft)
	s.wait(r.Context(), sess)
	s.writePage(w, r, sess.View())
}

func (s *Server) postForm(w http.ResponseWriter, r *http.Request, ft forms.Type) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	id := r.PostForm.Get(paramSession)
	sess, ok := s.reg.Get(id)
	if !ok || sess.ClientID() != middleware.ClientFrom(r.Context()) {
		// expired or foreign: start over on a fresh page
		http.Redirect(w, r, action(r), http.StatusSeeOther)
		return
	}
	fields := forms.Fields{
		Name:            strings.TrimSpace(r.PostForm.Get("name")),
		Email:           strings.TrimSpace(r.PostForm.Get("email")),
		Password:        r.PostForm.Get("password"),
		ConfirmPassword: r.PostForm.Get("confirm_password"),
	}
	if err := sess.Input(fields, r.PostForm.Get("role")); err == nil {
		if _, err := sess.Submit(r.Context()); err != nil {
			s.log.Debugw("submission ended locally", "session", sess.ID(), "err", err)
		}
	}
	s.writePage(w, r, sess.View())
}

func (s *Server) writePage(w http.ResponseWriter, r *http.Request, v flow.View) {
	var buf bytes.Buffer
	if err := render(&buf, newPage(v, action(r))); err != nil {
		s.log.Errorw("render failed", "err", err, "session", v.SessionID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(buf.Bytes())
}
