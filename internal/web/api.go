package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"authwidget/internal/access"
	"authwidget/internal/flow"
	"authwidget/internal/forms"
	"authwidget/internal/renderconfig"
	"authwidget/internal/resolver"
	"authwidget/internal/tokens"
	"authwidget/pkg/middleware"
	"authwidget/pkg/openapi"
	"authwidget/pkg/problems"
)

type redirectJSON struct {
	URL     string `json:"url"`
	AfterMS int64  `json:"after_ms"`
}

type sessionJSON struct {
	ID           string                    `json:"id"`
	State        flow.State                `json:"state"`
	Form         forms.Type                `json:"form"`
	Tenant       *resolver.TenantContext   `json:"tenant,omitempty"`
	Verdict      *access.Verdict           `json:"access,omitempty"`
	Config       renderconfig.RenderConfig `json:"config"`
	Fields       *fieldsJSON               `json:"fields,omitempty"`
	SelectedRole string                    `json:"selected_role,omitempty"`
	Message      *flow.Message             `json:"message,omitempty"`
	Redirect     *redirectJSON             `json:"redirect,omitempty"`
	Error        string                    `json:"error,omitempty"`
	ShowForm     bool                      `json:"show_form"`
	Links        map[forms.Type]string     `json:"links"`
}

// fieldsJSON lists the inputs the form renders; passwords never echo back.
type fieldsJSON struct {
	Name  *string `json:"name,omitempty"`
	Email string  `json:"email"`
}

func toJSON(v flow.View) sessionJSON {
	out := sessionJSON{
		ID:           v.SessionID,
		State:        v.State,
		Form:         v.Form,
		Tenant:       v.Tenant,
		Verdict:      v.Verdict,
		Config:       v.Config,
		SelectedRole: v.SelectedRole,
		Message:      v.Message,
		Error:        v.FailureText,
		ShowForm:     v.ShowForm,
		Links:        v.Links,
	}
	if v.ShowForm {
		f := &fieldsJSON{Email: v.Fields.Email}
		if name, _, _ := v.Form.Requires(); name {
			f.Name = &v.Fields.Name
		}
		out.Fields = f
	}
	if v.Redirect != nil && safeRedirect(v.Redirect.URL) {
		out.Redirect = &redirectJSON{URL: v.Redirect.URL, AfterMS: v.Redirect.After.Milliseconds()}
	}
	return out
}

func writeJSON(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// apiStart opens a session for ?app_id=&api_key=&form= and answers with its
// view once loaded, or in the loading state after RenderWait.
func (s *Server) apiStart(w http.ResponseWriter, r *http.Request) {
	ft := forms.Parse(r.URL.Query().Get("form"))
	sess := s.session(r, "", ft)
	s.wait(r.Context(), sess)
	v := sess.View()
	if v.State == flow.Failed && v.Failure == flow.FailureNoAppID {
		s.reg.Remove(sess.ID())
		problems.Write(w, problems.New(http.StatusBadRequest, "missing-app-id", "Configuration error", v.FailureText))
		return
	}
	writeJSON(w, toJSON(v), http.StatusOK)
}

func (s *Server) apiSession(w http.ResponseWriter, r *http.Request) (*flow.Session, bool) {
	sess, ok := s.reg.Get(chi.URLParam(r, "id"))
	if !ok || sess.ClientID() != middleware.ClientFrom(r.Context()) {
		problems.Write(w, problems.New(http.StatusNotFound, "unknown-session", "Unknown session", "The session does not exist or has expired"))
		return nil, false
	}
	return sess, true
}

func (s *Server) apiGet(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.apiSession(w, r)
	if !ok {
		return
	}
	s.wait(r.Context(), sess)
	writeJSON(w, toJSON(sess.View()), http.StatusOK)
}

type submitBody struct {
	forms.Fields
	Role string `json:"role"`
}

func (s *Server) apiSubmit(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.apiSession(w, r)
	if !ok {
		return
	}
	var body submitBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&body); err != nil {
		problems.Write(w, problems.New(http.StatusBadRequest, "invalid-body", "Invalid body", "Expected a JSON object with the form fields"))
		return
	}
	if err := sess.Input(body.Fields, body.Role); err != nil {
		s.writeSessionError(w, err)
		return
	}
	if _, err := sess.Submit(r.Context()); err != nil {
		switch {
		case errors.Is(err, flow.ErrMissingAPIKey), errors.Is(err, flow.ErrPasswordMismatch):
			// shown in the view like any other rejected submission
		default:
			s.writeSessionError(w, err)
			return
		}
	}
	writeJSON(w, toJSON(sess.View()), http.StatusOK)
}

func (s *Server) writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, flow.ErrSessionClosed):
		problems.Write(w, problems.New(http.StatusGone, "session-closed", "Session closed", "Reload the form to start over"))
	case errors.Is(err, flow.ErrNotInteractive):
		problems.Write(w, problems.New(http.StatusConflict, "not-interactive", "Form not accepting input", "The form is loading, blocked, failed or already completed"))
	default:
		s.log.Errorw("session error", "err", err)
		problems.Write(w, problems.New(http.StatusInternalServerError, "internal", "Internal error", ""))
	}
}

type tokensJSON struct {
	AccessToken  string          `json:"auth_token"`
	RefreshToken string          `json:"refresh_token,omitempty"`
	User         json.RawMessage `json:"user_data,omitempty"`
}

// apiTokens hands the calling client the credentials its last successful
// sign-in stored.
func (s *Server) apiTokens(w http.ResponseWriter, r *http.Request) {
	client := middleware.ClientFrom(r.Context())
	stored, err := s.deps.Tokens.Load(r.Context(), client)
	if err != nil {
		s.log.Errorw("loading tokens failed", "err", err)
		problems.Write(w, problems.New(http.StatusServiceUnavailable, "token-store", "Token store unavailable", ""))
		return
	}
	if stored[tokens.KeyAccessToken] == "" {
		problems.Write(w, problems.New(http.StatusNotFound, "no-tokens", "No tokens", "Nothing was issued to this client"))
		return
	}
	out := tokensJSON{AccessToken: stored[tokens.KeyAccessToken], RefreshToken: stored[tokens.KeyRefreshToken]}
	if u := stored[tokens.KeyUser]; u != "" && u != "null" && json.Valid([]byte(u)) {
		out.User = json.RawMessage(u)
	}
	writeJSON(w, out, http.StatusOK)
}

func apiDoc() *openapi.Registry {
	reg := openapi.NewRegistry()
	tags := []string{"session"}
	problem := "Problem document (application/problem+json)"
	reg.Register(openapi.Operation{
		Method: http.MethodGet, Path: "/api/v1/session", Summary: "Open a form session", Tags: tags,
		Params: []openapi.Param{
			{Name: flow.ParamAppID, In: "query", Doc: "External application id; falls back to the service default"},
			{Name: flow.ParamAPIKey, In: "query", Doc: "Application API key used for submissions"},
			{Name: "form", In: "query", Doc: "login, register or reset-password"},
			{Name: flow.ParamCallbackURL, In: "query"},
			{Name: flow.ParamRedirectURI, In: "query"},
		},
		Responses: map[string]string{"200": "Session view", "400": problem},
	})
	reg.Register(openapi.Operation{
		Method: http.MethodGet, Path: "/api/v1/session/{id}", Summary: "Poll a form session", Tags: tags,
		Params:    []openapi.Param{{Name: "id", In: "path"}},
		Responses: map[string]string{"200": "Session view", "404": problem},
	})
	reg.Register(openapi.Operation{
		Method: http.MethodPost, Path: "/api/v1/session/{id}/submit", Summary: "Submit the form", Tags: tags,
		Params: []openapi.Param{{Name: "id", In: "path"}},
		RequestBody: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name": map[string]string{"type": "string"}, "email": map[string]string{"type": "string"},
				"password": map[string]string{"type": "string"}, "confirm_password": map[string]string{"type": "string"},
				"role": map[string]string{"type": "string"},
			},
		},
		Responses: map[string]string{"200": "Session view", "400": problem, "404": problem, "409": problem, "410": problem},
	})
	reg.Register(openapi.Operation{
		Method: http.MethodGet, Path: "/api/v1/tokens", Summary: "Read the tokens stored for this client", Tags: []string{"tokens"},
		Responses: map[string]string{"200": "auth_token, refresh_token and user_data", "404": problem, "503": problem},
	})
	return reg
}
