package flow

import (
	"errors"

	"authwidget/internal/access"
	"authwidget/internal/forms"
	"authwidget/internal/renderconfig"
	"authwidget/internal/resolver"
)

// FailureKind tells the failed page which explanation to show.
type FailureKind string

const (
	FailureNone     FailureKind = ""
	FailureNoAppID  FailureKind = "missing_app_id"
	FailureNotFound FailureKind = "not_found"
	FailureLookup   FailureKind = "lookup_failed"
)

// View is a consistent snapshot of a session for rendering.
type View struct {
	SessionID    string
	State        State
	Form         forms.Type
	Tenant       *resolver.TenantContext
	Verdict      *access.Verdict
	Config       renderconfig.RenderConfig
	Fields       forms.Fields
	SelectedRole string
	Message      *Message
	Redirect     *Redirect
	Failure      FailureKind
	FailureText  string
	ShowForm     bool
	Links        map[forms.Type]string
}

func (s *Session) View() View {
	s.mu.Lock()
	v := View{
		SessionID:    s.id,
		State:        s.state,
		Form:         s.params.Form,
		Fields:       s.fields,
		SelectedRole: s.selectedRole,
		Config:       renderconfig.Default(),
	}
	if s.tenant != nil {
		t := *s.tenant
		v.Tenant = &t
	}
	if s.verdict != nil {
		vd := *s.verdict
		v.Verdict = &vd
	}
	if s.config != nil {
		v.Config = *s.config
	}
	if s.message != nil {
		m := *s.message
		v.Message = &m
	}
	if s.redirect != nil {
		r := *s.redirect
		v.Redirect = &r
	}
	if s.state == Failed {
		v.Failure, v.FailureText = failureOf(s.tenantErr)
	}
	s.mu.Unlock()

	switch v.State {
	case Blocked, Failed, Loading, Init:
		v.ShowForm = false
	case SuccessDisplayed:
		v.ShowForm = v.Form != forms.ResetPassword
	default:
		v.ShowForm = true
	}
	v.Fields.Password, v.Fields.ConfirmPassword = "", ""
	v.Links = map[forms.Type]string{
		forms.Login:         s.NavURL(forms.Login),
		forms.Register:      s.NavURL(forms.Register),
		forms.ResetPassword: s.NavURL(forms.ResetPassword),
	}
	return v
}

func failureOf(err error) (FailureKind, string) {
	switch {
	case err == nil:
		return FailureNone, ""
	case errors.Is(err, resolver.ErrMissingAppID):
		return FailureNoAppID, MsgMissingAppID
	case errors.Is(err, resolver.ErrLookupFailed):
		return FailureLookup, MsgNotFound
	case resolver.IsNotFound(err):
		return FailureNotFound, MsgNotFound
	default:
		return FailureLookup, MsgNotFound
	}
}
