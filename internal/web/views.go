package web

import (
	"embed"
	"fmt"
	"html"
	"html/template"
	"io"
	"net/url"
	"strings"
	"time"

	"authwidget/internal/flow"
	"authwidget/internal/forms"
	"authwidget/internal/renderconfig"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// page is the template model of one rendered widget.
type page struct {
	flow.View
	Action         string
	RefreshURL     string
	RefreshSeconds int
}

func (p page) prefix() string {
	switch p.Form {
	case forms.Register:
		return "register"
	case forms.ResetPassword:
		return "reset"
	default:
		return "login"
	}
}

// T looks up a text of the current form type, e.g. "title" -> "login_title".
func (p page) T(key string) string { return p.Config.Text(p.prefix() + "_" + key) }

func (p page) Title() string {
	switch p.State {
	case flow.Ready, flow.Submitting, flow.SuccessDisplayed, flow.ErrorDisplayed:
		return p.T("title")
	}
	return p.Config.Text("auth_title")
}

func (p page) Initial() string {
	if p.Tenant == nil {
		return "A"
	}
	return p.Tenant.Initial()
}

// RefreshAttr is the content attribute of the meta refresh, or "".
// RefreshURL is always one we built or one safeRedirect accepted.
func (p page) RefreshAttr() template.HTMLAttr {
	if p.RefreshURL == "" {
		return ""
	}
	return template.HTMLAttr(fmt.Sprintf(`content="%d;url=%s"`, p.RefreshSeconds, html.EscapeString(p.RefreshURL)))
}

func (p page) ButtonRadius() int { return p.Config.Branding.ButtonRadius() }

// brandCSS holds branding values cleared for verbatim use in the style block.
type brandCSS struct {
	Primary, Secondary, Accent, Background, Text, Font template.CSS
}

// Brand re-checks every value and substitutes the default for any that is
// not a plain CSS color or font list.
func (p page) Brand() brandCSS {
	b, def := p.Config.Branding, renderconfig.Defaults()
	color := func(v, fallback string) template.CSS {
		if renderconfig.SafeColor(v) {
			return template.CSS(v)
		}
		return template.CSS(fallback)
	}
	font := template.CSS(def.FontFamily)
	if renderconfig.SafeFontFamily(b.FontFamily) {
		font = template.CSS(b.FontFamily)
	}
	return brandCSS{
		Primary:    color(b.PrimaryColor, def.PrimaryColor),
		Secondary:  color(b.SecondaryColor, def.SecondaryColor),
		Accent:     color(b.AccentColor, def.AccentColor),
		Background: color(b.BackgroundColor, def.BackgroundColor),
		Text:       color(b.TextColor, def.TextColor),
		Font:       font,
	}
}

func (p page) NeedsName() bool     { n, _, _ := p.Form.Requires(); return n }
func (p page) NeedsPassword() bool { _, pw, _ := p.Form.Requires(); return pw }
func (p page) NeedsConfirm() bool  { _, _, c := p.Form.Requires(); return c }

type navLink struct {
	Lead  string
	Label string
	URL   string
}

func (p page) NavLinks() []navLink {
	link := func(key, fallback string, to forms.Type) navLink {
		lead, label := renderconfig.SplitLink(p.Config.Text(key), fallback)
		return navLink{Lead: lead, Label: label, URL: p.Links[to]}
	}
	switch p.Form {
	case forms.Register:
		return []navLink{link("register_login_link_text", "Sign in", forms.Login)}
	case forms.ResetPassword:
		if p.State == flow.SuccessDisplayed {
			return []navLink{{Label: p.Config.Text("reset_back_to_login_text"), URL: p.Links[forms.Login]}}
		}
		return []navLink{link("reset_login_link_text", "Sign in", forms.Login)}
	default:
		return []navLink{
			{Label: p.Config.Text("login_forgot_password_text"), URL: p.Links[forms.ResetPassword]},
			link("login_register_link_text", "Sign up here", forms.Register),
		}
	}
}

// loadingRefresh is how long a loading page waits before polling again.
const loadingRefresh = 1

func newPage(v flow.View, action string) page {
	p := page{View: v, Action: action}
	switch {
	case v.State == flow.Loading || v.State == flow.Init:
		p.RefreshURL = withSession(action, v.SessionID)
		p.RefreshSeconds = loadingRefresh
	case v.Redirect != nil && safeRedirect(v.Redirect.URL):
		p.RefreshURL = v.Redirect.URL
		p.RefreshSeconds = int(v.Redirect.After / time.Second)
	}
	return p
}

func render(w io.Writer, p page) error {
	return pages.ExecuteTemplate(w, "widget", p)
}

// withSession appends the session id so a refresh attaches to the same session.
func withSession(action, id string) string {
	u, err := url.Parse(action)
	if err != nil {
		return action
	}
	q := u.Query()
	q.Set(paramSession, id)
	u.RawQuery = q.Encode()
	return u.String()
}

// safeRedirect accepts absolute http(s) URLs and same-origin paths.
func safeRedirect(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return u.Host != ""
	case "":
		return u.Host == "" && strings.HasPrefix(u.Path, "/")
	}
	return false
}
