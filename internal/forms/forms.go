// Package forms holds the vocabulary shared by every layer of a form session.
package forms

import "strings"

type Type string

const (
	Login         Type = "login"
	Register      Type = "register"
	ResetPassword Type = "reset-password"
)

// Parse maps an arbitrary value to a known form type, defaulting to Login.
func Parse(s string) Type {
	switch Type(strings.ToLower(strings.TrimSpace(s))) {
	case Register:
		return Register
	case ResetPassword:
		return ResetPassword
	default:
		return Login
	}
}

// FromPath maps a request path to a form type the way embedding pages link
// to the widget: anything mentioning "register" or "reset", else login.
func FromPath(path string) Type {
	switch {
	case strings.Contains(path, "register"):
		return Register
	case strings.Contains(path, "reset"):
		return ResetPassword
	default:
		return Login
	}
}

// Path is the canonical widget path of the form.
func (t Type) Path() string { return "/" + string(t) }

// Fields holds user input. ConfirmPassword only matters for Register.
type Fields struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// Requires reports which inputs the form type renders as required.
func (t Type) Requires() (name, password, confirm bool) {
	switch t {
	case Register:
		return true, true, true
	case Login:
		return false, true, false
	default:
		return false, false, false
	}
}
