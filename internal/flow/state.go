package flow

import (
	"errors"
	"time"
)

// State is the lifecycle position of a form session.
type State int

const (
	Init State = iota
	Loading
	Blocked
	Failed
	Ready
	Submitting
	SuccessDisplayed
	ErrorDisplayed
)

var stateNames = [...]string{"init", "loading", "blocked", "failed", "ready", "submitting", "success", "error"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

type MessageKind string

const (
	KindSuccess MessageKind = "success"
	KindError   MessageKind = "error"
)

type Message struct {
	Kind MessageKind `json:"kind"`
	Text string      `json:"text"`
}

// Redirect is a navigation the page performs After the outcome is shown.
type Redirect struct {
	URL   string        `json:"url"`
	After time.Duration `json:"-"`
}

// Redirect delays are product timing contracts.
const (
	SuccessRedirectDelay = 2000 * time.Millisecond
	PendingRedirectDelay = 3000 * time.Millisecond
)

// User-facing texts of submission outcomes.
const (
	MsgGenericError        = "An error occurred. Please try again."
	MsgDatabaseError       = "Database error. Please contact the system administrator."
	MsgAuthFailed          = "Authentication failed."
	MsgMissingAPIKey       = "API key not available for this application."
	MsgPasswordMismatch    = "Passwords do not match."
	MsgVerificationPending = "Account created successfully. Check your email to verify your account."
	MsgLoginSuccess        = "Welcome!"
	MsgRegisterSuccess     = "Account created successfully"
	MsgResetSuccess        = "If the user is registered, they will receive an email with instructions to reset their password."
	MsgNotFound            = "Application not found"
	MsgMissingAppID        = "The app_id parameter is required in the URL."
)

var (
	ErrNotInteractive   = errors.New("flow: form is not accepting input")
	ErrSessionClosed    = errors.New("flow: session closed")
	ErrMissingAPIKey    = errors.New("flow: api key not available")
	ErrPasswordMismatch = errors.New("flow: passwords do not match")
)
