package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Error codes the widget reacts to.
const (
	CodeDatabaseError    = "DATABASE_ERROR"
	CodeEmailNotVerified = "EMAIL_NOT_VERIFIED"
)

// ErrMalformedResponse is returned when the body is not a gateway envelope.
var ErrMalformedResponse = errors.New("gateway: malformed response")

// Result is either Success or Failure.
type Result interface{ isResult() }

// Data is the success payload. Every field is optional.
type Data struct {
	AccessToken               string          `json:"access_token,omitempty"`
	RefreshToken              string          `json:"refresh_token,omitempty"`
	User                      json.RawMessage `json:"user,omitempty"`
	EmailVerificationRequired bool            `json:"email_verification_required,omitempty"`
	CallbackURL               string          `json:"callback_url,omitempty"`
	Message                   string          `json:"message,omitempty"`
}

type Success struct{ Data Data }

type Failure struct {
	Code        string
	Message     string
	CallbackURL string
}

func (Success) isResult() {}
func (Failure) isResult() {}

type envelope struct {
	Success *bool `json:"success"`
	Data    *Data `json:"data"`
	Error   *struct {
		Code        string `json:"code"`
		Message     string `json:"message"`
		CallbackURL string `json:"callback_url"`
	} `json:"error"`
}

// Decode validates a response body into a Result. A body without a boolean
// "success" field is malformed.
func Decode(body []byte) (Result, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if env.Success == nil {
		return nil, fmt.Errorf("%w: missing success flag", ErrMalformedResponse)
	}
	if *env.Success {
		s := Success{}
		if env.Data != nil {
			s.Data = *env.Data
		}
		return s, nil
	}
	f := Failure{}
	if env.Error != nil {
		f.Code = env.Error.Code
		f.Message = env.Error.Message
		f.CallbackURL = env.Error.CallbackURL
	}
	return f, nil
}
