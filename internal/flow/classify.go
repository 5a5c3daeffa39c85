package flow

import (
	"strings"

	"authwidget/internal/forms"
	"authwidget/internal/gateway"
	"authwidget/internal/tokens"
)

// outcome is the effect of one gateway response on the session.
type outcome struct {
	state    State
	message  Message
	redirect *Redirect
	persist  *tokens.Tokens
	label    string // metrics
}

func failed(text, label string) outcome {
	return outcome{state: ErrorDisplayed, message: Message{Kind: KindError, Text: text}, label: label}
}

// classify applies the response priority rules: transport failure, database
// error, unverified email, other rejection, pending verification, success.
func classify(form forms.Type, res gateway.Result, err error) outcome {
	if err != nil || res == nil {
		return failed(MsgGenericError, "transport_error")
	}
	switch r := res.(type) {
	case gateway.Failure:
		if r.Code == gateway.CodeDatabaseError || strings.Contains(r.Message, "Database error") {
			return failed(MsgDatabaseError, "database_error")
		}
		if r.Code == gateway.CodeEmailNotVerified {
			o := failed(r.Message, "email_not_verified")
			if r.Message == "" {
				o.message.Text = MsgAuthFailed
			}
			if r.CallbackURL != "" {
				o.redirect = &Redirect{URL: r.CallbackURL, After: PendingRedirectDelay}
			}
			return o
		}
		if r.Message != "" {
			return failed(r.Message, "rejected")
		}
		return failed(MsgAuthFailed, "rejected")

	case gateway.Success:
		d := r.Data
		if form == forms.Register && d.EmailVerificationRequired {
			o := outcome{state: SuccessDisplayed, message: Message{Kind: KindSuccess, Text: MsgVerificationPending}, label: "verification_pending"}
			if d.CallbackURL != "" {
				o.redirect = &Redirect{URL: d.CallbackURL, After: PendingRedirectDelay}
			}
			return o
		}
		o := outcome{state: SuccessDisplayed, message: Message{Kind: KindSuccess, Text: successText(form, d)}, label: "success"}
		if d.CallbackURL != "" {
			o.redirect = &Redirect{URL: d.CallbackURL, After: SuccessRedirectDelay}
			o.label = "redirect"
			return o
		}
		if d.AccessToken != "" {
			o.persist = &tokens.Tokens{AccessToken: d.AccessToken, RefreshToken: d.RefreshToken, User: d.User}
		}
		return o
	}
	return failed(MsgGenericError, "transport_error")
}

func successText(form forms.Type, d gateway.Data) string {
	switch form {
	case forms.Register:
		return MsgRegisterSuccess
	case forms.ResetPassword:
		if d.Message != "" {
			return d.Message
		}
		return MsgResetSuccess
	default:
		return MsgLoginSuccess
	}
}
