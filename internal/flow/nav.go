package flow

import (
	"net/url"

	"authwidget/internal/resolver"
)

// Query parameters understood by the widget.
const (
	ParamAppID       = "app_id"
	ParamAPIKey      = "api_key"
	ParamCallbackURL = "callback_url"
	ParamRedirectURI = "redirect_uri"
)

// CallbackFromQuery accepts either callback parameter name.
func CallbackFromQuery(q url.Values) string {
	if v := q.Get(ParamCallbackURL); v != "" {
		return v
	}
	return q.Get(ParamRedirectURI)
}

// BuildURL links to another widget view keeping the tenant, the API key and
// the callback, which is always re-emitted as redirect_uri.
func BuildURL(path string, tenant resolver.TenantContext, q url.Values) string {
	params := url.Values{}
	params.Set(ParamAppID, tenant.ExternalID)
	apiKey := tenant.APIKey
	if apiKey == "" {
		apiKey = q.Get(ParamAPIKey)
	}
	if apiKey != "" {
		params.Set(ParamAPIKey, apiKey)
	}
	if cb := CallbackFromQuery(q); cb != "" {
		params.Set(ParamRedirectURI, cb)
	}
	return path + "?" + params.Encode()
}
