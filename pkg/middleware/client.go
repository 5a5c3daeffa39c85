package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// ClientCookie names the anonymous cookie that keys a browser's stored tokens.
const ClientCookie = "aw_client"

type ctxClientKey struct{}

// WithClient makes sure every widget request carries a client id, issuing
// the cookie on first contact.
func WithClient(secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/healthz", "/metrics":
				next.ServeHTTP(w, r)
				return
			}
			id := ""
			if c, err := r.Cookie(ClientCookie); err == nil {
				if _, perr := uuid.Parse(c.Value); perr == nil {
					id = c.Value
				}
			}
			if id == "" {
				id = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     ClientCookie,
					Value:    id,
					Path:     "/",
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
					MaxAge:   365 * 24 * 3600,
				})
			}
			ctx := context.WithValue(r.Context(), ctxClientKey{}, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func ClientFrom(ctx context.Context) string {
	if v, ok := ctx.Value(ctxClientKey{}).(string); ok {
		return v
	}
	return ""
}
