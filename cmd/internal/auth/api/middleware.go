package authapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"parley/cmd/identity"
)

type contextKey int

const identityKey contextKey = iota

// IdentityFrom returns the authenticated user attached to ctx, if any.
func IdentityFrom(ctx context.Context) (identity.User, bool) {
	u, ok := ctx.Value(identityKey).(identity.User)
	return u, ok
}

func contextWithIdentity(ctx context.Context, u identity.User) context.Context {
	return context.WithValue(ctx, identityKey, u)
}

// publicPaths bypass token handling entirely.
var publicPaths = map[string]bool{
	"/auth/register":       true,
	"/auth/login":          true,
	"/auth/refresh":        true,
	"/auth/logout":         true,
	"/auth/check-username": true,
	"/healthz":             true,
	"/readyz":              true,
	"/metrics":             true,
}

// RequestAuthenticator resolves the bearer token (when present) to a live
// user and attaches it to the request context. A request without a token
// proceeds unauthenticated; handlers that need an identity enforce its
// presence themselves. A request with an invalid token is rejected before
// it reaches any handler. The subject is resolved against the live user
// store, so a token for a deleted user is rejected even while its
// signature is still valid.
func (h *Handler) RequestAuthenticator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if publicPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		token := bearerToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		user, _, err := h.sessions.Authenticate(r.Context(), time.Now().UTC(), token)
		if err != nil {
			tokenRejections.Inc()
			writeUnauthorized(w)
			return
		}

		next.ServeHTTP(w, r.WithContext(contextWithIdentity(r.Context(), user)))
	})
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
