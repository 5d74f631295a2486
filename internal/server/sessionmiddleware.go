package server

import (
	"context"
	"net/http"

	"github.com/nidohq/nido/internal/session"
)

// identityKey is the context key for the resolved caller identity.
type identityKey struct{}

// SessionMiddleware resolves the bearer token into the caller identity
// and injects it into the request context. Requests without a valid
// session are rejected before any handler runs.
func SessionMiddleware(resolver *session.Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := session.ExtractToken(r)
			if err != nil {
				http.Error(w, "missing or malformed Authorization header", http.StatusUnauthorized)
				return
			}

			ident, err := resolver.Resolve(r.Context(), token)
			if err != nil {
				http.Error(w, "invalid session", http.StatusUnauthorized)
				return
			}

			AddLogField(r.Context(), "family_id", ident.FamilyID)
			ctx := context.WithValue(r.Context(), identityKey{}, ident)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetIdentity retrieves the caller identity from context. ok is false
// when the session middleware is not installed.
func GetIdentity(ctx context.Context) (session.Identity, bool) {
	if ident, ok := ctx.Value(identityKey{}).(*session.Identity); ok {
		return *ident, true
	}
	return session.Identity{}, false
}

// WithIdentity injects an identity into ctx. Used by tests to bypass
// the middleware.
func WithIdentity(ctx context.Context, ident session.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, &ident)
}
