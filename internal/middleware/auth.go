package middleware

import (
	"context"
	"net/http"
	"strings"
)

// IdentityResolver maps a bearer token to an owner id. The identity provider
// itself (OAuth) is an external collaborator; the store-backed resolver only
// performs the lookup.
type IdentityResolver interface {
	ResolveOwnerToken(ctx context.Context, token string) (string, error)
}

type ownerKey struct{}

// OwnerID returns the authenticated owner id stashed by RequireOwner.
func OwnerID(ctx context.Context) string {
	v, _ := ctx.Value(ownerKey{}).(string)
	return v
}

// RequireOwner authenticates the request's bearer token and injects the
// owner id into the request context. Missing or unknown tokens get a 401.
func RequireOwner(resolver IdentityResolver, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || token == "" {
			http.Error(w, `{"error":"missing bearer token"}`, http.StatusUnauthorized)
			return
		}
		owner, err := resolver.ResolveOwnerToken(r.Context(), token)
		if err != nil || owner == "" {
			http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), ownerKey{}, owner)))
	}
}
