package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/edukia/chatrelay"
)

type identityKey struct{}

// WithIdentity returns a context carrying the resolved caller identity.
// The auth layer in front of the relay is expected to call this before
// the stream handlers run.
func WithIdentity(ctx context.Context, identity chatrelay.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFromContext returns the identity attached to the context, if any.
func IdentityFromContext(ctx context.Context) (chatrelay.Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(chatrelay.Identity)
	return identity, ok
}

// HeaderIdentity is middleware that resolves the caller identity from
// trusted proxy headers (X-User-Id, X-Username, X-User-Groups with
// semicolon-separated groups). Use it only behind an auth proxy that
// strips these headers from untrusted traffic.
func HeaderIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-User-Id")
		if id == "" {
			next.ServeHTTP(w, r)
			return
		}

		identity := chatrelay.Identity{
			ID:       id,
			Username: r.Header.Get("X-Username"),
		}
		if groups := r.Header.Get("X-User-Groups"); groups != "" {
			for _, g := range strings.Split(groups, ";") {
				if g = strings.TrimSpace(g); g != "" {
					identity.Groups = append(identity.Groups, g)
				}
			}
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}
