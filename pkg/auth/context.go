// Package auth ties validated sessions to HTTP requests: context storage
// for session claims and middleware enforcing authentication and role-based
// authorization.
package auth

import (
	"context"

	"github.com/idbridge/idbridge/pkg/auth/session"
)

// SessionContextKey is the key used to store session claims in the request
// context. Using an empty struct as the key prevents collisions with other
// context keys.
type SessionContextKey struct{}

// WithSession stores session claims in the context. If claims is nil, the
// original context is returned unchanged.
func WithSession(ctx context.Context, claims *session.Claims) context.Context {
	if claims == nil {
		return ctx
	}
	return context.WithValue(ctx, SessionContextKey{}, claims)
}

// SessionFromContext retrieves the session claims from the context.
// Returns the claims and true if present, nil and false otherwise.
func SessionFromContext(ctx context.Context) (*session.Claims, bool) {
	claims, ok := ctx.Value(SessionContextKey{}).(*session.Claims)
	return claims, ok
}
