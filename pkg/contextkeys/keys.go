// Package contextkeys provides centralized context key definitions.
//
// All context keys used across the application are defined here. This
// prevents typos, documents dependencies, and makes key usage discoverable.
package contextkeys

import (
	"context"

	"github.com/storefront-labs/threadline/pkg/auth"
)

// Key is the type for context keys to prevent collisions.
type Key string

const (
	// PrincipalKey contains the *auth.User resolved by the access gate.
	// Set by: middleware.AccessGate
	// Required by: protected API endpoints (e.g. stamping the creating user)
	PrincipalKey Key = "principal"

	// RequestIDKey contains the request ID string.
	// Set by: httputil.RequestIDMiddleware
	// Used by: request logging
	RequestIDKey Key = "request_id"
)

// WithPrincipal attaches the authenticated principal to the context.
func WithPrincipal(ctx context.Context, user *auth.User) context.Context {
	return context.WithValue(ctx, PrincipalKey, user)
}

// Principal returns the authenticated principal, or nil when the request did
// not pass through the access gate.
func Principal(ctx context.Context) *auth.User {
	user, _ := ctx.Value(PrincipalKey).(*auth.User)
	return user
}

// WithRequestID attaches the request ID to the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

// RequestID returns the request ID, or "" when unset.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}
