// Package middleware provides the access gate applied in front of protected
// routes: bearer-token authentication followed by role-based authorization.
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/storefront-labs/threadline/pkg/auth"
	"github.com/storefront-labs/threadline/pkg/contextkeys"
	"github.com/storefront-labs/threadline/pkg/httputil"
	"github.com/storefront-labs/threadline/pkg/storage"
)

// AccessGate authenticates a request's bearer token, resolves the principal,
// and enforces a route's declared required-role set. It is a pure guard: the
// only side effect of an accepted request is the principal attached to the
// request context.
type AccessGate struct {
	tokens *auth.TokenService
	users  auth.UserStore
}

// NewAccessGate creates an access gate backed by the given token service and
// credential store.
func NewAccessGate(tokens *auth.TokenService, users auth.UserStore) *AccessGate {
	return &AccessGate{tokens: tokens, users: users}
}

// Require wraps a handler with the full gate. An empty role set admits any
// authenticated, active principal; otherwise the principal's role set must
// intersect the required set.
//
// Failure modes are distinguishable and never downgraded: a missing,
// malformed, expired or mis-signed token and an unknown subject are all 401;
// an inactive principal or an insufficient role set is 403.
func (g *AccessGate) Require(roles ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				httputil.WriteUnauthorized(w, "missing or malformed authorization header")
				return
			}

			email, err := g.tokens.Verify(token)
			if err != nil {
				httputil.WriteUnauthorized(w, "invalid or expired token")
				return
			}

			user, err := g.users.GetUserByEmail(r.Context(), email)
			if err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					httputil.WriteUnauthorized(w, "invalid or expired token")
					return
				}
				httputil.WriteInternalError(w, errors.New("internal server error"))
				return
			}

			if !user.IsActive {
				httputil.WriteForbidden(w, "user is inactive")
				return
			}
			if !user.HasAnyRole(roles...) {
				httputil.WriteForbidden(w, "insufficient role")
				return
			}

			ctx := contextkeys.WithPrincipal(r.Context(), user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Principal extracts the authenticated principal from a gated request.
func Principal(r *http.Request) *auth.User {
	return contextkeys.Principal(r.Context())
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
