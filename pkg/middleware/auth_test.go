package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefront-labs/threadline/pkg/auth"
	"github.com/storefront-labs/threadline/pkg/storage"
)

type fakeUsers struct {
	users map[string]*auth.User
}

func (s *fakeUsers) CreateUser(_ context.Context, user *auth.User) error {
	s.users[user.Email] = user
	return nil
}

func (s *fakeUsers) GetUserByEmail(_ context.Context, email string) (*auth.User, error) {
	if u, ok := s.users[email]; ok {
		return u, nil
	}
	return nil, storage.ErrNotFound
}

func (s *fakeUsers) GetUserWithPassword(ctx context.Context, email string) (*auth.User, error) {
	return s.GetUserByEmail(ctx, email)
}

func gateFixture(t *testing.T, users ...*auth.User) (*AccessGate, *auth.TokenService) {
	t.Helper()
	tokens, err := auth.NewTokenService("test-secret", time.Hour)
	require.NoError(t, err)

	store := &fakeUsers{users: make(map[string]*auth.User)}
	for _, u := range users {
		store.users[u.Email] = u
	}
	return NewAccessGate(tokens, store), tokens
}

// okHandler records whether the gate admitted the request and what principal
// it attached.
func okHandler(admitted *bool, principal **auth.User) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*admitted = true
		*principal = Principal(r)
		w.WriteHeader(http.StatusOK)
	})
}

func doGated(gate *AccessGate, roles []auth.Role, authHeader string) (*httptest.ResponseRecorder, bool, *auth.User) {
	var admitted bool
	var principal *auth.User

	req := httptest.NewRequest("GET", "/protected", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	gate.Require(roles...)(okHandler(&admitted, &principal)).ServeHTTP(rec, req)
	return rec, admitted, principal
}

func TestGateMissingOrMalformedHeader(t *testing.T) {
	gate, _ := gateFixture(t)

	for _, header := range []string{"", "Bearer", "Basic dXNlcjpwYXNz", "Bearer "} {
		rec, admitted, _ := doGated(gate, nil, header)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "header %q", header)
		assert.False(t, admitted)
	}
}

func TestGateInvalidToken(t *testing.T) {
	gate, _ := gateFixture(t)

	rec, admitted, _ := doGated(gate, nil, "Bearer not-a-real-token")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, admitted)
}

func TestGateUnknownSubject(t *testing.T) {
	gate, tokens := gateFixture(t)

	token, err := tokens.Issue("ghost@example.com")
	require.NoError(t, err)

	rec, admitted, _ := doGated(gate, nil, "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "valid token for a deleted user is still 401")
	assert.False(t, admitted)
}

func TestGateInactiveUser(t *testing.T) {
	user := &auth.User{Email: "shopper@example.com", IsActive: false, Roles: []auth.Role{auth.RoleAdmin}}
	gate, tokens := gateFixture(t, user)

	token, err := tokens.Issue(user.Email)
	require.NoError(t, err)

	// Inactive is 403 regardless of the required role set.
	for _, roles := range [][]auth.Role{nil, {auth.RoleAdmin}} {
		rec, admitted, _ := doGated(gate, roles, "Bearer "+token)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.False(t, admitted)
	}
}

func TestGateRoleIntersection(t *testing.T) {
	shopper := &auth.User{Email: "shopper@example.com", IsActive: true, Roles: []auth.Role{auth.RoleUser}}
	admin := &auth.User{Email: "admin@example.com", IsActive: true, Roles: []auth.Role{auth.RoleUser, auth.RoleAdmin}}
	gate, tokens := gateFixture(t, shopper, admin)

	tests := []struct {
		name     string
		user     *auth.User
		roles    []auth.Role
		expected int
	}{
		{"empty set admits any principal", shopper, nil, http.StatusOK},
		{"admin passes admin gate", admin, []auth.Role{auth.RoleAdmin}, http.StatusOK},
		{"shopper fails admin gate", shopper, []auth.Role{auth.RoleAdmin}, http.StatusForbidden},
		{"one matching role suffices", admin, []auth.Role{auth.RoleAdmin, auth.RoleSuperUser}, http.StatusOK},
		{"shopper fails admin or super_user gate", shopper, []auth.Role{auth.RoleAdmin, auth.RoleSuperUser}, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := tokens.Issue(tt.user.Email)
			require.NoError(t, err)

			rec, admitted, principal := doGated(gate, tt.roles, "Bearer "+token)
			assert.Equal(t, tt.expected, rec.Code)
			if tt.expected == http.StatusOK {
				assert.True(t, admitted)
				require.NotNil(t, principal, "principal attached to admitted requests")
				assert.Equal(t, tt.user.Email, principal.Email)
			} else {
				assert.False(t, admitted)
			}
		})
	}
}

func TestGateBearerSchemeCaseInsensitive(t *testing.T) {
	user := &auth.User{Email: "shopper@example.com", IsActive: true, Roles: []auth.Role{auth.RoleUser}}
	gate, tokens := gateFixture(t, user)

	token, err := tokens.Issue(user.Email)
	require.NoError(t, err)

	rec, admitted, _ := doGated(gate, nil, "bearer "+token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, admitted)
}
