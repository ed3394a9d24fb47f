package auth

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefront-labs/threadline/pkg/storage"
)

// fakeUserStore keeps users in memory, keyed by normalized email.
type fakeUserStore struct {
	users map[string]*User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[string]*User)}
}

func (s *fakeUserStore) CreateUser(_ context.Context, user *User) error {
	if _, exists := s.users[user.Email]; exists {
		return storage.ErrConflict
	}
	stored := *user
	s.users[user.Email] = &stored
	return nil
}

func (s *fakeUserStore) GetUserByEmail(_ context.Context, email string) (*User, error) {
	if u, ok := s.users[email]; ok {
		out := *u
		out.PasswordHash = ""
		return &out, nil
	}
	return nil, storage.ErrNotFound
}

func (s *fakeUserStore) GetUserWithPassword(_ context.Context, email string) (*User, error) {
	if u, ok := s.users[email]; ok {
		out := *u
		return &out, nil
	}
	return nil, storage.ErrNotFound
}

func newAuthService(t *testing.T, store UserStore) *Service {
	t.Helper()
	tokens, err := NewTokenService("test-secret", time.Hour)
	require.NoError(t, err)
	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewService(store, tokens, log)
}

func TestSignUp(t *testing.T) {
	store := newFakeUserStore()
	svc := newAuthService(t, store)

	user, token, err := svc.SignUp(context.Background(), "  Shopper@Example.COM ", "s3cret-pass", " Jane Doe ")
	require.NoError(t, err)

	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "shopper@example.com", user.Email, "email normalized")
	assert.Equal(t, "Jane Doe", user.FullName)
	assert.Equal(t, []Role{RoleUser}, user.Roles)
	assert.True(t, user.IsActive)
	assert.Empty(t, user.PasswordHash, "hash never returned")
	assert.NotEmpty(t, token)

	stored := store.users["shopper@example.com"]
	require.NotNil(t, stored)
	assert.True(t, CheckPassword(stored.PasswordHash, "s3cret-pass"))
}

func TestSignUpDuplicateEmail(t *testing.T) {
	store := newFakeUserStore()
	svc := newAuthService(t, store)

	_, _, err := svc.SignUp(context.Background(), "shopper@example.com", "s3cret-pass", "Jane")
	require.NoError(t, err)

	_, _, err = svc.SignUp(context.Background(), "SHOPPER@example.com", "other-pass", "Other Jane")
	assert.ErrorIs(t, err, storage.ErrConflict)
}

func TestSignIn(t *testing.T) {
	store := newFakeUserStore()
	svc := newAuthService(t, store)

	_, _, err := svc.SignUp(context.Background(), "shopper@example.com", "s3cret-pass", "Jane")
	require.NoError(t, err)

	t.Run("success", func(t *testing.T) {
		user, token, err := svc.SignIn(context.Background(), "Shopper@Example.com", "s3cret-pass")
		require.NoError(t, err)
		assert.Equal(t, "shopper@example.com", user.Email)
		assert.Empty(t, user.PasswordHash)
		assert.NotEmpty(t, token)
	})

	t.Run("unknown email", func(t *testing.T) {
		_, _, err := svc.SignIn(context.Background(), "ghost@example.com", "s3cret-pass")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, _, err := svc.SignIn(context.Background(), "shopper@example.com", "wrong-pass")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestSignInInactiveUser(t *testing.T) {
	store := newFakeUserStore()
	svc := newAuthService(t, store)

	_, _, err := svc.SignUp(context.Background(), "shopper@example.com", "s3cret-pass", "Jane")
	require.NoError(t, err)
	store.users["shopper@example.com"].IsActive = false

	_, _, err = svc.SignIn(context.Background(), "shopper@example.com", "s3cret-pass")
	assert.ErrorIs(t, err, ErrInactiveUser)
}

func TestHasAnyRole(t *testing.T) {
	admin := &User{Roles: []Role{RoleUser, RoleAdmin}}
	shopper := &User{Roles: []Role{RoleUser}}

	assert.True(t, admin.HasAnyRole(), "empty required set matches anyone")
	assert.True(t, shopper.HasAnyRole())
	assert.True(t, admin.HasAnyRole(RoleAdmin, RoleSuperUser))
	assert.False(t, shopper.HasAnyRole(RoleAdmin, RoleSuperUser))
	assert.True(t, shopper.HasAnyRole(RoleUser))
}
