package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/storefront-labs/threadline/pkg/storage"
)

var (
	// ErrInvalidCredentials covers both an unknown email and a password
	// mismatch. The two cases are deliberately indistinguishable to callers.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInactiveUser is returned when the credentials are correct but the
	// account has been deactivated.
	ErrInactiveUser = errors.New("user is inactive")
)

// Service validates credentials at signup and signin and issues bearer
// tokens.
type Service struct {
	users  UserStore
	tokens *TokenService
	log    *logrus.Logger
}

// NewService creates an authentication service.
func NewService(users UserStore, tokens *TokenService, log *logrus.Logger) *Service {
	return &Service{users: users, tokens: tokens, log: log}
}

// SignUp registers a new user with the default role and returns the persisted
// user together with an issued token. A duplicate email surfaces as
// storage.ErrConflict.
func (s *Service) SignUp(ctx context.Context, email, password, fullName string) (*User, string, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return nil, "", err
	}

	user := &User{
		ID:           uuid.NewString(),
		Email:        NormalizeEmail(email),
		PasswordHash: hash,
		FullName:     strings.TrimSpace(fullName),
		IsActive:     true,
		Roles:        []Role{RoleUser},
	}

	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, "", fmt.Errorf("failed to create user: %w", err)
	}

	token, err := s.tokens.Issue(user.Email)
	if err != nil {
		return nil, "", err
	}

	user.PasswordHash = ""
	s.log.WithField("email", user.Email).Info("user signed up")
	return user, token, nil
}

// SignIn validates the credentials and returns the user (without its hash)
// and a fresh token. Unknown email and wrong password both return
// ErrInvalidCredentials; a deactivated account returns ErrInactiveUser.
func (s *Service) SignIn(ctx context.Context, email, password string) (*User, string, error) {
	user, err := s.users.GetUserWithPassword(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", err
	}

	if !CheckPassword(user.PasswordHash, password) {
		return nil, "", ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, "", ErrInactiveUser
	}

	token, err := s.tokens.Issue(user.Email)
	if err != nil {
		return nil, "", err
	}

	user.PasswordHash = ""
	return user, token, nil
}
