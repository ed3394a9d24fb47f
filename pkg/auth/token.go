package auth

import (
	"errors"
	"fmt"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL is the default lifetime of an issued bearer token.
const DefaultTokenTTL = 2 * time.Hour

// ErrInvalidToken is returned by Verify for any token that cannot be fully
// trusted: malformed, expired, not yet valid, or signed with the wrong key.
// Verification fails closed; there is no partial trust.
var ErrInvalidToken = errors.New("invalid or expired token")

// TokenService issues and verifies signed, time-bounded bearer tokens
// carrying the principal's email as subject. Tokens are HS256 JWTs signed
// with a process-wide secret loaded once at startup.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a token service. An empty secret is a configuration
// error; callers treat it as fatal at startup.
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if secret == "" {
		return nil, errors.New("token signing secret must not be empty")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}, nil
}

// Issue signs a token for the given subject email.
func (s *TokenService) Issue(email string) (string, error) {
	now := time.Now()
	claims := jwtv5.RegisteredClaims{
		Subject:   email,
		IssuedAt:  jwtv5.NewNumericDate(now),
		NotBefore: jwtv5.NewNumericDate(now),
		ExpiresAt: jwtv5.NewNumericDate(now.Add(s.ttl)),
	}

	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims)
	signed, err := tk.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify validates signature, expiry and not-before, and returns the subject
// email. Any verification failure returns ErrInvalidToken.
func (s *TokenService) Verify(token string) (string, error) {
	parsed, err := jwtv5.ParseWithClaims(token, &jwtv5.RegisteredClaims{},
		func(t *jwtv5.Token) (any, error) { return s.secret, nil },
		jwtv5.WithValidMethods([]string{jwtv5.SigningMethodHS256.Alg()}),
	)
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*jwtv5.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
