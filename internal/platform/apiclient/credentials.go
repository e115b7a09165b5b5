package apiclient

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrCredentialMissing = errors.New("no bearer credential configured")
	ErrCredentialExpired = errors.New("bearer credential has expired")
)

// CredentialSource supplies the bearer token for each request. It is
// injected into the client; nothing reads ambient session state.
type CredentialSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed bearer token.
type StaticToken string

func (s StaticToken) Token(context.Context) (string, error) {
	token := strings.TrimSpace(string(s))
	if token == "" {
		return "", ErrCredentialMissing
	}
	return token, nil
}

// TokenFunc adapts a function to CredentialSource.
type TokenFunc func(ctx context.Context) (string, error)

func (f TokenFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// CheckToken rejects tokens that are JWTs whose exp has passed. Opaque
// tokens pass unchanged; the signature is the backend's business.
func CheckToken(token string, now time.Time) error {
	claims, ok := peekClaims(token)
	if !ok {
		return nil
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	if !now.Before(exp.Time) {
		return ErrCredentialExpired
	}
	return nil
}

// Subject returns the sub claim of a JWT token, or "" for opaque tokens.
func Subject(token string) string {
	claims, ok := peekClaims(token)
	if !ok {
		return ""
	}
	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		return sub
	}
	for _, key := range []string{"username", "userId", "id"} {
		if v, ok := claims[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func peekClaims(token string) (jwt.MapClaims, bool) {
	if strings.Count(token, ".") != 2 {
		return nil, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, false
	}
	return claims, true
}
