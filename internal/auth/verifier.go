// Package auth verifies session tokens issued by the hosted auth provider and guards routes.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	jwt "github.com/golang-jwt/jwt/v4"
)

// DefaultCookieName is the cookie the hosted provider's client library stores the access token in.
const DefaultCookieName = "sb-access-token"

var (
	// ErrTokenMissing signals that neither the Authorization header nor the cookie carried a token.
	ErrTokenMissing = errors.New("auth: session token missing")
	// ErrTokenExpired signals that the session token has expired.
	ErrTokenExpired = errors.New("auth: session token expired")
	// ErrTokenInvalid signals that the session token failed verification for other reasons.
	ErrTokenInvalid = errors.New("auth: session token invalid")
	// ErrVerifierUnavailable signals that no signing secret is configured.
	ErrVerifierUnavailable = errors.New("auth: verifier not configured")
)

// User is the authenticated principal.
type User struct {
	ID    string
	Email string
}

// Verifier checks HS256 access tokens signed with the provider's JWT secret.
type Verifier struct {
	secret []byte
	cookie string
}

// VerifierOption customises Verifier.
type VerifierOption func(*Verifier)

// WithCookieName overrides the session cookie name.
func WithCookieName(name string) VerifierOption {
	return func(v *Verifier) {
		if name = strings.TrimSpace(name); name != "" {
			v.cookie = name
		}
	}
}

// NewVerifier builds a verifier. An empty secret yields a verifier that rejects every token.
func NewVerifier(secret string, opts ...VerifierOption) *Verifier {
	v := &Verifier{secret: []byte(strings.TrimSpace(secret)), cookie: DefaultCookieName}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

// Verify parses and validates tokenStr.
func (v *Verifier) Verify(tokenStr string) (User, error) {
	if v == nil || len(v.secret) == 0 {
		return User{}, ErrVerifierUnavailable
	}
	if tokenStr == "" {
		return User{}, ErrTokenMissing
	}

	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := jwt.MapClaims{}
	if _, err := parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}); err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return User{}, ErrTokenExpired
		}
		return User{}, ErrTokenInvalid
	}

	sub, _ := claims["sub"].(string)
	if strings.TrimSpace(sub) == "" {
		return User{}, ErrTokenInvalid
	}
	email, _ := claims["email"].(string)
	return User{ID: sub, Email: email}, nil
}

// FromRequest verifies the bearer token, falling back to the session cookie.
func (v *Verifier) FromRequest(r *http.Request) (User, error) {
	return v.Verify(v.tokenFromRequest(r))
}

func (v *Verifier) tokenFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	if token, ok := extractBearerToken(r.Header.Get("Authorization")); ok {
		return token
	}
	if v != nil {
		if c, err := r.Cookie(v.cookie); err == nil {
			return strings.TrimSpace(c.Value)
		}
	}
	return ""
}

func extractBearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// reason maps verification errors to log-friendly codes.
func reason(err error) string {
	switch {
	case errors.Is(err, ErrTokenMissing):
		return "token_missing"
	case errors.Is(err, ErrTokenExpired):
		return "token_expired"
	case errors.Is(err, ErrVerifierUnavailable):
		return "verifier_unavailable"
	default:
		return "token_invalid"
	}
}

type userContextKey struct{}

// WithUser stores the authenticated user on the context.
func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, userContextKey{}, u)
}

// UserFromContext returns the user stored by RequireUser.
func UserFromContext(ctx context.Context) (User, bool) {
	if ctx == nil {
		return User{}, false
	}
	u, ok := ctx.Value(userContextKey{}).(User)
	return u, ok && u.ID != ""
}
