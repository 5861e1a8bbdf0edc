// Package auth verifies access tokens minted by the hosted auth provider and
// talks to its REST API for code exchange and sign-out.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid access token")
)

type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 access tokens signed with the project's JWT secret.
type Verifier struct {
	Secret []byte
}

func (v *Verifier) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return v.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: no subject", ErrInvalidToken)
	}
	return claims, nil
}

type ctxKey struct{}

type principal struct {
	id    string
	token string
}

// PrincipalID returns the authenticated subject, empty when anonymous.
func PrincipalID(ctx context.Context) string {
	p, _ := ctx.Value(ctxKey{}).(principal)
	return p.id
}

// AccessToken returns the raw bearer token of the request.
func AccessToken(ctx context.Context) string {
	p, _ := ctx.Value(ctxKey{}).(principal)
	return p.token
}

func WithPrincipal(ctx context.Context, id, token string) context.Context {
	return context.WithValue(ctx, ctxKey{}, principal{id: id, token: token})
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
}

// Middleware authenticates the request. With required set, anonymous or
// invalid requests are rejected with 401; otherwise they pass through
// anonymous.
func (v *Verifier) Middleware(required bool, onError func(w http.ResponseWriter, status int, err error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok := bearer(r)
			if tok == "" {
				if required {
					onError(w, http.StatusUnauthorized, ErrMissingToken)
					return
				}
				next.ServeHTTP(w, r)
				return
			}
			claims, err := v.Verify(tok)
			if err != nil {
				if required {
					onError(w, http.StatusUnauthorized, err)
					return
				}
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), claims.Subject, tok)))
		})
	}
}
