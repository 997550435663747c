/*
Package auth plumbs verified caller identity through an explicit
context value, per spec §9's call to avoid ad-hoc global singletons.
Identity issuance itself is out of scope (spec §1); this package only
defines the shape the core trusts and the middleware that attaches it.
*/
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// Role is the caller's class, as asserted by the identity collaborator.
type Role string

const (
	RoleStudent  Role = "student"
	RoleMerchant Role = "merchant"
	RoleAdmin    Role = "admin"
)

// Identity is the verified caller identity the core trusts.
type Identity struct {
	UserID string
	Role   Role
}

// ErrMissingCredential is returned by Verifier when the request carries
// no bearer credential.
var ErrMissingCredential = errors.New("auth: missing bearer credential")

// ErrInvalidCredential is returned when the credential does not verify.
var ErrInvalidCredential = errors.New("auth: invalid bearer credential")

// Verifier turns a raw bearer token into a verified Identity. The real
// implementation talks to the identity collaborator named in spec §1;
// it is never implemented inside this module.
type Verifier interface {
	Verify(ctx context.Context, bearerToken string) (Identity, error)
}

type contextKey struct{ name string }

var identityKey = &contextKey{"auth-identity"}

// WithIdentity returns a context carrying id, for tests and for the
// HTTP middleware below.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// FromContext recovers the Identity attached by Middleware.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// Middleware extracts the bearer token from the Authorization header,
// verifies it, and attaches the resulting Identity to the request
// context. It never reads identity from the request body (spec §4.11).
func Middleware(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				http.Error(w, "missing bearer credential", http.StatusUnauthorized)
				return
			}
			id, err := v.Verify(r.Context(), token)
			if err != nil {
				http.Error(w, "invalid bearer credential", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// Fake is a Verifier for tests: tokens are literally "<role>:<user_id>".
type Fake struct{}

func (Fake) Verify(_ context.Context, bearerToken string) (Identity, error) {
	role, userID, ok := strings.Cut(bearerToken, ":")
	if !ok || userID == "" {
		return Identity{}, ErrInvalidCredential
	}
	return Identity{UserID: userID, Role: Role(role)}, nil
}
