package auth

import (
	"context"

	"github.com/leadlocal/go-auth/middleware/sessionware"
)

// ResolvedSession is the per-request view over a resolved session. It
// satisfies the middleware claims contract while keeping the full identity
// (including the acting admin) reachable for downstream guards.
type ResolvedSession struct {
	identity  *CurrentIdentity
	claims    *SessionClaims
	sessionID string
}

var _ sessionware.AuthClaims = (*ResolvedSession)(nil)

// Identity exposes the resolved effective identity.
func (r *ResolvedSession) Identity() *CurrentIdentity {
	return r.identity
}

// SessionID returns the opaque id this session was resolved from.
func (r *ResolvedSession) SessionID() string {
	return r.sessionID
}

// Claims exposes the raw session claims, post healing.
func (r *ResolvedSession) Claims() *SessionClaims {
	return r.claims
}

func (r *ResolvedSession) UserID() string {
	if r.identity == nil || r.identity.User == nil {
		return ""
	}
	return r.identity.User.ID.String()
}

func (r *ResolvedSession) AccountID() string {
	if r.identity == nil || r.identity.User == nil {
		return ""
	}
	return r.identity.User.AccountID.String()
}

func (r *ResolvedSession) Role() string {
	if r.identity == nil || r.identity.User == nil {
		return ""
	}
	return string(r.identity.User.Role)
}

func (r *ResolvedSession) EmailVerified() bool {
	return r.identity != nil && r.identity.User != nil && r.identity.User.EmailVerified
}

func (r *ResolvedSession) Impersonating() bool {
	return r.identity.IsImpersonating()
}

func (r *ResolvedSession) ActingAdminID() string {
	if !r.identity.IsImpersonating() {
		return ""
	}
	return r.identity.ActingAdmin.ID.String()
}

func (r *ResolvedSession) HasRole(role string) bool {
	return r.Role() == role
}

func (r *ResolvedSession) IsAtLeast(minRole string) bool {
	if r.identity == nil || r.identity.User == nil {
		return false
	}
	return r.identity.User.Role.IsAtLeast(UserRole(minRole))
}

// sessionResolverAdapter plugs the authenticator into the middleware without
// an import cycle.
type sessionResolverAdapter struct {
	auth *SessionAuthenticator
}

func (s sessionResolverAdapter) Resolve(ctx context.Context, sessionID string) (sessionware.AuthClaims, error) {
	return s.auth.ResolveSession(ctx, sessionID)
}

// tokenValidatorAdapter exposes bearer token validation to the middleware.
type tokenValidatorAdapter struct {
	tokens *TokenService
}

func (t tokenValidatorAdapter) Validate(tokenString string) (sessionware.AuthClaims, error) {
	claims, err := t.tokens.ValidateAccessToken(tokenString)
	if err != nil {
		return nil, err
	}
	return claims, nil
}
