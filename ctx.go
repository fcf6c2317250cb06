package auth

import (
	"context"
)

var identityCtxKey = &contextKey{"identity"}

type contextKey struct {
	name string
}

// WithIdentityContext sets the resolved CurrentIdentity in the given context.
// It is populated once at the top of request processing; there is no
// process-wide mutable state behind it.
func WithIdentityContext(ctx context.Context, identity *CurrentIdentity) context.Context {
	return context.WithValue(ctx, identityCtxKey, identity)
}

// IdentityFromContext finds the resolved identity in the context.
func IdentityFromContext(ctx context.Context) (*CurrentIdentity, bool) {
	raw, ok := ctx.Value(identityCtxKey).(*CurrentIdentity)
	if !ok || raw == nil || raw.User == nil {
		return nil, false
	}
	return raw, true
}

// CurrentUser returns the effective (possibly impersonated) user.
func CurrentUser(ctx context.Context) (*User, bool) {
	identity, ok := IdentityFromContext(ctx)
	if !ok {
		return nil, false
	}
	return identity.User, true
}

// RealAdminIdentity returns the admin driving an impersonated session. Set
// only while impersonating; downstream code uses it to render banners and
// audit the real actor.
func RealAdminIdentity(ctx context.Context) (*User, bool) {
	identity, ok := IdentityFromContext(ctx)
	if !ok || identity.ActingAdmin == nil {
		return nil, false
	}
	return identity.ActingAdmin, true
}

// AuditActor returns the actor to attribute writes to: the real admin while
// impersonating, otherwise the effective user.
func AuditActor(ctx context.Context) (*User, bool) {
	if admin, ok := RealAdminIdentity(ctx); ok {
		return admin, true
	}
	return CurrentUser(ctx)
}
