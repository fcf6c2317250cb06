package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// LoggerProvider resolves named loggers so embedding applications can route
// package logs through their own logging stack.
type LoggerProvider interface {
	GetLogger(name string) Logger
}

// Middleware builds protected route middleware
type Middleware interface {
	ProtectedRoute(cfg Config, errorHandler func(router.Context, error) error) router.MiddlewareFunc
}

// HTTPAuthenticator drives the browser session lifecycle over HTTP
type HTTPAuthenticator interface {
	Middleware
	Login(c router.Context, payload LoginPayload) error
	Logout(c router.Context) error
	StartSession(c router.Context, user *User, extended bool) error
	SetRedirect(c router.Context)
	GetRedirect(c router.Context, def ...string) string
	GetRedirectOrDefault(c router.Context) string
	MakeClientRouteAuthErrorHandler(optionalAuth bool) func(c router.Context, err error) error
}

// Identity holds the attributes of an authenticated identity
type Identity interface {
	ID() string
	AccountID() string
	Email() string
	Role() string
	EmailVerified() bool
}

// SessionStore persists server-side session claims keyed by an opaque
// session id. Implementations must return ErrSessionNotFound for a valid
// miss, never a raw storage error.
type SessionStore interface {
	Get(ctx context.Context, sessionID string) (*SessionClaims, error)
	Put(ctx context.Context, sessionID string, claims *SessionClaims, ttl time.Duration) error
	Delete(ctx context.Context, sessionID string) error
}

// Messenger delivers outbound messages (verification links, invites).
// Delivery failures must surface to the caller as recoverable errors.
type Messenger interface {
	Send(ctx context.Context, recipient, subject, body string) error
}

// PasswordAuthenticator authenticates passwords
type PasswordAuthenticator interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

// IdentityProvider verifies credentials and resolves identities from storage
type IdentityProvider interface {
	VerifyIdentity(ctx context.Context, identifier, password string) (Identity, error)
	FindIdentityByIdentifier(ctx context.Context, identifier string) (Identity, error)
}

// Config holds auth options
type Config interface {
	GetSigningKey() string
	GetSigningMethod() string
	GetContextKey() string
	GetSessionCookieName() string
	GetSessionDuration() int
	GetExtendedSessionDuration() int
	GetTokenLookup() string
	GetAuthScheme() string
	GetIssuer() string
	GetAudience() []string
	GetRejectedRouteKey() string
	GetRejectedRouteDefault() string
	GetLoginPath() string
	GetVerifyNoticePath() string
	GetPaidPlans() []string
	GetRequireVerifiedEmail() bool
}

// CurrentIdentity is the per-request resolution result: the effective user
// (possibly an impersonation target) plus the real admin driving the session
// when impersonating.
type CurrentIdentity struct {
	User        *User
	ActingAdmin *User
}

// IsImpersonating reports whether the effective user is an impersonation target.
func (c *CurrentIdentity) IsImpersonating() bool {
	return c != nil && c.ActingAdmin != nil
}

// EffectiveUserID returns the id requests act as.
func (c *CurrentIdentity) EffectiveUserID() uuid.UUID {
	if c == nil || c.User == nil {
		return uuid.Nil
	}
	return c.User.ID
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTH "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTH "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTH "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTH "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}

// ResolveLogger picks a logger from the provider when available, falling back
// to the given logger or the package default.
func ResolveLogger(name string, provider LoggerProvider, fallback Logger) (LoggerProvider, Logger) {
	if provider != nil {
		if l := provider.GetLogger(name); l != nil {
			return provider, l
		}
	}
	if fallback != nil {
		return provider, fallback
	}
	return provider, defLogger{}
}
