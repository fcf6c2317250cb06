package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/leadlocal/go-auth/middleware/sessionware"
)

// LoginPayload carries submitted login credentials.
type LoginPayload interface {
	GetIdentifier() string
	GetPassword() string
	GetExtendedSession() bool
}

// SessionAuthenticator drives the browser session lifecycle: credential
// verification, cookie issuance, per-request resolution, and logout. It is
// the HTTP-facing seam over the session store and identity resolver.
type SessionAuthenticator struct {
	provider               IdentityProvider
	users                  Users
	store                  SessionStore
	resolver               *IdentityResolver
	tokens                 *TokenService
	cfg                    Config
	cookieDuration         time.Duration
	extendedCookieDuration time.Duration
	activity               ActivitySink
	Logger                 Logger
	AuthErrorHandler       func(c router.Context, err error) error
	ErrorHandler           func(c router.Context, err error) error
}

var _ HTTPAuthenticator = (*SessionAuthenticator)(nil)

func NewSessionAuthenticator(provider IdentityProvider, users Users, store SessionStore, resolver *IdentityResolver, cfg Config) (*SessionAuthenticator, error) {
	if store == nil {
		return nil, errors.New("session store is required", errors.CategoryBadInput)
	}

	if resolver == nil {
		return nil, errors.New("identity resolver is required", errors.CategoryBadInput)
	}

	cookieDuration := 24 * time.Hour
	if cfg.GetSessionDuration() > 0 {
		cookieDuration = time.Duration(cfg.GetSessionDuration()) * time.Hour
	}

	extendedCookieDuration := cookieDuration
	if cfg.GetExtendedSessionDuration() > 0 {
		extendedCookieDuration = time.Duration(cfg.GetExtendedSessionDuration()) * time.Hour
	}

	a := &SessionAuthenticator{
		provider:               provider,
		users:                  users,
		store:                  store,
		resolver:               resolver,
		cfg:                    cfg,
		cookieDuration:         cookieDuration,
		extendedCookieDuration: extendedCookieDuration,
		activity:               noopActivitySink{},
		Logger:                 defLogger{},
	}

	a.ErrorHandler = a.defaultErrHandler
	a.AuthErrorHandler = a.defaultAuthErrHandler

	return a, nil
}

// WithTokenService enables bearer token auth for machine callers on
// protected routes.
func (a *SessionAuthenticator) WithTokenService(tokens *TokenService) *SessionAuthenticator {
	a.tokens = tokens
	return a
}

func (a *SessionAuthenticator) WithActivitySink(sink ActivitySink) *SessionAuthenticator {
	a.activity = normalizeActivitySink(sink)
	return a
}

func (a SessionAuthenticator) GetCookieDuration() time.Duration {
	return a.cookieDuration
}

func (a SessionAuthenticator) GetExtendedCookieDuration() time.Duration {
	return a.extendedCookieDuration
}

// Login verifies credentials and establishes a session on success. Failures
// come back as auth category errors; callers should render them without
// detail about which part of the credential was wrong.
func (a *SessionAuthenticator) Login(ctx router.Context, payload LoginPayload) error {
	identity, err := a.provider.VerifyIdentity(ctx.Context(), payload.GetIdentifier(), payload.GetPassword())
	if err != nil {
		a.Logger.Error("Login error: %s", err)
		emitActivity(ctx.Context(), a.activity, a.Logger, ActivityEvent{
			EventType: ActivityEventLoginFailure,
			Metadata: map[string]any{
				"identifier": payload.GetIdentifier(),
			},
		})
		return err
	}

	user, err := a.users.GetByID(ctx.Context(), identity.ID())
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to load user after login")
	}

	return a.StartSession(ctx, user, payload.GetExtendedSession())
}

// StartSession issues a fresh session id, persists the claims and sets the
// cookie. It is also used after registration and invite acceptance, where
// credentials were established by other means.
func (a *SessionAuthenticator) StartSession(ctx router.Context, user *User, extended bool) error {
	sessionID, err := NewSessionID()
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to generate session id")
	}

	duration := a.cookieDuration
	if extended {
		duration = a.extendedCookieDuration
	}

	claims := NewSessionClaims(user)
	if err := a.store.Put(ctx.Context(), sessionID, claims, duration); err != nil {
		return err
	}

	a.setSessionCookie(ctx, sessionID, duration)

	emitActivity(ctx.Context(), a.activity, a.Logger, ActivityEvent{
		EventType: ActivityEventLoginSuccess,
		Actor:     actorFromUser(user),
		UserID:    user.ID.String(),
	})

	return nil
}

// Logout deletes the server-side session record and clears the cookie. The
// record is removed whole, so impersonation state can never survive the
// identity it was attached to.
func (a *SessionAuthenticator) Logout(ctx router.Context) error {
	cookieName := a.cfg.GetSessionCookieName()
	sessionID := ctx.Cookies(cookieName)

	if sessionID != "" {
		if err := a.store.Delete(ctx.Context(), sessionID); err != nil {
			a.Logger.Warn("failed to delete session record", "error", err)
		}

		if claims, err := a.store.Get(ctx.Context(), sessionID); err == nil && claims != nil {
			// record still readable means the delete raced; log it
			a.Logger.Warn("session record survived logout", "session_id", sessionID)
		}

		emitActivity(ctx.Context(), a.activity, a.Logger, ActivityEvent{
			EventType: ActivityEventLogout,
		})
	}

	a.cookieDel(ctx, cookieName)
	return nil
}

// ResolveSession loads and validates the claims behind an opaque session id,
// running the impersonation resolution pass. Healed claims are written back
// without extending the session expiry.
func (a *SessionAuthenticator) ResolveSession(ctx context.Context, sessionID string) (*ResolvedSession, error) {
	claims, err := a.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	identity, healed, err := a.resolver.Resolve(ctx, claims)
	if err != nil {
		return nil, err
	}

	if healed {
		if err := a.store.Put(ctx, sessionID, claims, 0); err != nil {
			a.Logger.Warn("failed to persist healed session", "session_id", sessionID, "error", err)
		}
	}

	return &ResolvedSession{identity: identity, claims: claims, sessionID: sessionID}, nil
}

// ProtectedRoute returns middleware that requires a valid session cookie or,
// when a token service is configured, a bearer token.
func (a *SessionAuthenticator) ProtectedRoute(cfg Config, errorHandler func(router.Context, error) error) router.MiddlewareFunc {
	swCfg := sessionware.Config{
		ErrorHandler:    errorHandler,
		SessionResolver: sessionResolverAdapter{auth: a},
		CookieName:      cfg.GetSessionCookieName(),
		AuthScheme:      cfg.GetAuthScheme(),
		ContextKey:      cfg.GetContextKey(),
		TokenLookup:     cfg.GetTokenLookup(),
		ContextEnricher: a.enrichContext,
	}

	if a.tokens != nil {
		swCfg.TokenValidator = tokenValidatorAdapter{tokens: a.tokens}
	}

	return sessionware.New(swCfg)
}

// MakeClientRouteAuthErrorHandler maps middleware failures to rich errors.
// With optional set, failures fall through to the next handler so public
// pages can render personalized or anonymous variants.
func (a *SessionAuthenticator) MakeClientRouteAuthErrorHandler(optional bool) func(router.Context, error) error {
	return func(ctx router.Context, err error) error {
		var richErr *errors.Error

		if errors.Is(err, ErrSessionNotFound) || errors.Is(err, sessionware.ErrCredentialsMissing) {
			richErr = ErrAuthRequired
		} else if errors.Is(err, ErrIdentityNotFound) {
			richErr = ErrAuthRequired
		} else if IsTokenExpiredError(err) {
			richErr = ErrTokenExpired
		} else if IsBadSignatureError(err) {
			richErr = ErrTokenBadSignature
		} else if IsMalformedError(err) {
			richErr = ErrTokenMalformed
		} else {
			richErr = errors.Wrap(err, errors.CategoryAuth, "Invalid session credentials").
				WithCode(errors.CodeUnauthorized)
		}

		if optional {
			a.Logger.Info("Optional auth failed, proceeding", "error", richErr.Message)
			return ctx.Next()
		}

		return a.ErrorHandler(ctx, richErr)
	}
}

// GetRedirect pops the stashed post-login destination, vetted against the
// open-redirect policy.
func (a *SessionAuthenticator) GetRedirect(ctx router.Context, def ...string) string {
	fallback := a.cfg.GetRejectedRouteDefault()
	if len(def) > 0 {
		fallback = def[0]
	}

	rejectedRoute := a.cfg.GetRejectedRouteKey()
	r := ctx.Cookies(rejectedRoute)
	if r == "" {
		return fallback
	}
	a.cookieDel(ctx, rejectedRoute)
	return SafeRedirect(r, ctx.GetString("Host", ""), fallback)
}

func (a *SessionAuthenticator) GetRedirectOrDefault(ctx router.Context) string {
	rejectedRoute := a.cfg.GetRejectedRouteKey()
	refererHeader := string(ctx.Referer())

	r := ctx.Cookies(rejectedRoute, refererHeader)
	a.cookieDel(ctx, rejectedRoute)
	return SafeRedirect(r, ctx.GetString("Host", ""), a.cfg.GetRejectedRouteDefault())
}

// SetRedirect stashes the current URL so a successful login can resume it.
func (a *SessionAuthenticator) SetRedirect(ctx router.Context) {
	rejectedRoute := a.cfg.GetRejectedRouteKey()

	a.Logger.Info("Setting redirect cookie", "key", rejectedRoute, "path", ctx.OriginalURL())

	ctx.Cookie(&router.Cookie{
		Name:     rejectedRoute,
		Value:    ctx.OriginalURL(),
		Expires:  time.Now().Add(time.Minute * 5),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func (a *SessionAuthenticator) enrichContext(ctx context.Context, claims sessionware.AuthClaims) context.Context {
	if rs, ok := claims.(*ResolvedSession); ok {
		return WithIdentityContext(ctx, rs.Identity())
	}

	// bearer path: claims came from a token, resolve the user row
	user, err := a.users.GetByID(ctx, claims.UserID())
	if err != nil {
		a.Logger.Warn("failed to resolve bearer token user", "user_id", claims.UserID(), "error", err)
		return ctx
	}

	return WithIdentityContext(ctx, &CurrentIdentity{User: user})
}

func (a *SessionAuthenticator) setSessionCookie(c router.Context, val string, duration time.Duration) {
	c.Cookie(&router.Cookie{
		Name:     a.cfg.GetSessionCookieName(),
		Value:    val,
		Expires:  time.Now().Add(duration),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func (a *SessionAuthenticator) cookieDel(c router.Context, name string) {
	c.Cookie(&router.Cookie{
		Name:     name,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func (a *SessionAuthenticator) defaultAuthErrHandler(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryAuth, "An unexpected authentication error").
			WithCode(errors.CodeUnauthorized)
	}

	a.Logger.Info(
		"Authentication error, redirecting to login",
		"error", richErr.Message,
		"text_code", richErr.TextCode,
		"path", c.OriginalURL(),
	)

	if WantsJSON(c) {
		return RenderAuthError(c, richErr)
	}

	a.SetRedirect(c)

	statusCode := http.StatusSeeOther
	if c.Method() == string(router.GET) {
		statusCode = http.StatusFound
	}
	return c.Redirect(a.cfg.GetLoginPath(), statusCode)
}

func (a *SessionAuthenticator) defaultErrHandler(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
			WithCode(errors.CodeInternal)
	}

	a.Logger.Info(
		"Middleware error handler",
		"error", richErr.Message,
		"category", richErr.Category,
		"details", print.MaybePrettyJSON(richErr.Metadata),
	)

	switch richErr.Category {
	case errors.CategoryAuth, errors.CategoryAuthz:
		return a.AuthErrorHandler(c, richErr)
	default:
		return c.Status(richErr.Code).Render("errors/500", router.ViewContext{
			"error": richErr,
		})
	}
}
