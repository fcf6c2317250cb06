package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-featuregate/gate"
	"github.com/goliatone/go-router"
)

// Gate builds route guards over the identity resolved by the session
// middleware. Guards run after ProtectedRoute and answer authorization
// questions only; the 401-vs-403 split is kept strict so clients can tell
// "log in first" apart from "you may not do this".
type Gate struct {
	evaluator *PermissionEvaluator
	accounts  Accounts
	features  gate.FeatureGate
	cfg       Config
	logger    Logger
	activity  ActivitySink
}

func NewGate(cfg Config, evaluator *PermissionEvaluator, accounts Accounts) *Gate {
	return &Gate{
		cfg:       cfg,
		evaluator: evaluator,
		accounts:  accounts,
		logger:    defLogger{},
		activity:  noopActivitySink{},
	}
}

func (g *Gate) WithFeatureGate(features gate.FeatureGate) *Gate {
	g.features = features
	return g
}

func (g *Gate) WithLogger(logger Logger) *Gate {
	if logger != nil {
		g.logger = logger
	}
	return g
}

func (g *Gate) WithActivitySink(sink ActivitySink) *Gate {
	g.activity = normalizeActivitySink(sink)
	return g
}

// RequireLogin passes any resolved identity through and rejects the rest
// with authentication semantics.
func (g *Gate) RequireLogin() router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			if _, ok := IdentityFromContext(ctx.Context()); !ok {
				return g.deny(ctx, ErrAuthRequired)
			}
			return next(ctx)
		}
	}
}

// RequireVerifiedEmail rejects identities whose email address is not yet
// verified. Enforcement is toggled by the feature gate when one is wired,
// otherwise by configuration, so rollouts can stage the requirement.
func (g *Gate) RequireVerifiedEmail() router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			identity, ok := IdentityFromContext(ctx.Context())
			if !ok {
				return g.deny(ctx, ErrAuthRequired)
			}

			if !g.verificationEnforced(ctx.Context()) {
				return next(ctx)
			}

			if !identity.User.EmailVerified {
				return g.deny(ctx, ErrEmailNotVerified)
			}

			return next(ctx)
		}
	}
}

// RequirePaidAccount rejects identities whose account is not on a paid plan
// in good standing. Account lookup failures read as not paid.
func (g *Gate) RequirePaidAccount() router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			identity, ok := IdentityFromContext(ctx.Context())
			if !ok {
				return g.deny(ctx, ErrAuthRequired)
			}

			account, err := g.accounts.GetByID(ctx.Context(), identity.User.AccountID.String())
			if err != nil {
				g.logger.Warn("paid account check failed closed",
					"account_id", identity.User.AccountID,
					"error", err,
				)
				return g.deny(ctx, ErrAccountNotPaid)
			}

			if account.Status != AccountStatusActive || !g.isPaidPlan(account.Plan) {
				return g.deny(ctx, ErrAccountNotPaid)
			}

			return next(ctx)
		}
	}
}

// RequireRole rejects identities below the given role in the hierarchy.
func (g *Gate) RequireRole(minRole UserRole) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			identity, ok := IdentityFromContext(ctx.Context())
			if !ok {
				return g.deny(ctx, ErrAuthRequired)
			}

			if !identity.User.Role.IsAtLeast(minRole) {
				g.logDenial(ctx, identity, "role", string(minRole))
				return g.deny(ctx, ErrForbidden)
			}

			return next(ctx)
		}
	}
}

// RequirePermission rejects identities that lack the permission after the
// overlay is folded over the role baseline. Denials are logged with actor,
// requirement, and route for review.
func (g *Gate) RequirePermission(permission Permission) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			identity, ok := IdentityFromContext(ctx.Context())
			if !ok {
				return g.deny(ctx, ErrAuthRequired)
			}

			if !g.evaluator.HasPermission(ctx.Context(), identity.User, permission) {
				g.logDenial(ctx, identity, "permission", string(permission))
				return g.deny(ctx, ErrForbidden)
			}

			return next(ctx)
		}
	}
}

func (g *Gate) verificationEnforced(ctx context.Context) bool {
	if g.features == nil {
		return g.cfg.GetRequireVerifiedEmail()
	}

	enabled, err := g.features.Enabled(ctx, FeatureVerifiedEmailEnforced)
	if err != nil {
		g.logger.Warn("verified email feature flag lookup failed", "error", err)
		return g.cfg.GetRequireVerifiedEmail()
	}

	return enabled
}

func (g *Gate) isPaidPlan(plan AccountPlan) bool {
	paid := g.cfg.GetPaidPlans()
	if len(paid) == 0 {
		paid = DefaultPaidPlans()
	}

	for _, p := range paid {
		if p == string(plan) {
			return true
		}
	}
	return false
}

func (g *Gate) logDenial(ctx router.Context, identity *CurrentIdentity, kind, required string) {
	g.logger.Warn("authorization denied",
		"actor_id", identity.EffectiveUserID(),
		"impersonating", identity.IsImpersonating(),
		"required_"+kind, required,
		"route", ctx.OriginalURL(),
	)

	emitActivity(ctx.Context(), g.activity, g.logger, ActivityEvent{
		EventType: ActivityEventPermissionDenied,
		Actor:     actorFromUser(identity.User),
		UserID:    identity.EffectiveUserID().String(),
		Metadata: map[string]any{
			"required_" + kind: required,
			"route":            ctx.OriginalURL(),
			"impersonating":    identity.IsImpersonating(),
		},
	})
}

// deny renders a guard failure. Machine callers get structured JSON with the
// proper status code; browsers get redirected somewhere they can act on the
// problem.
func (g *Gate) deny(ctx router.Context, err *errors.Error) error {
	if WantsJSON(ctx) {
		return RenderAuthError(ctx, err)
	}

	switch {
	case err.Category == errors.CategoryAuth:
		g.stashRedirect(ctx)

		statusCode := http.StatusSeeOther
		if ctx.Method() == string(router.GET) {
			statusCode = http.StatusFound
		}
		return ctx.Redirect(g.cfg.GetLoginPath(), statusCode)
	case err.TextCode == TextCodeEmailNotVerified:
		return ctx.Redirect(g.cfg.GetVerifyNoticePath(), http.StatusSeeOther)
	default:
		return ctx.Status(err.Code).Render("errors/403", router.ViewContext{
			"error": err,
		})
	}
}

func (g *Gate) stashRedirect(ctx router.Context) {
	ctx.Cookie(&router.Cookie{
		Name:     g.cfg.GetRejectedRouteKey(),
		Value:    ctx.OriginalURL(),
		Expires:  time.Now().Add(time.Minute * 5),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

// WantsJSON reports whether the caller negotiated a machine response.
func WantsJSON(ctx router.Context) bool {
	if strings.EqualFold(ctx.GetString("X-Requested-With", ""), "XMLHttpRequest") {
		return true
	}
	return strings.Contains(ctx.GetString("Accept", ""), "application/json")
}

// RenderAuthError writes a structured error body with the status carried by
// the rich error. 401 means authenticate; 403 means authenticated but not
// allowed.
func RenderAuthError(ctx router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryAuth, "Authentication failed").
			WithCode(errors.CodeUnauthorized)
	}

	return ctx.JSON(richErr.Code, map[string]any{
		"error": map[string]any{
			"message":   richErr.Message,
			"text_code": richErr.TextCode,
			"category":  string(richErr.Category),
		},
	})
}
