package auth

import (
	"context"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// IdentityResolver turns raw session claims into the effective identity for
// a request. It runs once per request, before any route logic, and never
// trusts cached impersonation state: every check is re-derived against
// storage so forged or stale claims self-heal to the real identity.
type IdentityResolver struct {
	users    Users
	logger   Logger
	activity ActivitySink
}

func NewIdentityResolver(users Users) *IdentityResolver {
	return &IdentityResolver{
		users:    users,
		logger:   defLogger{},
		activity: noopActivitySink{},
	}
}

func (r *IdentityResolver) WithLogger(logger Logger) *IdentityResolver {
	if logger != nil {
		r.logger = logger
	}
	return r
}

// WithActivitySink configures the audit sink for impersonation anomalies.
func (r *IdentityResolver) WithActivitySink(sink ActivitySink) *IdentityResolver {
	r.activity = normalizeActivitySink(sink)
	return r
}

// Resolve materializes the acting user for the request. The returned healed
// flag reports that the claims were mutated (stale impersonation purged) and
// must be persisted back to the session store by the caller.
//
// Resolution order:
//  1. the real session identity is resolved first, ignoring impersonation
//  2. with no impersonation claims present, the real identity wins
//  3. impersonation claims must agree with the real identity (same id) and
//     the real role must still allow impersonation, else they are purged
//  4. a vanished target also purges the claims
//  5. otherwise the target becomes the effective user and the real admin is
//     kept as the auditable back-reference
func (r *IdentityResolver) Resolve(ctx context.Context, claims *SessionClaims) (*CurrentIdentity, bool, error) {
	if claims == nil || claims.UserID == uuid.Nil {
		return nil, false, ErrIdentityNotFound
	}

	real, err := r.users.GetByID(ctx, claims.UserID.String())
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, false, ErrIdentityNotFound
		}
		return nil, false, errors.Wrap(err, errors.CategoryInternal, "failed to resolve session user")
	}

	if !claims.IsImpersonating() {
		if claims.HasPartialImpersonationState() {
			r.purge(ctx, claims, real, "partial impersonation state")
			return &CurrentIdentity{User: real}, true, nil
		}
		return &CurrentIdentity{User: real}, false, nil
	}

	if claims.ImpersonatorUserID != real.ID {
		r.purge(ctx, claims, real, "impersonator does not match session user")
		return &CurrentIdentity{User: real}, true, nil
	}

	if !real.Role.CanImpersonate() {
		r.purge(ctx, claims, real, "impersonator lost admin role")
		return &CurrentIdentity{User: real}, true, nil
	}

	target, err := r.users.GetByID(ctx, claims.ImpersonatedUserID.String())
	if err != nil {
		if errors.IsNotFound(err) {
			r.purge(ctx, claims, real, "impersonation target no longer exists")
			return &CurrentIdentity{User: real}, true, nil
		}
		return nil, false, errors.Wrap(err, errors.CategoryInternal, "failed to resolve impersonation target")
	}

	return &CurrentIdentity{User: target, ActingAdmin: real}, false, nil
}

// purge clears both impersonation keys together and records the anomaly for
// security monitoring. This is self-healing, not a user-facing error.
func (r *IdentityResolver) purge(ctx context.Context, claims *SessionClaims, real *User, reason string) {
	r.logger.Warn("purging invalid impersonation state",
		"reason", reason,
		"session_user_id", claims.UserID,
		"impersonated_user_id", claims.ImpersonatedUserID,
		"impersonator_user_id", claims.ImpersonatorUserID,
	)

	emitActivity(ctx, r.activity, r.logger, ActivityEvent{
		EventType: ActivityEventImpersonationPurged,
		Actor:     actorFromUser(real),
		UserID:    claims.UserID.String(),
		Metadata: map[string]any{
			"reason":               reason,
			"impersonated_user_id": claims.ImpersonatedUserID.String(),
			"impersonator_user_id": claims.ImpersonatorUserID.String(),
		},
	})

	claims.ClearImpersonation()
}

// Impersonator starts and stops support impersonation. Identity substitution
// only: the admin gains the target's identity for reads and writes, never a
// privilege level beyond what the target already has.
type Impersonator struct {
	users    Users
	resolver *IdentityResolver
	logger   Logger
	activity ActivitySink
}

func NewImpersonator(users Users, resolver *IdentityResolver) *Impersonator {
	return &Impersonator{
		users:    users,
		resolver: resolver,
		logger:   defLogger{},
		activity: noopActivitySink{},
	}
}

func (i *Impersonator) WithLogger(logger Logger) *Impersonator {
	if logger != nil {
		i.logger = logger
	}
	return i
}

func (i *Impersonator) WithActivitySink(sink ActivitySink) *Impersonator {
	i.activity = normalizeActivitySink(sink)
	return i
}

// Begin records impersonation state on the session claims after verifying
// the actor's role and the target's existence. The caller persists the
// mutated claims.
func (i *Impersonator) Begin(ctx context.Context, claims *SessionClaims, targetID uuid.UUID) error {
	if claims == nil || claims.UserID == uuid.Nil {
		return ErrAuthRequired
	}

	// resolve the real actor fresh; the session role could be stale
	actor, err := i.users.GetByID(ctx, claims.UserID.String())
	if err != nil {
		if errors.IsNotFound(err) {
			return ErrAuthRequired
		}
		return errors.Wrap(err, errors.CategoryInternal, "failed to resolve impersonation actor")
	}

	if !actor.Role.CanImpersonate() {
		i.logger.Warn("impersonation denied", "actor_id", actor.ID, "role", actor.Role)
		return ErrForbidden
	}

	target, err := i.users.GetByID(ctx, targetID.String())
	if err != nil {
		if errors.IsNotFound(err) {
			return errors.New("impersonation target not found", errors.CategoryNotFound).
				WithCode(errors.CodeNotFound)
		}
		return errors.Wrap(err, errors.CategoryInternal, "failed to resolve impersonation target")
	}

	claims.SetImpersonation(target.ID, actor.ID)

	emitActivity(ctx, i.activity, i.logger, ActivityEvent{
		EventType: ActivityEventImpersonationStart,
		Actor:     actorFromUser(actor),
		UserID:    target.ID.String(),
		Metadata: map[string]any{
			"target_email": target.Email,
		},
	})

	return nil
}

// End clears impersonation state. Idempotent: ending twice yields the same
// cleared claims with no error.
func (i *Impersonator) End(ctx context.Context, claims *SessionClaims) {
	if claims == nil {
		return
	}

	if !claims.IsImpersonating() && !claims.HasPartialImpersonationState() {
		return
	}

	emitActivity(ctx, i.activity, i.logger, ActivityEvent{
		EventType: ActivityEventImpersonationStop,
		Actor:     ActorRef{ID: claims.ImpersonatorUserID.String(), Type: "user"},
		UserID:    claims.ImpersonatedUserID.String(),
	})

	claims.ClearImpersonation()
}
