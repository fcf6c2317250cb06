// Package auth provides the session-based authentication and authorization
// core for a multi-tenant account system: credential validation, server-side
// sessions, admin impersonation with an auditable back-reference, role and
// permission evaluation, per-plan seat limits, and signed verification tokens.
//
// Sessions:
//   - The browser cookie carries only an opaque session id. Claims live server
//     side behind the SessionStore interface (bun and redis implementations are
//     provided) as a fixed, typed SessionClaims structure so forged or extra
//     keys can never be misread as claims.
//   - Every request re-derives the effective identity through the
//     IdentityResolver. Impersonation state is verified against storage on each
//     request and purged fail-closed when it no longer holds.
//
// Guards:
//   - Gate exposes RequireLogin, RequireVerifiedEmail, RequirePaidAccount,
//     RequireRole, and RequirePermission as router middleware. Machine callers
//     (content negotiation) receive structured 401/403 responses; browsers are
//     redirected with a same-host-only continuation URL.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used by the resolver, the
//     guards, and the invite/impersonation flows. Sinks run best-effort so you
//     can forward events to a database or queue without blocking requests.
package auth
