package auth

import (
	stderrors "errors"

	"github.com/goliatone/go-errors"
)

// Text codes attached to rich errors so API clients can branch without
// string-matching messages.
const (
	TextCodeAuthRequired       = "AUTH_REQUIRED"
	TextCodeForbidden          = "FORBIDDEN"
	TextCodeTokenExpired       = "TOKEN_EXPIRED"
	TextCodeTokenBadSignature  = "TOKEN_BAD_SIGNATURE"
	TextCodeTokenMalformed     = "TOKEN_MALFORMED"
	TextCodeSeatLimitReached   = "SEAT_LIMIT_REACHED"
	TextCodeAccountNotPaid     = "ACCOUNT_NOT_PAID"
	TextCodeEmailNotVerified   = "EMAIL_NOT_VERIFIED"
	TextCodeInviteExpired      = "INVITE_EXPIRED"
	TextCodeInviteRevoked      = "INVITE_REVOKED"
	TextCodeInviteNotPending   = "INVITE_NOT_PENDING"
	TextCodeImpersonationState = "IMPERSONATION_STATE_INVALID"
	TextCodeSignupDisabled     = "SIGNUP_DISABLED"
	TextCodeInvitesDisabled    = "INVITES_DISABLED"
)

// ErrIdentityNotFound is the error we return for non found identities
var ErrIdentityNotFound = stderrors.New("identity not found")

// ErrSessionNotFound is returned by SessionStore implementations for a miss
var ErrSessionNotFound = stderrors.New("session not found")

// ErrNoEmptyString guards hashing of empty passwords
var ErrNoEmptyString = stderrors.New("password can not be an empty string")

// ErrMismatchedHashAndPassword is returned for credential mismatches
var ErrMismatchedHashAndPassword = stderrors.New("credentials do not match")

// ErrTooManyLoginAttempts is returned while the cooldown window holds
var ErrTooManyLoginAttempts = stderrors.New("too many login attempts")

// ErrAuthRequired signals requests with no resolvable identity.
var ErrAuthRequired = errors.New("authentication required", errors.CategoryAuth).
	WithCode(errors.CodeUnauthorized).
	WithTextCode(TextCodeAuthRequired)

// ErrForbidden signals a valid identity with insufficient role/permission.
// Authorization failures are distinct from authentication failures and must
// never collapse into one another.
var ErrForbidden = errors.New("insufficient permissions", errors.CategoryAuthz).
	WithCode(errors.CodeForbidden).
	WithTextCode(TextCodeForbidden)

// ErrTokenExpired is a correctly signed token past its max age. Callers may
// offer a "resend" flow for this failure.
var ErrTokenExpired = errors.New("token has expired", errors.CategoryAuth).
	WithCode(errors.CodeUnauthorized).
	WithTextCode(TextCodeTokenExpired)

// ErrTokenBadSignature is a tampered token or one signed with the wrong key.
// Callers must not hint at near-validity for this failure.
var ErrTokenBadSignature = errors.New("token signature is invalid", errors.CategoryAuth).
	WithCode(errors.CodeUnauthorized).
	WithTextCode(TextCodeTokenBadSignature)

// ErrTokenMalformed is input that does not parse as a token at all.
var ErrTokenMalformed = errors.New("token is malformed", errors.CategoryAuth).
	WithCode(errors.CodeUnauthorized).
	WithTextCode(TextCodeTokenMalformed)

// ErrSeatLimitReached is returned when an account is at its plan ceiling.
var ErrSeatLimitReached = errors.New("account seat limit reached", errors.CategoryConflict).
	WithCode(errors.CodeConflict).
	WithTextCode(TextCodeSeatLimitReached)

// ErrAccountNotPaid is returned by the paid-account guard. Lookup failures
// resolve to this same error: the check fails closed.
var ErrAccountNotPaid = errors.New("account does not have a paid plan", errors.CategoryAuthz).
	WithCode(errors.CodeForbidden).
	WithTextCode(TextCodeAccountNotPaid)

// ErrEmailNotVerified is returned by the verified-email guard.
var ErrEmailNotVerified = errors.New("email address is not verified", errors.CategoryAuthz).
	WithCode(errors.CodeForbidden).
	WithTextCode(TextCodeEmailNotVerified)

// ErrInviteExpired is a pending invite past its expiry timestamp.
var ErrInviteExpired = errors.New("invite has expired", errors.CategoryValidation).
	WithCode(errors.CodeBadRequest).
	WithTextCode(TextCodeInviteExpired)

// ErrInviteRevoked is an invite explicitly withdrawn by the account.
var ErrInviteRevoked = errors.New("invite has been revoked", errors.CategoryValidation).
	WithCode(errors.CodeBadRequest).
	WithTextCode(TextCodeInviteRevoked)

// ErrInviteNotPending covers redemption of an already accepted invite.
var ErrInviteNotPending = errors.New("invite is no longer pending", errors.CategoryConflict).
	WithCode(errors.CodeConflict).
	WithTextCode(TextCodeInviteNotPending)

// ErrSignupDisabled is returned while the signup feature flag is off.
var ErrSignupDisabled = errors.New("signups are currently disabled", errors.CategoryAuthz).
	WithCode(errors.CodeForbidden).
	WithTextCode(TextCodeSignupDisabled)

// ErrInvitesDisabled is returned while the team invite feature flag is off.
var ErrInvitesDisabled = errors.New("team invites are currently disabled", errors.CategoryAuthz).
	WithCode(errors.CodeForbidden).
	WithTextCode(TextCodeInvitesDisabled)

// IsAuthError reports whether err carries authentication (401) semantics.
func IsAuthError(err error) bool {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return false
	}
	return richErr.Category == errors.CategoryAuth
}

// IsAuthzError reports whether err carries authorization (403) semantics.
func IsAuthzError(err error) bool {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return false
	}
	return richErr.Category == errors.CategoryAuthz
}

// IsTokenExpiredError reports whether err is the distinguishable expiry failure.
func IsTokenExpiredError(err error) bool {
	var richErr *errors.Error
	if errors.As(err, &richErr) {
		return richErr.TextCode == TextCodeTokenExpired
	}
	return false
}

// IsBadSignatureError reports whether err is the distinguishable tamper failure.
func IsBadSignatureError(err error) bool {
	var richErr *errors.Error
	if errors.As(err, &richErr) {
		return richErr.TextCode == TextCodeTokenBadSignature
	}
	return false
}

// IsMalformedError reports whether err is unparseable-token input.
func IsMalformedError(err error) bool {
	var richErr *errors.Error
	if errors.As(err, &richErr) {
		return richErr.TextCode == TextCodeTokenMalformed
	}
	return false
}
