package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SessionClaims is the fixed, typed shape of everything a session may hold.
// Presence or absence of every field is statically known; there is no open
// map for forged keys to hide in. Claims are a cache of the user row and are
// re-validated against storage on privilege-sensitive operations.
type SessionClaims struct {
	UserID        uuid.UUID `json:"user_id"`
	AccountID     uuid.UUID `json:"account_id"`
	Email         string    `json:"email"`
	Role          UserRole  `json:"role"`
	EmailVerified bool      `json:"email_verified"`

	// Impersonation state: both ids are set together or neither is.
	ImpersonatedUserID uuid.UUID `json:"impersonated_user_id,omitempty"`
	ImpersonatorUserID uuid.UUID `json:"impersonator_user_id,omitempty"`

	IssuedAt time.Time `json:"issued_at"`
}

// NewSessionClaims snapshots a user row into session claims.
func NewSessionClaims(user *User) *SessionClaims {
	if user == nil {
		return nil
	}
	return &SessionClaims{
		UserID:        user.ID,
		AccountID:     user.AccountID,
		Email:         NormalizeEmail(user.Email),
		Role:          user.Role,
		EmailVerified: user.EmailVerified,
		IssuedAt:      time.Now(),
	}
}

// IsImpersonating reports whether both impersonation ids are present.
func (s *SessionClaims) IsImpersonating() bool {
	return s != nil &&
		s.ImpersonatedUserID != uuid.Nil &&
		s.ImpersonatorUserID != uuid.Nil
}

// HasPartialImpersonationState reports the invalid one-key-only shape, which
// must be purged on next evaluation.
func (s *SessionClaims) HasPartialImpersonationState() bool {
	if s == nil {
		return false
	}
	return (s.ImpersonatedUserID != uuid.Nil) != (s.ImpersonatorUserID != uuid.Nil)
}

// SetImpersonation records both impersonation ids together.
func (s *SessionClaims) SetImpersonation(targetID, impersonatorID uuid.UUID) {
	s.ImpersonatedUserID = targetID
	s.ImpersonatorUserID = impersonatorID
}

// ClearImpersonation removes both impersonation ids. Idempotent: clearing an
// already-clear session is a no-op, never an error.
func (s *SessionClaims) ClearImpersonation() {
	if s == nil {
		return
	}
	s.ImpersonatedUserID = uuid.Nil
	s.ImpersonatorUserID = uuid.Nil
}

func (s SessionClaims) String() string {
	return fmt.Sprintf(
		"user=%s account=%s role=%s verified=%t impersonating=%t",
		s.UserID, s.AccountID, s.Role, s.EmailVerified, s.IsImpersonating(),
	)
}

// NewSessionID produces the opaque value stored in the browser cookie.
// 32 bytes of entropy, URL-safe.
func NewSessionID() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
