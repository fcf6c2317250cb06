package auth

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the user model. Identity claims cached in a session are always a
// snapshot of this record and are re-validated against it on privilege
// sensitive operations.
type User struct {
	bun.BaseModel  `bun:"table:users,alias:usr"`
	ID             uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	AccountID      uuid.UUID  `bun:"account_id,notnull,type:uuid" json:"account_id,omitempty"`
	Account        *Account   `bun:"rel:belongs-to,join:account_id=id" json:"account,omitempty"`
	Role           UserRole   `bun:"user_role,notnull" json:"user_role,omitempty"`
	FirstName      string     `bun:"first_name" json:"first_name,omitempty"`
	LastName       string     `bun:"last_name" json:"last_name,omitempty"`
	Email          string     `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash   string     `bun:"password_hash" json:"password_hash,omitempty"`
	EmailVerified  bool       `bun:"is_email_verified" json:"is_email_verified,omitempty"`
	LoginAttempts  int        `bun:"login_attempts" json:"login_attempts,omitempty"`
	LoginAttemptAt *time.Time `bun:"login_attempt_at" json:"login_attempt_at,omitempty"`
	LoggedInAt     *time.Time `bun:"loggedin_at" json:"loggedin_at,omitempty"`
	CreatedAt      *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt      *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// NormalizeEmail lower-cases and trims the user's email. Emails are unique
// case-insensitively, so every write path normalizes first.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// AccountStatus is the account's billing status
type AccountStatus string

const (
	AccountStatusActive    AccountStatus = "active"
	AccountStatusPastDue   AccountStatus = "past_due"
	AccountStatusCancelled AccountStatus = "cancelled"
)

// Account owns 1..N users. Exactly one of them carries RoleOwner.
type Account struct {
	bun.BaseModel `bun:"table:accounts,alias:acct"`
	ID            uuid.UUID     `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Name          string        `bun:"name" json:"name,omitempty"`
	Plan          AccountPlan   `bun:"plan,notnull" json:"plan,omitempty"`
	Status        AccountStatus `bun:"status,notnull" json:"status,omitempty"`
	CreatedAt     *time.Time    `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time    `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt     *time.Time    `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// InviteStatus tracks the stored lifecycle of a team invite. Expiry is a
// computed property over ExpiresAt, never a stored status.
type InviteStatus string

const (
	InviteStatusPending  InviteStatus = "pending"
	InviteStatusAccepted InviteStatus = "accepted"
	InviteStatusExpired  InviteStatus = "expired"
	InviteStatusRevoked  InviteStatus = "revoked"
)

// InviteDefaultTTL is how long a fresh invite stays redeemable.
const InviteDefaultTTL = 7 * 24 * time.Hour

// TeamInvite is a pending offer to join an account with a given role.
type TeamInvite struct {
	bun.BaseModel `bun:"table:team_invites,alias:inv"`
	ID            uuid.UUID    `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	AccountID     uuid.UUID    `bun:"account_id,notnull,type:uuid" json:"account_id,omitempty"`
	Email         string       `bun:"email,notnull" json:"email,omitempty"`
	Role          UserRole     `bun:"user_role,notnull" json:"user_role,omitempty"`
	InviterID     uuid.UUID    `bun:"inviter_id,notnull,type:uuid" json:"inviter_id,omitempty"`
	Token         string       `bun:"token,notnull,unique" json:"-"`
	Status        InviteStatus `bun:"status,notnull" json:"status,omitempty"`
	CreatedAt     *time.Time   `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	ExpiresAt     *time.Time   `bun:"expires_at,notnull" json:"expires_at,omitempty"`
	AcceptedAt    *time.Time   `bun:"accepted_at,nullzero" json:"accepted_at,omitempty"`
	RevokedAt     *time.Time   `bun:"revoked_at,nullzero" json:"revoked_at,omitempty"`
}

// IsExpired reports whether the invite is past its expiry, regardless of the
// stored status.
func (i *TeamInvite) IsExpired(now time.Time) bool {
	if i == nil || i.ExpiresAt == nil {
		return true
	}
	return now.After(*i.ExpiresAt)
}

// EffectiveStatus folds computed expiry over the stored status.
func (i *TeamInvite) EffectiveStatus(now time.Time) InviteStatus {
	if i == nil {
		return InviteStatusExpired
	}
	if i.Status == InviteStatusPending && i.IsExpired(now) {
		return InviteStatusExpired
	}
	return i.Status
}

// MemberPermission is a per-member overlay grant. Overlays are additive-only:
// rows grant extra permissions over the role baseline and can never revoke
// what the role already implies.
type MemberPermission struct {
	bun.BaseModel `bun:"table:member_permissions,alias:mperm"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	Permission    Permission `bun:"permission,notnull" json:"permission,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// SessionRecord is the bun-backed row behind the default SessionStore.
type SessionRecord struct {
	bun.BaseModel `bun:"table:sessions,alias:sess"`
	ID            string        `bun:"id,pk" json:"id"`
	Claims        SessionClaims `bun:"claims,type:jsonb" json:"claims"`
	ExpiresAt     time.Time     `bun:"expires_at,notnull" json:"expires_at"`
	CreatedAt     *time.Time    `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time    `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}
