package auth

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Permission names a guarded capability.
type Permission string

const (
	PermissionManageTeam         Permission = "team.manage"
	PermissionManageBilling      Permission = "billing.manage"
	PermissionManageCampaigns    Permission = "campaigns.manage"
	PermissionPublishCampaigns   Permission = "campaigns.publish"
	PermissionViewReports        Permission = "reports.view"
	PermissionManageIntegrations Permission = "integrations.manage"
)

// IsValid checks the permission against the known set.
func (p Permission) IsValid() bool {
	switch p {
	case PermissionManageTeam,
		PermissionManageBilling,
		PermissionManageCampaigns,
		PermissionPublishCampaigns,
		PermissionViewReports,
		PermissionManageIntegrations:
		return true
	default:
		return false
	}
}

// PermissionSet is a set of permission names.
type PermissionSet map[Permission]struct{}

// Contains reports set membership.
func (s PermissionSet) Contains(p Permission) bool {
	_, ok := s[p]
	return ok
}

// Union returns a new set with both sets' members. Evaluation only ever
// unions the role baseline with overlay grants, so the effective set is
// always a superset of the baseline.
func (s PermissionSet) Union(other PermissionSet) PermissionSet {
	out := make(PermissionSet, len(s)+len(other))
	for p := range s {
		out[p] = struct{}{}
	}
	for p := range other {
		out[p] = struct{}{}
	}
	return out
}

func newPermissionSet(perms ...Permission) PermissionSet {
	out := make(PermissionSet, len(perms))
	for _, p := range perms {
		out[p] = struct{}{}
	}
	return out
}

// rolePermissions is the static role→permission-set table. Owner is absent
// on purpose: owners bypass the table entirely.
var rolePermissions = map[UserRole]PermissionSet{
	RoleAdmin: newPermissionSet(
		PermissionManageTeam,
		PermissionManageCampaigns,
		PermissionPublishCampaigns,
		PermissionViewReports,
		PermissionManageIntegrations,
	),
	RoleMember: newPermissionSet(
		PermissionManageCampaigns,
		PermissionViewReports,
	),
	RoleUser: newPermissionSet(
		PermissionViewReports,
	),
}

// RoleBaseline returns the fixed permission set implied by a role. The
// returned set is a copy; callers can not mutate the table.
func RoleBaseline(role UserRole) PermissionSet {
	base, ok := rolePermissions[role]
	if !ok {
		return PermissionSet{}
	}
	out := make(PermissionSet, len(base))
	for p := range base {
		out[p] = struct{}{}
	}
	return out
}

// PermissionEvaluator answers permission questions for users, folding the
// per-member overlay over the role baseline. Overlay grants are additive
// only; a storage failure reads as "no overlay", never as "no permissions
// at all" beyond the baseline, and never as extra grants.
type PermissionEvaluator struct {
	overlays MemberPermissions
	logger   Logger
}

// NewPermissionEvaluator builds an evaluator. The overlay store may be nil,
// in which case only role baselines apply.
func NewPermissionEvaluator(overlays MemberPermissions) *PermissionEvaluator {
	return &PermissionEvaluator{
		overlays: overlays,
		logger:   defLogger{},
	}
}

func (e *PermissionEvaluator) WithLogger(logger Logger) *PermissionEvaluator {
	if logger != nil {
		e.logger = logger
	}
	return e
}

// EffectivePermissions returns baseline ∪ overlay for the user.
func (e *PermissionEvaluator) EffectivePermissions(ctx context.Context, user *User) PermissionSet {
	if user == nil {
		return PermissionSet{}
	}

	baseline := RoleBaseline(user.Role)
	if e.overlays == nil {
		return baseline
	}

	grants, err := e.overlays.ListByUser(ctx, user.ID)
	if err != nil {
		// fail closed to the baseline
		e.logger.Warn("permission overlay lookup failed", "user_id", user.ID, "error", err)
		return baseline
	}

	overlay := make(PermissionSet, len(grants))
	for _, grant := range grants {
		if grant.IsValid() {
			overlay[grant] = struct{}{}
		}
	}

	return baseline.Union(overlay)
}

// HasPermission reports whether the user holds the permission. Owners always
// do.
func (e *PermissionEvaluator) HasPermission(ctx context.Context, user *User, permission Permission) bool {
	if user == nil {
		return false
	}

	if user.Role == RoleOwner {
		return true
	}

	return e.EffectivePermissions(ctx, user).Contains(permission)
}

// CanManageUser decides whether actor may manage target. The boolean is
// authoritative; the reason is for UI display only.
//
// Rules: same account required; acting on oneself is always allowed; owner
// manages anyone; admin manages plain members and users only; everyone else
// manages nobody but themselves.
func CanManageUser(actor, target *User) (bool, string) {
	if actor == nil || target == nil {
		return false, "user not found"
	}

	if actor.AccountID != target.AccountID {
		return false, "users belong to different accounts"
	}

	if actor.ID == target.ID {
		return true, ""
	}

	switch actor.Role {
	case RoleOwner:
		return true, ""
	case RoleAdmin:
		switch target.Role {
		case RoleMember, RoleUser:
			return true, ""
		case RoleAdmin:
			return false, "admins can not manage other admins"
		case RoleOwner:
			return false, "admins can not manage the account owner"
		default:
			return false, fmt.Sprintf("unknown role %q", target.Role)
		}
	default:
		return false, "only owners and admins can manage team members"
	}
}

// HasPermissionByID resolves the user first, then evaluates. Lookup errors
// fail closed.
func (e *PermissionEvaluator) HasPermissionByID(ctx context.Context, users Users, userID uuid.UUID, permission Permission) bool {
	if users == nil {
		return false
	}

	user, err := users.GetByID(ctx, userID.String())
	if err != nil || user == nil {
		return false
	}

	return e.HasPermission(ctx, user, permission)
}
