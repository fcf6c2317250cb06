package auth

// UserRole is the user's role within an account
type UserRole string

const (
	// RoleUser is a basic authenticated user with no team powers
	RoleUser UserRole = "user"
	// RoleMember is a regular team member
	RoleMember UserRole = "member"
	// RoleAdmin can manage plain members and run support impersonation
	RoleAdmin UserRole = "admin"
	// RoleOwner is the single account owner; bypasses permission checks
	RoleOwner UserRole = "owner"
)

// IsValid checks if the role is one of the predefined valid roles
func (r UserRole) IsValid() bool {
	switch r {
	case RoleUser, RoleMember, RoleAdmin, RoleOwner:
		return true
	default:
		return false
	}
}

// CanImpersonate reports whether this role may act as another user.
func (r UserRole) CanImpersonate() bool {
	switch r {
	case RoleAdmin, RoleOwner:
		return true
	default:
		return false
	}
}

// IsAtLeast checks if this role meets the minimum required level
func (r UserRole) IsAtLeast(minRole UserRole) bool {
	roleHierarchy := map[UserRole]int{
		RoleUser:   0,
		RoleMember: 1,
		RoleAdmin:  2,
		RoleOwner:  3,
	}

	currentLevel, exists := roleHierarchy[r]
	if !exists {
		return false
	}

	minLevel, exists := roleHierarchy[minRole]
	if !exists {
		return false
	}

	return currentLevel >= minLevel
}

// GetAllRoles returns all predefined roles in hierarchical order
func GetAllRoles() []UserRole {
	return []UserRole{
		RoleUser,
		RoleMember,
		RoleAdmin,
		RoleOwner,
	}
}

// ParseRole safely parses a string into a UserRole type
func ParseRole(roleStr string) (UserRole, bool) {
	role := UserRole(roleStr)
	return role, role.IsValid()
}

// AccountPlan is the billing plan an account sits on
type AccountPlan string

const (
	PlanFree         AccountPlan = "free"
	PlanStarter      AccountPlan = "starter"
	PlanGrowth       AccountPlan = "growth"
	PlanProfessional AccountPlan = "professional"
	PlanEnterprise   AccountPlan = "enterprise"
)

// IsValid checks if the plan is one of the predefined plans
func (p AccountPlan) IsValid() bool {
	switch p {
	case PlanFree, PlanStarter, PlanGrowth, PlanProfessional, PlanEnterprise:
		return true
	default:
		return false
	}
}

// DefaultPaidPlans is the allow-list consulted by the paid-account guard when
// the Config does not override it.
func DefaultPaidPlans() []string {
	return []string{
		string(PlanStarter),
		string(PlanGrowth),
		string(PlanProfessional),
		string(PlanEnterprise),
	}
}
