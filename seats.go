package auth

import (
	"context"
	"fmt"
)

// UnlimitedSeats marks plans without a seat ceiling.
const UnlimitedSeats = -1

// planSeatLimits is the fixed seat ceiling per plan.
var planSeatLimits = map[AccountPlan]int{
	PlanFree:         1,
	PlanStarter:      3,
	PlanGrowth:       10,
	PlanProfessional: 25,
	PlanEnterprise:   UnlimitedSeats,
}

// SeatLimitFor returns the ceiling for a plan. Unknown plan names get the
// most restrictive ceiling: a typo or migration gap must never hand out
// unlimited seats.
func SeatLimitFor(plan AccountPlan) int {
	if limit, ok := planSeatLimits[plan]; ok {
		return limit
	}
	return planSeatLimits[PlanFree]
}

// SeatLimiter answers whether an account can take another team member.
type SeatLimiter struct {
	users  Users
	logger Logger
}

func NewSeatLimiter(users Users) *SeatLimiter {
	return &SeatLimiter{
		users:  users,
		logger: defLogger{},
	}
}

func (l *SeatLimiter) WithLogger(logger Logger) *SeatLimiter {
	if logger != nil {
		l.logger = logger
	}
	return l
}

// CanAddTeamMember reports whether the account may add a member, with a
// human-readable reason on denial. Counting errors fail closed.
func (l *SeatLimiter) CanAddTeamMember(ctx context.Context, account *Account) (bool, string) {
	if account == nil {
		return false, "account not found"
	}

	limit := SeatLimitFor(account.Plan)
	if limit == UnlimitedSeats {
		return true, ""
	}

	used, err := l.users.CountByAccount(ctx, account.ID)
	if err != nil {
		l.logger.Warn("seat count failed", "account_id", account.ID, "error", err)
		return false, "unable to verify seat usage"
	}

	if used >= limit {
		return false, fmt.Sprintf("plan %q allows %d seats and %d/%d are in use", account.Plan, limit, used, limit)
	}

	return true, ""
}
