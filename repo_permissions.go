package auth

import (
	"context"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// MemberPermissions stores per-member overlay grants. The write path enforces
// the additive-only rule structurally: a grant naming a permission the user's
// role baseline already implies is rejected as redundant rather than stored,
// so no stored row can ever be read as a revocation.
type MemberPermissions interface {
	ListByUser(ctx context.Context, userID uuid.UUID) ([]Permission, error)
	ListByUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) ([]Permission, error)

	Grant(ctx context.Context, user *User, permission Permission) (*MemberPermission, error)
	GrantTx(ctx context.Context, tx bun.IDB, user *User, permission Permission) (*MemberPermission, error)

	RevokeGrant(ctx context.Context, userID uuid.UUID, permission Permission) error
	RevokeGrantTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, permission Permission) error
}

type memberPermissions struct {
	repository.Repository[*MemberPermission]
	db *bun.DB
}

var _ MemberPermissions = (*memberPermissions)(nil)

func NewMemberPermissionsRepository(db *bun.DB) MemberPermissions {
	repo := repository.NewRepository[*MemberPermission](db, repository.ModelHandlers[*MemberPermission]{
		NewRecord: func() *MemberPermission { return &MemberPermission{} },
		GetID: func(record *MemberPermission) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *MemberPermission, id uuid.UUID) {
			if record != nil {
				record.ID = id
			}
		},
	})

	return &memberPermissions{
		Repository: repo,
		db:         db,
	}
}

func (r *memberPermissions) ListByUser(ctx context.Context, userID uuid.UUID) ([]Permission, error) {
	return r.ListByUserTx(ctx, r.db, userID)
}

func (r *memberPermissions) ListByUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) ([]Permission, error) {
	var records []*MemberPermission
	err := tx.NewSelect().
		Model(&records).
		Where("?TableAlias.user_id = ?", userID).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	grants := make([]Permission, 0, len(records))
	for _, record := range records {
		grants = append(grants, record.Permission)
	}
	return grants, nil
}

func (r *memberPermissions) Grant(ctx context.Context, user *User, permission Permission) (*MemberPermission, error) {
	return r.GrantTx(ctx, r.db, user, permission)
}

func (r *memberPermissions) GrantTx(ctx context.Context, tx bun.IDB, user *User, permission Permission) (*MemberPermission, error) {
	if user == nil {
		return nil, errors.New("user is required", errors.CategoryBadInput)
	}

	if !permission.IsValid() {
		return nil, errors.New("unknown permission", errors.CategoryValidation).
			WithMetadata(map[string]any{"permission": string(permission)})
	}

	if RoleBaseline(user.Role).Contains(permission) {
		return nil, errors.New("permission already granted by role baseline", errors.CategoryValidation).
			WithMetadata(map[string]any{
				"permission": string(permission),
				"role":       string(user.Role),
			})
	}

	record := &MemberPermission{
		ID:         uuid.New(),
		UserID:     user.ID,
		Permission: permission,
	}

	return r.Repository.CreateTx(ctx, tx, record)
}

// RevokeGrant removes an overlay row. Only overlay grants can be withdrawn;
// the role baseline is untouchable from here.
func (r *memberPermissions) RevokeGrant(ctx context.Context, userID uuid.UUID, permission Permission) error {
	return r.RevokeGrantTx(ctx, r.db, userID, permission)
}

func (r *memberPermissions) RevokeGrantTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, permission Permission) error {
	_, err := tx.NewDelete().
		Model((*MemberPermission)(nil)).
		Where("user_id = ?", userID).
		Where("permission = ?", permission).
		Exec(ctx)
	return err
}
