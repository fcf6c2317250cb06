package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// TeamInvites manages the invite lifecycle. Stored transitions are
// pending→accepted and pending→revoked; expiry is computed at read time.
type TeamInvites interface {
	repository.Repository[*TeamInvite]

	GetByToken(ctx context.Context, token string) (*TeamInvite, error)
	GetByTokenTx(ctx context.Context, tx bun.IDB, token string) (*TeamInvite, error)

	MarkAccepted(ctx context.Context, id uuid.UUID) (*TeamInvite, error)
	MarkAcceptedTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*TeamInvite, error)

	Revoke(ctx context.Context, id uuid.UUID) (*TeamInvite, error)
	RevokeTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*TeamInvite, error)
}

type invites struct {
	repository.Repository[*TeamInvite]
	db *bun.DB
}

var _ TeamInvites = (*invites)(nil)

func NewTeamInvitesRepository(db *bun.DB) TeamInvites {
	repo := repository.NewRepository[*TeamInvite](db, repository.ModelHandlers[*TeamInvite]{
		NewRecord: func() *TeamInvite { return &TeamInvite{} },
		GetID: func(record *TeamInvite) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *TeamInvite, id uuid.UUID) {
			if record != nil {
				record.ID = id
			}
		},
		GetIdentifier: func() string {
			return "token"
		},
	})

	return &invites{
		Repository: repo,
		db:         db,
	}
}

func (r *invites) CreateTx(ctx context.Context, tx bun.IDB, record *TeamInvite, criteria ...repository.InsertCriteria) (*TeamInvite, error) {
	prepareInviteDefaults(record)
	return r.Repository.CreateTx(ctx, tx, record, criteria...)
}

func (r *invites) Create(ctx context.Context, record *TeamInvite, criteria ...repository.InsertCriteria) (*TeamInvite, error) {
	return r.CreateTx(ctx, r.db, record, criteria...)
}

func (r *invites) GetByToken(ctx context.Context, token string) (*TeamInvite, error) {
	return r.GetByTokenTx(ctx, r.db, token)
}

func (r *invites) GetByTokenTx(ctx context.Context, tx bun.IDB, token string) (*TeamInvite, error) {
	record := &TeamInvite{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.token = ?", token).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound()
		}
		return nil, err
	}

	return record, nil
}

func (r *invites) MarkAccepted(ctx context.Context, id uuid.UUID) (*TeamInvite, error) {
	return r.MarkAcceptedTx(ctx, r.db, id)
}

func (r *invites) MarkAcceptedTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*TeamInvite, error) {
	now := time.Now()
	record := &TeamInvite{
		ID:         id,
		Status:     InviteStatusAccepted,
		AcceptedAt: &now,
	}
	return r.Repository.UpdateTx(ctx, tx, record, repository.UpdateByID(id.String()))
}

func (r *invites) Revoke(ctx context.Context, id uuid.UUID) (*TeamInvite, error) {
	return r.RevokeTx(ctx, r.db, id)
}

func (r *invites) RevokeTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*TeamInvite, error) {
	now := time.Now()
	record := &TeamInvite{
		ID:        id,
		Status:    InviteStatusRevoked,
		RevokedAt: &now,
	}
	return r.Repository.UpdateTx(ctx, tx, record, repository.UpdateByID(id.String()))
}

func prepareInviteDefaults(record *TeamInvite) {
	if record == nil {
		return
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	record.Email = NormalizeEmail(record.Email)

	if record.Role == "" {
		record.Role = RoleMember
	}

	if record.Status == "" {
		record.Status = InviteStatusPending
	}

	if record.Token == "" {
		record.Token = NewInviteToken()
	}

	if record.ExpiresAt == nil {
		expires := time.Now().Add(InviteDefaultTTL)
		record.ExpiresAt = &expires
	}
}

// NewInviteToken returns a random unguessable token for invite links.
func NewInviteToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing is unrecoverable; fall back to uuid entropy
		return uuid.NewString() + uuid.NewString()
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
