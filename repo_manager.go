package auth

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	Validate() error
	MustValidate()
	RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error
	Users() Users
	Accounts() Accounts
	TeamInvites() TeamInvites
	MemberPermissions() MemberPermissions
}

type mngr struct {
	db                *bun.DB
	users             Users
	accounts          Accounts
	teamInvites       TeamInvites
	memberPermissions MemberPermissions
}

func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:                db,
		users:             NewUsersRepository(db),
		accounts:          NewAccountsRepository(db),
		teamInvites:       NewTeamInvitesRepository(db),
		memberPermissions: NewMemberPermissionsRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if m.accounts == nil {
		return errors.New("repository accounts should be initialized")
	}

	if m.teamInvites == nil {
		return errors.New("repository teamInvites should be initialized")
	}

	if m.memberPermissions == nil {
		return errors.New("repository memberPermissions should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Users() Users {
	return m.users
}

func (m mngr) Accounts() Accounts {
	return m.accounts
}

func (m mngr) TeamInvites() TeamInvites {
	return m.teamInvites
}

func (m mngr) MemberPermissions() MemberPermissions {
	return m.memberPermissions
}
