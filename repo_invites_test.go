package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/leadlocal/go-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTeamInvitesRepository(t *testing.T) {
	ctx := context.Background()

	seedInviter := func(t *testing.T, manager auth.RepositoryManager, accountID uuid.UUID) *auth.User {
		t.Helper()
		inviter, err := manager.Users().Register(ctx, &auth.User{
			AccountID: accountID,
			Email:     "owner@example.com",
			Role:      auth.RoleOwner,
		})
		require.NoError(t, err)
		return inviter
	}

	t.Run("create fills defaults", func(t *testing.T) {
		_, manager, account := setupRepoDB(t)
		inviter := seedInviter(t, manager, account.ID)

		created, err := manager.TeamInvites().Create(ctx, &auth.TeamInvite{
			AccountID: account.ID,
			Email:     "  New.Member@Example.com ",
			InviterID: inviter.ID,
		})
		require.NoError(t, err)

		assert.NotEqual(t, uuid.Nil, created.ID)
		assert.Equal(t, "new.member@example.com", created.Email)
		assert.Equal(t, auth.RoleMember, created.Role)
		assert.Equal(t, auth.InviteStatusPending, created.Status)
		assert.NotEmpty(t, created.Token)
		require.NotNil(t, created.ExpiresAt)
		assert.WithinDuration(t,
			time.Now().Add(auth.InviteDefaultTTL), *created.ExpiresAt, time.Minute)
	})

	t.Run("token lookup", func(t *testing.T) {
		_, manager, account := setupRepoDB(t)
		inviter := seedInviter(t, manager, account.ID)

		created, err := manager.TeamInvites().Create(ctx, &auth.TeamInvite{
			AccountID: account.ID,
			Email:     "member@example.com",
			InviterID: inviter.ID,
		})
		require.NoError(t, err)

		found, err := manager.TeamInvites().GetByToken(ctx, created.Token)
		require.NoError(t, err)
		assert.Equal(t, created.ID, found.ID)
		assert.Equal(t, created.Email, found.Email)

		_, err = manager.TeamInvites().GetByToken(ctx, "no-such-token")
		assert.True(t, repository.IsRecordNotFound(err))
	})

	t.Run("token collisions are rejected", func(t *testing.T) {
		_, manager, account := setupRepoDB(t)
		inviter := seedInviter(t, manager, account.ID)

		token := auth.NewInviteToken()
		_, err := manager.TeamInvites().Create(ctx, &auth.TeamInvite{
			AccountID: account.ID,
			Email:     "first@example.com",
			InviterID: inviter.ID,
			Token:     token,
		})
		require.NoError(t, err)

		_, err = manager.TeamInvites().Create(ctx, &auth.TeamInvite{
			AccountID: account.ID,
			Email:     "second@example.com",
			InviterID: inviter.ID,
			Token:     token,
		})
		assert.Error(t, err)
	})

	t.Run("accepting stamps status and timestamp", func(t *testing.T) {
		_, manager, account := setupRepoDB(t)
		inviter := seedInviter(t, manager, account.ID)

		created, err := manager.TeamInvites().Create(ctx, &auth.TeamInvite{
			AccountID: account.ID,
			Email:     "member@example.com",
			InviterID: inviter.ID,
		})
		require.NoError(t, err)

		accepted, err := manager.TeamInvites().MarkAccepted(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, auth.InviteStatusAccepted, accepted.Status)
		assert.NotNil(t, accepted.AcceptedAt)
	})

	t.Run("revoking stamps status and timestamp", func(t *testing.T) {
		_, manager, account := setupRepoDB(t)
		inviter := seedInviter(t, manager, account.ID)

		created, err := manager.TeamInvites().Create(ctx, &auth.TeamInvite{
			AccountID: account.ID,
			Email:     "member@example.com",
			InviterID: inviter.ID,
		})
		require.NoError(t, err)

		revoked, err := manager.TeamInvites().Revoke(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, auth.InviteStatusRevoked, revoked.Status)
		assert.NotNil(t, revoked.RevokedAt)

		reloaded, err := manager.TeamInvites().GetByToken(ctx, created.Token)
		require.NoError(t, err)
		assert.Equal(t, auth.InviteStatusRevoked, reloaded.Status)
	})
}
