package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/leadlocal/go-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestRevokeInviteHandlerExecute(t *testing.T) {
	ctx := context.Background()

	accountID := uuid.New()
	admin := &auth.User{ID: uuid.New(), AccountID: accountID, Email: "admin@example.com", Role: auth.RoleAdmin}
	member := &auth.User{ID: uuid.New(), AccountID: accountID, Email: "member@example.com", Role: auth.RoleMember}

	newHandler := func(users *MockUsers, invites *MockTeamInvites) *auth.RevokeInviteHandler {
		repo := &MockRepositoryManager{}
		repo.On("Users").Return(users)
		repo.On("TeamInvites").Return(invites)
		return auth.NewRevokeInviteHandler(repo, auth.NewPermissionEvaluator(nil)).
			WithLogger(testLogger{})
	}

	t.Run("admin revokes a pending invite", func(t *testing.T) {
		users := &MockUsers{}
		invites := &MockTeamInvites{}

		invite := pendingInvite(accountID)
		revoked := *invite
		revoked.Status = auth.InviteStatusRevoked

		users.On("GetByID", mock.Anything, admin.ID.String(), mock.Anything).Return(admin, nil).Once()
		invites.On("GetByID", mock.Anything, invite.ID.String(), mock.Anything).Return(invite, nil).Once()
		invites.On("Revoke", mock.Anything, invite.ID).Return(&revoked, nil).Once()

		sink := &MockActivitySink{}
		sink.On("Record", mock.Anything, mock.MatchedBy(func(evt auth.ActivityEvent) bool {
			return evt.EventType == auth.ActivityEventInviteRevoked &&
				evt.Actor.ID == admin.ID.String()
		})).Return(nil).Once()

		var resp *auth.RevokeInviteResponse
		handler := newHandler(users, invites).WithActivitySink(sink)

		err := handler.Execute(ctx, auth.RevokeInviteMessage{
			ActorID:    admin.ID,
			InviteID:   invite.ID,
			OnResponse: func(r *auth.RevokeInviteResponse) { resp = r },
		})

		require.NoError(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, auth.InviteStatusRevoked, resp.Invite.Status)

		invites.AssertExpectations(t)
		sink.AssertExpectations(t)
	})

	t.Run("member can not revoke", func(t *testing.T) {
		users := &MockUsers{}
		invites := &MockTeamInvites{}
		users.On("GetByID", mock.Anything, member.ID.String(), mock.Anything).Return(member, nil).Once()

		handler := newHandler(users, invites)

		err := handler.Execute(ctx, auth.RevokeInviteMessage{
			ActorID:  member.ID,
			InviteID: uuid.New(),
		})

		assert.ErrorIs(t, err, auth.ErrForbidden)
		invites.AssertNotCalled(t, "Revoke", mock.Anything, mock.Anything)
	})

	t.Run("invites of other accounts are out of reach", func(t *testing.T) {
		users := &MockUsers{}
		invites := &MockTeamInvites{}

		foreign := pendingInvite(uuid.New())
		users.On("GetByID", mock.Anything, admin.ID.String(), mock.Anything).Return(admin, nil).Once()
		invites.On("GetByID", mock.Anything, foreign.ID.String(), mock.Anything).Return(foreign, nil).Once()

		handler := newHandler(users, invites)

		err := handler.Execute(ctx, auth.RevokeInviteMessage{
			ActorID:  admin.ID,
			InviteID: foreign.ID,
		})

		assert.ErrorIs(t, err, auth.ErrForbidden)
		invites.AssertNotCalled(t, "Revoke", mock.Anything, mock.Anything)
	})

	t.Run("expired invite reports its state", func(t *testing.T) {
		users := &MockUsers{}
		invites := &MockTeamInvites{}

		invite := pendingInvite(accountID)
		past := time.Now().Add(-time.Hour)
		invite.ExpiresAt = &past

		users.On("GetByID", mock.Anything, admin.ID.String(), mock.Anything).Return(admin, nil).Once()
		invites.On("GetByID", mock.Anything, invite.ID.String(), mock.Anything).Return(invite, nil).Once()

		handler := newHandler(users, invites)

		err := handler.Execute(ctx, auth.RevokeInviteMessage{
			ActorID:  admin.ID,
			InviteID: invite.ID,
		})

		assert.ErrorIs(t, err, auth.ErrInviteExpired)
	})

	t.Run("revoking twice reports already revoked", func(t *testing.T) {
		users := &MockUsers{}
		invites := &MockTeamInvites{}

		invite := pendingInvite(accountID)
		invite.Status = auth.InviteStatusRevoked

		users.On("GetByID", mock.Anything, admin.ID.String(), mock.Anything).Return(admin, nil).Once()
		invites.On("GetByID", mock.Anything, invite.ID.String(), mock.Anything).Return(invite, nil).Once()

		handler := newHandler(users, invites)

		err := handler.Execute(ctx, auth.RevokeInviteMessage{
			ActorID:  admin.ID,
			InviteID: invite.ID,
		})

		assert.ErrorIs(t, err, auth.ErrInviteRevoked)
		invites.AssertNotCalled(t, "Revoke", mock.Anything, mock.Anything)
	})

	t.Run("unknown invite", func(t *testing.T) {
		users := &MockUsers{}
		invites := &MockTeamInvites{}

		ghost := uuid.New()
		users.On("GetByID", mock.Anything, admin.ID.String(), mock.Anything).Return(admin, nil).Once()
		invites.On("GetByID", mock.Anything, ghost.String(), mock.Anything).
			Return(nil, repository.NewRecordNotFound()).Once()

		handler := newHandler(users, invites)

		err := handler.Execute(ctx, auth.RevokeInviteMessage{
			ActorID:  admin.ID,
			InviteID: ghost,
		})

		require.Error(t, err)
	})
}
