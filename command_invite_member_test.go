package auth_test

import (
	"context"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/leadlocal/go-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type inviteFixture struct {
	users    *MockUsers
	accounts *MockAccounts
	invites  *MockTeamInvites
	repo     *MockRepositoryManager
	handler  *auth.InviteMemberHandler
	owner    *auth.User
	admin    *auth.User
	member   *auth.User
	account  *auth.Account
}

func newInviteFixture() *inviteFixture {
	f := &inviteFixture{
		users:    &MockUsers{},
		accounts: &MockAccounts{},
		invites:  &MockTeamInvites{},
		repo:     &MockRepositoryManager{},
	}

	accountID := uuid.New()
	f.account = &auth.Account{ID: accountID, Plan: auth.PlanStarter, Status: auth.AccountStatusActive, Name: "Acme"}
	f.owner = &auth.User{ID: uuid.New(), AccountID: accountID, Email: "owner@example.com", Role: auth.RoleOwner}
	f.admin = &auth.User{ID: uuid.New(), AccountID: accountID, Email: "admin@example.com", Role: auth.RoleAdmin}
	f.member = &auth.User{ID: uuid.New(), AccountID: accountID, Email: "member@example.com", Role: auth.RoleMember}

	f.repo.On("Users").Return(f.users)
	f.repo.On("Accounts").Return(f.accounts)
	f.repo.On("TeamInvites").Return(f.invites)

	f.handler = auth.NewInviteMemberHandler(
		f.repo,
		auth.NewSeatLimiter(f.users).WithLogger(testLogger{}),
		auth.NewPermissionEvaluator(nil),
	).WithLogger(testLogger{})

	return f
}

func (f *inviteFixture) expectActor(actor *auth.User) {
	f.users.On("GetByID", mock.Anything, actor.ID.String(), mock.Anything).Return(actor, nil).Once()
}

func (f *inviteFixture) expectSeats(used int) {
	f.users.On("CountByAccount", mock.Anything, f.account.ID).Return(used, nil).Once()
	f.accounts.On("GetByID", mock.Anything, f.account.ID.String(), mock.Anything).Return(f.account, nil).Once()
}

func (f *inviteFixture) expectNoExistingUser(email string) {
	f.users.On("GetByIdentifier", mock.Anything, email, mock.Anything).
		Return(nil, repository.NewRecordNotFound()).Once()
}

func TestInviteMemberHandlerExecute(t *testing.T) {
	ctx := context.Background()

	t.Run("admin invites a member", func(t *testing.T) {
		f := newInviteFixture()
		f.expectActor(f.admin)
		f.expectSeats(2)
		f.expectNoExistingUser("new.member@example.com")

		expires := time.Now().Add(auth.InviteDefaultTTL)
		stored := &auth.TeamInvite{
			ID:        uuid.New(),
			AccountID: f.account.ID,
			Email:     "new.member@example.com",
			Role:      auth.RoleMember,
			InviterID: f.admin.ID,
			Token:     auth.NewInviteToken(),
			Status:    auth.InviteStatusPending,
			ExpiresAt: &expires,
		}
		f.invites.On("CreateTx", mock.Anything, mock.Anything, mock.MatchedBy(func(inv *auth.TeamInvite) bool {
			return inv.Email == "new.member@example.com" &&
				inv.Role == auth.RoleMember &&
				inv.AccountID == f.account.ID &&
				inv.InviterID == f.admin.ID
		}), mock.Anything).Return(stored, nil).Once()
		runTx(f.repo).Return(nil).Once()

		sink := &MockActivitySink{}
		sink.On("Record", mock.Anything, mock.MatchedBy(func(evt auth.ActivityEvent) bool {
			return evt.EventType == auth.ActivityEventInviteIssued &&
				evt.Actor.ID == f.admin.ID.String()
		})).Return(nil).Once()

		messenger := &stubMessenger{}
		var resp *auth.InviteMemberResponse

		handler := f.handler.
			WithActivitySink(sink).
			WithMessenger(messenger, auth.NewMessageComposer("https://app.example.com", "LeadLocal"))

		err := handler.Execute(ctx, auth.InviteMemberMessage{
			ActorID:    f.admin.ID,
			Email:      "New.Member@Example.com",
			OnResponse: func(r *auth.InviteMemberResponse) { resp = r },
		})

		require.NoError(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, stored, resp.Invite)

		sent := messenger.sentTo("new.member@example.com")
		require.Len(t, sent, 1)
		assert.Contains(t, sent[0].body, "https://app.example.com/invites/accept/")

		f.users.AssertExpectations(t)
		f.invites.AssertExpectations(t)
		sink.AssertExpectations(t)
	})

	t.Run("member can not invite", func(t *testing.T) {
		f := newInviteFixture()
		f.expectActor(f.member)

		err := f.handler.Execute(ctx, auth.InviteMemberMessage{
			ActorID: f.member.ID,
			Email:   "new.member@example.com",
		})

		assert.ErrorIs(t, err, auth.ErrForbidden)
		f.invites.AssertNotCalled(t, "CreateTx", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("only owners hand out admin seats", func(t *testing.T) {
		f := newInviteFixture()
		f.expectActor(f.admin)

		err := f.handler.Execute(ctx, auth.InviteMemberMessage{
			ActorID: f.admin.ID,
			Email:   "new.admin@example.com",
			Role:    string(auth.RoleAdmin),
		})

		assert.ErrorIs(t, err, auth.ErrForbidden)
	})

	t.Run("owner invites an admin", func(t *testing.T) {
		f := newInviteFixture()
		f.expectActor(f.owner)
		f.expectSeats(1)
		f.expectNoExistingUser("new.admin@example.com")

		f.invites.On("CreateTx", mock.Anything, mock.Anything, mock.MatchedBy(func(inv *auth.TeamInvite) bool {
			return inv.Role == auth.RoleAdmin
		}), mock.Anything).Return(&auth.TeamInvite{ID: uuid.New(), Role: auth.RoleAdmin}, nil).Once()
		runTx(f.repo).Return(nil).Once()

		err := f.handler.Execute(ctx, auth.InviteMemberMessage{
			ActorID: f.owner.ID,
			Email:   "new.admin@example.com",
			Role:    string(auth.RoleAdmin),
		})

		require.NoError(t, err)
		f.invites.AssertExpectations(t)
	})

	t.Run("invites can not grant owner", func(t *testing.T) {
		f := newInviteFixture()

		err := f.handler.Execute(ctx, auth.InviteMemberMessage{
			ActorID: f.owner.ID,
			Email:   "new.owner@example.com",
			Role:    string(auth.RoleOwner),
		})

		require.Error(t, err)
		f.users.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("seat ceiling blocks the invite", func(t *testing.T) {
		f := newInviteFixture()
		f.expectActor(f.admin)
		f.expectSeats(3) // starter allows 3

		err := f.handler.Execute(ctx, auth.InviteMemberMessage{
			ActorID: f.admin.ID,
			Email:   "new.member@example.com",
		})

		require.Error(t, err)
		var richErr *goerrors.Error
		require.ErrorAs(t, err, &richErr)
		assert.Equal(t, auth.TextCodeSeatLimitReached, richErr.TextCode)
		f.invites.AssertNotCalled(t, "CreateTx", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("existing account member can not be invited again", func(t *testing.T) {
		f := newInviteFixture()
		f.expectActor(f.admin)
		f.expectSeats(2)
		f.users.On("GetByIdentifier", mock.Anything, "member@example.com", mock.Anything).
			Return(f.member, nil).Once()

		err := f.handler.Execute(ctx, auth.InviteMemberMessage{
			ActorID: f.admin.ID,
			Email:   "member@example.com",
		})

		require.Error(t, err)
		f.invites.AssertNotCalled(t, "CreateTx", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unknown actor reads as unauthenticated", func(t *testing.T) {
		f := newInviteFixture()
		ghost := uuid.New()
		f.users.On("GetByID", mock.Anything, ghost.String(), mock.Anything).
			Return(nil, repository.NewRecordNotFound()).Once()

		err := f.handler.Execute(ctx, auth.InviteMemberMessage{
			ActorID: ghost,
			Email:   "new.member@example.com",
		})

		assert.ErrorIs(t, err, auth.ErrAuthRequired)
	})
}
