package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-featuregate/gate"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type InviteMemberMessage struct {
	ActorID    uuid.UUID `json:"actor_id" doc:"User issuing the invite"`
	Email      string    `json:"email" doc:"Address to invite"`
	Role       string    `json:"role" doc:"Role the invitee will hold, defaults to member"`
	OnResponse func(r *InviteMemberResponse)
}

func (e InviteMemberMessage) Type() string { return "team.invite_member" }

type InviteMemberResponse struct {
	Invite *TeamInvite `json:"invite"`
}

// InviteMemberHandler issues a team invite after the actor's authority, the
// seat ceiling, and the invitee's role have all been checked. The invite
// email is sent outside the transaction; delivery failure leaves a valid
// pending invite behind.
type InviteMemberHandler struct {
	repo        RepositoryManager
	seats       *SeatLimiter
	evaluator   *PermissionEvaluator
	featureGate gate.FeatureGate
	messenger   Messenger
	composer    *MessageComposer
	logger      Logger
	activity    ActivitySink
}

func NewInviteMemberHandler(repo RepositoryManager, seats *SeatLimiter, evaluator *PermissionEvaluator) *InviteMemberHandler {
	return &InviteMemberHandler{
		repo:      repo,
		seats:     seats,
		evaluator: evaluator,
		logger:    defLogger{},
		activity:  noopActivitySink{},
	}
}

func (h *InviteMemberHandler) WithFeatureGate(featureGate gate.FeatureGate) *InviteMemberHandler {
	h.featureGate = featureGate
	return h
}

func (h *InviteMemberHandler) WithMessenger(messenger Messenger, composer *MessageComposer) *InviteMemberHandler {
	h.messenger = messenger
	h.composer = composer
	return h
}

func (h *InviteMemberHandler) WithLogger(logger Logger) *InviteMemberHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *InviteMemberHandler) WithActivitySink(sink ActivitySink) *InviteMemberHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *InviteMemberHandler) Execute(ctx context.Context, event InviteMemberMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during member invite")
	default:
		return h.execute(ctx, event)
	}
}

func (h *InviteMemberHandler) execute(ctx context.Context, event InviteMemberMessage) error {
	if err := requireFeatureGate(ctx, h.featureGate, FeatureTeamInvites, ErrInvitesDisabled); err != nil {
		return err
	}

	email := NormalizeEmail(event.Email)
	if ok, reason := ValidateEmail(email); !ok {
		return goerrors.New(reason, goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest)
	}

	role := inviteRole(event.Role)
	if !role.IsValid() || role == RoleOwner {
		return goerrors.New("invites can not grant this role", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest).
			WithMetadata(map[string]any{"role": event.Role})
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	actor, err := h.repo.Users().GetByID(ctx, event.ActorID.String())
	if err != nil {
		if goerrors.IsNotFound(err) {
			return ErrAuthRequired
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to resolve inviting user")
	}

	if !h.evaluator.HasPermission(ctx, actor, PermissionManageTeam) {
		h.logger.Warn("invite denied", "actor_id", actor.ID, "required", PermissionManageTeam)
		return ErrForbidden
	}

	// only owners hand out admin seats
	if role == RoleAdmin && actor.Role != RoleOwner {
		return ErrForbidden
	}

	account, err := h.repo.Accounts().GetByID(ctx, actor.AccountID.String())
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to resolve account for invite")
	}

	if ok, reason := h.seats.CanAddTeamMember(ctx, account); !ok {
		return goerrors.New("account seat limit reached", goerrors.CategoryConflict).
			WithCode(goerrors.CodeConflict).
			WithTextCode(TextCodeSeatLimitReached).
			WithMetadata(map[string]any{"reason": reason})
	}

	if existing, err := h.repo.Users().GetByIdentifier(ctx, email); err == nil && existing != nil {
		if existing.AccountID == actor.AccountID {
			return goerrors.New("user is already a member of this account", goerrors.CategoryConflict).
				WithCode(goerrors.CodeConflict)
		}
	}

	invite := &TeamInvite{
		AccountID: actor.AccountID,
		Email:     email,
		Role:      role,
		InviterID: actor.ID,
	}

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		invite, err = h.repo.TeamInvites().CreateTx(ctx, tx, invite)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create invite")
		}
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "invite transaction failed")
	}

	h.sendInvite(ctx, invite, actor, account)

	emitActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventInviteIssued,
		Actor:     actorFromUser(actor),
		Metadata: map[string]any{
			"invite_id": invite.ID.String(),
			"email":     invite.Email,
			"role":      string(invite.Role),
		},
	})

	if event.OnResponse != nil {
		event.OnResponse(&InviteMemberResponse{Invite: invite})
	}

	return nil
}

func (h *InviteMemberHandler) sendInvite(ctx context.Context, invite *TeamInvite, actor *User, account *Account) {
	if h.messenger == nil || h.composer == nil {
		return
	}

	subject, body := h.composer.ComposeInvite(invite, displayName(actor), account.Name)
	if err := h.messenger.Send(ctx, invite.Email, subject, body); err != nil {
		h.logger.Warn("failed to deliver invite email", "invite_id", invite.ID, "error", err)
	}
}

func inviteRole(role string) UserRole {
	if role == "" {
		return RoleMember
	}
	return UserRole(role)
}
