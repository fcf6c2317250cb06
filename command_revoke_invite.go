package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

type RevokeInviteMessage struct {
	ActorID    uuid.UUID `json:"actor_id" doc:"User revoking the invite"`
	InviteID   uuid.UUID `json:"invite_id"`
	OnResponse func(r *RevokeInviteResponse)
}

func (e RevokeInviteMessage) Type() string { return "team.revoke_invite" }

type RevokeInviteResponse struct {
	Invite *TeamInvite `json:"invite"`
}

// RevokeInviteHandler withdraws a pending invite. Only pending invites can
// transition to revoked; anything else reports the current state back.
type RevokeInviteHandler struct {
	repo      RepositoryManager
	evaluator *PermissionEvaluator
	logger    Logger
	activity  ActivitySink
}

func NewRevokeInviteHandler(repo RepositoryManager, evaluator *PermissionEvaluator) *RevokeInviteHandler {
	return &RevokeInviteHandler{
		repo:      repo,
		evaluator: evaluator,
		logger:    defLogger{},
		activity:  noopActivitySink{},
	}
}

func (h *RevokeInviteHandler) WithLogger(logger Logger) *RevokeInviteHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *RevokeInviteHandler) WithActivitySink(sink ActivitySink) *RevokeInviteHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *RevokeInviteHandler) Execute(ctx context.Context, event RevokeInviteMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during invite revocation")
	default:
		return h.execute(ctx, event)
	}
}

func (h *RevokeInviteHandler) execute(ctx context.Context, event RevokeInviteMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	actor, err := h.repo.Users().GetByID(ctx, event.ActorID.String())
	if err != nil {
		if goerrors.IsNotFound(err) {
			return ErrAuthRequired
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to resolve revoking user")
	}

	if !h.evaluator.HasPermission(ctx, actor, PermissionManageTeam) {
		h.logger.Warn("invite revocation denied", "actor_id", actor.ID, "required", PermissionManageTeam)
		return ErrForbidden
	}

	invite, err := h.repo.TeamInvites().GetByID(ctx, event.InviteID.String())
	if err != nil {
		if goerrors.IsNotFound(err) {
			return goerrors.New("invite not found", goerrors.CategoryNotFound).
				WithCode(goerrors.CodeNotFound)
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve invite")
	}

	if invite.AccountID != actor.AccountID {
		return ErrForbidden
	}

	switch invite.EffectiveStatus(time.Now()) {
	case InviteStatusPending:
	case InviteStatusExpired:
		return ErrInviteExpired
	case InviteStatusRevoked:
		return ErrInviteRevoked
	default:
		return ErrInviteNotPending
	}

	invite, err = h.repo.TeamInvites().Revoke(ctx, invite.ID)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to revoke invite")
	}

	emitActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventInviteRevoked,
		Actor:     actorFromUser(actor),
		Metadata: map[string]any{
			"invite_id": invite.ID.String(),
			"email":     invite.Email,
		},
	})

	if event.OnResponse != nil {
		event.OnResponse(&RevokeInviteResponse{Invite: invite})
	}

	return nil
}
