package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type AcceptInviteMessage struct {
	Token      string `json:"token" doc:"Invite token from the emailed link"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Password   string `json:"password"`
	OnResponse func(r *AcceptInviteResponse)
}

func (e AcceptInviteMessage) Type() string { return "team.accept_invite" }

type AcceptInviteResponse struct {
	User *User `json:"user"`
}

// AcceptInviteHandler redeems an invite token: it re-checks the invite's
// effective status and the seat ceiling at redemption time, then creates the
// member and marks the invite accepted in one transaction. Possession of the
// invite link proves the mailbox, so the new user starts out verified.
type AcceptInviteHandler struct {
	repo     RepositoryManager
	seats    *SeatLimiter
	policy   PasswordPolicy
	logger   Logger
	activity ActivitySink
}

func NewAcceptInviteHandler(repo RepositoryManager, seats *SeatLimiter) *AcceptInviteHandler {
	return &AcceptInviteHandler{
		repo:     repo,
		seats:    seats,
		policy:   DefaultPasswordPolicy(),
		logger:   defLogger{},
		activity: noopActivitySink{},
	}
}

func (h *AcceptInviteHandler) WithPasswordPolicy(policy PasswordPolicy) *AcceptInviteHandler {
	h.policy = policy
	return h
}

func (h *AcceptInviteHandler) WithLogger(logger Logger) *AcceptInviteHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *AcceptInviteHandler) WithActivitySink(sink ActivitySink) *AcceptInviteHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *AcceptInviteHandler) Execute(ctx context.Context, event AcceptInviteMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during invite acceptance")
	default:
		return h.execute(ctx, event)
	}
}

func (h *AcceptInviteHandler) execute(ctx context.Context, event AcceptInviteMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	invite, err := h.repo.TeamInvites().GetByToken(ctx, event.Token)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return goerrors.New("invite not found", goerrors.CategoryNotFound).
				WithCode(goerrors.CodeNotFound)
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve invite")
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

	if ok, reason := ValidatePasswordStrength(event.Password, invite.Email, h.policy); !ok {
		return goerrors.New(reason, goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest)
	}

	account, err := h.repo.Accounts().GetByID(ctx, invite.AccountID.String())
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to resolve account for invite")
	}

	// seats may have filled up since the invite went out
	if ok, reason := h.seats.CanAddTeamMember(ctx, account); !ok {
		return goerrors.New("account seat limit reached", goerrors.CategoryConflict).
			WithCode(goerrors.CodeConflict).
			WithTextCode(TextCodeSeatLimitReached).
			WithMetadata(map[string]any{"reason": reason})
	}

	user := &User{}

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		hash, err := HashPassword(event.Password)
		if err != nil {
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) {
				return goerrors.Wrap(richErr, goerrors.CategoryValidation, "invalid password provided")
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}

		user.PasswordHash = hash
		user.Email = invite.Email
		user.FirstName = event.FirstName
		user.LastName = event.LastName
		user.AccountID = invite.AccountID
		user.Role = invite.Role
		user.EmailVerified = true

		if user, err = h.repo.Users().RegisterTx(ctx, tx, user); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create user from invite")
		}

		if _, err = h.repo.TeamInvites().MarkAcceptedTx(ctx, tx, invite.ID); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not mark invite accepted")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "invite acceptance transaction failed")
	}

	emitActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventInviteAccepted,
		Actor:     actorFromUser(user),
		UserID:    user.ID.String(),
		Metadata: map[string]any{
			"invite_id":  invite.ID.String(),
			"account_id": invite.AccountID.String(),
		},
	})

	if event.OnResponse != nil {
		event.OnResponse(&AcceptInviteResponse{User: user})
	}

	return nil
}
