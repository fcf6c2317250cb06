package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type VerifyEmailMessage struct {
	Token      string `json:"token" doc:"Signed verification token from the emailed link"`
	OnResponse func(r *VerifyEmailResponse)
}

func (e VerifyEmailMessage) Type() string { return "user.verify_email" }

type VerifyEmailResponse struct {
	User            *User `json:"user"`
	AlreadyVerified bool  `json:"already_verified"`
}

// VerifyEmailHandler redeems a verification token. Failure kinds stay
// distinguishable for the caller: expiry can offer a resend, bad signature
// and malformed input get a flat rejection. Redeeming twice is a harmless
// no-op.
type VerifyEmailHandler struct {
	repo     RepositoryManager
	tokens   *TokenService
	logger   Logger
	activity ActivitySink
}

func NewVerifyEmailHandler(repo RepositoryManager, tokens *TokenService) *VerifyEmailHandler {
	return &VerifyEmailHandler{
		repo:     repo,
		tokens:   tokens,
		logger:   defLogger{},
		activity: noopActivitySink{},
	}
}

func (h *VerifyEmailHandler) WithLogger(logger Logger) *VerifyEmailHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *VerifyEmailHandler) WithActivitySink(sink ActivitySink) *VerifyEmailHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *VerifyEmailHandler) Execute(ctx context.Context, event VerifyEmailMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during email verification")
	default:
		return h.execute(ctx, event)
	}
}

func (h *VerifyEmailHandler) execute(ctx context.Context, event VerifyEmailMessage) error {
	claims, err := h.tokens.ReadVerificationToken(event.Token, DefaultVerificationMaxAge)
	if err != nil {
		// already one of the distinguishable token errors
		return err
	}

	userID, err := claims.UserID()
	if err != nil {
		return ErrTokenMalformed
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user, err := h.repo.Users().GetByID(ctx, userID.String())
	if err != nil {
		if goerrors.IsNotFound(err) {
			return goerrors.New("user for verification token not found", goerrors.CategoryNotFound).
				WithCode(goerrors.CodeNotFound)
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for verification")
	}

	// the token binds the email it was issued for; a changed address needs a
	// fresh link
	if NormalizeEmail(claims.Email) != NormalizeEmail(user.Email) {
		return goerrors.New("verification token does not match the current email address", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest)
	}

	if user.EmailVerified {
		h.respond(event, &VerifyEmailResponse{User: user, AlreadyVerified: true})
		return nil
	}

	if err := h.repo.Users().MarkEmailVerified(ctx, user.ID); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to mark email verified")
	}

	user.EmailVerified = true

	emitActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventEmailVerified,
		Actor:     actorFromUser(user),
		UserID:    user.ID.String(),
	})

	h.respond(event, &VerifyEmailResponse{User: user})
	return nil
}

func (h *VerifyEmailHandler) respond(event VerifyEmailMessage, resp *VerifyEmailResponse) {
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}
}
