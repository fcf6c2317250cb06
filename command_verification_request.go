package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type VerificationRequestMessage struct {
	Identifier string `json:"identifier" example:"user@example.com" doc:"Email or id of the user requesting a new link"`
	OnResponse func(r *VerificationRequestResponse)
}

func (e VerificationRequestMessage) Type() string { return "user.verification_request" }

type VerificationRequestResponse struct {
	Sent            bool `json:"sent"`
	AlreadyVerified bool `json:"already_verified"`
}

// VerificationRequestHandler re-issues a verification link. Used when the
// original expired or never arrived. An unknown identifier reports success
// to the caller so the endpoint can not be used to probe for accounts.
type VerificationRequestHandler struct {
	repo      RepositoryManager
	tokens    *TokenService
	messenger Messenger
	composer  *MessageComposer
	logger    Logger
}

func NewVerificationRequestHandler(repo RepositoryManager, tokens *TokenService) *VerificationRequestHandler {
	return &VerificationRequestHandler{
		repo:   repo,
		tokens: tokens,
		logger: defLogger{},
	}
}

func (h *VerificationRequestHandler) WithMessenger(messenger Messenger, composer *MessageComposer) *VerificationRequestHandler {
	h.messenger = messenger
	h.composer = composer
	return h
}

func (h *VerificationRequestHandler) WithLogger(logger Logger) *VerificationRequestHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *VerificationRequestHandler) Execute(ctx context.Context, event VerificationRequestMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during verification request")
	default:
		return h.execute(ctx, event)
	}
}

func (h *VerificationRequestHandler) execute(ctx context.Context, event VerificationRequestMessage) error {
	resp := &VerificationRequestResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user, err := h.repo.Users().GetByIdentifier(ctx, event.Identifier)
	if err != nil {
		if goerrors.IsNotFound(err) {
			h.logger.Info("verification requested for unknown identifier", "identifier", event.Identifier)
			h.respond(event, resp)
			return nil
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for verification request")
	}

	if user.EmailVerified {
		resp.AlreadyVerified = true
		h.respond(event, resp)
		return nil
	}

	token, err := h.tokens.MintVerificationToken(user, DefaultVerificationMaxAge)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to mint verification token")
	}

	if h.messenger != nil && h.composer != nil {
		subject, body := h.composer.ComposeVerification(user, token)
		if err := h.messenger.Send(ctx, user.Email, subject, body); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to deliver verification email")
		}
	}

	resp.Sent = true
	h.respond(event, resp)
	return nil
}

func (h *VerificationRequestHandler) respond(event VerificationRequestMessage, resp *VerificationRequestResponse) {
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}
}
