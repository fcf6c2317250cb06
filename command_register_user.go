package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-featuregate/gate"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/uptrace/bun"
)

type RegisterUserMessage struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	AccountName string `json:"account_name"`
	Plan        string `json:"plan"`
	UseHashid   bool
	OnResponse  func(r *RegisterUserResponse)
}

func (e RegisterUserMessage) Type() string { return "user.register" }

type RegisterUserResponse struct {
	User    *User    `json:"user"`
	Account *Account `json:"account"`
}

// RegisterUserHandler bootstraps a new account: it creates the account row
// and its owner user in one transaction, then sends the verification email.
type RegisterUserHandler struct {
	repo        RepositoryManager
	tokens      *TokenService
	messenger   Messenger
	composer    *MessageComposer
	featureGate gate.FeatureGate
	policy      PasswordPolicy
	logger      Logger
}

func NewRegisterUserHandler(repo RepositoryManager) *RegisterUserHandler {
	return &RegisterUserHandler{
		repo:   repo,
		policy: DefaultPasswordPolicy(),
		logger: defLogger{},
	}
}

func (h *RegisterUserHandler) WithFeatureGate(featureGate gate.FeatureGate) *RegisterUserHandler {
	h.featureGate = featureGate
	return h
}

func (h *RegisterUserHandler) WithTokenService(tokens *TokenService) *RegisterUserHandler {
	h.tokens = tokens
	return h
}

func (h *RegisterUserHandler) WithMessenger(messenger Messenger, composer *MessageComposer) *RegisterUserHandler {
	h.messenger = messenger
	h.composer = composer
	return h
}

func (h *RegisterUserHandler) WithPasswordPolicy(policy PasswordPolicy) *RegisterUserHandler {
	h.policy = policy
	return h
}

func (h *RegisterUserHandler) WithLogger(logger Logger) *RegisterUserHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) error {
	if err := requireFeatureGate(ctx, h.featureGate, gate.FeatureUsersSignup, ErrSignupDisabled); err != nil {
		return err
	}

	if ok, reason := ValidateEmail(NormalizeEmail(event.Email)); !ok {
		return goerrors.New(reason, goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest)
	}

	if ok, reason := ValidatePasswordStrength(event.Password, event.Email, h.policy); !ok {
		return goerrors.New(reason, goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest)
	}

	account := &Account{}
	user := &User{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		hash, err := HashPassword(event.Password)
		if err != nil {
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) {
				return goerrors.Wrap(richErr, goerrors.CategoryValidation, "invalid password provided")
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}

		account.Name = accountName(event.AccountName, event.Email)
		account.Plan = registrationPlan(event.Plan)
		account.Status = AccountStatusActive

		if account, err = h.repo.Accounts().CreateTx(ctx, tx, account); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not create account")
		}

		user.PasswordHash = hash
		user.Email = event.Email
		user.FirstName = event.FirstName
		user.LastName = event.LastName
		user.AccountID = account.ID
		user.Role = RoleOwner
		if event.UseHashid {
			if id, err := hashid.NewUUID(event.Email); err == nil {
				user.ID = id
			}
		}

		if user, err = h.repo.Users().RegisterTx(ctx, tx, user); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create user")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}

		return goerrors.Wrap(err, goerrors.CategoryInternal, "user registration transaction failed")
	}

	h.sendVerification(ctx, user)

	if event.OnResponse != nil {
		event.OnResponse(&RegisterUserResponse{User: user, Account: account})
	}

	return nil
}

// sendVerification mints and delivers the verification link. Delivery
// failures do not fail registration; the resend flow covers them.
func (h *RegisterUserHandler) sendVerification(ctx context.Context, user *User) {
	if h.tokens == nil || h.messenger == nil || h.composer == nil {
		return
	}

	token, err := h.tokens.MintVerificationToken(user, DefaultVerificationMaxAge)
	if err != nil {
		h.logger.Error("failed to mint verification token", "user_id", user.ID, "error", err)
		return
	}

	subject, body := h.composer.ComposeVerification(user, token)
	if err := h.messenger.Send(ctx, user.Email, subject, body); err != nil {
		h.logger.Warn("failed to deliver verification email", "user_id", user.ID, "error", err)
	}
}

func accountName(name, email string) string {
	if name != "" {
		return name
	}
	if local := emailLocalPart(email); local != "" {
		return local
	}
	return "My Team"
}

func registrationPlan(plan string) AccountPlan {
	candidate := AccountPlan(plan)
	if candidate.IsValid() {
		return candidate
	}
	return PlanFree
}
