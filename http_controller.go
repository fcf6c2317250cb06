package auth

import (
	"errors"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-featuregate/gate"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-router/flash"
	"github.com/google/uuid"
)

// GetRouterSession finds the resolved session the middleware stored under the
// configured context key.
func GetRouterSession(c router.Context, key string) (*ResolvedSession, error) {
	raw := c.Locals(key)
	if raw == nil {
		return nil, ErrAuthRequired
	}

	session, ok := raw.(*ResolvedSession)
	if session == nil || !ok {
		return nil, ErrAuthRequired
	}

	return session, nil
}

func RegisterAuthRoutes[T any](app router.Router[T], opts ...AuthControllerOption) {

	controller := NewAuthController(opts...)

	app.
		Get(controller.Routes.Login,
			controller.LoginShow,
		).
		SetName("sign-in.get")

	app.
		Post(
			controller.Routes.Login,
			controller.LoginPost,
		).
		SetName("sign-in.post")

	app.Get(controller.Routes.Logout, controller.LogOut).SetName("sign-out.get")

	app.Get(controller.Routes.Register, controller.RegistrationShow).
		SetName("register.get")
	app.Post(controller.Routes.Register, controller.RegistrationCreate).
		SetName("register.post")

	app.Get(fmt.Sprintf("%s/:token", controller.Routes.Verify), controller.VerifyEmail).
		SetName("verify.get")
	app.Get(controller.Routes.VerifyNotice, controller.VerifyNoticeShow).
		SetName("verify-notice.get")
	app.Post(controller.Routes.VerifyNotice, controller.VerificationResend).
		SetName("verify-notice.post")

	app.Post(controller.Routes.Invites, controller.InviteCreate).
		SetName("invites.post")
	app.Post(fmt.Sprintf("%s/:id/revoke", controller.Routes.Invites), controller.InviteRevoke).
		SetName("invites-revoke.post")
	app.Get(fmt.Sprintf("%s/accept/:token", controller.Routes.Invites), controller.InviteAcceptShow).
		SetName("invites-accept.get")
	app.Post(fmt.Sprintf("%s/accept/:token", controller.Routes.Invites), controller.InviteAccept).
		SetName("invites-accept.post")

	app.Post(controller.Routes.Impersonate, controller.ImpersonateStart).
		SetName("impersonate.post")
	app.Post(fmt.Sprintf("%s/stop", controller.Routes.Impersonate), controller.ImpersonateStop).
		SetName("impersonate-stop.post")
}

type AuthControllerRoutes struct {
	Login        string
	Logout       string
	Register     string
	Verify       string
	VerifyNotice string
	Invites      string
	Impersonate  string
}

type AuthControllerViews struct {
	Login        string
	Register     string
	VerifyResult string
	VerifyNotice string
	InviteAccept string
}

type AuthController struct {
	Debug        bool
	Logger       Logger
	Repo         RepositoryManager
	Routes       *AuthControllerRoutes
	Views        *AuthControllerViews
	Auther       HTTPAuthenticator
	Tokens       *TokenService
	Store        SessionStore
	Impersonator *Impersonator
	Seats        *SeatLimiter
	Evaluator    *PermissionEvaluator
	Messenger    Messenger
	Composer     *MessageComposer
	FeatureGate  gate.FeatureGate
	ContextKey   string
	ErrorHandler router.ErrorHandler
}

type AuthControllerOption func(*AuthController) *AuthController

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger:       defLogger{},
		ErrorHandler: defaultErrHandler,
		ContextKey:   "user",
		Routes: &AuthControllerRoutes{
			Login:        "/login",
			Logout:       "/logout",
			Register:     "/register",
			Verify:       "/verify",
			VerifyNotice: "/verify-notice",
			Invites:      "/invites",
			Impersonate:  "/impersonate",
		},
		Views: &AuthControllerViews{
			Login:        "login",
			Register:     "register",
			VerifyResult: "verify_result",
			VerifyNotice: "verify_notice",
			InviteAccept: "invite_accept",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in auth controller...")
	}

	if c.Auther == nil {
		panic("Missing HTTPAuthenticator in auth controller...")
	}

	return c
}

func (a *AuthController) LoginShow(ctx router.Context) error {
	return ctx.Render(a.Views.Login, router.ViewContext{
		"errors": nil,
		"record": nil,
	})
}

// LoginRequest payload
type LoginRequest struct {
	Identifier string `form:"identifier" json:"identifier"`
	Password   string `form:"password" json:"password"`
	RememberMe bool   `form:"remember_me" json:"remember_me"`
}

// GetIdentifier returns the identifier
func (r LoginRequest) GetIdentifier() string {
	return r.Identifier
}

// GetPassword will return the password
func (r LoginRequest) GetPassword() string {
	return r.Password
}

// GetExtendedSession reports the remember-me checkbox
func (r LoginRequest) GetExtendedSession() bool {
	return r.RememberMe
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Identifier,
			validation.Required,
			is.Email,
		),
		validation.Field(
			&r.Password,
			validation.Required,
		),
	)
}

func (a *AuthController) LoginPost(ctx router.Context) error {
	payload := new(LoginRequest)
	errs := map[string]string{}

	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return ctx.Render(a.Views.Login, router.ViewContext{
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	if a.Debug {
		fmt.Println("======= AUTH LOGIN ======")
		fmt.Println(print.MaybePrettyJSON(payload))
		fmt.Println("=========================")
	}

	if err := a.Auther.Login(ctx, payload); err != nil {
		// same response for unknown email and wrong password
		errs["authentication"] = "Authentication Error"
		return ctx.Render(a.Views.Login, router.ViewContext{
			"errors":  errs,
			"payload": payload,
		})
	}

	redirect := a.Auther.GetRedirect(ctx, "/")

	return ctx.Redirect(redirect, router.StatusSeeOther)
}

func (a *AuthController) LogOut(ctx router.Context) error {
	if err := a.Auther.Logout(ctx); err != nil {
		a.Logger.Warn("logout error", "error", err)
	}
	return ctx.Redirect("/", router.StatusTemporaryRedirect)
}

func (a *AuthController) RegistrationShow(ctx router.Context) error {
	return ctx.Render(a.Views.Register, router.ViewContext{
		"errors": map[string]string{},
		"record": RegisterUserMessage{},
	})
}

// RegistrationCreatePayload is the form payload
type RegistrationCreatePayload struct {
	FirstName       string `form:"first_name" json:"first_name"`
	LastName        string `form:"last_name" json:"last_name"`
	AccountName     string `form:"account_name" json:"account_name"`
	Email           string `form:"email" json:"email"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate will validate the payload
func (r RegistrationCreatePayload) Validate() error {

	return validation.ValidateStruct(&r,
		validation.Field(&r.FirstName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.LastName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.AccountName, validation.Length(0, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(12, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.Length(12, 100),
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *AuthController) RegistrationCreate(ctx router.Context) error {
	payload := new(RegistrationCreatePayload)

	if err := ctx.Bind(payload); err != nil {
		errs := map[string]string{}
		errs["form"] = "Failed to parse form"
		a.Logger.Error("register user parse payload: ", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.Register, router.ViewContext{
			"errors": errs,
			"record": payload,
		})
	}

	if err := payload.Validate(); err != nil {
		errs := FormatValidationErrorToMap(err)
		a.Logger.Error("register user validate payload: ", "error", err)

		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Render(a.Views.Register, router.ViewContext{
			"record":     payload,
			"validation": errs,
		})
	}

	var res *RegisterUserResponse

	req := RegisterUserMessage{
		FirstName:   payload.FirstName,
		LastName:    payload.LastName,
		AccountName: payload.AccountName,
		Email:       payload.Email,
		Password:    payload.Password,
		OnResponse: func(r *RegisterUserResponse) {
			res = r
		},
	}

	registerUser := NewRegisterUserHandler(a.Repo).
		WithFeatureGate(a.FeatureGate).
		WithTokenService(a.Tokens).
		WithMessenger(a.Messenger, a.Composer).
		WithLogger(a.Logger)

	if err := registerUser.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("register user error: ", "error", err)

		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error registering user",
		}).Render(a.Views.Register, router.ViewContext{
			"record": payload,
			"errors": []string{err.Error()},
		})
	}

	if res != nil && res.User != nil {
		if err := a.Auther.StartSession(ctx, res.User, false); err != nil {
			a.Logger.Warn("failed to start session after registration", "error", err)
		}
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Successful user registration",
	}).Redirect(a.Routes.VerifyNotice, fiber.StatusSeeOther)
}

// VerifyEmail redeems the emailed verification link. The three failure kinds
// render differently: expiry offers a resend, the rest get a flat rejection.
func (a *AuthController) VerifyEmail(ctx router.Context) error {
	token := ctx.Param("token")

	var res *VerifyEmailResponse
	input := VerifyEmailMessage{
		Token: token,
		OnResponse: func(r *VerifyEmailResponse) {
			res = r
		},
	}

	verify := NewVerifyEmailHandler(a.Repo, a.Tokens).WithLogger(a.Logger)

	if err := verify.Execute(ctx.Context(), input); err != nil {
		view := router.ViewContext{
			"verified": false,
			"expired":  IsTokenExpiredError(err),
		}
		if !IsTokenExpiredError(err) {
			view["error"] = "This verification link is not valid."
		}
		return ctx.Render(a.Views.VerifyResult, view)
	}

	return ctx.Render(a.Views.VerifyResult, router.ViewContext{
		"verified":         true,
		"already_verified": res != nil && res.AlreadyVerified,
	})
}

func (a *AuthController) VerifyNoticeShow(ctx router.Context) error {
	return ctx.Render(a.Views.VerifyNotice, router.ViewContext{
		"errors": nil,
	})
}

// VerificationResendPayload requests a fresh verification link
type VerificationResendPayload struct {
	Email string `form:"email" json:"email"`
}

// Validate will validate the payload
func (r VerificationResendPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

func (a *AuthController) VerificationResend(ctx router.Context) error {
	payload := new(VerificationResendPayload)

	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return ctx.Render(a.Views.VerifyNotice, router.ViewContext{
			"validation": FormatValidationErrorToMap(err),
		})
	}

	resend := NewVerificationRequestHandler(a.Repo, a.Tokens).
		WithMessenger(a.Messenger, a.Composer).
		WithLogger(a.Logger)

	if err := resend.Execute(ctx.Context(), VerificationRequestMessage{Identifier: payload.Email}); err != nil {
		a.Logger.Error("verification resend error", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"system_message": "Could not send the verification email",
		}).Render(a.Views.VerifyNotice, router.ViewContext{})
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Verification email sent",
	}).Render(a.Views.VerifyNotice, router.ViewContext{})
}

// InviteCreatePayload issues an invite
type InviteCreatePayload struct {
	Email string `form:"email" json:"email"`
	Role  string `form:"role" json:"role"`
}

// Validate will validate the payload
func (r InviteCreatePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Role, validation.In(
			string(RoleUser), string(RoleMember), string(RoleAdmin),
		)),
	)
}

func (a *AuthController) InviteCreate(ctx router.Context) error {
	session, err := GetRouterSession(ctx, a.ContextKey)
	if err != nil {
		return RenderAuthError(ctx, err)
	}

	payload := new(InviteCreatePayload)
	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return ctx.JSON(router.StatusBadRequest, map[string]any{
			"validation": FormatValidationErrorToMap(err),
		})
	}

	actorID, err := uuid.Parse(session.UserID())
	if err != nil {
		return RenderAuthError(ctx, ErrAuthRequired)
	}

	var res *InviteMemberResponse
	input := InviteMemberMessage{
		ActorID: actorID,
		Email:   payload.Email,
		Role:    payload.Role,
		OnResponse: func(r *InviteMemberResponse) {
			res = r
		},
	}

	invite := NewInviteMemberHandler(a.Repo, a.Seats, a.Evaluator).
		WithFeatureGate(a.FeatureGate).
		WithMessenger(a.Messenger, a.Composer).
		WithLogger(a.Logger)

	if err := invite.Execute(ctx.Context(), input); err != nil {
		a.Logger.Error("invite create error", "error", err)
		return RenderAuthError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"invite": res.Invite,
	})
}

func (a *AuthController) InviteRevoke(ctx router.Context) error {
	session, err := GetRouterSession(ctx, a.ContextKey)
	if err != nil {
		return RenderAuthError(ctx, err)
	}

	inviteID, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		return ctx.JSON(router.StatusBadRequest, map[string]any{
			"error": "invalid invite id",
		})
	}

	actorID, err := uuid.Parse(session.UserID())
	if err != nil {
		return RenderAuthError(ctx, ErrAuthRequired)
	}

	revoke := NewRevokeInviteHandler(a.Repo, a.Evaluator).WithLogger(a.Logger)

	input := RevokeInviteMessage{
		ActorID:  actorID,
		InviteID: inviteID,
	}

	if err := revoke.Execute(ctx.Context(), input); err != nil {
		a.Logger.Error("invite revoke error", "error", err)
		return RenderAuthError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"revoked": true,
	})
}

func (a *AuthController) InviteAcceptShow(ctx router.Context) error {
	token := ctx.Param("token")

	invite, err := a.Repo.TeamInvites().GetByToken(ctx.Context(), token)
	if err != nil {
		return ctx.Render(a.Views.InviteAccept, router.ViewContext{
			"found": false,
		})
	}

	return ctx.Render(a.Views.InviteAccept, router.ViewContext{
		"found":  true,
		"invite": invite,
		"status": invite.EffectiveStatus(time.Now()),
	})
}

// InviteAcceptPayload is the signup form behind an invite link
type InviteAcceptPayload struct {
	FirstName       string `form:"first_name" json:"first_name"`
	LastName        string `form:"last_name" json:"last_name"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate will validate the payload
func (r InviteAcceptPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FirstName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.LastName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Password, validation.Required, validation.Length(12, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.Length(12, 100),
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *AuthController) InviteAccept(ctx router.Context) error {
	token := ctx.Param("token")
	payload := new(InviteAcceptPayload)

	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return ctx.Render(a.Views.InviteAccept, router.ViewContext{
			"found":      true,
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	var res *AcceptInviteResponse
	input := AcceptInviteMessage{
		Token:     token,
		FirstName: payload.FirstName,
		LastName:  payload.LastName,
		Password:  payload.Password,
		OnResponse: func(r *AcceptInviteResponse) {
			res = r
		},
	}

	accept := NewAcceptInviteHandler(a.Repo, a.Seats).WithLogger(a.Logger)

	if err := accept.Execute(ctx.Context(), input); err != nil {
		a.Logger.Error("invite accept error", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message": err.Error(),
		}).Render(a.Views.InviteAccept, router.ViewContext{
			"found":  true,
			"record": payload,
			"errors": []string{err.Error()},
		})
	}

	if res != nil && res.User != nil {
		if err := a.Auther.StartSession(ctx, res.User, false); err != nil {
			a.Logger.Warn("failed to start session after invite acceptance", "error", err)
		}
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Welcome to the team",
	}).Redirect("/", fiber.StatusSeeOther)
}

// ImpersonatePayload identifies the impersonation target
type ImpersonatePayload struct {
	UserID string `form:"user_id" json:"user_id"`
}

// Validate will validate the payload
func (r ImpersonatePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.UserID, validation.Required, is.UUIDv4),
	)
}

// ImpersonateStart switches the session's effective identity to the target
// user, keeping the admin as the auditable back-reference.
func (a *AuthController) ImpersonateStart(ctx router.Context) error {
	session, err := GetRouterSession(ctx, a.ContextKey)
	if err != nil {
		return RenderAuthError(ctx, err)
	}

	payload := new(ImpersonatePayload)
	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return ctx.JSON(router.StatusBadRequest, map[string]any{
			"validation": FormatValidationErrorToMap(err),
		})
	}

	targetID, err := uuid.Parse(payload.UserID)
	if err != nil {
		return ctx.JSON(router.StatusBadRequest, map[string]any{
			"error": "invalid user id",
		})
	}

	claims := session.Claims()
	if err := a.Impersonator.Begin(ctx.Context(), claims, targetID); err != nil {
		a.Logger.Error("impersonation start error", "error", err)
		return RenderAuthError(ctx, err)
	}

	if err := a.Store.Put(ctx.Context(), session.SessionID(), claims, 0); err != nil {
		return RenderAuthError(ctx, err)
	}

	return ctx.Redirect("/", router.StatusSeeOther)
}

// ImpersonateStop restores the admin's own identity. Safe to call twice.
func (a *AuthController) ImpersonateStop(ctx router.Context) error {
	session, err := GetRouterSession(ctx, a.ContextKey)
	if err != nil {
		return RenderAuthError(ctx, err)
	}

	claims := session.Claims()
	a.Impersonator.End(ctx.Context(), claims)

	if err := a.Store.Put(ctx.Context(), session.SessionID(), claims, 0); err != nil {
		return RenderAuthError(ctx, err)
	}

	return ctx.Redirect("/", router.StatusSeeOther)
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}

// FormatValidationErrorToMap flattens ozzo validation errors into a
// field→message map for templates.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			out[field] = ferr.Error()
		}
		return out
	}

	out["validation"] = err.Error()
	return out
}

func defaultErrHandler(c router.Context, err error) error {
	return c.Render("errors/500", router.ViewContext{
		"message": err.Error(),
	})
}
