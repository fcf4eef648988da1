package auth

import (
	"errors"
	"strings"

	"github.com/eduquiz/go-auth/middleware/csrf"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
)

const (
	viewLogin            = "login"
	viewSetPassword      = "set_password"
	viewLanding          = "landing"
	viewAccessDenied     = "access_denied"
	viewError            = "error"
	viewAdminAccounts    = "admin/accounts"
	viewAdminAccountEdit = "admin/account_edit"
)

const (
	msgInactiveAdmin     = "Your account is not active."
	msgInactiveWithSetup = "Your account is not active. Please check your email for activation instructions."
	msgPasswordSet       = "Password set successfully. You can now log in."
)

type AuthControllerRoutes struct {
	Login              string
	Logout             string
	SetPassword        string
	SetStudentPassword string
	AccessDenied       string
}

type AuthControllerViews struct {
	Login        string
	SetPassword  string
	Landing      string
	AccessDenied string
}

type AuthController struct {
	Logger    Logger
	Routes    *AuthControllerRoutes
	Views     *AuthControllerViews
	Auther    *RouteAuthenticator
	Passwords *PasswordSetHandler
}

type AuthControllerOption func(*AuthController) *AuthController

func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(ac *AuthController) *AuthController {
		if logger != nil {
			ac.Logger = logger
		}
		return ac
	}
}

func WithRouteAuthenticator(a *RouteAuthenticator) AuthControllerOption {
	return func(ac *AuthController) *AuthController {
		ac.Auther = a
		return ac
	}
}

func WithPasswordSetHandler(h *PasswordSetHandler) AuthControllerOption {
	return func(ac *AuthController) *AuthController {
		ac.Passwords = h
		return ac
	}
}

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger: defLogger{},
		Routes: &AuthControllerRoutes{
			Login:              loginPath,
			Logout:             "/logout",
			SetPassword:        "/account/set-password",
			SetStudentPassword: "/account/set-student-password",
			AccessDenied:       accessDeniedPath,
		},
		Views: &AuthControllerViews{
			Login:        viewLogin,
			SetPassword:  viewSetPassword,
			Landing:      viewLanding,
			AccessDenied: viewAccessDenied,
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Auther == nil {
		panic("Missing RouteAuthenticator in auth controller...")
	}

	if c.Passwords == nil {
		panic("Missing PasswordSetHandler in auth controller...")
	}

	return c
}

// RegisterAuthRoutes mounts login, logout, set-password and the role
// landing pages on r.
func RegisterAuthRoutes(r fiber.Router, opts ...AuthControllerOption) *AuthController {
	controller := NewAuthController(opts...)

	r.Get(controller.Routes.Login, controller.LoginShow).Name("sign-in.get")
	r.Post(controller.Routes.Login, controller.LoginPost).Name("sign-in.post")
	r.Get(controller.Routes.Logout, controller.LogOut).Name("sign-out.get")

	teacherShow, teacherPost := controller.SetPasswordShow(KindTeacher), controller.SetPasswordPost(KindTeacher)
	studentShow, studentPost := controller.SetPasswordShow(KindStudent), controller.SetPasswordPost(KindStudent)

	for _, path := range []string{controller.Routes.SetPassword, TeacherSetupPath} {
		r.Get(path, teacherShow)
		r.Post(path, teacherPost)
	}
	for _, path := range []string{controller.Routes.SetStudentPassword, StudentSetupPath} {
		r.Get(path, studentShow)
		r.Post(path, studentPost)
	}

	r.Get(controller.Routes.AccessDenied, controller.AccessDenied).Name("access-denied.get")

	for _, role := range GetAllRoles() {
		r.Get(role.LandingPath(), controller.Auther.ProtectedRoute(role), controller.Landing).
			Name("landing." + string(role))
	}

	return controller
}

// LoginRequest payload
type LoginRequest struct {
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

func (a *AuthController) LoginShow(c *fiber.Ctx) error {
	if id, ok := a.Auther.OptionalIdentity(c); ok {
		return c.Redirect(UserRole(id.Role()).LandingPath(), fiber.StatusFound)
	}
	return c.Render(a.Views.Login, a.viewContext(c, fiber.Map{}))
}

func (a *AuthController) LoginPost(c *fiber.Ctx) error {
	payload := new(LoginRequest)
	if err := c.BodyParser(payload); err != nil {
		a.Logger.Warn("login parse payload", "error", err)
		return a.loginFailed(c, payload, ErrInvalidInput)
	}
	payload.Email = strings.TrimSpace(payload.Email)

	p, err := a.Auther.Login(c, payload.Email, payload.Password)
	if err != nil {
		return a.loginFailed(c, payload, err)
	}

	landing := p.Kind().Role().LandingPath()
	if wantsJSON(c) {
		return c.JSON(fiber.Map{
			"redirect": landing,
			"role":     p.Role(),
			"email":    p.Email(),
		})
	}
	return c.Redirect(landing, fiber.StatusSeeOther)
}

// loginFailed re-renders the form with the message for err. Every
// credential failure reads the same so the kinds stay indistinguishable.
func (a *AuthController) loginFailed(c *fiber.Ctx, payload *LoginRequest, err error) error {
	var message string
	switch {
	case HasTextCode(err, TextCodeInvalidInput):
		message = ErrInvalidInput.Message
	case IsInvalidCredentials(err):
		message = ErrInvalidCredentials.Message
	case IsAccountInactive(err):
		message = msgInactiveWithSetup
		if kind, _ := InactiveKind(err); kind == KindAdmin {
			message = msgInactiveAdmin
		}
	case HasTextCode(err, TextCodeAccountLocked):
		message = ErrAccountLocked.Message
	default:
		return a.Auther.ErrorHandler(c, err)
	}

	if wantsJSON(c) {
		status := fiber.StatusUnauthorized
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) && richErr.Code >= 400 {
			status = richErr.Code
		}
		return c.Status(status).JSON(fiber.Map{
			"error":     message,
			"text_code": ErrorKind(err),
		})
	}

	return c.Render(a.Views.Login, a.viewContext(c, fiber.Map{
		"error": message,
		"email": payload.Email,
	}))
}

func (a *AuthController) LogOut(c *fiber.Ctx) error {
	a.Auther.Logout(c)
	return c.Redirect(a.Routes.Login, fiber.StatusFound)
}

func (a *AuthController) AccessDenied(c *fiber.Ctx) error {
	return c.Status(fiber.StatusForbidden).Render(a.Views.AccessDenied, a.viewContext(c, fiber.Map{}))
}

func (a *AuthController) Landing(c *fiber.Ctx) error {
	id, ok := a.Auther.CurrentIdentity(c)
	if !ok {
		return c.Redirect(a.Routes.Login, fiber.StatusFound)
	}
	kind, _ := id.Kind()
	return c.Render(a.Views.Landing, a.viewContext(c, fiber.Map{
		"role":       id.Role(),
		"role_label": kind.Label(),
		"email":      id.Email(),
	}))
}

// SetPasswordRequest is the set-password form
type SetPasswordRequest struct {
	Token           string `form:"token" json:"token"`
	Email           string `form:"email" json:"email"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate checks the password fields. Token and email are checked by the
// handler so that their absence maps to "Invalid request".
func (r SetPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Password, validation.Required),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

// SetPasswordShow validates the link and renders the form
func (a *AuthController) SetPasswordShow(kind PrincipalKind) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, email := c.Query("token"), c.Query("email")

		ref, err := a.Passwords.ValidateToken(c.UserContext(), email, token, kind)
		if err != nil {
			return a.setPasswordFailed(c, kind, err)
		}

		return c.Render(a.Views.SetPassword, a.viewContext(c, fiber.Map{
			"token":  token,
			"email":  email,
			"name":   ref.Name,
			"action": c.Path(),
		}))
	}
}

// SetPasswordPost re-validates the link, checks the form and consumes the token
func (a *AuthController) SetPasswordPost(kind PrincipalKind) fiber.Handler {
	return func(c *fiber.Ctx) error {
		payload := new(SetPasswordRequest)
		if err := c.BodyParser(payload); err != nil {
			a.Logger.Warn("set password parse payload", "error", err)
			return a.setPasswordFailed(c, kind, ErrInvalidRequest)
		}
		if payload.Token == "" {
			payload.Token = c.Query("token")
		}
		if payload.Email == "" {
			payload.Email = c.Query("email")
		}

		ref, err := a.Passwords.ValidateToken(c.UserContext(), payload.Email, payload.Token, kind)
		if err != nil {
			return a.setPasswordFailed(c, kind, err)
		}

		rerender := func(message string, fields map[string]string) error {
			if wantsJSON(c) {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error":  message,
					"fields": fields,
				})
			}
			return c.Render(a.Views.SetPassword, a.viewContext(c, fiber.Map{
				"token":  payload.Token,
				"email":  payload.Email,
				"name":   ref.Name,
				"action": c.Path(),
				"error":  message,
				"errors": fields,
			}))
		}

		if err := payload.Validate(); err != nil {
			return rerender("Please correct the errors below.", FormatValidationErrorToMap(err))
		}

		if err := a.Passwords.ApplyNewPassword(c.UserContext(), ref, payload.Password); err != nil {
			if HasTextCode(err, TextCodeWeakPassword) {
				var richErr *goerrors.Error
				goerrors.As(err, &richErr)
				violations, _ := richErr.Metadata["violations"].(string)
				return rerender(richErr.Message, map[string]string{"password": violations})
			}
			return a.setPasswordFailed(c, kind, err)
		}

		if wantsJSON(c) {
			return c.JSON(fiber.Map{
				"message":  msgPasswordSet,
				"redirect": a.Routes.Login,
			})
		}

		a.setFlash(c, Flash{Success: msgPasswordSet})
		return c.Redirect(a.Routes.Login, fiber.StatusSeeOther)
	}
}

func (a *AuthController) setPasswordFailed(c *fiber.Ctx, kind PrincipalKind, err error) error {
	code := ErrorKind(err)
	switch {
	case HasTextCode(err, TextCodeInvalidRequest), HasTextCode(err, TextCodeUnknownKind):
		return a.renderStatus(c, fiber.StatusBadRequest, ErrInvalidRequest.Message, code)
	case IsTokenNotFound(err):
		return a.renderStatus(c, fiber.StatusNotFound, kind.Label()+" not found", code)
	case IsTokenInvalid(err), IsTokenExpired(err):
		return a.renderStatus(c, fiber.StatusBadRequest, ErrTokenInvalid.Message, code)
	default:
		return a.Auther.ErrorHandler(c, err)
	}
}

// renderStatus writes message with its text code so clients can tell
// failures that share a message apart
func (a *AuthController) renderStatus(c *fiber.Ctx, status int, message, code string) error {
	if wantsJSON(c) {
		return c.Status(status).JSON(fiber.Map{
			"error":     message,
			"text_code": code,
		})
	}
	return c.Status(status).Render(viewError, a.viewContext(c, fiber.Map{
		"status":    status,
		"message":   message,
		"text_code": code,
	}))
}

// viewContext adds the pending flash and the CSRF token to bind
func (a *AuthController) viewContext(c *fiber.Ctx, bind fiber.Map) fiber.Map {
	return withViewDefaults(c, bind, a.Auther.Flash())
}

func (a *AuthController) setFlash(c *fiber.Ctx, f Flash) {
	if err := a.Auther.Flash().Set(c, f); err != nil {
		a.Logger.Error("failed to set flash cookie", "error", err)
	}
}

func withViewDefaults(c *fiber.Ctx, bind fiber.Map, flash *FlashCookies) fiber.Map {
	if bind == nil {
		bind = fiber.Map{}
	}
	if _, ok := bind["flash"]; !ok {
		bind["flash"] = flash.Consume(c)
	}
	if _, ok := bind["csrf_token"]; !ok {
		bind["csrf_token"] = csrf.Token(c)
	}
	return bind
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

// FormatValidationErrorToMap flattens ozzo validation errors by field
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			if ferr != nil {
				out[field] = ferr.Error()
			}
		}
		return out
	}
	if err != nil {
		out["form"] = err.Error()
	}
	return out
}
