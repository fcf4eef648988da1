package auth

import (
	"context"
	"errors"
	"time"

	"github.com/eduquiz/go-auth/middleware/jwtware"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
)

const (
	defaultSessionCookie = "eduquiz_session"
	accessDeniedPath     = "/access-denied"
	loginPath            = "/login"
)

// RouteAuthenticator binds the Authenticator to fiber: it writes and clears
// the session cookie and guards routes by role.
type RouteAuthenticator struct {
	auth             Authenticator
	sessions         *SessionIssuer
	cfg              Config
	cookieName       string
	cookieDuration   time.Duration
	flash            *FlashCookies
	Logger           Logger
	AuthErrorHandler fiber.ErrorHandler
	ErrorHandler     fiber.ErrorHandler
}

func NewHTTPAuthenticator(auther Authenticator, sessions *SessionIssuer, cfg Config) (*RouteAuthenticator, error) {
	if auther == nil || sessions == nil {
		return nil, goerrors.New("authenticator and session issuer are required", goerrors.CategoryInternal)
	}

	cookieName := cfg.GetContextKey()
	if cookieName == "" {
		cookieName = defaultSessionCookie
	}

	a := &RouteAuthenticator{
		cfg:            cfg,
		auth:           auther,
		sessions:       sessions,
		cookieName:     cookieName,
		cookieDuration: sessions.Expiration(),
		flash:          NewFlashCookies(cfg.GetSigningKey(), cfg.GetSecureCookies()),
		Logger:         defLogger{},
	}

	a.ErrorHandler = a.defaultErrHandler
	a.AuthErrorHandler = a.defaultAuthErrHandler

	return a, nil
}

func (a *RouteAuthenticator) WithLogger(logger Logger) *RouteAuthenticator {
	if logger != nil {
		a.Logger = logger
	}
	return a
}

// CookieName is the name of the session cookie, also used as locals key
func (a *RouteAuthenticator) CookieName() string {
	return a.cookieName
}

func (a *RouteAuthenticator) GetCookieDuration() time.Duration {
	return a.cookieDuration
}

// Flash is the sealed one-shot message cookie shared by the controllers
func (a *RouteAuthenticator) Flash() *FlashCookies {
	return a.flash
}

// ProtectedRoute requires a valid session. With roles given the session must
// hold one of them.
func (a *RouteAuthenticator) ProtectedRoute(roles ...UserRole) fiber.Handler {
	allowed := make([]string, 0, len(roles))
	for _, r := range roles {
		allowed = append(allowed, string(r))
	}

	lookup := a.cfg.GetTokenLookup()
	if lookup == "" {
		lookup = "cookie:" + a.cookieName
	}

	return jwtware.New(jwtware.Config{
		ErrorHandler:    a.AuthErrorHandler,
		TokenValidator:  jwtware.TokenValidatorFunc(a.validate),
		AuthScheme:      a.cfg.GetAuthScheme(),
		ContextKey:      a.cookieName,
		TokenLookup:     lookup,
		AllowedRoles:    allowed,
		TemplateUserKey: "current_user",
		ContextEnricher: enrichContext,
	})
}

func (a *RouteAuthenticator) validate(raw string) (jwtware.Claims, error) {
	id, err := a.sessions.ResolveIdentity(raw)
	if err != nil {
		return nil, err
	}
	return id, nil
}

func enrichContext(ctx context.Context, claims jwtware.Claims) context.Context {
	id, ok := claims.(SessionIdentity)
	if !ok {
		return ctx
	}
	return WithIdentity(ctx, id)
}

// CurrentIdentity returns the identity ProtectedRoute stored for c
func (a *RouteAuthenticator) CurrentIdentity(c *fiber.Ctx) (SessionIdentity, bool) {
	return IdentityFromLocals(c, a.cookieName)
}

// OptionalIdentity resolves the session cookie without requiring one
func (a *RouteAuthenticator) OptionalIdentity(c *fiber.Ctx) (SessionIdentity, bool) {
	if id, ok := a.CurrentIdentity(c); ok {
		return id, true
	}
	id, err := a.sessions.ResolveIdentity(c.Cookies(a.cookieName))
	if err != nil {
		return SessionIdentity{}, false
	}
	return id, true
}

// Login authenticates and, on success, sets the session cookie
func (a *RouteAuthenticator) Login(c *fiber.Ctx, email, password string) (Principal, error) {
	p, token, err := a.auth.Login(c.UserContext(), email, password)
	if err != nil {
		return nil, err
	}

	a.setCookieToken(c, token, a.cookieDuration)
	return p, nil
}

// Logout clears the session cookie. The token itself stays valid until it
// expires.
func (a *RouteAuthenticator) Logout(c *fiber.Ctx) {
	if id, ok := a.OptionalIdentity(c); ok {
		a.auth.Logout(c.UserContext(), id)
	}
	a.cookieDel(c, a.cookieName)
}

func (a *RouteAuthenticator) setCookieToken(c *fiber.Ctx, val string, duration time.Duration) {
	c.Cookie(&fiber.Cookie{
		Name:     a.cookieName,
		Value:    val,
		Path:     "/",
		Expires:  time.Now().Add(duration),
		HTTPOnly: true,
		Secure:   a.cfg.GetSecureCookies(),
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

func (a *RouteAuthenticator) cookieDel(c *fiber.Ctx, name string) {
	c.Cookie(&fiber.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   a.cfg.GetSecureCookies(),
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

func (a *RouteAuthenticator) defaultAuthErrHandler(c *fiber.Ctx, err error) error {
	statusCode := fiber.StatusSeeOther
	if c.Method() == fiber.MethodGet {
		statusCode = fiber.StatusFound
	}

	if errors.Is(err, jwtware.ErrRoleNotAllowed) {
		a.Logger.Info("access denied", "path", c.OriginalURL(), "error", err)
		return c.Redirect(accessDeniedPath, statusCode)
	}

	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryAuth, "Invalid authentication token").
			WithCode(goerrors.CodeUnauthorized)
	}

	a.Logger.Info(
		"authentication error, redirecting to login",
		"error", richErr.Message,
		"text_code", richErr.TextCode,
		"path", c.OriginalURL(),
	)

	a.cookieDel(c, a.cookieName)
	return c.Redirect(loginPath, statusCode)
}

func (a *RouteAuthenticator) defaultErrHandler(c *fiber.Ctx, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryInternal, "An unexpected server error occurred").
			WithCode(goerrors.CodeInternal)
	}

	switch richErr.Category {
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return a.AuthErrorHandler(c, richErr)
	default:
		a.Logger.Error("request failed", "path", c.OriginalURL(), "error", richErr)
		return renderError(c, richErr)
	}
}

// renderError writes a rich error as JSON or through the error view
func renderError(c *fiber.Ctx, richErr *goerrors.Error) error {
	status := richErr.Code
	if status < 400 {
		status = fiber.StatusInternalServerError
	}

	message := richErr.Message
	if status >= 500 {
		message = "An unexpected server error occurred"
	}

	if wantsJSON(c) {
		return c.Status(status).JSON(fiber.Map{
			"error":     message,
			"text_code": richErr.TextCode,
		})
	}
	return c.Status(status).Render(viewError, fiber.Map{
		"status":    status,
		"message":   message,
		"text_code": richErr.TextCode,
	})
}

func wantsJSON(c *fiber.Ctx) bool {
	return c.Is("json") || c.Accepts(fiber.MIMETextHTML, fiber.MIMEApplicationJSON) == fiber.MIMEApplicationJSON
}
