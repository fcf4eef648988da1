// Package app assembles the eduquiz-auth HTTP server from its parts.
package app

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	goerrors "github.com/goliatone/go-errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uptrace/bun"

	auth "github.com/eduquiz/go-auth"
	"github.com/eduquiz/go-auth/config"
	"github.com/eduquiz/go-auth/middleware/csrf"
	"github.com/eduquiz/go-auth/views"
)

// Deps are the external pieces the server is built from
type Deps struct {
	Config *config.Config
	DB     *bun.DB
	// Mailer may be nil, provisioning then returns the setup link only
	Mailer   auth.SetupMailer
	Logger   auth.Logger
	Activity auth.ActivitySink
	// AccessLog receives one line per request, stdout when nil
	AccessLog io.Writer
	Now       func() time.Time
}

// App is the assembled server
type App struct {
	Fiber     *fiber.App
	Repo      auth.RepositoryManager
	Auther    *auth.Auther
	Routes    *auth.RouteAuthenticator
	Passwords *auth.PasswordSetHandler
	Provision *auth.ProvisionAccountHandler
	Update    *auth.UpdateAccountHandler
	Delete    *auth.DeleteAccountHandler
	Registry  *prometheus.Registry

	cfg    *config.Config
	db     *bun.DB
	logger auth.Logger
}

// New wires the repositories, commands and controllers to a fiber app
func New(deps Deps) (*App, error) {
	if deps.Config == nil || deps.DB == nil {
		return nil, goerrors.New("config and database are required", goerrors.CategoryInternal)
	}
	if deps.Logger == nil {
		deps.Logger = auth.NewSlogLogger(nil)
	}
	if deps.Activity == nil {
		deps.Activity = auth.LoggerActivitySink{Logger: deps.Logger}
	}
	if deps.AccessLog == nil {
		deps.AccessLog = os.Stdout
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	cfg := deps.Config
	a := &App{cfg: cfg, db: deps.DB, logger: deps.Logger}

	a.Repo = auth.NewRepositoryManager(deps.DB)
	a.Repo.MustValidate()

	policy := auth.PolicyFromConfig(cfg.GetPasswordPolicy())
	lifecycle := auth.NewAccountLifecycle(
		a.Repo.Principals(),
		auth.WithLifecycleActivitySink(deps.Activity),
		auth.WithLifecycleLogger(deps.Logger),
		auth.WithLifecycleClock(deps.Now),
	)

	a.Auther = auth.NewAuthenticator(a.Repo, cfg).
		WithLogger(deps.Logger).
		WithActivitySink(deps.Activity).
		WithClock(deps.Now)

	routes, err := auth.NewHTTPAuthenticator(a.Auther, a.Auther.SessionIssuer(), cfg)
	if err != nil {
		return nil, err
	}
	a.Routes = routes.WithLogger(deps.Logger)

	a.Passwords = auth.NewPasswordSetHandler(a.Repo).
		WithLogger(deps.Logger).
		WithActivitySink(deps.Activity).
		WithPasswordPolicy(policy).
		WithLifecycle(lifecycle).
		WithClock(deps.Now)

	a.Provision = auth.NewProvisionAccountHandler(a.Repo, cfg.GetBaseURL()).
		WithMailer(deps.Mailer).
		WithTokenIssuer(auth.NewTokenIssuer(auth.WithTokenClock(deps.Now))).
		WithActivitySink(deps.Activity).
		WithLogger(deps.Logger).
		WithClock(deps.Now)

	a.Update = auth.NewUpdateAccountHandler(a.Repo).
		WithLifecycle(lifecycle).
		WithPasswordPolicy(policy).
		WithActivitySink(deps.Activity).
		WithLogger(deps.Logger).
		WithClock(deps.Now)

	a.Delete = auth.NewDeleteAccountHandler(a.Repo).
		WithActivitySink(deps.Activity).
		WithLogger(deps.Logger)

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	auth.RegisterMetrics(a.Registry)

	a.Fiber = fiber.New(fiber.Config{
		AppName:           "eduquiz-auth",
		Views:             views.New(cfg.Server.ReloadViews),
		PassLocalsToViews: true,
		ErrorHandler:      a.handleError,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
	})

	a.routes(deps.AccessLog)
	return a, nil
}

func (a *App) routes(accessLog io.Writer) {
	r := a.Fiber

	r.Use(recover.New())
	r.Use(fiberlogger.New(fiberlogger.Config{
		Output: accessLog,
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))

	r.Get("/healthz", a.Healthz).Name("healthz")
	r.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{})))

	r.Use(csrf.New(csrf.Config{
		SecureKey: a.cfg.CSRFSecret(),
		Skip: func(c *fiber.Ctx) bool {
			// JSON API callers authenticate with the session cookie and
			// a SameSite=Lax cookie is not sent on cross site POSTs
			return c.Is("json")
		},
	}))
	csrf.RegisterRoutes(r)

	r.Get("/", func(c *fiber.Ctx) error {
		if id, ok := a.Routes.OptionalIdentity(c); ok {
			return c.Redirect(auth.UserRole(id.Role()).LandingPath(), fiber.StatusFound)
		}
		return c.Redirect("/login", fiber.StatusFound)
	})

	auth.RegisterAuthRoutes(r,
		auth.WithControllerLogger(a.logger),
		auth.WithRouteAuthenticator(a.Routes),
		auth.WithPasswordSetHandler(a.Passwords),
	)

	auth.RegisterAdminRoutes(r, &auth.AdminController{
		Logger:    a.logger,
		Auther:    a.Routes,
		Repo:      a.Repo,
		Provision: a.Provision,
		Update:    a.Update,
		Delete:    a.Delete,
	})
}

// Healthz reports whether the database answers
func (a *App) Healthz(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	if err := a.db.PingContext(ctx); err != nil {
		a.logger.Error("health check failed", "error", err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

// handleError turns fiber routing errors into rendered pages and sends the
// rest through the auth error handler.
func (a *App) handleError(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		richErr := goerrors.New(fe.Message, goerrors.CategoryNotFound).WithCode(fe.Code)
		if fe.Code != fiber.StatusNotFound {
			richErr.Category = goerrors.CategoryBadInput
		}
		return a.Routes.ErrorHandler(c, richErr)
	}
	return a.Routes.ErrorHandler(c, err)
}

// Listen serves until ctx is cancelled
func (a *App) Listen(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- a.Fiber.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		a.logger.Info("shutting down", "addr", addr)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.Fiber.ShutdownWithContext(shutdownCtx)
	}
}
