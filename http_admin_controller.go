package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// AdminController lets admins provision, edit and delete teacher and
// student accounts.
type AdminController struct {
	Logger    Logger
	Auther    *RouteAuthenticator
	Repo      RepositoryManager
	Provision *ProvisionAccountHandler
	Update    *UpdateAccountHandler
	Delete    *DeleteAccountHandler
}

// AccountRow is the view model of one account in the admin pages
type AccountRow struct {
	ID        string
	Name      string
	FirstName string
	LastName  string
	Email     string
	Status    string
	Active    bool
}

func accountRow(p Principal) AccountRow {
	return AccountRow{
		ID:        p.ID(),
		Name:      p.FullName(),
		FirstName: p.FirstName(),
		LastName:  p.LastName(),
		Email:     p.Email(),
		Status:    string(StatusOf(p)),
		Active:    p.Credential().IsActive,
	}
}

// AccountForm is the create and edit form
type AccountForm struct {
	FirstName string `form:"first_name" json:"first_name"`
	LastName  string `form:"last_name" json:"last_name"`
	Email     string `form:"email" json:"email"`
	IsActive  string `form:"is_active" json:"is_active"`
	Password  string `form:"password" json:"password"`
}

func (f AccountForm) active() bool {
	switch strings.ToLower(strings.TrimSpace(f.IsActive)) {
	case "true", "on", "1", "yes":
		return true
	default:
		return false
	}
}

// RegisterAdminRoutes mounts /Admin/Teachers and /Admin/Students behind the
// admin role.
func RegisterAdminRoutes(r fiber.Router, ac *AdminController) {
	if ac.Logger == nil {
		ac.Logger = defLogger{}
	}
	guard := ac.Auther.ProtectedRoute(RoleAdmin)

	for _, kind := range []PrincipalKind{KindTeacher, KindStudent} {
		base := adminBase(kind)
		g := r.Group(base, guard)
		g.Get("/", ac.List(kind)).Name("admin." + string(kind) + ".list")
		g.Post("/", ac.Create(kind)).Name("admin." + string(kind) + ".create")
		g.Get("/:id", ac.Edit(kind)).Name("admin." + string(kind) + ".edit")
		g.Post("/:id", ac.Save(kind)).Name("admin." + string(kind) + ".save")
		g.Post("/:id/delete", ac.Remove(kind)).Name("admin." + string(kind) + ".delete")
	}
}

func adminBase(kind PrincipalKind) string {
	return "/Admin/" + kind.Label() + "s"
}

func (ac *AdminController) actor(c *fiber.Ctx) ActorRef {
	if id, ok := ac.Auther.CurrentIdentity(c); ok {
		return ActorFromIdentity(id)
	}
	return ActorRef{Type: ActorTypeAnonymous}
}

func (ac *AdminController) List(kind PrincipalKind) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return ac.renderList(c, kind, fiber.StatusOK, AccountForm{}, "")
	}
}

func (ac *AdminController) renderList(c *fiber.Ctx, kind PrincipalKind, status int, form AccountForm, message string) error {
	records, err := ac.Repo.Principals().List(c.UserContext(), kind)
	if err != nil {
		return ac.Auther.ErrorHandler(c, err)
	}

	rows := make([]AccountRow, 0, len(records))
	for _, p := range records {
		rows = append(rows, accountRow(p))
	}

	if wantsJSON(c) {
		body := fiber.Map{"accounts": rows}
		if message != "" {
			body["error"] = message
		}
		return c.Status(status).JSON(body)
	}

	return c.Status(status).Render(viewAdminAccounts, withViewDefaults(c, fiber.Map{
		"label":    kind.Label(),
		"base":     adminBase(kind),
		"accounts": rows,
		"form":     form,
		"error":    message,
	}, ac.Auther.Flash()))
}

// Create provisions an account. When the setup email cannot be sent the
// link is flashed to the admin instead.
func (ac *AdminController) Create(kind PrincipalKind) fiber.Handler {
	return func(c *fiber.Ctx) error {
		form := AccountForm{}
		if err := c.BodyParser(&form); err != nil {
			return ac.renderList(c, kind, fiber.StatusBadRequest, form, ErrInvalidRequest.Message)
		}

		res, err := ac.Provision.Execute(c.UserContext(), ac.actor(c), ProvisionAccountMessage{
			Kind:      kind,
			Email:     form.Email,
			FirstName: form.FirstName,
			LastName:  form.LastName,
		})
		if err != nil {
			return ac.formFailed(c, kind, form, err)
		}

		label := kind.Label()
		flash := Flash{Success: label + " added successfully. A password setup email has been sent."}
		if !res.EmailSent {
			flash = Flash{
				Success:   label + " added successfully.",
				Warning:   "Could not send the password setup email. Please manually provide the setup link to the " + strings.ToLower(label) + ".",
				SetupLink: res.SetupURL,
			}
		}

		if wantsJSON(c) {
			return c.Status(fiber.StatusCreated).JSON(fiber.Map{
				"account":    accountRow(res.Principal),
				"email_sent": res.EmailSent,
				"setup_url":  flash.SetupLink,
			})
		}

		ac.setFlash(c, flash)
		return c.Redirect(adminBase(kind), fiber.StatusSeeOther)
	}
}

func (ac *AdminController) Edit(kind PrincipalKind) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := ac.find(c, kind)
		if err != nil {
			return ac.notFoundOr(c, kind, err)
		}
		return ac.renderEdit(c, kind, fiber.StatusOK, accountRow(p), "")
	}
}

func (ac *AdminController) renderEdit(c *fiber.Ctx, kind PrincipalKind, status int, row AccountRow, message string) error {
	if wantsJSON(c) {
		body := fiber.Map{"account": row}
		if message != "" {
			body["error"] = message
		}
		return c.Status(status).JSON(body)
	}
	return c.Status(status).Render(viewAdminAccountEdit, withViewDefaults(c, fiber.Map{
		"label":   kind.Label(),
		"base":    adminBase(kind),
		"account": row,
		"error":   message,
	}, ac.Auther.Flash()))
}

func (ac *AdminController) Save(kind PrincipalKind) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := uuid.Parse(c.Params("id"))
		if err != nil {
			return ac.renderStatus(c, fiber.StatusNotFound, kind.Label()+" not found")
		}

		form := AccountForm{}
		if err := c.BodyParser(&form); err != nil {
			return ac.renderStatus(c, fiber.StatusBadRequest, ErrInvalidRequest.Message)
		}

		active := form.active()
		p, err := ac.Update.Execute(c.UserContext(), ac.actor(c), UpdateAccountMessage{
			Kind:      kind,
			ID:        id,
			Email:     form.Email,
			FirstName: form.FirstName,
			LastName:  form.LastName,
			Active:    &active,
			Password:  form.Password,
		})
		if err != nil {
			if IsPrincipalNotFound(err) {
				return ac.renderStatus(c, fiber.StatusNotFound, kind.Label()+" not found")
			}
			if message, status, ok := formMessage(err); ok {
				row := AccountRow{
					ID:        id.String(),
					FirstName: form.FirstName,
					LastName:  form.LastName,
					Email:     form.Email,
					Active:    active,
				}
				return ac.renderEdit(c, kind, status, row, message)
			}
			return ac.Auther.ErrorHandler(c, err)
		}

		if wantsJSON(c) {
			return c.JSON(fiber.Map{"account": accountRow(p)})
		}
		ac.setFlash(c, Flash{Success: kind.Label() + " updated successfully"})
		return c.Redirect(adminBase(kind), fiber.StatusSeeOther)
	}
}

func (ac *AdminController) Remove(kind PrincipalKind) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := uuid.Parse(c.Params("id"))
		if err != nil {
			return ac.renderStatus(c, fiber.StatusNotFound, kind.Label()+" not found")
		}

		if err := ac.Delete.Execute(c.UserContext(), ac.actor(c), kind, id); err != nil {
			return ac.notFoundOr(c, kind, err)
		}

		if wantsJSON(c) {
			return c.SendStatus(fiber.StatusNoContent)
		}
		ac.setFlash(c, Flash{Success: kind.Label() + " deleted successfully."})
		return c.Redirect(adminBase(kind), fiber.StatusSeeOther)
	}
}

func (ac *AdminController) find(c *fiber.Ctx, kind PrincipalKind) (Principal, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return nil, ErrPrincipalNotFound
	}
	return ac.Repo.Principals().FindByID(c.UserContext(), kind, id)
}

func (ac *AdminController) notFoundOr(c *fiber.Ctx, kind PrincipalKind, err error) error {
	if IsPrincipalNotFound(err) {
		return ac.renderStatus(c, fiber.StatusNotFound, kind.Label()+" not found")
	}
	return ac.Auther.ErrorHandler(c, err)
}

func (ac *AdminController) formFailed(c *fiber.Ctx, kind PrincipalKind, form AccountForm, err error) error {
	if message, status, ok := formMessage(err); ok {
		return ac.renderList(c, kind, status, form, message)
	}
	return ac.Auther.ErrorHandler(c, err)
}

func (ac *AdminController) setFlash(c *fiber.Ctx, f Flash) {
	if err := ac.Auther.Flash().Set(c, f); err != nil {
		ac.Logger.Error("failed to set flash cookie", "error", err)
	}
}

func (ac *AdminController) renderStatus(c *fiber.Ctx, status int, message string) error {
	if wantsJSON(c) {
		return c.Status(status).JSON(fiber.Map{"error": message})
	}
	return c.Status(status).Render(viewError, withViewDefaults(c, fiber.Map{
		"status":  status,
		"message": message,
	}, ac.Auther.Flash()))
}

// formMessage maps errors a user can fix by editing the form to a message
// and status.
func formMessage(err error) (string, int, bool) {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return "", 0, false
	}

	switch richErr.Category {
	case goerrors.CategoryConflict:
		return "Email already exists", fiber.StatusConflict, true
	case goerrors.CategoryValidation, goerrors.CategoryBadInput:
		message := richErr.Message
		if v, ok := richErr.Metadata["violations"].(string); ok && v != "" {
			message += ": " + v
		}
		return message, fiber.StatusBadRequest, true
	default:
		return "", 0, false
	}
}
