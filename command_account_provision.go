package auth

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// ProvisionAccountMessage creates a teacher or student account that is
// inactive until its setup link is used.
type ProvisionAccountMessage struct {
	Kind      PrincipalKind `json:"kind"`
	Email     string        `json:"email"`
	FirstName string        `json:"first_name"`
	LastName  string        `json:"last_name"`
}

func (e ProvisionAccountMessage) Type() string { return "account.provision" }

func (e ProvisionAccountMessage) Validate() error {
	err := validation.ValidateStruct(&e,
		validation.Field(&e.Email, validation.Required, is.EmailFormat),
		validation.Field(&e.FirstName, validation.Required, validation.RuneLength(1, 100)),
		validation.Field(&e.LastName, validation.Required, validation.RuneLength(1, 100)),
	)
	if err != nil {
		return validationError(err, "invalid account details")
	}

	if _, ok := SetupPath(e.Kind); !ok {
		return ErrUnknownKind.Clone().WithMetadata(map[string]any{"kind": string(e.Kind)})
	}
	return nil
}

// ProvisionResult reports the created account and how its setup link was
// delivered. When EmailSent is false the caller shows SetupURL to the admin.
type ProvisionResult struct {
	Principal  Principal
	SetupURL   string
	EmailSent  bool
	EmailError error
}

// ProvisionAccountHandler creates pending accounts and sends setup links
type ProvisionAccountHandler struct {
	repo     RepositoryManager
	tokens   *TokenIssuer
	mailer   SetupMailer
	baseURL  string
	activity ActivitySink
	logger   Logger
	now      func() time.Time
}

func NewProvisionAccountHandler(repo RepositoryManager, baseURL string) *ProvisionAccountHandler {
	return &ProvisionAccountHandler{
		repo:     repo,
		tokens:   NewTokenIssuer(),
		baseURL:  baseURL,
		activity: noopActivitySink{},
		logger:   defLogger{},
		now:      time.Now,
	}
}

// WithMailer sets the mailer. Without one every result carries the link only.
func (h *ProvisionAccountHandler) WithMailer(m SetupMailer) *ProvisionAccountHandler {
	h.mailer = m
	return h
}

func (h *ProvisionAccountHandler) WithTokenIssuer(ti *TokenIssuer) *ProvisionAccountHandler {
	if ti != nil {
		h.tokens = ti
	}
	return h
}

func (h *ProvisionAccountHandler) WithActivitySink(sink ActivitySink) *ProvisionAccountHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *ProvisionAccountHandler) WithLogger(logger Logger) *ProvisionAccountHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *ProvisionAccountHandler) WithClock(now func() time.Time) *ProvisionAccountHandler {
	if now != nil {
		h.now = now
	}
	return h
}

// Execute creates the account for msg on behalf of actor.
func (h *ProvisionAccountHandler) Execute(ctx context.Context, actor ActorRef, msg ProvisionAccountMessage) (ProvisionResult, error) {
	select {
	case <-ctx.Done():
		return ProvisionResult{}, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account provisioning",
		)
	default:
		return h.execute(ctx, actor, msg)
	}
}

func (h *ProvisionAccountHandler) execute(ctx context.Context, actor ActorRef, msg ProvisionAccountMessage) (ProvisionResult, error) {
	msg.Email = strings.TrimSpace(msg.Email)
	msg.FirstName = strings.TrimSpace(msg.FirstName)
	msg.LastName = strings.TrimSpace(msg.LastName)

	if err := msg.Validate(); err != nil {
		return ProvisionResult{}, err
	}

	token, expiry, err := h.tokens.IssueToken()
	if err != nil {
		return ProvisionResult{}, err
	}

	setupURL, err := BuildSetupURL(h.baseURL, msg.Kind, msg.Email, token)
	if err != nil {
		return ProvisionResult{}, err
	}

	// the stored hash only has to be unguessable until the token is used
	placeholder, err := RandomPasswordHash()
	if err != nil {
		return ProvisionResult{}, err
	}

	p, err := NewPrincipal(msg.Kind, msg.Email, msg.FirstName, msg.LastName)
	if err != nil {
		return ProvisionResult{}, err
	}
	Mutate(p).
		PasswordHash(placeholder).
		Active(false).
		ResetToken(DigestToken(token), expiry)

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		taken, err := h.repo.Principals().EmailTaken(ctx, tx, msg.Kind, msg.Email, p.UUID())
		if err != nil {
			return err
		}
		if taken {
			return ErrEmailTaken.Clone().WithMetadata(map[string]any{"kind": string(msg.Kind)})
		}
		return h.repo.Principals().CreateTx(ctx, tx, p)
	})
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return ProvisionResult{}, richErr
		}
		return ProvisionResult{}, goerrors.Wrap(err, goerrors.CategoryInternal, "account provisioning transaction failed")
	}

	result := ProvisionResult{Principal: p, SetupURL: setupURL}
	result.EmailSent, result.EmailError = h.deliver(ctx, p, setupURL)

	recordActivity(ctx, h.activity, h.logger, h.now, ActivityEvent{
		EventType:   ActivityEventAccountProvisioned,
		Actor:       actor,
		PrincipalID: p.ID(),
		Kind:        p.Kind(),
		ToStatus:    AccountPending,
		Metadata: map[string]any{
			"email":      p.Email(),
			"email_sent": result.EmailSent,
			"expires_at": expiry.UTC(),
		},
	})

	return result, nil
}

// deliver sends the setup link. A failure is reported, never returned: the
// account already exists and the admin gets the link instead.
func (h *ProvisionAccountHandler) deliver(ctx context.Context, p Principal, setupURL string) (bool, error) {
	if h.mailer == nil {
		recordSetupEmail(OutcomeSkipped)
		return false, nil
	}

	if err := h.mailer.SendAccountSetupEmail(ctx, p.Email(), p.FullName(), setupURL); err != nil {
		h.logger.Warn("setup email failed", "kind", string(p.Kind()), "email", p.Email(), "error", err)
		recordSetupEmail(OutcomeError)
		return false, err
	}

	recordSetupEmail(OutcomeSuccess)
	return true, nil
}
