package auth

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UpdateAccountMessage edits an existing account. A nil Active leaves the
// status alone and an empty Password keeps the current hash.
type UpdateAccountMessage struct {
	Kind      PrincipalKind `json:"kind"`
	ID        uuid.UUID     `json:"id"`
	Email     string        `json:"email"`
	FirstName string        `json:"first_name"`
	LastName  string        `json:"last_name"`
	Active    *bool         `json:"is_active,omitempty"`
	Password  string        `json:"password,omitempty"`
}

func (e UpdateAccountMessage) Type() string { return "account.update" }

func (e UpdateAccountMessage) Validate() error {
	err := validation.ValidateStruct(&e,
		validation.Field(&e.Email, validation.Required, is.EmailFormat),
		validation.Field(&e.FirstName, validation.Required, validation.RuneLength(1, 100)),
		validation.Field(&e.LastName, validation.Required, validation.RuneLength(1, 100)),
	)
	if err != nil {
		return validationError(err, "invalid account details")
	}
	if !e.Kind.IsValid() {
		return ErrUnknownKind
	}
	if e.ID == uuid.Nil {
		return ErrInvalidRequest
	}
	return nil
}

type UpdateAccountHandler struct {
	repo      RepositoryManager
	hasher    PasswordAuthenticator
	policy    PasswordPolicy
	lifecycle AccountLifecycle
	activity  ActivitySink
	logger    Logger
	now       func() time.Time
}

func NewUpdateAccountHandler(repo RepositoryManager) *UpdateAccountHandler {
	return &UpdateAccountHandler{
		repo:      repo,
		hasher:    BcryptHasher{},
		policy:    acceptAnyPassword{},
		lifecycle: NewAccountLifecycle(repo.Principals()),
		activity:  noopActivitySink{},
		logger:    defLogger{},
		now:       time.Now,
	}
}

func (h *UpdateAccountHandler) WithLifecycle(lc AccountLifecycle) *UpdateAccountHandler {
	if lc != nil {
		h.lifecycle = lc
	}
	return h
}

func (h *UpdateAccountHandler) WithPasswordPolicy(policy PasswordPolicy) *UpdateAccountHandler {
	if policy != nil {
		h.policy = policy
	}
	return h
}

func (h *UpdateAccountHandler) WithPasswordAuthenticator(hasher PasswordAuthenticator) *UpdateAccountHandler {
	if hasher != nil {
		h.hasher = hasher
	}
	return h
}

func (h *UpdateAccountHandler) WithActivitySink(sink ActivitySink) *UpdateAccountHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *UpdateAccountHandler) WithLogger(logger Logger) *UpdateAccountHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *UpdateAccountHandler) WithClock(now func() time.Time) *UpdateAccountHandler {
	if now != nil {
		h.now = now
	}
	return h
}

// Execute applies msg and returns the updated principal
func (h *UpdateAccountHandler) Execute(ctx context.Context, actor ActorRef, msg UpdateAccountMessage) (Principal, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account update",
		)
	default:
		return h.execute(ctx, actor, msg)
	}
}

func (h *UpdateAccountHandler) execute(ctx context.Context, actor ActorRef, msg UpdateAccountMessage) (Principal, error) {
	msg.Email = strings.TrimSpace(msg.Email)
	msg.FirstName = strings.TrimSpace(msg.FirstName)
	msg.LastName = strings.TrimSpace(msg.LastName)

	if err := msg.Validate(); err != nil {
		return nil, err
	}

	var passwordHash string
	if msg.Password != "" {
		if err := h.policy.Validate(msg.Password); err != nil {
			return nil, err
		}
		hash, err := h.hasher.HashPassword(msg.Password)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password provided")
		}
		passwordHash = hash
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	var updated Principal
	var changed []string
	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		changed = changed[:0]

		p, err := h.repo.Principals().FindForUpdateTx(ctx, tx, msg.Kind, msg.ID)
		if err != nil {
			return err
		}

		if p.Email() != msg.Email {
			taken, err := h.repo.Principals().EmailTaken(ctx, tx, msg.Kind, msg.Email, msg.ID)
			if err != nil {
				return err
			}
			if taken {
				return ErrEmailTaken.Clone().WithMetadata(map[string]any{"kind": string(msg.Kind)})
			}
			changed = append(changed, "email")
		}
		if p.FirstName() != msg.FirstName || p.LastName() != msg.LastName {
			changed = append(changed, "name")
		}

		setter := Mutate(p).Profile(msg.Email, msg.FirstName, msg.LastName)
		if passwordHash != "" {
			setter.PasswordHash(passwordHash)
			changed = append(changed, "password")
		}

		if err := h.repo.Principals().UpdateProfileTx(ctx, tx, p); err != nil {
			return err
		}

		if msg.Active != nil {
			target := AccountInactive
			if *msg.Active {
				target = AccountActive
			}
			if err := h.lifecycle.Transition(ctx, tx, actor, p, target,
				WithTransitionReason("account edited"),
			); err != nil {
				return err
			}
		}

		updated = p
		return nil
	})
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "account update transaction failed")
	}

	recordActivity(ctx, h.activity, h.logger, h.now, ActivityEvent{
		EventType:   ActivityEventAccountUpdated,
		Actor:       actor,
		PrincipalID: updated.ID(),
		Kind:        updated.Kind(),
		Metadata: map[string]any{
			"email":   updated.Email(),
			"changed": changed,
		},
	})

	return updated, nil
}

// DeleteAccountHandler removes an account. Teacher subject assignments go
// with it.
type DeleteAccountHandler struct {
	repo     RepositoryManager
	activity ActivitySink
	logger   Logger
	now      func() time.Time
}

func NewDeleteAccountHandler(repo RepositoryManager) *DeleteAccountHandler {
	return &DeleteAccountHandler{
		repo:     repo,
		activity: noopActivitySink{},
		logger:   defLogger{},
		now:      time.Now,
	}
}

func (h *DeleteAccountHandler) WithActivitySink(sink ActivitySink) *DeleteAccountHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *DeleteAccountHandler) WithLogger(logger Logger) *DeleteAccountHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *DeleteAccountHandler) Execute(ctx context.Context, actor ActorRef, kind PrincipalKind, id uuid.UUID) error {
	if !kind.IsValid() {
		return ErrUnknownKind
	}
	if id == uuid.Nil {
		return ErrInvalidRequest
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return h.repo.Principals().DeleteTx(ctx, tx, kind, id)
	})
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "account delete transaction failed")
	}

	recordActivity(ctx, h.activity, h.logger, h.now, ActivityEvent{
		EventType:   ActivityEventAccountDeleted,
		Actor:       actor,
		PrincipalID: id.String(),
		Kind:        kind,
	})
	return nil
}

// Default admin credentials used when none are configured
const (
	DefaultAdminEmail    = "admin@eduquiz.com"
	DefaultAdminPassword = "Admin@123"
)

// SeedAdmin creates an active admin with the given credentials unless an
// admin with that email exists. It reports whether a record was created.
func SeedAdmin(ctx context.Context, repo RepositoryManager, email, password string) (bool, error) {
	if email == "" {
		email = DefaultAdminEmail
	}
	if password == "" {
		password = DefaultAdminPassword
	}

	hash, err := HashPassword(password)
	if err != nil {
		return false, err
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	created := false
	err = repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := repo.Principals().FindByEmailTx(ctx, tx, KindAdmin, email)
		if err == nil {
			return nil
		}
		if !IsPrincipalNotFound(err) {
			return err
		}

		taken, err := repo.Principals().EmailTaken(ctx, tx, KindAdmin, email, uuid.Nil)
		if err != nil {
			return err
		}
		if taken {
			return ErrEmailTaken.Clone().WithMetadata(map[string]any{"kind": string(KindAdmin)})
		}

		p, err := NewPrincipal(KindAdmin, email, "System", "Administrator")
		if err != nil {
			return err
		}
		Mutate(p).PasswordHash(hash).Active(true)
		if err := repo.Principals().CreateTx(ctx, tx, p); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return false, richErr
		}
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "admin seed failed")
	}
	return created, nil
}
