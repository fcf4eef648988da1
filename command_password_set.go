package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const commandTimeout = 10 * time.Second

// CredentialRef points at a record whose setup token verified. It carries
// the presented token so consumption can re-check it inside a transaction.
type CredentialRef struct {
	Kind  PrincipalKind
	ID    uuid.UUID
	Email string
	Token string
	Name  string
}

// SetPasswordMessage is the body of a password set request
type SetPasswordMessage struct {
	Kind     PrincipalKind
	Email    string
	Token    string
	Password string
}

// PasswordSetHandler validates setup tokens and consumes them to set a
// password. It is the only path that activates a provisioned account.
type PasswordSetHandler struct {
	repo      RepositoryManager
	hasher    PasswordAuthenticator
	policy    PasswordPolicy
	lifecycle AccountLifecycle
	activity  ActivitySink
	logger    Logger
	now       func() time.Time
}

// NewPasswordSetHandler creates a handler with sane defaults.
func NewPasswordSetHandler(repo RepositoryManager) *PasswordSetHandler {
	return &PasswordSetHandler{
		repo:      repo,
		hasher:    BcryptHasher{},
		policy:    acceptAnyPassword{},
		lifecycle: NewAccountLifecycle(repo.Principals()),
		activity:  noopActivitySink{},
		logger:    defLogger{},
		now:       time.Now,
	}
}

// WithActivitySink sets the sink used to emit password events.
func (h *PasswordSetHandler) WithActivitySink(sink ActivitySink) *PasswordSetHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *PasswordSetHandler) WithLogger(logger Logger) *PasswordSetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *PasswordSetHandler) WithClock(now func() time.Time) *PasswordSetHandler {
	if now != nil {
		h.now = now
	}
	return h
}

func (h *PasswordSetHandler) WithPasswordPolicy(policy PasswordPolicy) *PasswordSetHandler {
	if policy != nil {
		h.policy = policy
	}
	return h
}

func (h *PasswordSetHandler) WithPasswordAuthenticator(hasher PasswordAuthenticator) *PasswordSetHandler {
	if hasher != nil {
		h.hasher = hasher
	}
	return h
}

func (h *PasswordSetHandler) WithLifecycle(lc AccountLifecycle) *PasswordSetHandler {
	if lc != nil {
		h.lifecycle = lc
	}
	return h
}

// ValidateToken looks the record up by kind and email and checks the
// presented token against it. Nothing is written.
func (h *PasswordSetHandler) ValidateToken(ctx context.Context, email, token string, kind PrincipalKind) (CredentialRef, error) {
	if email == "" || token == "" {
		return CredentialRef{}, ErrInvalidRequest
	}
	if !kind.IsValid() {
		return CredentialRef{}, ErrUnknownKind
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	p, err := h.repo.Principals().FindByEmail(ctx, kind, email)
	if err != nil {
		if IsPrincipalNotFound(err) {
			return CredentialRef{}, tokenNotFoundError(kind)
		}
		return CredentialRef{}, err
	}

	if err := checkToken(p.Credential(), token, h.now()); err != nil {
		return CredentialRef{}, err
	}

	return CredentialRef{
		Kind:  kind,
		ID:    p.UUID(),
		Email: p.Email(),
		Token: token,
		Name:  p.FullName(),
	}, nil
}

// ApplyNewPassword hashes password and, in one transaction, re-checks the
// token and consumes it. Of two concurrent calls with the same token only
// one succeeds; the other fails with ErrTokenInvalid or ErrTokenNotFound.
func (h *PasswordSetHandler) ApplyNewPassword(ctx context.Context, ref CredentialRef, password string) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password set",
		)
	default:
	}

	err := h.applyNewPassword(ctx, ref, password)
	recordPasswordSet(ref.Kind, outcomeFor(err))
	return err
}

// Execute validates the token and applies the password in one call
func (h *PasswordSetHandler) Execute(ctx context.Context, msg SetPasswordMessage) error {
	if msg.Password == "" {
		return ErrInvalidRequest
	}

	ref, err := h.ValidateToken(ctx, msg.Email, msg.Token, msg.Kind)
	if err != nil {
		recordPasswordSet(msg.Kind, outcomeFor(err))
		return err
	}
	return h.ApplyNewPassword(ctx, ref, msg.Password)
}

func (h *PasswordSetHandler) applyNewPassword(ctx context.Context, ref CredentialRef, password string) error {
	if ref.ID == uuid.Nil || ref.Token == "" {
		return ErrInvalidRequest
	}

	if err := h.policy.Validate(password); err != nil {
		return err
	}

	// hashing is slow; keep it out of the transaction
	passwordHash, err := h.hasher.HashPassword(password)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid new password provided")
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	var current Principal
	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		now := h.now()

		p, err := h.repo.Principals().FindForUpdateTx(ctx, tx, ref.Kind, ref.ID)
		if err != nil {
			if IsPrincipalNotFound(err) {
				return tokenNotFoundError(ref.Kind)
			}
			return err
		}

		if err := checkToken(p.Credential(), ref.Token, now); err != nil {
			return err
		}

		ok, err := h.repo.Principals().ConsumeResetTokenTx(ctx, tx, ref.Kind, ref.ID, p.Credential().ResetToken, passwordHash, now)
		if err != nil {
			return err
		}
		if !ok {
			return ErrTokenInvalid
		}

		current = p
		return nil
	})

	if err != nil {
		h.logger.Warn("password set failed", "kind", string(ref.Kind), "error", err)
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to set password")
	}

	actor := ActorRef{ID: current.ID(), Type: string(current.Kind())}
	if err := h.lifecycle.Transition(ctx, nil, actor, current, AccountActive,
		WithAlreadyPersisted(),
		WithTransitionReason("setup token consumed"),
	); err != nil {
		h.logger.Warn("password set status event failed", "error", err)
	}

	h.recordActivity(ctx, current)

	return nil
}

// checkToken compares a presented token with the stored digest, then checks
// the expiry. A mismatch is reported before an expiry.
func checkToken(cred Credential, token string, now time.Time) error {
	if !TokenMatches(token, cred.ResetToken) {
		return ErrTokenInvalid
	}
	if IsExpired(cred.ResetTokenExpiry, now) {
		return ErrTokenExpired
	}
	return nil
}

func (h *PasswordSetHandler) recordActivity(ctx context.Context, p Principal) {
	recordActivity(ctx, h.activity, h.logger, h.now, ActivityEvent{
		EventType:   ActivityEventPasswordSet,
		Actor:       ActorRef{ID: p.ID(), Type: string(p.Kind())},
		PrincipalID: p.ID(),
		Kind:        p.Kind(),
		Metadata: map[string]any{
			"email": p.Email(),
		},
	})
}
