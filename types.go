package auth

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Identity holds the attributes of an authenticated principal
type Identity interface {
	ID() string
	Username() string
	Email() string
	Role() string
}

// Config holds auth options
type Config interface {
	GetSigningKey() string
	GetSigningMethod() string
	GetContextKey() string
	GetTokenExpiration() int
	GetTokenLookup() string
	GetAuthScheme() string
	GetIssuer() string
	GetAudience() []string
	GetBaseURL() string
	GetSecureCookies() bool
	GetPasswordPolicy() bool
	GetLockoutAttempts() int
	GetLockoutWindow() time.Duration
}

// Principals is the credential store for every principal kind.
type Principals interface {
	FindByEmail(ctx context.Context, kind PrincipalKind, email string) (Principal, error)
	FindByEmailTx(ctx context.Context, tx bun.IDB, kind PrincipalKind, email string) (Principal, error)
	FindByID(ctx context.Context, kind PrincipalKind, id uuid.UUID) (Principal, error)
	FindForUpdateTx(ctx context.Context, tx bun.IDB, kind PrincipalKind, id uuid.UUID) (Principal, error)
	List(ctx context.Context, kind PrincipalKind) ([]Principal, error)
	EmailTaken(ctx context.Context, tx bun.IDB, kind PrincipalKind, email string, exclude uuid.UUID) (bool, error)
	CreateTx(ctx context.Context, tx bun.IDB, principal Principal) error
	UpdateProfileTx(ctx context.Context, tx bun.IDB, principal Principal) error
	ConsumeResetTokenTx(ctx context.Context, tx bun.IDB, kind PrincipalKind, id uuid.UUID, digest, passwordHash string, at time.Time) (bool, error)
	TrackLoginAttemptTx(ctx context.Context, tx bun.IDB, principal Principal, success bool, at time.Time) error
	DeleteTx(ctx context.Context, tx bun.IDB, kind PrincipalKind, id uuid.UUID) error
}

// RepositoryManager exposes the credential store and its transactions
type RepositoryManager interface {
	Validate() error
	MustValidate()
	RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error
	Principals() Principals
}

// SetupMailer delivers account setup links. Delivery is best effort.
type SetupMailer interface {
	SendAccountSetupEmail(ctx context.Context, email, name, setupURL string) error
}

// PasswordAuthenticator authenticates passwords
type PasswordAuthenticator interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	d.print("ERR", format, args)
}

func (d defLogger) Warn(format string, args ...any) {
	d.print("WRN", format, args)
}

func (d defLogger) Info(format string, args ...any) {
	d.print("INF", format, args)
}

func (d defLogger) Debug(format string, args ...any) {
	d.print("DBG", format, args)
}

func (d defLogger) print(level, format string, args []any) {
	msg, attrs := splitLogArgs(format, args)
	var b strings.Builder
	b.WriteString("[" + level + "] AUTH " + msg)
	for _, a := range attrs {
		b.WriteString(" " + a.String())
	}
	fmt.Println(b.String())
}
