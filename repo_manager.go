package auth

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
)

const (
	defaultTxRetries   = 5
	defaultTxRetryBase = 20 * time.Millisecond
)

type mngr struct {
	db         *bun.DB
	principals Principals
	retries    uint64
	retryBase  time.Duration
}

// RepositoryManagerOption customizes the repository manager
type RepositoryManagerOption func(*mngr)

// WithTxRetries sets how many times a transaction that lost a lock or a
// serialization check is replayed. Zero disables replays.
func WithTxRetries(n uint64, base time.Duration) RepositoryManagerOption {
	return func(m *mngr) {
		m.retries = n
		if base > 0 {
			m.retryBase = base
		}
	}
}

func NewRepositoryManager(db *bun.DB, opts ...RepositoryManagerOption) RepositoryManager {
	m := &mngr{
		db:         db,
		principals: NewPrincipalsRepository(db),
		retries:    defaultTxRetries,
		retryBase:  defaultTxRetryBase,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *mngr) Validate() error {
	if m.db == nil {
		return errors.New("repository database should be initialized")
	}

	if m.principals == nil {
		return errors.New("repository principals should be initialized")
	}

	return nil
}

func (m *mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

// RunInTx runs f in a transaction. A transaction aborted because the
// database was busy or could not serialize it is replayed with backoff;
// any other error is returned as is.
func (m *mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if m.retries == 0 {
		return m.db.RunInTx(ctx, opts, f)
	}

	backoff := retry.WithMaxRetries(m.retries, retry.NewExponential(m.retryBase))
	backoff = retry.WithCappedDuration(time.Second, backoff)

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := m.db.RunInTx(ctx, opts, f)
		if isTransient(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func (m *mngr) Principals() Principals {
	return m.principals
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}

	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		switch pgErr.Field('C') {
		case "40001", "40P01":
			return true
		}
		return false
	}

	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database table is locked")
}
