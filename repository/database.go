package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"time"

	auth "github.com/eduquiz/go-auth"
	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/driver/sqliteshim"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Options configures Open
type Options struct {
	Driver       string
	DSN          string
	MaxOpenConns int
	Debug        bool
	Logger       *slog.Logger
}

// Open connects to sqlite or postgres and returns a bun handle. SQLite
// connections enable foreign keys and a busy timeout.
func Open(ctx context.Context, opts Options) (*bun.DB, error) {
	var db *bun.DB

	switch strings.ToLower(opts.Driver) {
	case "", DriverSQLite, "sqlite3":
		dsn := opts.DSN
		if dsn == "" {
			dsn = "file::memory:?cache=shared"
		}
		sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open sqlite database")
		}
		// sqlite serializes writers; a single connection keeps in-memory
		// databases shared and avoids lock churn
		maxConns := opts.MaxOpenConns
		if maxConns <= 0 {
			maxConns = 1
		}
		sqldb.SetMaxOpenConns(maxConns)
		db = bun.NewDB(sqldb, sqlitedialect.New())

		for _, pragma := range []string{
			"PRAGMA foreign_keys = ON",
			"PRAGMA busy_timeout = 5000",
		} {
			if _, err := db.ExecContext(ctx, pragma); err != nil {
				db.Close()
				return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to configure sqlite")
			}
		}
	case DriverPostgres, "pg", "postgresql":
		sqldb := sql.OpenDB(pgdriver.NewConnector(
			pgdriver.WithDSN(opts.DSN),
			pgdriver.WithTimeout(10*time.Second),
		))
		if opts.MaxOpenConns > 0 {
			sqldb.SetMaxOpenConns(opts.MaxOpenConns)
		}
		db = bun.NewDB(sqldb, pgdialect.New())
	default:
		return nil, goerrors.New("unsupported database driver: "+opts.Driver, goerrors.CategoryBadInput)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to reach database")
	}

	if opts.Debug {
		db.AddQueryHook(&queryLogger{log: opts.Logger})
	}

	return db, nil
}

// DialectName maps a bun handle to the migration set it needs
func DialectName(db bun.IDB) string {
	if db.Dialect().Name() == dialect.PG {
		return DriverPostgres
	}
	return DriverSQLite
}

// NewRepositoryManager returns the auth repository manager for db
func NewRepositoryManager(db *bun.DB, opts ...auth.RepositoryManagerOption) auth.RepositoryManager {
	m := auth.NewRepositoryManager(db, opts...)
	m.MustValidate()
	return m
}
