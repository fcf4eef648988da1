package auth

import (
	"embed"
	"io/fs"

	goerrors "github.com/goliatone/go-errors"
)

//go:embed data/sql/migrations
var migrationsFS embed.FS

// GetMigrationsFS returns the migration files for this package
func GetMigrationsFS() embed.FS {
	return migrationsFS
}

// DialectMigrations returns the migrations for "sqlite" or "postgres"
func DialectMigrations(dialect string) (fs.FS, error) {
	switch dialect {
	case "sqlite", "postgres":
		return fs.Sub(migrationsFS, "data/sql/migrations/"+dialect)
	default:
		return nil, goerrors.New("unsupported migration dialect: "+dialect, goerrors.CategoryBadInput)
	}
}
