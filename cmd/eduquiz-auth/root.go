package main

import (
	"context"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/uptrace/bun"

	auth "github.com/eduquiz/go-auth"
	"github.com/eduquiz/go-auth/config"
	"github.com/eduquiz/go-auth/repository"
)

// configFile is the global --config flag
var configFile string

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eduquiz-auth",
		Short: "EduQuiz authentication service",
		Long: `eduquiz-auth serves login, logout and account setup for EduQuiz
admins, teachers and students, and provisions new accounts.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (yaml)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewSeedAdminCmd())
	cmd.AddCommand(NewProvisionCmd())

	return cmd
}

// runtime holds what every subcommand needs
type runtime struct {
	cfg    *config.Config
	log    *slog.Logger
	logger auth.Logger
	db     *bun.DB
}

func (r *runtime) Close() {
	if r.db != nil {
		r.db.Close()
	}
}

// setup loads the config, builds the logger and opens the database.
// Migrations run when migrate is true or auto_migrate is set.
func setup(ctx context.Context, flags *pflag.FlagSet, stderr io.Writer, migrate bool) (*runtime, error) {
	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return nil, err
	}

	log := auth.NewLogHandler(cfg.Log.Format, cfg.Log.Level, stderr)
	rt := &runtime{cfg: cfg, log: log, logger: auth.NewSlogLogger(log)}

	rt.db, err = repository.Open(ctx, repository.Options{
		Driver:       cfg.Database.Driver,
		DSN:          cfg.Database.DSN,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		Debug:        cfg.Database.Debug,
		Logger:       log,
	})
	if err != nil {
		return nil, err
	}

	if migrate || cfg.Database.AutoMigrate {
		group, err := repository.Migrate(ctx, rt.db)
		if err != nil {
			rt.Close()
			return nil, err
		}
		if group != nil && !group.IsZero() {
			rt.logger.Info("migrations applied", "group", group.ID, "count", len(group.Migrations))
		}
	}

	return rt, nil
}
