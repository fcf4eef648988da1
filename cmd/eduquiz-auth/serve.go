package main

import (
	"os"

	"github.com/spf13/cobra"

	auth "github.com/eduquiz/go-auth"
	"github.com/eduquiz/go-auth/activitymap"
	"github.com/eduquiz/go-auth/app"
)

func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long: `Start the HTTP server. The default admin is seeded on start when
no admin with the seed email exists.`,
		RunE: runServe,
	}

	cmd.Flags().String("server.addr", ":8080", "listen address")
	cmd.Flags().String("server.base_url", "http://localhost:8080", "public base url used in setup links")
	cmd.Flags().String("mail.driver", "console", "mail driver: console, smtp, sendgrid or none")
	cmd.Flags().String("log.activity_file", "", "append audit events as JSON lines to this file")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	rt, err := setup(ctx, cmd.Flags(), cmd.ErrOrStderr(), false)
	if err != nil {
		return err
	}
	defer rt.Close()

	if rt.cfg.UsesDevSigningKey() {
		rt.logger.Warn("serving with the development signing key, set auth.signing_key")
	}

	repo := auth.NewRepositoryManager(rt.db)
	created, err := auth.SeedAdmin(ctx, repo, rt.cfg.Seed.AdminEmail, rt.cfg.Seed.AdminPassword)
	if err != nil {
		return err
	}
	if created {
		rt.logger.Info("default admin created", "email", rt.cfg.Seed.AdminEmail)
	}

	setupMailer, err := app.NewMailer(rt.cfg.Mail, rt.logger, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	var activity auth.ActivitySink = auth.LoggerActivitySink{Logger: rt.logger}
	if path := rt.cfg.Log.ActivityFile; path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
		if err != nil {
			return err
		}
		defer f.Close()
		activity = activitymap.NewSink(f, activity)
	}

	server, err := app.New(app.Deps{
		Config:    rt.cfg,
		DB:        rt.db,
		Mailer:    setupMailer,
		Logger:    rt.logger,
		Activity:  activity,
		AccessLog: cmd.OutOrStdout(),
	})
	if err != nil {
		return err
	}

	rt.logger.Info("listening", "addr", rt.cfg.Server.Addr, "base_url", rt.cfg.Server.BaseURL)
	return server.Listen(ctx, rt.cfg.Server.Addr)
}
