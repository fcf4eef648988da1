package main

import (
	"github.com/spf13/cobra"

	auth "github.com/eduquiz/go-auth"
)

func NewSeedAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed-admin",
		Short: "Create the default admin account",
		Long: `Creates the admin account from seed.admin_email and seed.admin_password.
This command is idempotent: an existing admin is left untouched.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			rt, err := setup(ctx, cmd.Flags(), cmd.ErrOrStderr(), true)
			if err != nil {
				return err
			}
			defer rt.Close()

			repo := auth.NewRepositoryManager(rt.db)
			created, err := auth.SeedAdmin(ctx, repo, rt.cfg.Seed.AdminEmail, rt.cfg.Seed.AdminPassword)
			if err != nil {
				return err
			}
			if created {
				cmd.Printf("Admin %s created\n", rt.cfg.Seed.AdminEmail)
			} else {
				cmd.Printf("Admin %s already exists\n", rt.cfg.Seed.AdminEmail)
			}
			return nil
		},
	}

	cmd.Flags().String("seed.admin_email", auth.DefaultAdminEmail, "admin email")
	cmd.Flags().String("seed.admin_password", auth.DefaultAdminPassword, "admin password")

	return cmd
}
