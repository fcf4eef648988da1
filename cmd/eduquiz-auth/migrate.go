package main

import (
	"github.com/spf13/cobra"

	"github.com/eduquiz/go-auth/repository"
)

func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := setup(cmd.Context(), cmd.Flags(), cmd.ErrOrStderr(), true)
			if err != nil {
				return err
			}
			defer rt.Close()
			cmd.Println("Migrations completed successfully")
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "rollback",
		Short: "Roll back the last migration group",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := setup(cmd.Context(), cmd.Flags(), cmd.ErrOrStderr(), false)
			if err != nil {
				return err
			}
			defer rt.Close()

			group, err := repository.Rollback(cmd.Context(), rt.db)
			if err != nil {
				return err
			}
			if group == nil || group.IsZero() {
				cmd.Println("Nothing to roll back")
				return nil
			}
			cmd.Printf("Rolled back %s\n", group)
			return nil
		},
	})

	return cmd
}
