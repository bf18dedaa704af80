package main

import (
	"fmt"

	"billing_reminders_backend/migrations"
	"billing_reminders_backend/platform/config"
	"billing_reminders_backend/platform/db"

	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	var to int64

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded goose migrations",
		Long: `Apply the embedded goose migrations.

--to stops at a version, which is how a database is held at the legacy
run layout (2) or brought up to run items (3) step by step.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			if to > 0 {
				err = db.MigrateTo(ctx, cfg, migrations.FS, to)
			} else {
				err = db.RunMigrations(ctx, cfg, migrations.FS)
			}
			if err != nil {
				return err
			}

			version, err := db.MigrationVersion(ctx, cfg, migrations.FS)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "database at version %d\n", version)
			return nil
		},
	}

	cmd.Flags().Int64Var(&to, "to", 0, "migrate up to this version only")
	return cmd
}
