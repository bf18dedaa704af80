package main

import (
	"fmt"
	"strings"

	"billing_reminders_backend/migrations"
	"billing_reminders_backend/platform/db"

	"github.com/spf13/cobra"
)

func schemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Show which reminder tables and columns the database carries",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openSession(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Reminder schema")
			fmt.Fprintln(out, strings.Repeat("=", 40))

			version, err := db.MigrationVersion(ctx, s.cfg, migrations.FS)
			if err != nil {
				fmt.Fprintf(out, "  Goose version:   unknown (%s)\n", err)
			} else {
				fmt.Fprintf(out, "  Goose version:   %d\n", version)
			}

			caps, err := s.engine.Repository.Probe().Capabilities(ctx)
			if err != nil {
				return fmt.Errorf("probe schema: %w", err)
			}
			fmt.Fprintf(out, "  Layout:          %s\n", caps.Version)
			fmt.Fprintf(out, "  workspace_id:    %s\n", yesNo(caps.RunWorkspaceID))
			fmt.Fprintf(out, "  actor_email:     %s\n", yesNo(caps.RunActorEmail))
			fmt.Fprintf(out, "  run items table: %s\n", yesNo(caps.RunItemsTable))
			if caps.Migration != "" {
				fmt.Fprintf(out, "  Pending:         %s\n", caps.Migration)
			}
			return nil
		},
	}
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
