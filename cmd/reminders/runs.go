package main

import (
	"fmt"
	"text/tabwriter"

	"billing_reminders_backend/internal/reminders/service"
	"billing_reminders_backend/internal/reminders/transport"

	"github.com/spf13/cobra"
)

func runsCmd() *cobra.Command {
	var (
		scope  scopeFlags
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent reminder runs of a scope",
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := scope.scope()
			if err != nil {
				return err
			}

			s, err := openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			runs, err := s.engine.Service.ListRuns(cmd.Context(), target, limit)
			if err != nil {
				return err
			}
			listing := transport.NewRunListResponse(runs)
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), listing)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN\tRAN AT\tSOURCE\tDRY\tATTEMPTED\tSENT\tSKIPPED\tERRORS\tMS")
			for _, r := range listing.Items {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%d\t%d\t%d\t%d\t%d\n",
					r.RunID, r.RanAt.Format("2006-01-02 15:04:05"), r.Source, r.DryRun,
					r.Attempted, r.Sent, r.Skipped, r.Errors, r.DurationMs)
			}
			return tw.Flush()
		},
	}

	scope.bind(cmd)
	cmd.Flags().IntVarP(&limit, "limit", "n", service.DefaultRunsLimit, "maximum runs to list")
	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "output as JSON")

	return cmd
}
