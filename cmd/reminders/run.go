package main

import (
	"fmt"
	"time"

	"billing_reminders_backend/internal/reminders/domain"
	"billing_reminders_backend/internal/reminders/service"
	"billing_reminders_backend/internal/reminders/transport"
	"billing_reminders_backend/internal/scheduler"
	"billing_reminders_backend/platform/config"

	"github.com/spf13/cobra"
)

func runCmd() *cobra.Command {
	var (
		scope   scopeFlags
		all     bool
		dryRun  bool
		enqueue bool
		actor   string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Claim and send due reminders for one scope or every scope",
		Long: `Run the reminder engine once.

With --workspace or --account the run is recorded as a manual run for that
scope. With --all every scope that has due invoices is run, as the daily
schedule does. --enqueue hands a fan-out run to the scheduler worker instead
of running it in this process.

Examples:
  reminders run --workspace 3f0c... --dry-run
  reminders run --all
  reminders run --all --enqueue`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == scope.isSet() {
				return fmt.Errorf("pass exactly one of --all, --workspace or --account")
			}
			ctx := cmd.Context()

			if enqueue {
				if !all {
					return fmt.Errorf("--enqueue only supports --all")
				}
				cfg, err := config.Load()
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				client, err := scheduler.NewClient(cfg)
				if err != nil {
					return err
				}
				defer client.Close()
				id, err := client.EnqueueReminderRun(ctx, scheduler.ReminderRunPayload{DryRun: dryRun})
				if err != nil {
					return fmt.Errorf("enqueue reminder run: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s\n", id)
				return nil
			}

			s, err := openSession(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			if all {
				ranAt := time.Now().UTC()
				outcomes, err := s.engine.Service.RunAllScopes(ctx, domain.TriggerCron, dryRun)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), transport.NewFanOutResponse(ranAt, dryRun, outcomes))
			}

			target, err := scope.scope()
			if err != nil {
				return err
			}
			outcome, err := s.engine.Service.Run(ctx, service.RunRequest{
				Scope:       target,
				TriggeredBy: domain.TriggerManual,
				ActorEmail:  actor,
				DryRun:      dryRun,
			})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), transport.NewTriggerResponse(outcome))
		},
	}

	scope.bind(cmd)
	cmd.Flags().BoolVar(&all, "all", false, "run every scope with due invoices")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be sent without claiming or sending")
	cmd.Flags().BoolVar(&enqueue, "enqueue", false, "queue the run for the scheduler worker")
	cmd.Flags().StringVar(&actor, "actor", "", "email recorded as the run actor")

	return cmd
}
