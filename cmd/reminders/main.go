package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"billing_reminders_backend/internal/email"
	"billing_reminders_backend/internal/reminders"
	"billing_reminders_backend/internal/reminders/domain"
	"billing_reminders_backend/platform/config"
	"billing_reminders_backend/platform/db"
	"billing_reminders_backend/platform/logger"
	"billing_reminders_backend/platform/validator"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "reminders",
		Short:         "Operate the invoice reminder engine",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(runsCmd())
	rootCmd.AddCommand(schemaCmd())
	rootCmd.AddCommand(migrateCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// session is an opened database plus the engine built over it.
type session struct {
	cfg    *config.Config
	log    *logger.Logger
	pool   *pgxpool.Pool
	engine *reminders.Components
}

func openSession(ctx context.Context) (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log := logger.NewWithWriter(cfg.Env, os.Stderr)

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	sender, err := email.NewSender(cfg)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("email sender: %w", err)
	}

	return &session{
		cfg:    cfg,
		log:    log,
		pool:   pool,
		engine: reminders.NewComponents(pool, sender, validator.New(), cfg, log),
	}, nil
}

func (s *session) Close() {
	s.pool.Close()
}

// scopeFlags selects a workspace or a legacy account.
type scopeFlags struct {
	workspace string
	account   string
}

func (f *scopeFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.workspace, "workspace", "", "workspace id")
	cmd.Flags().StringVar(&f.account, "account", "", "legacy account (user) id for pre-workspace invoices")
	cmd.MarkFlagsMutuallyExclusive("workspace", "account")
}

func (f *scopeFlags) isSet() bool {
	return f.workspace != "" || f.account != ""
}

func (f *scopeFlags) scope() (domain.Scope, error) {
	switch {
	case f.workspace != "":
		id, err := uuid.Parse(f.workspace)
		if err != nil {
			return domain.Scope{}, fmt.Errorf("--workspace: %w", err)
		}
		return domain.WorkspaceScope(id), nil
	case f.account != "":
		id, err := uuid.Parse(f.account)
		if err != nil {
			return domain.Scope{}, fmt.Errorf("--account: %w", err)
		}
		return domain.LegacyScope(id), nil
	}
	return domain.Scope{}, fmt.Errorf("one of --workspace or --account is required")
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
