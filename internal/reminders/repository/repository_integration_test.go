//go:build integration

package repository_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"billing_reminders_backend/internal/reminders/domain"
	"billing_reminders_backend/internal/reminders/repository"
	"billing_reminders_backend/migrations"
	"billing_reminders_backend/platform/db"
)

type dsnConfig string

func (d dsnConfig) GetDatabaseURL() string { return string(d) }

func startPostgres(t *testing.T, ctx context.Context) string {
	t.Helper()
	port := nat.Port("5432/tcp")
	dsnFor := func(host string, port nat.Port) string {
		return fmt.Sprintf("postgres://reminders:secret@%s:%s/reminders?sslmode=disable", host, port.Port())
	}
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{string(port)},
		Env: map[string]string{
			"POSTGRES_USER":     "reminders",
			"POSTGRES_PASSWORD": "secret",
			"POSTGRES_DB":       "reminders",
		},
		WaitingFor: wait.ForSQL(port, "pgx", dsnFor).WithStartupTimeout(2 * time.Minute),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	mapped, err := container.MappedPort(ctx, port)
	require.NoError(t, err)
	return dsnFor(host, mapped)
}

func setup(t *testing.T, version int64) (*pgxpool.Pool, *repository.Repository) {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test disabled in short mode")
	}
	ctx := context.Background()
	dsn := startPostgres(t, ctx)

	require.NoError(t, db.MigrateTo(ctx, dsnConfig(dsn), migrations.FS, version))

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool, repository.New(pool)
}

func seedInvoice(t *testing.T, pool *pgxpool.Pool, workspaceID uuid.UUID, email string, due time.Time, level int, lastSent *time.Time) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	_, err := pool.Exec(ctx, `INSERT INTO workspaces (id, name) VALUES ($1, 'acme') ON CONFLICT DO NOTHING`, workspaceID)
	require.NoError(t, err)

	var customerID uuid.UUID
	require.NoError(t, pool.QueryRow(ctx,
		`INSERT INTO customers (workspace_id, name, email) VALUES ($1, 'Customer', NULLIF($2, '')) RETURNING id`,
		workspaceID, email,
	).Scan(&customerID))

	var invoiceID uuid.UUID
	require.NoError(t, pool.QueryRow(ctx,
		`INSERT INTO invoices (workspace_id, customer_id, number, status, amount_cents, currency, due_date, reminder_level, last_reminder_sent_at)
		 VALUES ($1, $2, 'INV-1', 'pending', 12500, 'EUR', $3, $4, $5) RETURNING id`,
		workspaceID, customerID, due, level, lastSent,
	).Scan(&invoiceID))
	return invoiceID
}

func invoiceLevel(t *testing.T, pool *pgxpool.Pool, id uuid.UUID) (int, *time.Time) {
	t.Helper()
	var level int
	var sentAt *time.Time
	require.NoError(t, pool.QueryRow(context.Background(),
		`SELECT reminder_level, last_reminder_sent_at FROM invoices WHERE id = $1`, id,
	).Scan(&level, &sentAt))
	return level, sentAt
}

func TestClaimScenarioIntegration(t *testing.T) {
	pool, repo := setup(t, 3)
	ctx := context.Background()
	ws := uuid.New()
	scope := domain.WorkspaceScope(ws)

	invoiceID := seedInvoice(t, pool, ws, "Billing@Customer.test", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 0, nil)

	first := time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC)
	claimed, err := repo.ClaimEligible(ctx, scope, first, 200)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.Equal(t, invoiceID, claimed[0].InvoiceID)
	require.Equal(t, 0, claimed[0].PreviousLevel)
	require.Nil(t, claimed[0].PreviousSentAt)

	level, sentAt := invoiceLevel(t, pool, invoiceID)
	require.Equal(t, 1, level)
	require.NotNil(t, sentAt)
	require.True(t, sentAt.Equal(first))

	claimed, err = repo.ClaimEligible(ctx, scope, time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC), 200)
	require.NoError(t, err)
	require.Empty(t, claimed)

	claimed, err = repo.ClaimEligible(ctx, scope, time.Date(2024, 1, 13, 9, 0, 0, 0, time.UTC), 200)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.Equal(t, 1, claimed[0].PreviousLevel)
	level, _ = invoiceLevel(t, pool, invoiceID)
	require.Equal(t, 2, level)
}

func TestClaimExactlyOnceUnderConcurrencyIntegration(t *testing.T) {
	pool, repo := setup(t, 3)
	ctx := context.Background()
	ws := uuid.New()
	scope := domain.WorkspaceScope(ws)
	due := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 20; i++ {
		seedInvoice(t, pool, ws, fmt.Sprintf("c%d@customer.test", i), due, 0, nil)
	}

	now := time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC)
	var wg sync.WaitGroup
	results := make([][]domain.ClaimedInvoice, 4)
	errs := make([]error, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = repo.ClaimEligible(ctx, scope, now, 200)
		}(i)
	}
	wg.Wait()

	seen := make(map[uuid.UUID]int)
	for i, claimed := range results {
		require.NoError(t, errs[i])
		for _, inv := range claimed {
			seen[inv.InvoiceID]++
		}
	}
	require.Len(t, seen, 20)
	for id, n := range seen {
		require.Equalf(t, 1, n, "invoice %s claimed %d times", id, n)
	}
}

func TestSkipCountsIntegration(t *testing.T) {
	pool, repo := setup(t, 3)
	ctx := context.Background()
	ws := uuid.New()
	scope := domain.WorkspaceScope(ws)
	due := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC)

	seedInvoice(t, pool, ws, "", due, 0, nil)
	seedInvoice(t, pool, ws, "a@customer.test", due, 0, nil)
	seedInvoice(t, pool, ws, "b@customer.test", due, 0, nil)
	seedInvoice(t, pool, ws, "capped@customer.test", due, 3, &due)

	preview, err := repo.PreviewEligible(ctx, scope, now, 200)
	require.NoError(t, err)
	require.Len(t, preview, 2)

	claimed, err := repo.ClaimEligible(ctx, scope, now, 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	counts, err := repo.CountSkipped(ctx, scope, now)
	require.NoError(t, err)
	require.Equal(t, repository.SkipCounts{MissingRecipient: 1, Remaining: 1}, counts)

	scopes, err := repo.ListScopesWithEligible(ctx, now)
	require.NoError(t, err)
	require.Equal(t, []domain.Scope{scope}, scopes)
}

func TestRecordAndReconcileIntegration(t *testing.T) {
	pool, repo := setup(t, 3)
	ctx := context.Background()
	ws := uuid.New()
	scope := domain.WorkspaceScope(ws)
	_, err := pool.Exec(ctx, `INSERT INTO workspaces (id, name) VALUES ($1, 'acme')`, ws)
	require.NoError(t, err)

	require.NoError(t, repo.CheckRecordable(ctx, scope))

	ranAt := time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC)
	msgA, msgB := "msg-a", "msg-b"
	items := []domain.ItemResult{
		{InvoiceID: uuid.New(), RecipientEmail: "a@customer.test", Provider: "resend", ProviderMessageID: &msgA, Status: domain.ItemSent, At: ranAt},
		{InvoiceID: uuid.New(), RecipientEmail: "b@customer.test", Provider: "resend", ProviderMessageID: &msgB, Status: domain.ItemSent, At: ranAt},
		{InvoiceID: uuid.New(), RecipientEmail: "bad", Provider: "resend", Status: domain.ItemError, ErrorType: domain.ErrorTypeValidation, ErrorCode: "invalid_recipient", ErrorMessage: "invalid email", At: ranAt},
	}
	attempted, sent, failed := domain.CountOutcomes(items)
	run := domain.Run{
		ID:             uuid.New(),
		WorkspaceID:    &ws,
		ActorEmail:     "owner@acme.test",
		RanAt:          ranAt,
		TriggeredBy:    domain.TriggerManual,
		AttemptedCount: attempted,
		SentCount:      sent,
		ErrorCount:     failed,
		Errors:         domain.SampleFromItems(items),
	}
	require.NoError(t, repo.Record(ctx, domain.RunOutcome{Run: run, Items: items}))

	failure := domain.DeliveryFailure{Provider: "Resend", MessageID: "MSG-A", Code: "hard_bounce", Type: domain.ErrorTypeBounce, Message: "mailbox does not exist", At: ranAt.Add(time.Hour)}
	res, err := repo.ApplyDeliveryFailure(ctx, failure)
	require.NoError(t, err)
	require.Equal(t, domain.ReconcileResult{UpdatedRuns: 1, UpdatedItems: 1}, res)

	runs, err := repo.ListRuns(ctx, scope, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, 3, runs[0].AttemptedCount)
	require.Equal(t, 1, runs[0].SentCount)
	require.Equal(t, 2, runs[0].ErrorCount)
	require.Len(t, runs[0].Errors, 2)
	require.Equal(t, "hard_bounce", runs[0].Errors[0].Code)
	require.Equal(t, "owner@acme.test", runs[0].ActorEmail)

	res, err = repo.ApplyDeliveryFailure(ctx, failure)
	require.NoError(t, err)
	require.Equal(t, domain.ReconcileResult{}, res)

	res, err = repo.ApplyDeliveryFailure(ctx, domain.DeliveryFailure{Provider: "resend", MessageID: "unknown", At: ranAt})
	require.NoError(t, err)
	require.Equal(t, domain.ReconcileResult{}, res)
}

func TestSchemaV1RecordsLegacyRunsOnlyIntegration(t *testing.T) {
	_, repo := setup(t, 2)
	ctx := context.Background()

	caps, err := repo.Probe().Capabilities(ctx)
	require.NoError(t, err)
	require.Equal(t, repository.SchemaV1, caps.Version)

	err = repo.CheckRecordable(ctx, domain.WorkspaceScope(uuid.New()))
	require.ErrorIs(t, err, repository.ErrMigrationRequired)

	account := uuid.New()
	run := domain.Run{
		ID:               uuid.New(),
		AccountID:        &account,
		RanAt:            time.Now().UTC(),
		TriggeredBy:      domain.TriggerCron,
		DryRun:           true,
		SkippedCount:     2,
		SkippedBreakdown: map[domain.SkipReason]int{domain.SkipDryRun: 2},
	}
	require.NoError(t, repo.Record(ctx, domain.RunOutcome{Run: run}))

	runs, err := repo.ListRuns(ctx, domain.LegacyScope(account), 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, 2, runs[0].SkippedBreakdown[domain.SkipDryRun])

	res, err := repo.ApplyDeliveryFailure(ctx, domain.DeliveryFailure{Provider: "resend", MessageID: "x"})
	require.NoError(t, err)
	require.Equal(t, domain.ReconcileResult{}, res)
}

func TestSchemaNoneIsMigrationRequiredIntegration(t *testing.T) {
	_, repo := setup(t, 1)

	err := repo.CheckRecordable(context.Background(), domain.LegacyScope(uuid.New()))
	require.ErrorIs(t, err, repository.ErrMigrationRequired)
}
