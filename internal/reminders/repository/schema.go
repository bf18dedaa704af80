package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"billing_reminders_backend/migrations"
	"billing_reminders_backend/platform/apperr"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrMigrationRequired is wrapped by every migration-required error this package returns.
var ErrMigrationRequired = errors.New("reminder schema migration required")

// SchemaVersion identifies which reminder-run layout the database carries.
type SchemaVersion int

const (
	// SchemaNone means reminder_runs does not exist.
	SchemaNone SchemaVersion = iota
	// SchemaV1 has reminder_runs keyed by user_id only.
	SchemaV1
	// SchemaV2 adds workspace_id, actor_email and reminder_run_items.
	SchemaV2
)

func (v SchemaVersion) String() string {
	switch v {
	case SchemaV1:
		return "v1"
	case SchemaV2:
		return "v2"
	default:
		return "none"
	}
}

// Capabilities describes what the reminder tables support. It is computed once
// and handed to the run writers.
type Capabilities struct {
	Version        SchemaVersion
	RunWorkspaceID bool
	RunActorEmail  bool
	RunItemsTable  bool
	// Migration names the file that would bring the schema to V2.
	Migration string
}

// HasItems reports whether per-item rows are recorded and can be reconciled.
func (c Capabilities) HasItems() bool { return c.Version == SchemaV2 }

// SupportsWorkspaces reports whether runs can be attributed to a workspace.
func (c Capabilities) SupportsWorkspaces() bool { return c.Version == SchemaV2 }

// capabilitiesFromColumns derives the schema version from the reminder_runs
// columns and whether the items table exists.
func capabilitiesFromColumns(runColumns map[string]bool, itemsTable bool) Capabilities {
	caps := Capabilities{
		RunWorkspaceID: runColumns["workspace_id"],
		RunActorEmail:  runColumns["actor_email"],
		RunItemsTable:  itemsTable,
	}
	switch {
	case len(runColumns) == 0:
		caps.Version = SchemaNone
		caps.Migration = migrations.ReminderRuns
	case caps.RunWorkspaceID && caps.RunActorEmail && caps.RunItemsTable:
		caps.Version = SchemaV2
	default:
		caps.Version = SchemaV1
		caps.Migration = migrations.ReminderRunItems
	}
	return caps
}

const probeSchemaSQL = `
	SELECT table_name, column_name
	FROM information_schema.columns
	WHERE table_schema = current_schema()
	  AND table_name IN ('reminder_runs', 'reminder_run_items')`

// SchemaProbe detects the reminder schema version. A detected schema is cached
// for the process lifetime; SchemaNone is not cached so applying the migration
// takes effect without a restart.
type SchemaProbe struct {
	pool *pgxpool.Pool

	mu     sync.Mutex
	cached *Capabilities
}

func NewSchemaProbe(pool *pgxpool.Pool) *SchemaProbe {
	return &SchemaProbe{pool: pool}
}

// Capabilities returns the cached capabilities, probing the database on first use.
func (p *SchemaProbe) Capabilities(ctx context.Context) (Capabilities, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cached != nil {
		return *p.cached, nil
	}

	rows, err := p.pool.Query(ctx, probeSchemaSQL)
	if err != nil {
		return Capabilities{}, fmt.Errorf("probe reminder schema: %w", err)
	}
	defer rows.Close()

	runColumns := make(map[string]bool)
	itemsTable := false
	for rows.Next() {
		var table, column string
		if err := rows.Scan(&table, &column); err != nil {
			return Capabilities{}, fmt.Errorf("scan reminder schema: %w", err)
		}
		switch table {
		case "reminder_runs":
			runColumns[column] = true
		case "reminder_run_items":
			itemsTable = true
		}
	}
	if err := rows.Err(); err != nil {
		return Capabilities{}, fmt.Errorf("probe reminder schema: %w", err)
	}

	caps := capabilitiesFromColumns(runColumns, itemsTable)
	if caps.Version != SchemaNone {
		p.cached = &caps
	}
	return caps, nil
}

// Forget drops the cached result. Used after applying migrations in-process.
func (p *SchemaProbe) Forget() {
	p.mu.Lock()
	p.cached = nil
	p.mu.Unlock()
}

func migrationRequired(migration string) error {
	return apperr.MigrationRequired(migration, ErrMigrationRequired)
}
