package repository

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"billing_reminders_backend/internal/reminders/domain"
	"billing_reminders_backend/migrations"
	"billing_reminders_backend/platform/apperr"

	"github.com/google/uuid"
)

func intervalDays(d time.Duration) string {
	return fmt.Sprintf("interval '%d days'", int(d.Hours()/24))
}

func TestClaimSQLMirrorsEscalationDelays(t *testing.T) {
	for name, sql := range map[string]string{
		"claim workspace":   claimWorkspaceSQL,
		"claim legacy":      claimLegacySQL,
		"preview workspace": previewWorkspaceSQL,
		"skipped legacy":    skippedLegacySQL,
		"list scopes":       listScopesSQL,
	} {
		if !strings.Contains(sql, "i.reminder_level = 1 AND i.last_reminder_sent_at <= @now::timestamptz - "+intervalDays(domain.SecondReminderDelay)) {
			t.Fatalf("%s: second reminder delay does not match domain policy", name)
		}
		if !strings.Contains(sql, "i.reminder_level = 2 AND i.last_reminder_sent_at <= @now::timestamptz - "+intervalDays(domain.FinalReminderDelay)) {
			t.Fatalf("%s: final reminder delay does not match domain policy", name)
		}
		if !strings.Contains(sql, fmt.Sprintf("i.reminder_level < %d", domain.MaxReminderLevel)) {
			t.Fatalf("%s: level cap does not match domain policy", name)
		}
	}
}

func TestClaimSQLIsSingleConditionalUpdate(t *testing.T) {
	for _, sql := range []string{claimWorkspaceSQL, claimLegacySQL} {
		for _, fragment := range []string{
			"FOR UPDATE OF i SKIP LOCKED",
			"SET reminder_level = i.reminder_level + 1",
			"AND i.reminder_level = e.reminder_level",
			"RETURNING i.id",
			"e.reminder_level, e.last_reminder_sent_at",
			"LIMIT @limit",
		} {
			if !strings.Contains(sql, fragment) {
				t.Fatalf("claim SQL missing %q", fragment)
			}
		}
	}
}

func TestClaimSQLScopes(t *testing.T) {
	if !strings.Contains(claimWorkspaceSQL, "WHERE i.workspace_id = @scope") {
		t.Fatal("workspace claim must filter by workspace")
	}
	if !strings.Contains(claimLegacySQL, "WHERE i.workspace_id IS NULL AND i.user_id = @scope") {
		t.Fatal("legacy claim must filter by account without workspace")
	}
	if pickSQL(domain.LegacyScope(uuid.New()), "w", "l") != "l" {
		t.Fatal("legacy scope must pick the legacy variant")
	}
	if pickSQL(domain.WorkspaceScope(uuid.New()), "w", "l") != "w" {
		t.Fatal("workspace scope must pick the workspace variant")
	}
}

func TestMarkItemsFailedIsGuarded(t *testing.T) {
	for _, fragment := range []string{
		"status <> 'error'",
		"lower(provider) = lower(@provider)",
		"lower(provider_message_id) = lower(@message_id)",
		"RETURNING run_id",
	} {
		if !strings.Contains(markItemsFailedSQL, fragment) {
			t.Fatalf("mark failed SQL missing %q", fragment)
		}
	}
}

func TestCapabilitiesFromColumns(t *testing.T) {
	none := capabilitiesFromColumns(map[string]bool{}, false)
	if none.Version != SchemaNone || none.Migration != migrations.ReminderRuns {
		t.Fatalf("expected none with runs migration, got %+v", none)
	}

	v1 := capabilitiesFromColumns(map[string]bool{"id": true, "user_id": true}, false)
	if v1.Version != SchemaV1 || v1.HasItems() || v1.Migration != migrations.ReminderRunItems {
		t.Fatalf("expected v1, got %+v", v1)
	}

	partial := capabilitiesFromColumns(map[string]bool{"id": true, "workspace_id": true}, true)
	if partial.Version != SchemaV1 {
		t.Fatalf("expected partially migrated schema to be treated as v1, got %s", partial.Version)
	}

	v2 := capabilitiesFromColumns(map[string]bool{"id": true, "workspace_id": true, "actor_email": true}, true)
	if v2.Version != SchemaV2 || !v2.HasItems() || !v2.SupportsWorkspaces() {
		t.Fatalf("expected v2, got %+v", v2)
	}
}

func TestCheckScopeSupported(t *testing.T) {
	workspace := domain.WorkspaceScope(uuid.New())
	legacy := domain.LegacyScope(uuid.New())

	err := checkScopeSupported(Capabilities{Version: SchemaNone}, legacy)
	if !errors.Is(err, ErrMigrationRequired) || !apperr.Is(err, apperr.KindMigrationRequired) {
		t.Fatalf("expected migration required, got %v", err)
	}

	err = checkScopeSupported(Capabilities{Version: SchemaV1}, workspace)
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		t.Fatalf("expected apperr for workspace run on v1, got %v", err)
	}
	if details := appErr.Details.(apperr.MigrationDetails); details.Migration != migrations.ReminderRunItems {
		t.Fatalf("expected items migration, got %+v", details)
	}

	if err := checkScopeSupported(Capabilities{Version: SchemaV1}, legacy); err != nil {
		t.Fatalf("legacy runs are recordable on v1: %v", err)
	}
	if err := checkScopeSupported(Capabilities{Version: SchemaV2}, workspace); err != nil {
		t.Fatalf("workspace runs are recordable on v2: %v", err)
	}
}

func TestAdapterForNoneIsMigrationRequired(t *testing.T) {
	if _, err := adapterFor(Capabilities{Version: SchemaNone}); !errors.Is(err, ErrMigrationRequired) {
		t.Fatalf("expected ErrMigrationRequired, got %v", err)
	}
}

func TestRunArgsDefaultsEmptyJSON(t *testing.T) {
	args, err := runArgs(domain.Run{ID: uuid.New(), TriggeredBy: domain.TriggerCron})
	if err != nil {
		t.Fatalf("runArgs: %v", err)
	}
	if string(args["skipped_breakdown"].([]byte)) != "{}" {
		t.Fatalf("expected empty breakdown object, got %s", args["skipped_breakdown"])
	}
	if string(args["errors"].([]byte)) != "[]" {
		t.Fatalf("expected empty errors array, got %s", args["errors"])
	}
}

func TestNilRepositoryIsNotConfigured(t *testing.T) {
	var repo *Repository
	if err := repo.ready(); err == nil {
		t.Fatal("expected error for nil repository")
	}
}
