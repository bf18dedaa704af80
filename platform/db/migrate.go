package db

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	"billing_reminders_backend/platform/config"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// RunMigrations applies all pending goose migrations found in fsys.
func RunMigrations(ctx context.Context, cfg config.DatabaseConfig, fsys fs.FS) error {
	return withGoose(ctx, cfg, fsys, func(db *sql.DB) error {
		return goose.UpContext(ctx, db, ".")
	})
}

// MigrateTo applies pending migrations up to and including version.
func MigrateTo(ctx context.Context, cfg config.DatabaseConfig, fsys fs.FS, version int64) error {
	return withGoose(ctx, cfg, fsys, func(db *sql.DB) error {
		return goose.UpToContext(ctx, db, ".", version)
	})
}

// MigrationVersion reports the current goose version of the database.
func MigrationVersion(ctx context.Context, cfg config.DatabaseConfig, fsys fs.FS) (int64, error) {
	var version int64
	err := withGoose(ctx, cfg, fsys, func(db *sql.DB) error {
		v, err := goose.GetDBVersionContext(ctx, db)
		version = v
		return err
	})
	return version, err
}

func withGoose(ctx context.Context, cfg config.DatabaseConfig, fsys fs.FS, fn func(db *sql.DB) error) error {
	db, err := sql.Open("pgx", cfg.GetDatabaseURL())
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping migration connection: %w", err)
	}

	goose.SetBaseFS(fsys)
	defer goose.SetBaseFS(nil)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	return fn(db)
}
