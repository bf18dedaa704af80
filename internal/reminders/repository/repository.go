// Package repository is the Postgres side of the reminder engine: the atomic
// claim over invoices, the schema-adaptive run recorder and the delivery
// reconciliation queries.
package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
)

const errRepoNotConfigured = "reminder repository not configured"

var errNotConfigured = errors.New(errRepoNotConfigured)

type Repository struct {
	pool  *pgxpool.Pool
	probe *SchemaProbe
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, probe: NewSchemaProbe(pool)}
}

// Probe exposes the schema probe shared by every store method.
func (r *Repository) Probe() *SchemaProbe {
	return r.probe
}

func (r *Repository) ready() error {
	if r == nil || r.pool == nil {
		return errNotConfigured
	}
	return nil
}
