package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"gorm.io/gorm"
)

const migrationsDir = "migrations"

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// RunMigrations applies the embedded postgres migrations.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

// sqliteSchema mirrors the postgres migrations for local runs and tests.
// DATETIME columns let the sqlite driver hand back time.Time values.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS ledger_entries (
		id INTEGER PRIMARY KEY,
		tenant_id INTEGER NOT NULL,
		unit_id INTEGER,
		lease_id INTEGER,
		property_id INTEGER,
		invoice_id INTEGER,
		payment_id INTEGER,
		entry_type TEXT NOT NULL,
		direction TEXT NOT NULL,
		amount INTEGER NOT NULL CHECK (amount > 0),
		effective_at DATETIME NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL DEFAULT '',
		period_key TEXT,
		created_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS ix_ledger_entries_tenant_effective ON ledger_entries (tenant_id, effective_at, created_at, id)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_ledger_entries_recurring ON ledger_entries (tenant_id, entry_type, direction, description, period_key)`,
	`CREATE TABLE IF NOT EXISTS invoices (
		id INTEGER PRIMARY KEY,
		tenant_id INTEGER NOT NULL,
		unit_id INTEGER NOT NULL,
		amount INTEGER NOT NULL CHECK (amount > 0),
		status TEXT NOT NULL,
		due_date DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS ix_invoices_tenant_unit_status ON invoices (tenant_id, unit_id, status)`,
	`CREATE TABLE IF NOT EXISTS payments (
		id INTEGER PRIMARY KEY,
		tenant_id INTEGER NOT NULL,
		unit_id INTEGER,
		amount INTEGER NOT NULL CHECK (amount > 0),
		idempotency_key TEXT NOT NULL,
		invoice_id INTEGER,
		ledger_entry_id INTEGER NOT NULL,
		source TEXT NOT NULL DEFAULT '',
		effective_at DATETIME NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_payments_idempotency_key ON payments (idempotency_key)`,
	`CREATE TABLE IF NOT EXISTS payment_applications (
		id INTEGER PRIMARY KEY,
		payment_id INTEGER NOT NULL,
		invoice_id INTEGER NOT NULL,
		amount INTEGER NOT NULL CHECK (amount > 0),
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_payment_applications_pair ON payment_applications (payment_id, invoice_id)`,
	`CREATE TABLE IF NOT EXISTS occupancies (
		id INTEGER PRIMARY KEY,
		tenant_id INTEGER NOT NULL,
		unit_id INTEGER NOT NULL,
		lease_id INTEGER,
		property_id INTEGER,
		monthly_rent INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		ended_at DATETIME
	)`,
}

// ApplySQLite creates the schema on a sqlite handle.
func ApplySQLite(db *gorm.DB) error {
	for _, stmt := range sqliteSchema {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("apply sqlite schema: %w", err)
		}
	}
	return nil
}
