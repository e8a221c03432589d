// Package migrations embeds the memory store's SQLite schema and applies
// it with golang-migrate, narrowed from the teacher's
// internal/migration.DefaultMigrator (which supports postgres/mysql/sqlite)
// down to the one database this store ever speaks.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	_ "github.com/mattn/go-sqlite3" // registers the "sqlite3" database/sql driver for golang-migrate
)

//go:embed sqlite/*.sql
var sqliteFS embed.FS

// Apply runs every pending up migration against the SQLite file at path.
// It opens its own short-lived *sql.DB (golang-migrate needs the
// mattn/go-sqlite3 driver registration, independent of the cgo-free
// connection the Store itself uses via glebarez/sqlite for CRUD).
func Apply(path string) error {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return fmt.Errorf("migrations: open: %w", err)
	}
	defer db.Close()

	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("migrations: driver: %w", err)
	}

	sourceDriver, err := iofs.New(sqliteFS, "sqlite")
	if err != nil {
		return fmt.Errorf("migrations: source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("migrations: init: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrations: up: %w", err)
	}

	return nil
}
