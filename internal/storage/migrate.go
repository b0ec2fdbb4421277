package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// pageViewMigrations holds the page-view journal schema.
//
//go:embed migrations/*.sql
var pageViewMigrations embed.FS

// RunMigrations brings the page-view journal at dbPath up to the latest
// schema. It is a no-op when the journal is already current.
func RunMigrations(dbPath string) error {
	// Own connection, closed before the repository opens the journal.
	journal, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("open page-view journal for migration: %w", err)
	}
	defer journal.Close()

	driver, err := sqlite.WithInstance(journal, &sqlite.Config{MigrationsTable: "page_view_migrations"})
	if err != nil {
		return fmt.Errorf("page-view journal driver: %w", err)
	}

	src, err := iofs.New(pageViewMigrations, "migrations")
	if err != nil {
		return fmt.Errorf("page-view migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("page-view migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate page-view journal: %w", err)
	}
	return nil
}