package db

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Migrate applies every pending up migration found in fsys against dsn.
// A schema that is already current is not an error.
func Migrate(dsn string, fsys fs.FS, logger *slog.Logger) error {
	m, closeFn, err := newMigrator(dsn, fsys)
	if err != nil {
		return err
	}
	defer closeFn()

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		if logger != nil {
			logger.Info("no new migrations to apply")
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("platform/db: migrate up: %w", err)
	}
	if logger != nil {
		version, dirty, _ := m.Version()
		logger.Info("migrations applied", slog.Uint64("version", uint64(version)), slog.Bool("dirty", dirty))
	}
	return nil
}

// MigrateDown rolls back a number of migration steps.
func MigrateDown(dsn string, fsys fs.FS, steps int) error {
	if steps <= 0 {
		return fmt.Errorf("platform/db: steps must be positive")
	}
	m, closeFn, err := newMigrator(dsn, fsys)
	if err != nil {
		return err
	}
	defer closeFn()
	if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("platform/db: migrate down: %w", err)
	}
	return nil
}

func newMigrator(dsn string, fsys fs.FS) (*migrate.Migrate, func(), error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("platform/db: open migration conn: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("platform/db: ping migration conn: %w", err)
	}
	driver, err := postgres.WithInstance(conn, &postgres.Config{})
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("platform/db: migration driver: %w", err)
	}
	source, err := iofs.New(fsys, ".")
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("platform/db: migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("platform/db: new migrator: %w", err)
	}
	return m, func() {
		_, _ = m.Close()
	}, nil
}
