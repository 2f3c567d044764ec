package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations
var migrationsFS embed.FS

const migrationsTable = "schema_migrations"

// Migrate applies every pending up migration.
func (db *DB) Migrate() error {
	return db.runMigrations(func(m *migrate.Migrate) error {
		return m.Up()
	})
}

// MigrateDown rolls back the most recent migration.
func (db *DB) MigrateDown() error {
	return db.runMigrations(func(m *migrate.Migrate) error {
		return m.Steps(-1)
	})
}

// SchemaVersion reports the applied migration version.
func (db *DB) SchemaVersion() (version uint, dirty bool, err error) {
	err = db.runMigrations(func(m *migrate.Migrate) error {
		version, dirty, err = m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			return nil
		}
		return err
	})
	return version, dirty, err
}

func (db *DB) runMigrations(fn func(m *migrate.Migrate) error) error {
	const op = "storage.runMigrations"

	src, err := iofs.New(migrationsFS, "migrations/"+db.driver)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	var driver database.Driver
	switch db.driver {
	case DriverSQLite:
		// The migrate driver closes the *sql.DB it is handed, so the SQLite
		// instance is shared and never closed here.
		driver, err = sqlitemigrate.WithInstance(db.conn, &sqlitemigrate.Config{MigrationsTable: migrationsTable})
	case DriverPostgres:
		var conn *sql.DB
		conn, err = openPostgres(db.dsn)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		driver, err = pgxmigrate.WithInstance(conn, &pgxmigrate.Config{MigrationsTable: migrationsTable})
		if err != nil {
			conn.Close()
		}
	default:
		err = fmt.Errorf("unsupported storage driver %q", db.driver)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	m, err := migrate.NewWithInstance("iofs", src, db.driver, driver)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if db.driver == DriverPostgres {
		defer m.Close()
	}

	if err := fn(m); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func openPostgres(dsn string) (*sql.DB, error) {
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	return stdlib.OpenDB(*cfg), nil
}
