package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"expense-api/internal/storage"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("migrator", flag.ContinueOnError)
	fs.SetOutput(stderr)

	dsn := fs.String("db", "", "Database path or DSN (defaults to DB_PATH, then expenses.db)")
	driver := fs.String("driver", "", "Database driver: sqlite or postgres (defaults to DB_DRIVER, then sqlite)")
	down := fs.Bool("down", false, "Roll back the most recent migration")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *dsn == "" {
		*dsn = envOr("DB_PATH", "expenses.db")
	}
	if *driver == "" {
		*driver = envOr("DB_DRIVER", storage.DriverSQLite)
	}

	// Open applies every pending up migration.
	db, err := storage.Open(*driver, *dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if *down {
		if err := db.MigrateDown(); err != nil {
			return fmt.Errorf("failed to roll back: %w", err)
		}
	}

	version, dirty, err := db.SchemaVersion()
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	fmt.Fprintf(stdout, "Schema version %d (dirty: %t)\n", version, dirty)
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
