package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fadedpez/caseclash/internal/logging"
	"github.com/fadedpez/caseclash/pkg/db"
	"github.com/fadedpez/caseclash/pkg/db/migrations"
)

func main() {
	// Define command-line flags
	createCmd := flag.NewFlagSet("create", flag.ExitOnError)
	migrateCmd := flag.NewFlagSet("migrate", flag.ExitOnError)

	// Create command options
	createDialect := createCmd.String("dialect", string(migrations.SQLite), "Schema dialect (sqlite or postgres)")
	migrationsDir := createCmd.String("dir", "", "Directory to store migrations (defaults to the embedded schema directory)")

	// Migrate command options
	migrateDialect := migrateCmd.String("dialect", string(migrations.SQLite), "Database dialect (sqlite or postgres)")
	dbPath := migrateCmd.String("db", "data/caseclash.db", "Path to SQLite database")
	dbURL := migrateCmd.String("url", os.Getenv("DATABASE_URL"), "Postgres connection URL")

	// Show usage if no arguments provided
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	logger := logging.Default.WithField("component", "migration")

	switch os.Args[1] {
	case "create":
		createCmd.Parse(os.Args[2:])
		if createCmd.NArg() < 1 {
			fmt.Println("Error: Missing migration description")
			createCmd.Usage()
			os.Exit(1)
		}
		dir := *migrationsDir
		if dir == "" {
			dir = filepath.Join("pkg", "db", "migrations", "sql", *createDialect)
		}
		if err := createNewMigration(dir, migrations.Dialect(*createDialect), createCmd.Arg(0)); err != nil {
			logger.Error("Error creating migration: %v", err)
			os.Exit(1)
		}

	case "migrate":
		migrateCmd.Parse(os.Args[2:])
		if err := applyMigrations(migrations.Dialect(*migrateDialect), *dbPath, *dbURL); err != nil {
			logger.Error("Error applying migrations: %v", err)
			os.Exit(1)
		}
		logger.Info("Migrations applied successfully")

	case "help":
		printUsage()

	default:
		fmt.Printf("Error: Unknown command '%s'\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  go run ./cmd/migration create [-dialect sqlite|postgres] DESCRIPTION  - Create a new migration")
	fmt.Println("  go run ./cmd/migration migrate [-dialect sqlite|postgres]             - Apply pending migrations")
	fmt.Println("  go run ./cmd/migration help                                           - Show this help")
	fmt.Println("\nExamples:")
	fmt.Println("  go run ./cmd/migration create -dialect postgres \"add battle index\"")
	fmt.Println("  go run ./cmd/migration migrate -db data/caseclash.db")
	fmt.Println("  go run ./cmd/migration migrate -dialect postgres -url postgres://localhost/caseclash")
}

func createNewMigration(dir string, dialect migrations.Dialect, description string) error {
	filePath, err := migrations.CreateMigration(dir, description)
	if err != nil {
		return err
	}

	// Add helpful examples to the migration file
	content, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	content = append(content, []byte(examples(dialect))...)
	if err := os.WriteFile(filePath, content, 0644); err != nil {
		return err
	}

	fmt.Printf("Created migration file: %s\n", filePath)
	fmt.Println("Edit this file to add your database schema changes.")
	return nil
}

func examples(dialect migrations.Dialect) string {
	if dialect == migrations.Postgres {
		return `
-- Postgres Examples:

-- CREATE TABLE IF NOT EXISTS table_name (
--   id TEXT PRIMARY KEY,
--   payload JSONB NOT NULL,
--   created_at TIMESTAMPTZ NOT NULL DEFAULT now()
-- );

-- CREATE INDEX IF NOT EXISTS idx_table_column ON table_name(column_name);

-- Your migration SQL goes below this line:

`
	}
	return `
-- SQLite Examples:

-- CREATE TABLE IF NOT EXISTS table_name (
--   id TEXT PRIMARY KEY,
--   value INTEGER DEFAULT 0,
--   created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
-- );

-- ALTER TABLE table_name ADD COLUMN new_column TEXT;

-- Your migration SQL goes below this line:

`
}

// applyMigrations opens the database, which applies every pending migration
func applyMigrations(dialect migrations.Dialect, dbPath, dbURL string) error {
	switch dialect {
	case migrations.SQLite:
		conn, err := db.OpenSQLite(dbPath)
		if err != nil {
			return err
		}
		return conn.Close()

	case migrations.Postgres:
		if dbURL == "" {
			return fmt.Errorf("a postgres url is required (-url or DATABASE_URL)")
		}
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		pool, err := db.OpenPostgres(ctx, dbURL)
		if err != nil {
			return err
		}
		pool.Close()
		return nil
	}
	return fmt.Errorf("unknown dialect %q", dialect)
}
