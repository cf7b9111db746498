package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"github.com/fadedpez/caseclash/pkg/db/migrations"
)

// OpenSQLite opens the database file at path and applies pending migrations
func OpenSQLite(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("error creating database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_txlock=immediate&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	// single writer keeps immediate transactions from contending
	db.SetMaxOpenConns(1)

	migrator, err := migrations.NewMigrator(db, migrations.SQLite)
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := migrator.MigrateUp(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error migrating database: %w", err)
	}
	return db, nil
}

// OpenPostgres connects a pgx pool and applies pending migrations
func OpenPostgres(ctx context.Context, url string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("error parsing database url: %w", err)
	}
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("error creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database unavailable: %w", err)
	}

	// connections return to the pool after each statement
	sqlDB := stdlib.OpenDBFromPool(pool)

	migrator, err := migrations.NewMigrator(sqlDB, migrations.Postgres)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if err := migrator.MigrateUp(); err != nil {
		pool.Close()
		return nil, fmt.Errorf("error migrating database: %w", err)
	}
	return pool, nil
}
