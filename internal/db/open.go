package db

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite3"
)

type PoolOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Open picks the driver from the URL scheme. sqlite:// and sqlite3:// URLs
// open a local SQLite file, anything else is handed to pgx.
func Open(databaseURL string, pool PoolOptions) (*sql.DB, Dialect, error) {
	driver, dsn, dialect, err := resolveDriver(databaseURL)
	if err != nil {
		return nil, "", err
	}

	database, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, "", fmt.Errorf("open database: %w", err)
	}

	if pool.MaxOpenConns > 0 {
		database.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		database.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		database.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}
	if pool.ConnMaxIdleTime > 0 {
		database.SetConnMaxIdleTime(pool.ConnMaxIdleTime)
	}

	return database, dialect, nil
}

func resolveDriver(databaseURL string) (driver, dsn string, dialect Dialect, err error) {
	databaseURL = strings.TrimSpace(databaseURL)
	if databaseURL == "" {
		return "", "", "", fmt.Errorf("database url is empty")
	}

	for _, prefix := range []string{"sqlite3://", "sqlite://"} {
		if !strings.HasPrefix(databaseURL, prefix) {
			continue
		}
		path := strings.TrimPrefix(databaseURL, prefix)
		if path == "" {
			return "", "", "", fmt.Errorf("sqlite database path is empty")
		}
		if !strings.Contains(path, "?") {
			path += "?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL"
		}
		return "sqlite3", path, DialectSQLite, nil
	}

	return "pgx", databaseURL, DialectPostgres, nil
}
