package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/pressly/goose/v3"

	"authservice/internal/observability"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationFiles embed.FS

// goose keeps its base FS and dialect in package globals.
var gooseMu sync.Mutex

var gooseUpContext = goose.UpContext

func migrationDir(dialect Dialect) (dir string, gooseDialect string, err error) {
	switch dialect {
	case DialectPostgres:
		return "migrations/postgres", "pgx", nil
	case DialectSQLite:
		return "migrations/sqlite", "sqlite3", nil
	default:
		return "", "", fmt.Errorf("unsupported dialect %q", dialect)
	}
}

// gooseLogger routes goose progress lines through the JSON logger.
type gooseLogger struct {
	logger *observability.Logger
}

func (g gooseLogger) Printf(format string, v ...any) {
	g.logger.Info("db_migration", map[string]any{"detail": strings.TrimSpace(fmt.Sprintf(format, v...))})
}

func (g gooseLogger) Fatalf(format string, v ...any) {
	g.logger.Error("db_migration_fatal", map[string]any{"detail": strings.TrimSpace(fmt.Sprintf(format, v...))})
	os.Exit(1)
}

// RunMigrations applies every pending embedded migration for the dialect.
// A nil logger silences goose.
func RunMigrations(ctx context.Context, database *sql.DB, dialect Dialect, logger *observability.Logger) error {
	dir, gooseDialect, err := migrationDir(dialect)
	if err != nil {
		return err
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrationFiles)
	defer goose.SetBaseFS(nil)

	if logger != nil {
		goose.SetLogger(gooseLogger{logger: logger})
	} else {
		goose.SetLogger(goose.NopLogger())
	}

	if err := goose.SetDialect(gooseDialect); err != nil {
		return fmt.Errorf("set migration dialect: %w", err)
	}

	if err := gooseUpContext(ctx, database, dir); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}
