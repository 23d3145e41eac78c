package db

import (
	"context"
	"fmt"
	"io/fs"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"

	embedsql "github.com/gyeh/radwarehouse/internal/sql"
)

// MigrationNames lists the embedded migration files in apply order.
func MigrationNames() ([]string, error) {
	entries, err := fs.ReadDir(embedsql.Migrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		names = append(names, entry.Name())
	}
	slices.Sort(names)
	return names, nil
}

// ApplyMigrations runs every embedded migration in filename order, each in
// its own transaction. All DDL is IF NOT EXISTS / OR REPLACE, so re-running
// against a migrated database is a no-op.
func ApplyMigrations(ctx context.Context, conn Conn, log zerolog.Logger) error {
	names, err := MigrationNames()
	if err != nil {
		return err
	}

	start := time.Now()
	for _, name := range names {
		data, err := fs.ReadFile(embedsql.Migrations, "migrations/"+name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		log.Info().Str("migration", name).Msg("applying migration")
		if err := applyOne(ctx, conn, string(data)); err != nil {
			return fmt.Errorf("execute migration %s: %w", name, err)
		}
	}

	log.Info().
		Int("count", len(names)).
		Dur("duration", time.Since(start)).
		Msg("all migrations applied")
	return nil
}

func applyOne(ctx context.Context, conn Conn, ddl string) error {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, ddl); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
