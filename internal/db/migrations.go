package db

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/arenahq/orgcore/migrations"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// migrationLockID keys the advisory lock that serializes migrators across
// replicas starting at the same time.
const migrationLockID int64 = 0x6f7267636f7265

var migrationsFS fs.FS = migrations.FS

// MigrationStatus reports one migration file and when it was applied.
type MigrationStatus struct {
	Version   string
	AppliedAt *time.Time
}

// Pending reports whether the migration has not been applied yet.
func (s MigrationStatus) Pending() bool {
	return s.AppliedAt == nil
}

// RunMigrations applies all pending migrations, each in its own transaction.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	log.Info().Msg("Running database migrations...")

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
		return fmt.Errorf("failed to take migration lock: %w", err)
	}
	defer func() {
		if _, err := conn.Exec(context.Background(), "SELECT pg_advisory_unlock($1)", migrationLockID); err != nil {
			log.Warn().Err(err).Msg("Failed to release migration lock")
		}
	}()

	if err := createMigrationsTable(ctx, conn.Conn()); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	statuses, err := migrationStatuses(ctx, conn.Conn())
	if err != nil {
		return err
	}

	applied := 0
	for _, status := range statuses {
		if !status.Pending() {
			log.Debug().Str("migration", status.Version).Msg("Migration already applied, skipping")
			continue
		}

		log.Info().Str("migration", status.Version).Msg("Applying migration")
		if err := applyMigration(ctx, conn.Conn(), status.Version); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", status.Version, err)
		}
		applied++
	}

	log.Info().Int("applied", applied).Msg("Database migrations complete")
	return nil
}

// Status lists every embedded migration with its applied time, if any.
func Status(ctx context.Context, pool *pgxpool.Pool) ([]MigrationStatus, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	if err := createMigrationsTable(ctx, conn.Conn()); err != nil {
		return nil, fmt.Errorf("failed to create migrations table: %w", err)
	}
	return migrationStatuses(ctx, conn.Conn())
}

func createMigrationsTable(ctx context.Context, conn *pgx.Conn) error {
	_, err := conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

func migrationStatuses(ctx context.Context, conn *pgx.Conn) ([]MigrationStatus, error) {
	files, err := migrationFiles(migrationsFS)
	if err != nil {
		return nil, fmt.Errorf("failed to read migration files: %w", err)
	}

	rows, err := conn.Query(ctx, "SELECT version, applied_at FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}
	applied := make(map[string]time.Time)
	var version string
	var appliedAt time.Time
	if _, err := pgx.ForEachRow(rows, []any{&version, &appliedAt}, func() error {
		applied[version] = appliedAt
		return nil
	}); err != nil {
		return nil, fmt.Errorf("failed to scan applied migrations: %w", err)
	}

	return buildStatuses(files, applied), nil
}

func buildStatuses(files []string, applied map[string]time.Time) []MigrationStatus {
	out := make([]MigrationStatus, 0, len(files))
	for _, file := range files {
		status := MigrationStatus{Version: file}
		if at, ok := applied[file]; ok {
			at := at
			status.AppliedAt = &at
		}
		out = append(out, status)
	}
	return out
}

// migrationFiles returns the sorted .sql file names at the root of fsys.
func migrationFiles(fsys fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}

	sort.Strings(files)
	return files, nil
}

func applyMigration(ctx context.Context, conn *pgx.Conn, migration string) error {
	content, err := fs.ReadFile(migrationsFS, migration)
	if err != nil {
		return err
	}

	return pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
		// Simple protocol so a file may hold several statements.
		if _, err := tx.Conn().PgConn().Exec(ctx, string(content)).ReadAll(); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", migration)
		return err
	})
}
