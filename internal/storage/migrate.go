package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// migrationLockID is the pg_advisory_xact_lock key serializing migrators
const migrationLockID int64 = 0x64762d6d6967 // "dv-mig"

type migration struct {
	name     string
	sql      string
	checksum string
}

func checksum(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// loadMigrations reads every .sql file in dir, ordered by name
func loadMigrations(dir string) ([]migration, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var out []migration
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".sql") {
			continue
		}
		content, err := os.ReadFile(filepath.Join(dir, f.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", f.Name(), err)
		}
		out = append(out, migration{name: f.Name(), sql: string(content), checksum: checksum(content)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out, nil
}

// RunMigrations applies pending .sql files from migrationsDir in name order.
// Each runs in its own transaction under an advisory lock, so replicas
// starting together apply every file exactly once. Applied files whose
// content has since changed are reported, never re-run.
func RunMigrations(ctx context.Context, db DB, migrationsDir string) error {
	if err := createMigrationsTable(ctx, db); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := getAppliedMigrations(ctx, db)
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	migrations, err := loadMigrations(migrationsDir)
	if err != nil {
		return err
	}

	count := 0
	for _, m := range migrations {
		if sum, ok := applied[m.name]; ok {
			if sum != "" && sum != m.checksum {
				slog.Warn("applied migration changed on disk", "migration", m.name)
			}
			continue
		}

		ran, err := applyMigration(ctx, db, m)
		if err != nil {
			return err
		}
		if ran {
			count++
		}
	}

	slog.Info("migrations up to date", "applied", count, "total", len(migrations))
	return nil
}

func applyMigration(ctx context.Context, db DB, m migration) (bool, error) {
	tx, err := db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction for %s: %w", m.name, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLockID); err != nil {
		return false, fmt.Errorf("failed to lock migrations for %s: %w", m.name, err)
	}

	var done bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE name = $1)`, m.name).Scan(&done); err != nil {
		return false, fmt.Errorf("failed to check migration %s: %w", m.name, err)
	}
	if done {
		slog.Debug("migration applied concurrently", "migration", m.name)
		return false, nil
	}

	slog.Info("applying migration", "migration", m.name)

	if _, err := tx.Exec(ctx, m.sql); err != nil {
		return false, fmt.Errorf("failed to execute migration %s: %w", m.name, err)
	}

	if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (name, checksum) VALUES ($1, $2)`, m.name, m.checksum); err != nil {
		return false, fmt.Errorf("failed to record migration %s: %w", m.name, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit migration %s: %w", m.name, err)
	}

	return true, nil
}

func createMigrationsTable(ctx context.Context, db DB) error {
	query := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name VARCHAR(255) PRIMARY KEY,
			checksum VARCHAR(64) NOT NULL DEFAULT '',
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)
	`
	_, err := db.Exec(ctx, query)
	return err
}

// getAppliedMigrations maps applied migration names to their recorded checksum
func getAppliedMigrations(ctx context.Context, db DB) (map[string]string, error) {
	rows, err := db.Query(ctx, `SELECT name, checksum FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]string)
	for rows.Next() {
		var name, sum string
		if err := rows.Scan(&name, &sum); err != nil {
			return nil, err
		}
		applied[name] = sum
	}

	return applied, rows.Err()
}

// MigrateFromDSN opens a short-lived pool and runs migrations with it
func MigrateFromDSN(ctx context.Context, dsn, migrationsDir string) error {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	return RunMigrations(ctx, pool, migrationsDir)
}
