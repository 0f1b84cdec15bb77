package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/terra-clan/dataset-validator/internal/models"
)

// DB is the subset of pgxpool.Pool the repository uses, so tests can swap in pgxmock
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	db   DB
	pool *pgxpool.Pool
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	DSN          string
	MaxOpenConns int32
	MaxIdleConns int32
	MaxLifetime  time.Duration
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(ctx context.Context, cfg PostgresConfig) (*PostgresRepository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = cfg.MaxOpenConns
	} else {
		poolConfig.MaxConns = 25 // default
	}

	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = cfg.MaxIdleConns
	} else {
		poolConfig.MinConns = 2 // default
	}

	if cfg.MaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxLifetime
	} else {
		poolConfig.MaxConnLifetime = 30 * time.Minute
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{db: pool, pool: pool}, nil
}

// NewPostgresRepositoryFromDB wraps an existing connection
func NewPostgresRepositoryFromDB(db DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// DB returns the underlying connection for migrations
func (r *PostgresRepository) DB() DB {
	return r.db
}

// Ping checks database connectivity
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

// Close closes the database connection pool
func (r *PostgresRepository) Close() error {
	if r.pool != nil {
		r.pool.Close()
	}
	return nil
}

var runColumns = []string{
	"id", "dataset_name", "fingerprint", "error_count", "warning_count", "score", "cached", "created_at",
}

// CreateRun stores a validation run with its findings
func (r *PostgresRepository) CreateRun(ctx context.Context, run *models.Run) error {
	findings := run.Findings
	if findings == nil {
		findings = []models.Finding{}
	}
	findingsJSON, err := json.Marshal(findings)
	if err != nil {
		return fmt.Errorf("failed to marshal findings: %w", err)
	}

	query := `
		INSERT INTO validation_runs (id, dataset_name, fingerprint, error_count, warning_count, score, cached, findings, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = r.db.Exec(ctx, query,
		run.ID,
		run.DatasetName,
		run.Fingerprint,
		run.ErrorCount,
		run.WarningCount,
		run.Score,
		run.Cached,
		findingsJSON,
		run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	return nil
}

// GetRun retrieves a run and its findings by ID
func (r *PostgresRepository) GetRun(ctx context.Context, id string) (*models.Run, error) {
	query := `
		SELECT id, dataset_name, fingerprint, error_count, warning_count, score, cached, created_at, findings
		FROM validation_runs
		WHERE id = $1
	`

	var run models.Run
	var findingsJSON []byte

	err := r.db.QueryRow(ctx, query, id).Scan(
		&run.ID,
		&run.DatasetName,
		&run.Fingerprint,
		&run.ErrorCount,
		&run.WarningCount,
		&run.Score,
		&run.Cached,
		&run.CreatedAt,
		&findingsJSON,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	if err := json.Unmarshal(findingsJSON, &run.Findings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal findings: %w", err)
	}

	return &run, nil
}

// ListRuns returns runs matching filters, newest first. Findings are not loaded.
func (r *PostgresRepository) ListRuns(ctx context.Context, filters models.RunFilters) ([]*models.Run, error) {
	sb := squirrel.Select(runColumns...).
		From("validation_runs").
		PlaceholderFormat(squirrel.Dollar)

	if filters.DatasetName != "" {
		sb = sb.Where(squirrel.Eq{"dataset_name": filters.DatasetName})
	}
	if filters.Fingerprint != "" {
		sb = sb.Where(squirrel.Eq{"fingerprint": filters.Fingerprint})
	}

	sb = sb.OrderBy("created_at DESC")

	if filters.Limit > 0 {
		sb = sb.Limit(uint64(filters.Limit))
	}
	if filters.Offset > 0 {
		sb = sb.Offset(uint64(filters.Offset))
	}

	query, args, err := sb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build list query: %w", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.Run
	for rows.Next() {
		var run models.Run
		if err := rows.Scan(
			&run.ID,
			&run.DatasetName,
			&run.Fingerprint,
			&run.ErrorCount,
			&run.WarningCount,
			&run.Score,
			&run.Cached,
			&run.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, &run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// DeleteRunsBefore removes runs created before cutoff and returns how many went
func (r *PostgresRepository) DeleteRunsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM validation_runs WHERE created_at < $1`

	result, err := r.db.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete runs: %w", err)
	}

	return result.RowsAffected(), nil
}

// GetClientByApiKey retrieves an API client by its key
func (r *PostgresRepository) GetClientByApiKey(ctx context.Context, apiKey string) (*models.ApiClient, error) {
	query := `
		SELECT id, name, api_key, is_active, created_at, last_used_at, permissions, metadata
		FROM api_clients
		WHERE api_key = $1
	`

	var client models.ApiClient
	var lastUsedAt sql.NullTime
	var permissionsJSON, metadataJSON []byte

	err := r.db.QueryRow(ctx, query, apiKey).Scan(
		&client.ID,
		&client.Name,
		&client.ApiKey,
		&client.IsActive,
		&client.CreatedAt,
		&lastUsedAt,
		&permissionsJSON,
		&metadataJSON,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get api client: %w", err)
	}

	if lastUsedAt.Valid {
		client.LastUsedAt = &lastUsedAt.Time
	}

	if permissionsJSON != nil {
		if err := json.Unmarshal(permissionsJSON, &client.Permissions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal permissions: %w", err)
		}
	}

	if metadataJSON != nil {
		if err := json.Unmarshal(metadataJSON, &client.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return &client, nil
}

// UpdateClientLastUsed updates the last_used_at timestamp for a client
func (r *PostgresRepository) UpdateClientLastUsed(ctx context.Context, apiKey string) error {
	query := `UPDATE api_clients SET last_used_at = NOW() WHERE api_key = $1`

	if _, err := r.db.Exec(ctx, query, apiKey); err != nil {
		return fmt.Errorf("failed to update client last_used_at: %w", err)
	}

	return nil
}
