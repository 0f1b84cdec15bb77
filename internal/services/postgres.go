package services

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// PostgresChecker probes PostgreSQL over its own database/sql connection,
// separate from the repository pool
type PostgresChecker struct {
	BaseChecker
	db *sql.DB
}

// NewPostgresChecker opens a lazy connection; nothing is dialed until HealthCheck
func NewPostgresChecker(dsn string) (*PostgresChecker, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	db.SetMaxOpenConns(1)

	return &PostgresChecker{
		BaseChecker: BaseChecker{checkerType: "postgres"},
		db:          db,
	}, nil
}

// HealthCheck verifies PostgreSQL connectivity
func (c *PostgresChecker) HealthCheck(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close closes the probe connection
func (c *PostgresChecker) Close() error {
	return c.db.Close()
}
