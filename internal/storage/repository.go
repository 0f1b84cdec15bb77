package storage

import (
	"context"
	"time"

	"github.com/terra-clan/dataset-validator/internal/models"
)

// Repository defines the interface for run history persistence
type Repository interface {
	// Runs
	CreateRun(ctx context.Context, run *models.Run) error
	GetRun(ctx context.Context, id string) (*models.Run, error)
	ListRuns(ctx context.Context, filters models.RunFilters) ([]*models.Run, error)
	DeleteRunsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// API Clients
	GetClientByApiKey(ctx context.Context, apiKey string) (*models.ApiClient, error)
	UpdateClientLastUsed(ctx context.Context, apiKey string) error

	// Health
	Ping(ctx context.Context) error
	Close() error
}
