// Package runs turns engine output into stored validation runs.
package runs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/terra-clan/dataset-validator/internal/cache"
	"github.com/terra-clan/dataset-validator/internal/datasets"
	"github.com/terra-clan/dataset-validator/internal/models"
	"github.com/terra-clan/dataset-validator/internal/storage"
	"github.com/terra-clan/dataset-validator/internal/validation"
)

var (
	// ErrRunNotFound is returned when no run has the requested ID
	ErrRunNotFound = errors.New("run not found")
	// ErrInvalidDataset is returned for a dataset with no records at all
	ErrInvalidDataset = errors.New("invalid dataset")
	// ErrDatasetNotFound is returned when a named dataset is not loaded
	ErrDatasetNotFound = errors.New("dataset not found")
)

const (
	// InlineDatasetName labels runs over datasets posted without a name
	InlineDatasetName = "inline"

	defaultListLimit = 50
	maxListLimit     = 500
)

// DatasetSource resolves named datasets
type DatasetSource interface {
	Get(name string) *datasets.Entry
}

// Service validates datasets and records each pass as a Run
type Service struct {
	repo     storage.Repository
	cache    *cache.FindingsCache
	engine   *validation.Engine
	datasets DatasetSource
	now      func() time.Time
}

// NewService creates a run service. cache and datasets may be nil.
func NewService(repo storage.Repository, c *cache.FindingsCache, engine *validation.Engine, ds DatasetSource) *Service {
	if engine == nil {
		engine = validation.New()
	}
	return &Service{
		repo:     repo,
		cache:    c,
		engine:   engine,
		datasets: ds,
		now:      time.Now,
	}
}

// Fingerprint hashes the canonical JSON form of a dataset together with the
// check list, so a change to either yields a new cache key.
func Fingerprint(ds models.Dataset) (string, error) {
	data, err := json.Marshal(ds)
	if err != nil {
		return "", fmt.Errorf("failed to encode dataset: %w", err)
	}

	h := sha256.New()
	h.Write([]byte(strings.Join(validation.CheckNames(), ",")))
	h.Write([]byte{0})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Check runs the engine without caching or persistence
func (s *Service) Check(ds models.Dataset) []models.Finding {
	return s.engine.Validate(ds)
}

// Validate runs the engine over ds, reusing cached findings for an unchanged
// dataset, and stores the outcome as a new run.
func (s *Service) Validate(ctx context.Context, name string, ds models.Dataset) (*models.Run, error) {
	if len(ds.Clients)+len(ds.Workers)+len(ds.Tasks)+len(ds.Rules) == 0 {
		return nil, fmt.Errorf("%w: dataset has no records", ErrInvalidDataset)
	}
	if name = strings.TrimSpace(name); name == "" {
		name = InlineDatasetName
	}

	fingerprint, err := Fingerprint(ds)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDataset, err)
	}

	findings, cached, err := s.cache.Get(ctx, fingerprint)
	if err != nil {
		slog.Warn("failed to read findings cache", "fingerprint", fingerprint, "error", err)
	}
	if !cached {
		start := time.Now()
		findings = s.engine.Validate(ds)
		slog.Debug("dataset validated", "dataset", name, "findings", len(findings),
			"parallel", s.engine.Parallel(), "duration", time.Since(start))

		if err := s.cache.Set(ctx, fingerprint, findings); err != nil {
			slog.Warn("failed to cache findings", "fingerprint", fingerprint, "error", err)
		}
	}

	summary := validation.Summarize(findings)
	run := &models.Run{
		ID:           uuid.New().String(),
		DatasetName:  name,
		Fingerprint:  fingerprint,
		ErrorCount:   summary.Errors,
		WarningCount: summary.Warnings,
		Score:        summary.Score,
		Cached:       cached,
		Findings:     findings,
		CreatedAt:    s.now().UTC(),
	}

	if err := s.repo.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to store run: %w", err)
	}

	slog.Info("validation run stored",
		"run_id", run.ID,
		"dataset", name,
		"errors", run.ErrorCount,
		"warnings", run.WarningCount,
		"cached", cached,
	)

	return run, nil
}

// ValidateNamed validates a dataset loaded from the dataset directory
func (s *Service) ValidateNamed(ctx context.Context, name string) (*models.Run, error) {
	if s.datasets == nil {
		return nil, fmt.Errorf("%w: %s", ErrDatasetNotFound, name)
	}
	entry := s.datasets.Get(name)
	if entry == nil {
		return nil, fmt.Errorf("%w: %s", ErrDatasetNotFound, name)
	}
	return s.Validate(ctx, entry.Name, entry.Dataset)
}

// Get returns a stored run by ID
func (s *Service) Get(ctx context.Context, id string) (*models.Run, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}

	run, err := s.repo.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, nil
}

// List returns stored runs newest first without their findings
func (s *Service) List(ctx context.Context, filters models.RunFilters) ([]*models.Run, error) {
	if filters.Limit <= 0 {
		filters.Limit = defaultListLimit
	}
	if filters.Limit > maxListLimit {
		filters.Limit = maxListLimit
	}
	if filters.Offset < 0 {
		filters.Offset = 0
	}

	runs, err := s.repo.ListRuns(ctx, filters)
	if err != nil {
		return nil, err
	}
	if runs == nil {
		runs = []*models.Run{}
	}
	return runs, nil
}

// PruneBefore deletes runs created before cutoff
func (s *Service) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := s.repo.DeleteRunsBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		slog.Info("old validation runs pruned", "count", n, "cutoff", cutoff)
	}
	return n, nil
}
