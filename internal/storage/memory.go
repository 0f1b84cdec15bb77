package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/terra-clan/dataset-validator/internal/models"
)

// MemoryRepository keeps runs in process memory. It backs the service when no
// database is configured; API clients exist only if added with AddClient.
type MemoryRepository struct {
	mu      sync.RWMutex
	runs    map[string]*models.Run
	clients map[string]*models.ApiClient
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		runs:    make(map[string]*models.Run),
		clients: make(map[string]*models.ApiClient),
	}
}

// AddClient registers an API client
func (r *MemoryRepository) AddClient(c *models.ApiClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.ApiKey] = c
}

func (r *MemoryRepository) CreateRun(_ context.Context, run *models.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *run
	r.runs[run.ID] = &cp
	return nil
}

func (r *MemoryRepository) GetRun(_ context.Context, id string) (*models.Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[id]
	if !ok {
		return nil, nil
	}
	cp := *run
	return &cp, nil
}

func (r *MemoryRepository) ListRuns(_ context.Context, filters models.RunFilters) ([]*models.Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var runs []*models.Run
	for _, run := range r.runs {
		if filters.DatasetName != "" && run.DatasetName != filters.DatasetName {
			continue
		}
		if filters.Fingerprint != "" && run.Fingerprint != filters.Fingerprint {
			continue
		}
		cp := *run
		cp.Findings = nil
		runs = append(runs, &cp)
	}

	sort.Slice(runs, func(i, j int) bool {
		if runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].ID > runs[j].ID
		}
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})

	if filters.Offset > 0 {
		if filters.Offset >= len(runs) {
			return nil, nil
		}
		runs = runs[filters.Offset:]
	}
	if filters.Limit > 0 && filters.Limit < len(runs) {
		runs = runs[:filters.Limit]
	}
	return runs, nil
}

func (r *MemoryRepository) DeleteRunsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, run := range r.runs {
		if run.CreatedAt.Before(cutoff) {
			delete(r.runs, id)
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) GetClientByApiKey(_ context.Context, apiKey string) (*models.ApiClient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[apiKey]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r *MemoryRepository) UpdateClientLastUsed(_ context.Context, apiKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clients[apiKey]; ok {
		now := time.Now()
		c.LastUsedAt = &now
	}
	return nil
}

func (r *MemoryRepository) Ping(context.Context) error { return nil }

func (r *MemoryRepository) Close() error { return nil }
