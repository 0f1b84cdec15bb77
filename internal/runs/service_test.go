package runs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/dataset-validator/internal/cache"
	"github.com/terra-clan/dataset-validator/internal/datasets"
	"github.com/terra-clan/dataset-validator/internal/models"
	"github.com/terra-clan/dataset-validator/internal/storage"
	"github.com/terra-clan/dataset-validator/internal/validation"
)

// MockRepository implements storage.Repository for testing
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) CreateRun(ctx context.Context, run *models.Run) error {
	return m.Called(ctx, run).Error(0)
}

func (m *MockRepository) GetRun(ctx context.Context, id string) (*models.Run, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Run), args.Error(1)
}

func (m *MockRepository) ListRuns(ctx context.Context, filters models.RunFilters) ([]*models.Run, error) {
	args := m.Called(ctx, filters)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Run), args.Error(1)
}

func (m *MockRepository) DeleteRunsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository) GetClientByApiKey(ctx context.Context, apiKey string) (*models.ApiClient, error) {
	args := m.Called(ctx, apiKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ApiClient), args.Error(1)
}

func (m *MockRepository) UpdateClientLastUsed(ctx context.Context, apiKey string) error {
	return m.Called(ctx, apiKey).Error(0)
}

func (m *MockRepository) Ping(ctx context.Context) error { return m.Called(ctx).Error(0) }

func (m *MockRepository) Close() error { return nil }

func dataset() models.Dataset {
	return models.Dataset{
		Clients: []models.Client{
			{ClientID: "C1", ClientName: "Acme", PriorityLevel: models.Int(2), RequestedTaskIDs: models.TagList{"T1", "T9"}},
		},
		Workers: []models.Worker{
			{WorkerID: "W1", WorkerName: "Ada", Skills: models.TagList{"a"}, AvailableSlots: models.Phases(1), MaxLoadPerPhase: models.Int(1)},
		},
		Tasks: []models.Task{
			{TaskID: "T1", TaskName: "One", Duration: models.Int(1), RequiredSkills: models.TagList{"a"}, PreferredPhases: models.Phases(1)},
		},
	}
}

func newCache(t *testing.T) *cache.FindingsCache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return cache.NewFindingsCache(client, time.Minute)
}

func TestFingerprint(t *testing.T) {
	a, err := Fingerprint(dataset())
	require.NoError(t, err)
	b, err := Fingerprint(dataset())
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	changed := dataset()
	changed.Tasks[0].Duration = models.Int(2)
	c, err := Fingerprint(changed)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestService_Validate(t *testing.T) {
	t.Run("Should store a run with counts and score", func(t *testing.T) {
		repo := storage.NewMemoryRepository()
		svc := NewService(repo, nil, nil, nil)

		run, err := svc.Validate(context.Background(), " ", dataset())
		require.NoError(t, err)

		assert.Equal(t, InlineDatasetName, run.DatasetName)
		assert.Equal(t, 1, run.ErrorCount)
		assert.Equal(t, validation.QualityScore(1), run.Score)
		assert.False(t, run.Cached)
		require.Len(t, run.Findings, 1)
		assert.Equal(t, validation.CheckUnknownTaskReferences, run.Findings[0].Check)

		stored, err := svc.Get(context.Background(), run.ID)
		require.NoError(t, err)
		assert.Equal(t, run.Fingerprint, stored.Fingerprint)
	})

	t.Run("Should reuse cached findings for an unchanged dataset", func(t *testing.T) {
		svc := NewService(storage.NewMemoryRepository(), newCache(t), nil, nil)
		ctx := context.Background()

		first, err := svc.Validate(ctx, "acme", dataset())
		require.NoError(t, err)
		second, err := svc.Validate(ctx, "acme", dataset())
		require.NoError(t, err)

		assert.False(t, first.Cached)
		assert.True(t, second.Cached)
		assert.NotEqual(t, first.ID, second.ID)
		assert.Equal(t, first.Findings, second.Findings)
	})

	t.Run("Should reject an empty dataset", func(t *testing.T) {
		svc := NewService(storage.NewMemoryRepository(), nil, nil, nil)

		_, err := svc.Validate(context.Background(), "x", models.Dataset{})

		assert.ErrorIs(t, err, ErrInvalidDataset)
	})

	t.Run("Should surface storage failures", func(t *testing.T) {
		repo := new(MockRepository)
		boom := errors.New("disk full")
		repo.On("CreateRun", mock.Anything, mock.AnythingOfType("*models.Run")).Return(boom)
		svc := NewService(repo, nil, validation.New(validation.WithParallel(true)), nil)

		_, err := svc.Validate(context.Background(), "x", dataset())

		assert.ErrorIs(t, err, boom)
		repo.AssertExpectations(t)
	})
}

func TestService_ValidateNamed(t *testing.T) {
	loader := datasets.NewLoader()
	loader.Add(&datasets.Entry{Name: "acme", Dataset: dataset()})
	svc := NewService(storage.NewMemoryRepository(), nil, nil, loader)

	run, err := svc.ValidateNamed(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, "acme", run.DatasetName)

	_, err = svc.ValidateNamed(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrDatasetNotFound)
}

func TestService_Get(t *testing.T) {
	svc := NewService(storage.NewMemoryRepository(), nil, nil, nil)

	_, err := svc.Get(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, ErrRunNotFound)

	_, err = svc.Get(context.Background(), "0b9f8f1e-2c4e-4d8a-9a57-3d7b9b1d2f00")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestService_List(t *testing.T) {
	t.Run("Should clamp limits", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("ListRuns", mock.Anything, models.RunFilters{Limit: maxListLimit}).Return(nil, nil)
		svc := NewService(repo, nil, nil, nil)

		runs, err := svc.List(context.Background(), models.RunFilters{Limit: 10000, Offset: -3})

		require.NoError(t, err)
		assert.NotNil(t, runs)
		assert.Empty(t, runs)
		repo.AssertExpectations(t)
	})

	t.Run("Should filter by dataset", func(t *testing.T) {
		svc := NewService(storage.NewMemoryRepository(), nil, nil, nil)
		ctx := context.Background()
		_, err := svc.Validate(ctx, "a", dataset())
		require.NoError(t, err)
		_, err = svc.Validate(ctx, "b", dataset())
		require.NoError(t, err)

		runs, err := svc.List(ctx, models.RunFilters{DatasetName: "b"})
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, "b", runs[0].DatasetName)
		assert.Nil(t, runs[0].Findings)
	})
}

func TestService_PruneBefore(t *testing.T) {
	repo := storage.NewMemoryRepository()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	svc.now = func() time.Time { return time.Now().Add(-48 * time.Hour) }
	_, err := svc.Validate(ctx, "old", dataset())
	require.NoError(t, err)
	svc.now = time.Now
	_, err = svc.Validate(ctx, "new", dataset())
	require.NoError(t, err)

	n, err := svc.PruneBefore(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	runs, err := svc.List(ctx, models.RunFilters{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "new", runs[0].DatasetName)
}
