package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/dataset-validator/internal/api"
	"github.com/terra-clan/dataset-validator/internal/config"
	"github.com/terra-clan/dataset-validator/internal/datasets"
	"github.com/terra-clan/dataset-validator/internal/models"
	"github.com/terra-clan/dataset-validator/internal/runs"
	"github.com/terra-clan/dataset-validator/internal/storage"
)

const testKey = "sk_test_client_key"

func duplicateClients() models.Dataset {
	return models.Dataset{
		Clients: []models.Client{
			{ClientID: "C1", ClientName: "First", PriorityLevel: models.Int(1)},
			{ClientID: "C1", ClientName: "Second", PriorityLevel: models.Int(2)},
		},
	}
}

func newTestClient(t *testing.T) *Client {
	t.Helper()

	repo := storage.NewMemoryRepository()
	repo.AddClient(&models.ApiClient{
		ID: 1, Name: "sdk", ApiKey: testKey, IsActive: true,
		Permissions: []string{"runs:*", models.PermDatasetsRead},
	})

	loader := datasets.NewLoader()
	loader.Add(&datasets.Entry{Name: "dupes", Source: "memory", Dataset: duplicateClients()})

	svc := runs.NewService(repo, nil, nil, loader)
	srv := api.NewServer(config.ServerConfig{}, svc, loader, nil, api.NewAuthMiddleware(repo))

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	return NewClient(ts.URL, testKey)
}

func TestClient_Health(t *testing.T) {
	c := newTestClient(t)
	require.NoError(t, c.Health(context.Background()))
}

func TestClient_ValidateAndGetRun(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	run, err := c.Validate(ctx, "inline-dupes", duplicateClients(), FindingOptions{})
	require.NoError(t, err)
	assert.Equal(t, "inline-dupes", run.DatasetName)
	assert.Positive(t, run.ErrorCount)
	assert.Equal(t, run.ErrorCount, run.Summary.Errors)
	assert.False(t, run.Valid())

	got, err := c.GetRun(ctx, run.ID, FindingOptions{Severity: models.SeverityError})
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Len(t, got.Findings, run.ErrorCount)
}

func TestClient_ValidateDataset(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	run, err := c.ValidateDataset(ctx, "dupes", FindingOptions{Check: "duplicate-ids"})
	require.NoError(t, err)
	assert.Equal(t, "dupes", run.DatasetName)
	for _, f := range run.Findings {
		assert.Equal(t, "duplicate-ids", f.Check)
	}

	_, err = c.ValidateDataset(ctx, "missing", FindingOptions{})
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestClient_ListRunsAndDatasets(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	_, err := c.ValidateDataset(ctx, "dupes", FindingOptions{})
	require.NoError(t, err)
	_, err = c.Validate(ctx, "other", duplicateClients(), FindingOptions{})
	require.NoError(t, err)

	list, err := c.ListRuns(ctx, ListOptions{DatasetName: "dupes"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "dupes", list[0].DatasetName)

	infos, err := c.ListDatasets(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, 2, infos[0].Clients)
}

func TestClient_Unauthorized(t *testing.T) {
	c := newTestClient(t)
	c.apiKey = "sk_wrong_key_0000"

	_, err := c.ListDatasets(context.Background())
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "invalid_api_key", apiErr.Code)
}
