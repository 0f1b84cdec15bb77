package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/dataset-validator/internal/config"
	"github.com/terra-clan/dataset-validator/internal/datasets"
	"github.com/terra-clan/dataset-validator/internal/models"
	"github.com/terra-clan/dataset-validator/internal/runs"
	"github.com/terra-clan/dataset-validator/internal/services"
	"github.com/terra-clan/dataset-validator/internal/validation"
)

const duplicateClients = `{
	"name": "dupes",
	"dataset": {
		"clients": [
			{"client_id": "C1", "client_name": "First", "priority_level": 1},
			{"client_id": "C1", "client_name": "Second", "priority_level": 2}
		]
	}
}`

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *apiError       `json:"error"`
}

type stubChecker struct {
	services.BaseChecker
	err error
}

func (c *stubChecker) HealthCheck(context.Context) error { return c.err }

func newTestServer(t *testing.T, auth *AuthMiddleware, registry *services.Registry) (*Server, *datasets.Loader) {
	t.Helper()

	loader := datasets.NewLoader()
	loader.Add(&datasets.Entry{
		Name:   "dupes",
		Source: "memory",
		Dataset: models.Dataset{
			Clients: []models.Client{
				{ClientID: "C1", ClientName: "First", PriorityLevel: models.Int(1)},
				{ClientID: "C1", ClientName: "Second", PriorityLevel: models.Int(2)},
			},
		},
	})

	svc := runs.NewService(storageForTest(), nil, nil, loader)
	return NewServer(config.ServerConfig{}, svc, loader, registry, auth), loader
}

func do(t *testing.T, s *Server, method, path, body string, headers map[string]string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, nil, nil)

	rec, env := do(t, s, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
}

func TestReady(t *testing.T) {
	t.Run("Should report ready when every dependency answers", func(t *testing.T) {
		registry := services.NewRegistry()
		registry.Register("cache", &stubChecker{})
		s, _ := newTestServer(t, nil, registry)

		rec, _ := do(t, s, http.MethodGet, "/ready", "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("Should return 503 naming the failing dependency", func(t *testing.T) {
		registry := services.NewRegistry()
		registry.Register("postgres", &stubChecker{err: errors.New("connection refused")})
		s, _ := newTestServer(t, nil, registry)

		rec, env := do(t, s, http.MethodGet, "/ready", "", nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, string(env.Data), "connection refused")
	})
}

func TestValidate(t *testing.T) {
	s, _ := newTestServer(t, nil, nil)

	t.Run("Should store a run for an inline dataset", func(t *testing.T) {
		rec, env := do(t, s, http.MethodPost, "/api/v1/validate", duplicateClients, nil)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var resp RunResponse
		require.NoError(t, json.Unmarshal(env.Data, &resp))
		assert.Equal(t, "dupes", resp.DatasetName)
		assert.NotEmpty(t, resp.ID)
		assert.Positive(t, resp.ErrorCount)
		assert.Equal(t, resp.ErrorCount, resp.Summary.Errors)
		assert.Positive(t, resp.Summary.ByCheck[validation.CheckDuplicateIDs])
	})

	t.Run("Should narrow findings by query filter", func(t *testing.T) {
		rec, env := do(t, s, http.MethodPost, "/api/v1/validate?check=duplicate-ids&entity=clients", duplicateClients, nil)
		require.Equal(t, http.StatusCreated, rec.Code)

		var resp RunResponse
		require.NoError(t, json.Unmarshal(env.Data, &resp))
		require.NotEmpty(t, resp.Findings)
		for _, f := range resp.Findings {
			assert.Equal(t, validation.CheckDuplicateIDs, f.Check)
			assert.Equal(t, models.EntityClients, f.Entity)
		}
	})

	t.Run("Should accept a YAML body", func(t *testing.T) {
		body := "clients:\n  - client_id: C1\n    client_name: A\n    priority_level: 1\n"
		rec, env := do(t, s, http.MethodPost, "/api/v1/validate?name=yaml-upload", body,
			map[string]string{"Content-Type": "application/yaml"})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var resp RunResponse
		require.NoError(t, json.Unmarshal(env.Data, &resp))
		assert.Equal(t, "yaml-upload", resp.DatasetName)
	})

	t.Run("Should reject malformed JSON", func(t *testing.T) {
		rec, env := do(t, s, http.MethodPost, "/api/v1/validate", `{"dataset":`, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid_request", env.Error.Code)
	})

	t.Run("Should reject an unknown rule type", func(t *testing.T) {
		body := `{"dataset": {"rules": [{"id": "R1", "type": "teleport"}]}}`
		rec, _ := do(t, s, http.MethodPost, "/api/v1/validate", body, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Should reject an empty dataset", func(t *testing.T) {
		rec, env := do(t, s, http.MethodPost, "/api/v1/validate", `{"dataset": {}}`, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "validation_error", env.Error.Code)
	})
}

func TestDatasets(t *testing.T) {
	s, _ := newTestServer(t, nil, nil)

	rec, env := do(t, s, http.MethodGet, "/api/v1/datasets", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Datasets []models.DatasetInfo `json:"datasets"`
		Total    int                  `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Equal(t, 1, list.Total)
	assert.Equal(t, "dupes", list.Datasets[0].Name)
	assert.Equal(t, 2, list.Datasets[0].Clients)

	rec, _ = do(t, s, http.MethodGet, "/api/v1/datasets/dupes", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, s, http.MethodGet, "/api/v1/datasets/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, env = do(t, s, http.MethodPost, "/api/v1/datasets/dupes/validate", "", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var run RunResponse
	require.NoError(t, json.Unmarshal(env.Data, &run))
	assert.Equal(t, "dupes", run.DatasetName)

	rec, env = do(t, s, http.MethodPost, "/api/v1/datasets/missing/validate", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "dataset_not_found", env.Error.Code)
}

func TestRuns(t *testing.T) {
	s, _ := newTestServer(t, nil, nil)

	_, env := do(t, s, http.MethodPost, "/api/v1/validate", duplicateClients, nil)
	var created RunResponse
	require.NoError(t, json.Unmarshal(env.Data, &created))

	t.Run("Should list stored runs", func(t *testing.T) {
		rec, env := do(t, s, http.MethodGet, "/api/v1/runs?dataset=dupes&limit=10", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var list struct {
			Runs  []models.Run `json:"runs"`
			Total int          `json:"total"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &list))
		require.Equal(t, 1, list.Total)
		assert.Equal(t, created.ID, list.Runs[0].ID)
	})

	t.Run("Should return a run with filtered findings", func(t *testing.T) {
		rec, env := do(t, s, http.MethodGet, "/api/v1/runs/"+created.ID+"?severity=warning", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var got RunResponse
		require.NoError(t, json.Unmarshal(env.Data, &got))
		for _, f := range got.Findings {
			assert.Equal(t, models.SeverityWarning, f.Severity)
		}
		assert.Equal(t, created.ErrorCount, got.Summary.Errors)
	})

	t.Run("Should return 404 for unknown and malformed IDs", func(t *testing.T) {
		rec, _ := do(t, s, http.MethodGet, "/api/v1/runs/00000000-0000-0000-0000-000000000000", "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec, _ = do(t, s, http.MethodGet, "/api/v1/runs/not-a-uuid", "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestChecks(t *testing.T) {
	s, _ := newTestServer(t, nil, nil)

	rec, env := do(t, s, http.MethodGet, "/api/v1/checks", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Checks []string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &body))
	assert.Equal(t, validation.CheckNames(), body.Checks)
}

func TestLiveWebsocket(t *testing.T) {
	s, _ := newTestServer(t, nil, nil)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/live"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var hello LiveMessage
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, LiveConnected, hello.Type)

	t.Run("Should reply with findings for a snapshot", func(t *testing.T) {
		var req LiveRequest
		require.NoError(t, json.Unmarshal([]byte(duplicateClients), &req))
		req.Type = LiveValidate
		req.Seq = 7
		require.NoError(t, conn.WriteJSON(req))

		var reply LiveMessage
		require.NoError(t, conn.ReadJSON(&reply))
		assert.Equal(t, LiveResult, reply.Type)
		assert.Equal(t, 7, reply.Seq)
		assert.Empty(t, reply.RunID)
		require.NotNil(t, reply.Summary)
		assert.Positive(t, reply.Summary.Errors)
		assert.Len(t, reply.Findings, reply.Summary.Total)
	})

	t.Run("Should store the pass when asked", func(t *testing.T) {
		var req LiveRequest
		require.NoError(t, json.Unmarshal([]byte(duplicateClients), &req))
		req.Type = LiveValidate
		req.Store = true
		require.NoError(t, conn.WriteJSON(req))

		var reply LiveMessage
		require.NoError(t, conn.ReadJSON(&reply))
		assert.Equal(t, LiveResult, reply.Type)
		assert.NotEmpty(t, reply.RunID)
	})

	t.Run("Should report bad messages without closing", func(t *testing.T) {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
		var reply LiveMessage
		require.NoError(t, conn.ReadJSON(&reply))
		assert.Equal(t, LiveError, reply.Type)

		require.NoError(t, conn.WriteJSON(LiveRequest{Type: "subscribe", Seq: 3}))
		require.NoError(t, conn.ReadJSON(&reply))
		assert.Equal(t, LiveError, reply.Type)
		assert.Equal(t, 3, reply.Seq)
	})
}

func TestValidate_BodyTooLarge(t *testing.T) {
	loader := datasets.NewLoader()
	svc := runs.NewService(storageForTest(), nil, nil, loader)
	s := NewServer(config.ServerConfig{MaxBodyBytes: 16}, svc, loader, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/validate", bytes.NewReader([]byte(duplicateClients)))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}
