package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/terra-clan/dataset-validator/internal/datasets"
	"github.com/terra-clan/dataset-validator/internal/models"
	"github.com/terra-clan/dataset-validator/internal/runs"
	"github.com/terra-clan/dataset-validator/internal/validation"
)

// Response helpers

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: false,
		Error: &apiError{
			Code:    code,
			Message: message,
		},
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

// RunResponse is a run with its findings narrowed by the request filter
type RunResponse struct {
	*models.Run
	Summary validation.Summary `json:"summary"`
}

func newRunResponse(run *models.Run, filter models.FindingFilter) RunResponse {
	out := *run
	out.Findings = filter.Apply(run.Findings)
	if out.Findings == nil {
		out.Findings = []models.Finding{}
	}
	return RunResponse{Run: &out, Summary: validation.Summarize(run.Findings)}
}

func findingFilter(r *http.Request) models.FindingFilter {
	q := r.URL.Query()
	return models.FindingFilter{
		Severity: models.Severity(q.Get("severity")),
		Entity:   models.EntityKind(q.Get("entity")),
		Check:    q.Get("check"),
	}
}

// respondRunError maps run service errors onto HTTP statuses
func respondRunError(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, runs.ErrRunNotFound):
		respondError(w, http.StatusNotFound, "not_found", "run not found")
	case errors.Is(err, runs.ErrDatasetNotFound):
		respondError(w, http.StatusNotFound, "dataset_not_found", "dataset not found")
	case errors.Is(err, runs.ErrInvalidDataset):
		respondError(w, http.StatusBadRequest, "validation_error", err.Error())
	default:
		slog.Error("failed to "+action, "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to "+action)
	}
}

// Health handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	results := s.registry.HealthCheckAll(r.Context())

	checks := make(map[string]string, len(results))
	ready := true
	for name, err := range results {
		if err != nil {
			ready = false
			checks[name] = err.Error()
			continue
		}
		checks[name] = "ok"
	}

	if !ready {
		slog.Warn("dependency not ready", "checks", checks)
		respondJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "not_ready",
			"checks": checks,
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ready",
		"checks": checks,
	})
}

// Validation handlers

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)

	req, err := decodeValidateRequest(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "too_large", "request body too large")
			return
		}
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	slog.Debug("inline validation requested", "client", callerName(r.Context()), "name", req.Name)

	run, err := s.runs.Validate(r.Context(), req.Name, req.Dataset)
	if err != nil {
		respondRunError(w, err, "validate dataset")
		return
	}

	respondJSON(w, http.StatusCreated, newRunResponse(run, findingFilter(r)))
}

// decodeValidateRequest accepts a JSON ValidateRequest, or a bare YAML
// dataset with the name taken from the query string.
func decodeValidateRequest(r *http.Request) (models.ValidateRequest, error) {
	var req models.ValidateRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/yaml", "application/x-yaml", "text/yaml":
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return req, err
		}
		ds, err := datasets.Decode("yaml", data)
		if err != nil {
			return req, err
		}
		req.Name = r.URL.Query().Get("name")
		req.Dataset = ds
	default:
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, err
		}
	}

	return req, nil
}

func (s *Server) handleListChecks(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"checks": validation.CheckNames(),
	})
}

// Dataset handlers

func (s *Server) handleListDatasets(w http.ResponseWriter, r *http.Request) {
	entries := s.datasetLoader.List()
	infos := make([]models.DatasetInfo, 0, len(entries))
	for _, e := range entries {
		infos = append(infos, e.Info())
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"datasets": infos,
		"total":    len(infos),
	})
}

func (s *Server) handleGetDataset(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	entry := s.datasetLoader.Get(name)
	if entry == nil {
		respondError(w, http.StatusNotFound, "not_found", "dataset not found")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"info":    entry.Info(),
		"dataset": entry.Dataset,
	})
}

func (s *Server) handleValidateDataset(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	run, err := s.runs.ValidateNamed(r.Context(), name)
	if err != nil {
		respondRunError(w, err, "validate dataset")
		return
	}

	respondJSON(w, http.StatusCreated, newRunResponse(run, findingFilter(r)))
}

// Run handlers

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	filters := models.RunFilters{
		DatasetName: r.URL.Query().Get("dataset"),
		Fingerprint: r.URL.Query().Get("fingerprint"),
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
			filters.Limit = limit
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil && offset >= 0 {
			filters.Offset = offset
		}
	}

	list, err := s.runs.List(r.Context(), filters)
	if err != nil {
		respondRunError(w, err, "list runs")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  list,
		"total": len(list),
	})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	run, err := s.runs.Get(r.Context(), id)
	if err != nil {
		respondRunError(w, err, "get run")
		return
	}

	respondJSON(w, http.StatusOK, newRunResponse(run, findingFilter(r)))
}
