package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/dvloznov/paypal-pipeline/internal/api/middleware"
	"github.com/dvloznov/paypal-pipeline/internal/config"
	"github.com/dvloznov/paypal-pipeline/internal/jobs"
	"github.com/dvloznov/paypal-pipeline/internal/pipeline"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// RunsHandler enqueues pipeline runs and reports their jobs.
type RunsHandler struct {
	publisher jobs.Publisher
	store     jobs.JobStore
	log       zerolog.Logger
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(publisher jobs.Publisher, store jobs.JobStore, log zerolog.Logger) *RunsHandler {
	return &RunsHandler{
		publisher: publisher,
		store:     store,
		log:       log,
	}
}

// CreateRunRequest is the body of POST /api/runs. All fields are optional;
// an empty body runs yesterday with the configured source.
type CreateRunRequest struct {
	Date      string `json:"date"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Source    string `json:"source"`
	DryRun    bool   `json:"dry_run"`
}

// CreateRun handles POST /api/runs
func (h *RunsHandler) CreateRun(w http.ResponseWriter, r *http.Request) {
	var req CreateRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	switch req.Source {
	case "", config.SourceAuto, config.SourceRemote, config.SourceSynthetic:
	default:
		middleware.WriteError(w, http.StatusBadRequest, "source must be auto, remote or synthetic")
		return
	}

	job := &jobs.RunJob{
		ExecutionDate: req.Date,
		StartDate:     req.StartDate,
		EndDate:       req.EndDate,
		Source:        req.Source,
		DryRun:        req.DryRun,
		Trigger:       jobs.TriggerAPI,
	}
	if _, err := job.Request(); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.publisher.PublishRun(r.Context(), job); err != nil {
		h.log.Error().Err(err).Msg("Failed to enqueue run")
		middleware.WriteError(w, http.StatusServiceUnavailable, "Failed to enqueue run")
		return
	}

	h.log.Info().
		Str("job_id", job.JobID).
		Str("request_id", middleware.GetRequestID(r.Context())).
		Str("requested_by", middleware.GetSubject(r.Context())).
		Msg("Run enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.JobID,
		"status": string(job.Status),
	})
}

// GetRun handles GET /api/runs/{id}
func (h *RunsHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")

	job, err := h.store.GetJob(r.Context(), jobID)
	if errors.Is(err, jobs.ErrJobNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Run not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get run")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get run")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListRuns handles GET /api/runs
func (h *RunsHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := jobs.JobFilter{
		Status:    jobs.JobStatus(query.Get("status")),
		StartDate: query.Get("start_date"),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}
	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	runs, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list runs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// Health handles GET /health
func Health(environment string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status":      "ok",
			"pipeline":    pipeline.PipelineName,
			"environment": environment,
		})
	}
}
