// Package handlers implements the HTTP endpoints of the tax engine server.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/opa-taxengine/internal/api/middleware"
	"github.com/dvloznov/opa-taxengine/internal/config"
	infraBQ "github.com/dvloznov/opa-taxengine/internal/infra/bigquery"
	"github.com/dvloznov/opa-taxengine/internal/jobs"
	"github.com/dvloznov/opa-taxengine/internal/tax"
	"github.com/rs/zerolog"
)

// RunsHandler queues tax runs and reports their progress.
type RunsHandler struct {
	publisher jobs.Publisher
	store     jobs.JobStore
	log       zerolog.Logger
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(publisher jobs.Publisher, store jobs.JobStore, log zerolog.Logger) *RunsHandler {
	return &RunsHandler{publisher: publisher, store: store, log: log}
}

type enqueueRequest struct {
	SourceURI string   `json:"source_uri"`
	Outputs   []string `json:"outputs"`
	RateMode  string   `json:"rate_mode"`
}

// EnqueueRun handles POST /api/runs. An empty body runs with the server
// defaults.
func (h *RunsHandler) EnqueueRun(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	mode := strings.ToLower(strings.TrimSpace(req.RateMode))
	if mode != "" {
		if _, err := tax.ParseMode(mode); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "rate_mode must be components or combined")
			return
		}
	}
	var outputs []string
	for _, o := range req.Outputs {
		if o = strings.TrimSpace(o); o != "" {
			outputs = append(outputs, o)
		}
	}

	job := &jobs.TaxRunJob{
		SourceURI: strings.TrimSpace(req.SourceURI),
		Outputs:   outputs,
		RateMode:  mode,
	}
	if err := h.publisher.PublishTaxRun(r.Context(), job); err != nil {
		h.log.Error().Err(err).Msg("Failed to enqueue tax run")
		status := http.StatusInternalServerError
		if errors.Is(err, jobs.ErrQueueClosed) {
			status = http.StatusServiceUnavailable
		}
		middleware.WriteError(w, status, "Failed to enqueue tax run")
		return
	}

	h.log.Info().Str("job_id", job.JobID).Str("source", job.SourceURI).Msg("Tax run enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.JobID,
		"status": string(job.Status),
	})
}

// GetRun handles GET /api/runs/{id}.
func (h *RunsHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	job, err := h.store.GetJob(r.Context(), jobID)
	if errors.Is(err, jobs.ErrJobNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListRuns handles GET /api/runs?status=&limit=&offset=.
func (h *RunsHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := jobs.JobFilter{
		Status: jobs.JobStatus(query.Get("status")),
		Limit:  intParam(query.Get("limit"), 0),
		Offset: intParam(query.Get("offset"), 0),
	}

	list, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  list,
		"count": len(list),
	})
}

// RunLister reads the durable run ledger.
type RunLister interface {
	ListRuns(ctx context.Context, limit int) ([]*infraBQ.RunRow, error)
}

// LedgerHandler serves the BigQuery tax_runs table.
type LedgerHandler struct {
	runs RunLister
	log  zerolog.Logger
}

// NewLedgerHandler creates a ledger handler. runs may be nil when runs are
// not recorded.
func NewLedgerHandler(runs RunLister, log zerolog.Logger) *LedgerHandler {
	return &LedgerHandler{runs: runs, log: log}
}

// ListLedger handles GET /api/ledger?limit=.
func (h *LedgerHandler) ListLedger(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		middleware.WriteError(w, http.StatusNotFound, "Run ledger is not enabled")
		return
	}

	runs, err := h.runs.ListRuns(r.Context(), intParam(r.URL.Query().Get("limit"), 20))
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list ledger runs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}
	if runs == nil {
		runs = []*infraBQ.RunRow{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// ConfigHandler reports on the server's configuration folder.
type ConfigHandler struct {
	dir string
}

// NewConfigHandler creates a config handler for dir.
func NewConfigHandler(dir string) *ConfigHandler {
	return &ConfigHandler{dir: dir}
}

// Validate handles GET /api/config/validate.
func (h *ConfigHandler) Validate(w http.ResponseWriter, r *http.Request) {
	report := config.Validate(h.dir)
	status := http.StatusOK
	if !report.OK() {
		status = http.StatusUnprocessableEntity
	}
	middleware.WriteJSON(w, status, map[string]interface{}{
		"dir":    h.dir,
		"ok":     report.OK(),
		"report": report,
	})
}

// Health handles GET /health.
func Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// NewRouter registers every endpoint on a new mux.
func NewRouter(runs *RunsHandler, ledger *LedgerHandler, cfg *ConfigHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/runs", runs.EnqueueRun)
	mux.HandleFunc("GET /api/runs", runs.ListRuns)
	mux.HandleFunc("GET /api/runs/{id}", runs.GetRun)
	mux.HandleFunc("GET /api/ledger", ledger.ListLedger)
	mux.HandleFunc("GET /api/config/validate", cfg.Validate)
	mux.HandleFunc("GET /health", Health)
	return mux
}

func intParam(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}
