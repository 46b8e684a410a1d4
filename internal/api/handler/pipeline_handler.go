package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"wiki-data-pipeline/internal/logging"
	"wiki-data-pipeline/internal/model"
	"wiki-data-pipeline/internal/pipeline"
	"wiki-data-pipeline/internal/store"
	"wiki-data-pipeline/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const defaultLimit = 100

// RunStore is the read side of the run history.
type RunStore interface {
	ListRuns(ctx context.Context, limit int) ([]model.RunRecord, error)
	GetRun(ctx context.Context, runID string) (model.RunRecord, error)
	ListSteps(ctx context.Context, runID string) ([]model.StepRecord, error)
	ListErrors(ctx context.Context, runID string) ([]model.ErrorRecord, error)
	ListLogs(ctx context.Context, runID string, limit int) ([]model.LogRecord, error)
}

// JobInfo describes a registered job.
type JobInfo struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Steps       []pipeline.PlannedStep `json:"steps"`
}

// RunResponse is returned when a run is triggered.
type RunResponse struct {
	RunID      string                 `json:"run_id"`
	Job        string                 `json:"job"`
	Status     model.RunStatus        `json:"status"`
	FailedStep string                 `json:"failed_step,omitempty"`
	ErrorKind  string                 `json:"error_kind,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Steps      []pipeline.StepSummary `json:"steps,omitempty"`
	Metrics    *pipeline.RunMetrics   `json:"metrics,omitempty"`
}

// OutputLocker guards the artifact directory against concurrent runs from
// other processes. *utils.OutputManager satisfies it.
type OutputLocker interface {
	Lock() (func() error, error)
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// PipelineHandler serves job and run history endpoints. Triggered runs are
// serialized: while one is in flight further triggers get 409.
type PipelineHandler struct {
	runner *pipeline.Runner
	store  RunStore
	output OutputLocker
	logger *slog.Logger

	// base outlives individual requests so async runs finish after the
	// trigger response is written.
	base    context.Context
	running sync.Mutex
	wg      sync.WaitGroup
}

// NewPipelineHandler wires a handler. store may be nil, in which case the
// history endpoints answer 503. output may be nil when nothing else can write
// the artifact directory.
func NewPipelineHandler(base context.Context, runner *pipeline.Runner, runs RunStore, output OutputLocker, logger *slog.Logger) *PipelineHandler {
	if base == nil {
		base = context.Background()
	}
	return &PipelineHandler{
		runner: runner,
		store:  runs,
		output: output,
		logger: logging.NewComponentLogger(logger, "api"),
		base:   base,
	}
}

// Wait blocks until every triggered run has returned.
func (h *PipelineHandler) Wait() {
	h.wg.Wait()
}

// ListJobs lists the registered jobs
// @Summary List jobs
// @Description List every job with its steps in execution order
// @Tags jobs
// @Produce json
// @Success 200 {array} handler.JobInfo
// @Router /jobs [get]
func (h *PipelineHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := h.runner.Graph().Jobs()
	out := make([]JobInfo, 0, len(jobs))
	for _, job := range jobs {
		steps, err := h.runner.Plan(job.Name)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		out = append(out, JobInfo{Name: job.Name, Description: job.Description, Steps: steps})
	}
	writeJSON(w, http.StatusOK, out)
}

// TriggerRun starts a job run
// @Summary Trigger a run
// @Description Start the named job. Runs are asynchronous unless wait=true; only one run executes at a time.
// @Tags runs
// @Produce json
// @Param name path string true "Job name"
// @Param wait query bool false "Block until the run finishes"
// @Success 200 {object} handler.RunResponse "Finished run (wait=true)"
// @Success 202 {object} handler.RunResponse "Run accepted"
// @Failure 404 {object} handler.ErrorResponse "Unknown job"
// @Failure 409 {object} handler.ErrorResponse "Another run is in progress or the output directory is locked"
// @Router /jobs/{name}/runs [post]
func (h *PipelineHandler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	jobName, ok := pathParam(r.URL.Path, "/api/v1/jobs/", "/runs")
	if !ok {
		writeError(w, http.StatusBadRequest, "job name is required")
		return
	}
	if _, ok := h.runner.Graph().Job(jobName); !ok {
		writeError(w, http.StatusNotFound, "unknown job "+strconv.Quote(jobName))
		return
	}
	if !h.running.TryLock() {
		writeError(w, http.StatusConflict, "another run is in progress")
		return
	}
	release, err := h.lockOutput()
	if err != nil {
		h.running.Unlock()
		status := http.StatusInternalServerError
		if errors.Is(err, utils.ErrOutputLocked) {
			status = http.StatusConflict
		}
		writeError(w, status, err.Error())
		return
	}

	runID := uuid.New().String()
	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	if wait {
		defer release()
		result, err := h.runner.RunJobWithID(r.Context(), runID, jobName)
		if result == nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, newRunResponse(result, err))
		return
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer release()
		if _, err := h.runner.RunJobWithID(h.base, runID, jobName); err != nil {
			h.logger.Warn("triggered run failed",
				logging.String(logging.FieldRunID, runID),
				logging.String(logging.FieldJob, jobName),
				logging.Error(err),
			)
		}
	}()

	writeJSON(w, http.StatusAccepted, RunResponse{RunID: runID, Job: jobName, Status: model.RunPending})
}

// lockOutput takes the artifact directory lock. The returned func drops it
// and then frees the in-process slot.
func (h *PipelineHandler) lockOutput() (func(), error) {
	unlock := func() error { return nil }
	if h.output != nil {
		var err error
		if unlock, err = h.output.Lock(); err != nil {
			return nil, err
		}
	}
	return func() {
		if err := unlock(); err != nil {
			h.logger.Warn("release output lock", logging.Error(err))
		}
		h.running.Unlock()
	}, nil
}

func newRunResponse(result *pipeline.RunResult, err error) RunResponse {
	resp := RunResponse{
		RunID:      result.RunID,
		Job:        result.Job,
		Status:     result.Status,
		FailedStep: result.FailedStep,
		Steps:      result.Summary(),
		Metrics:    &result.Metrics,
	}
	if err != nil {
		resp.Error = err.Error()
		resp.ErrorKind = string(pipeline.KindOf(err))
	}
	return resp
}

// ListRuns lists recent runs
// @Summary List runs
// @Description Newest runs first
// @Tags runs
// @Produce json
// @Param limit query int false "Maximum number of runs" default(100)
// @Success 200 {object} map[string]interface{} "Runs"
// @Failure 500 {object} handler.ErrorResponse
// @Router /runs [get]
func (h *PipelineHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if !h.haveStore(w) {
		return
	}
	limit := queryLimit(r)
	runs, err := h.store.ListRuns(r.Context(), limit)
	if err != nil {
		h.internalError(w, "list runs", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
		"limit": limit,
	})
}

// GetRun returns one run with its step progress
// @Summary Get run
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} map[string]interface{} "Run and steps"
// @Failure 404 {object} handler.ErrorResponse "Run not found"
// @Router /runs/{id} [get]
func (h *PipelineHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.runParam(w, r, "")
	if !ok {
		return
	}
	steps, err := h.store.ListSteps(r.Context(), run.ID)
	if err != nil {
		h.internalError(w, "list steps", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"run":   run,
		"steps": steps,
	})
}

// GetRunSteps returns the step progress of a run
// @Summary Get run steps
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} map[string]interface{} "Step progress"
// @Failure 404 {object} handler.ErrorResponse "Run not found"
// @Router /runs/{id}/steps [get]
func (h *PipelineHandler) GetRunSteps(w http.ResponseWriter, r *http.Request) {
	run, ok := h.runParam(w, r, "/steps")
	if !ok {
		return
	}
	runID := run.ID
	steps, err := h.store.ListSteps(r.Context(), runID)
	if err != nil {
		h.internalError(w, "list steps", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"run_id": runID,
		"steps":  steps,
		"count":  len(steps),
	})
}

// GetRunErrors returns the failures recorded for a run
// @Summary Get run errors
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} map[string]interface{} "Run errors"
// @Failure 404 {object} handler.ErrorResponse "Run not found"
// @Router /runs/{id}/errors [get]
func (h *PipelineHandler) GetRunErrors(w http.ResponseWriter, r *http.Request) {
	run, ok := h.runParam(w, r, "/errors")
	if !ok {
		return
	}
	runID := run.ID
	errs, err := h.store.ListErrors(r.Context(), runID)
	if err != nil {
		h.internalError(w, "list errors", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"run_id": runID,
		"errors": errs,
		"count":  len(errs),
	})
}

// GetRunLogs returns step log lines of a run
// @Summary Get run logs
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Param limit query int false "Maximum number of lines" default(100)
// @Success 200 {object} map[string]interface{} "Run logs"
// @Failure 404 {object} handler.ErrorResponse "Run not found"
// @Router /runs/{id}/logs [get]
func (h *PipelineHandler) GetRunLogs(w http.ResponseWriter, r *http.Request) {
	run, ok := h.runParam(w, r, "/logs")
	if !ok {
		return
	}
	runID := run.ID
	limit := queryLimit(r)
	logs, err := h.store.ListLogs(r.Context(), runID, limit)
	if err != nil {
		h.internalError(w, "list logs", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"run_id": runID,
		"logs":   logs,
		"count":  len(logs),
		"limit":  limit,
	})
}

// runParam loads the run named in the path.
func (h *PipelineHandler) runParam(w http.ResponseWriter, r *http.Request, suffix string) (model.RunRecord, bool) {
	if !h.haveStore(w) {
		return model.RunRecord{}, false
	}
	runID, ok := pathParam(r.URL.Path, "/api/v1/runs/", suffix)
	if !ok {
		writeError(w, http.StatusBadRequest, "run id is required")
		return model.RunRecord{}, false
	}
	run, err := h.store.GetRun(r.Context(), runID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
		} else {
			h.internalError(w, "get run", err)
		}
		return model.RunRecord{}, false
	}
	return run, true
}

func (h *PipelineHandler) haveStore(w http.ResponseWriter) bool {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "run history is not available")
		return false
	}
	return true
}

func (h *PipelineHandler) internalError(w http.ResponseWriter, action string, err error) {
	h.logger.Error("request failed", logging.String("action", action), logging.Error(err))
	writeError(w, http.StatusInternalServerError, "failed to "+action)
}

// pathParam returns the single segment between prefix and suffix.
func pathParam(path, prefix, suffix string) (string, bool) {
	if !strings.HasPrefix(path, prefix) || !strings.HasSuffix(path, suffix) || len(path) < len(prefix)+len(suffix) {
		return "", false
	}
	value := path[len(prefix) : len(path)-len(suffix)]
	if value == "" || strings.Contains(value, "/") {
		return "", false
	}
	return value, true
}

func queryLimit(r *http.Request) int {
	limit := defaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 {
			limit = parsedLimit
		}
	}
	return limit
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// Health reports liveness.
func (h *PipelineHandler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}
