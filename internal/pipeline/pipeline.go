package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"wiki-data-pipeline/internal/logging"
	"wiki-data-pipeline/internal/model"
)

// StepResult is the outcome of one step in a run.
type StepResult struct {
	Name       string
	Status     model.StepStatus
	Batch      model.Batch
	Metadata   model.Metadata
	StartedAt  time.Time
	FinishedAt time.Time
	Logs       []model.LogEntry // start entry, then completion or failure entry
	Err        error
}

// Rows is the number of rows the step produced.
func (s StepResult) Rows() int {
	if s.Status != model.StepCompleted {
		return 0
	}
	return s.Batch.RowCount()
}

// RunResult is everything a run produced, including partial output of a
// failed run.
type RunResult struct {
	RunID      string
	Job        string
	Status     model.RunStatus
	Steps      []StepResult
	FailedStep string
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
	Metrics    RunMetrics
}

// StepSummary is one line of a user-facing run report.
type StepSummary struct {
	Step   string           `json:"step"`
	Status model.StepStatus `json:"status"`
	Rows   int              `json:"rows"`
}

// Summary lists every planned step with its status and row count.
func (r *RunResult) Summary() []StepSummary {
	out := make([]StepSummary, 0, len(r.Steps))
	for _, step := range r.Steps {
		out = append(out, StepSummary{Step: step.Name, Status: step.Status, Rows: step.Rows()})
	}
	return out
}

// Step returns the result of the named step.
func (r *RunResult) Step(name string) (StepResult, bool) {
	for _, step := range r.Steps {
		if step.Name == name {
			return step, true
		}
	}
	return StepResult{}, false
}

// Output returns the batch of a completed step.
func (r *RunResult) Output(name string) (model.Batch, bool) {
	step, ok := r.Step(name)
	if !ok || step.Status != model.StepCompleted {
		return model.Batch{}, false
	}
	return step.Batch, true
}

// Completed returns the names of the steps that finished, in run order.
func (r *RunResult) Completed() []string {
	var names []string
	for _, step := range r.Steps {
		if step.Status == model.StepCompleted {
			names = append(names, step.Name)
		}
	}
	return names
}

// Logs returns every step log entry in run order.
func (r *RunResult) Logs() []model.LogEntry {
	var entries []model.LogEntry
	for _, step := range r.Steps {
		entries = append(entries, step.Logs...)
	}
	return entries
}

// PlannedStep describes a step as it would run, for dry runs.
type PlannedStep struct {
	Name        string   `json:"name"`
	Upstreams   []string `json:"upstreams"`
	Description string   `json:"description"`
}

// Runner executes jobs of a graph one step at a time.
type Runner struct {
	graph    *Graph
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

// NewRunner returns a runner over graph. recorder may be nil.
func NewRunner(graph *Graph, recorder Recorder, logger *slog.Logger) *Runner {
	return &Runner{
		graph:    graph,
		recorder: recorder,
		logger:   logging.NewComponentLogger(logger, "runner"),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Graph returns the graph the runner executes.
func (r *Runner) Graph() *Graph { return r.graph }

// Plan resolves a job without running anything.
func (r *Runner) Plan(jobName string) ([]PlannedStep, error) {
	names, err := r.graph.Plan(jobName)
	if err != nil {
		return nil, err
	}
	out := make([]PlannedStep, 0, len(names))
	for _, name := range names {
		step, _ := r.graph.Step(name)
		out = append(out, PlannedStep{
			Name:        step.Name,
			Upstreams:   append([]string(nil), step.Upstreams...),
			Description: step.Description,
		})
	}
	return out, nil
}

// RunJob executes the named job. Steps run in plan order, each receiving
// only the outputs of its declared upstreams. The first failing step halts
// the run: its error is returned as a *StepError, steps that already
// completed keep their output in the result and the rest are skipped.
func (r *Runner) RunJob(ctx context.Context, jobName string) (*RunResult, error) {
	return r.RunJobWithID(ctx, r.newID(), jobName)
}

// RunJobWithID is RunJob with a caller-chosen run ID, for callers that hand
// the ID out before the run starts.
func (r *Runner) RunJobWithID(ctx context.Context, runID, jobName string) (*RunResult, error) {
	plan, err := r.graph.Plan(jobName)
	if err != nil {
		return nil, err
	}
	if runID == "" {
		runID = r.newID()
	}

	ctx = WithJob(WithRunID(ctx, runID), jobName)
	logger := r.logger.With(
		logging.String(logging.FieldRunID, runID),
		logging.String(logging.FieldJob, jobName),
	)

	tracker := NewRunTracker(ctx, runID, jobName, r.recorder, logger)
	tracker.now = r.now
	tracker.Start(plan)

	result := &RunResult{
		RunID:     runID,
		Job:       jobName,
		Status:    model.RunRunning,
		StartedAt: r.now(),
	}
	logger.Info("job started", logging.Int("steps", len(plan)))

	outputs := make(map[string]model.Batch, len(plan))
	for i, name := range plan {
		step, _ := r.graph.Step(name)
		inputs := make(Inputs, len(step.Upstreams))
		for _, up := range step.Upstreams {
			inputs[up] = outputs[up]
		}

		sr := r.runStep(ctx, step, inputs, tracker, logger)
		result.Steps = append(result.Steps, sr)
		if sr.Err != nil {
			for _, rest := range plan[i+1:] {
				tracker.SkipStep(rest)
				result.Steps = append(result.Steps, StepResult{Name: rest, Status: model.StepSkipped})
			}
			stepErr := &StepError{Step: name, Err: sr.Err}
			result.Status = model.RunFailed
			result.FailedStep = name
			result.Err = stepErr
			result.Metrics = tracker.Fail(name, stepErr)
			result.FinishedAt = r.now()
			logger.Error("job failed",
				logging.String(logging.FieldStep, name),
				logging.String(logging.FieldKind, stepErr.ErrorKind()),
				logging.Error(sr.Err),
			)
			return result, stepErr
		}
		outputs[name] = sr.Batch
	}

	result.Status = model.RunSucceeded
	result.Metrics = tracker.Complete()
	result.FinishedAt = r.now()
	logger.Info("job completed", logging.Duration("duration", result.FinishedAt.Sub(result.StartedAt)))
	return result, nil
}

func (r *Runner) runStep(ctx context.Context, step Step, inputs Inputs, tracker *RunTracker, logger *slog.Logger) StepResult {
	sr := StepResult{Name: step.Name, Status: model.StepRunning}
	sr.StartedAt = tracker.StartStep(step.Name)

	start := model.LogEntry{
		Time:    sr.StartedAt,
		Step:    step.Name,
		Level:   "info",
		Message: "started: " + step.Description,
	}
	sr.Logs = append(sr.Logs, start)
	tracker.Log(start)
	logger.Debug("step started", logging.String(logging.FieldStep, step.Name))

	batch, meta, err := invoke(ctx, step, inputs)
	if err != nil {
		sr.Status = model.StepFailed
		sr.Err = err
		sr.FinishedAt = tracker.FailStep(step.Name, err)
		failed := model.LogEntry{
			Time:    sr.FinishedAt,
			Step:    step.Name,
			Level:   "error",
			Message: "failed: " + err.Error(),
		}
		sr.Logs = append(sr.Logs, failed)
		tracker.Log(failed)
		return sr
	}

	sr.Status = model.StepCompleted
	sr.Batch = batch
	sr.Metadata = meta
	sr.FinishedAt = tracker.CompleteStep(step.Name, batch.RowCount(), meta)
	done := model.LogEntry{
		Time:    sr.FinishedAt,
		Step:    step.Name,
		Level:   "info",
		Message: fmt.Sprintf("completed with %d rows", batch.RowCount()),
		Rows:    batch.RowCount(),
	}
	sr.Logs = append(sr.Logs, done)
	tracker.Log(done)
	logger.Info("step completed",
		logging.String(logging.FieldStep, step.Name),
		logging.Int(logging.FieldRows, batch.RowCount()),
		logging.Duration("duration", sr.FinishedAt.Sub(sr.StartedAt)),
	)
	return sr
}

// invoke calls the step function, turning a panic into an error.
func invoke(ctx context.Context, step Step, inputs Inputs) (batch model.Batch, meta model.Metadata, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("step %s panicked: %v", step.Name, rec)
		}
	}()
	if err := ctx.Err(); err != nil {
		return model.Batch{}, nil, err
	}
	batch, meta, err = step.Fn(ctx, inputs)
	if meta == nil {
		meta = model.Metadata{}
	}
	return batch, meta, err
}
