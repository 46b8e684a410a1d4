package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"wiki-data-pipeline/internal/logging"
	"wiki-data-pipeline/internal/model"
)

// Recorder persists run progress. Implementations must be safe to call
// from one goroutine at a time; the runner never calls them concurrently.
type Recorder interface {
	CreateRun(ctx context.Context, run model.RunRecord) error
	FinishRun(ctx context.Context, runID string, status model.RunStatus, failedStep, message string, finishedAt time.Time) error
	SaveStepProgress(ctx context.Context, step model.StepRecord) error
	SaveRunError(ctx context.Context, rec model.ErrorRecord) error
	SaveRunLog(ctx context.Context, rec model.LogRecord) error
}

// StageMetrics tracks metrics for one step of a run
type StageMetrics struct {
	Step          string           `json:"step"`
	StartTime     time.Time        `json:"start_time"`
	EndTime       *time.Time       `json:"end_time,omitempty"`
	Duration      time.Duration    `json:"duration,omitempty"`
	RowsProcessed int              `json:"rows_processed"`
	RowsPerSecond float64          `json:"rows_per_second"`
	Status        model.StepStatus `json:"status"`
}

// RunMetrics summarizes a whole run
type RunMetrics struct {
	RunID     string          `json:"run_id"`
	Job       string          `json:"job"`
	StartTime time.Time       `json:"start_time"`
	EndTime   *time.Time      `json:"end_time,omitempty"`
	Duration  time.Duration   `json:"duration,omitempty"`
	Status    model.RunStatus `json:"status"`
	Steps     []StageMetrics  `json:"steps"`
}

// RunTracker records step timings and forwards progress to an optional
// Recorder. Recorder failures are logged and otherwise ignored: a broken
// history database must not fail a run.
type RunTracker struct {
	mu       sync.Mutex
	ctx      context.Context
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time
	metrics  RunMetrics
	index    map[string]int
}

// NewRunTracker creates a tracker for one run.
func NewRunTracker(ctx context.Context, runID, job string, recorder Recorder, logger *slog.Logger) *RunTracker {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &RunTracker{
		ctx:      context.WithoutCancel(ctx),
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
		metrics: RunMetrics{
			RunID:  runID,
			Job:    job,
			Status: model.RunPending,
		},
		index: make(map[string]int),
	}
}

// Start registers the planned steps and marks the run as running.
func (t *RunTracker) Start(plan []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.metrics.StartTime = now
	t.metrics.Status = model.RunRunning
	t.metrics.Steps = make([]StageMetrics, 0, len(plan))
	for i, name := range plan {
		t.index[name] = i
		t.metrics.Steps = append(t.metrics.Steps, StageMetrics{Step: name, Status: model.StepPending})
	}

	t.record("create run", func(r Recorder) error {
		return r.CreateRun(t.ctx, model.RunRecord{
			ID:        t.metrics.RunID,
			Job:       t.metrics.Job,
			Status:    model.RunRunning,
			CreatedAt: now,
			UpdatedAt: now,
		})
	})
	for _, name := range plan {
		t.saveStep(name)
	}
}

// StartStep marks a step as running and returns its start time.
func (t *RunTracker) StartStep(name string) time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	stage := t.stage(name)
	stage.StartTime = now
	stage.Status = model.StepRunning
	t.saveStep(name)
	return now
}

// CompleteStep marks a step as completed with its row count.
func (t *RunTracker) CompleteStep(name string, rows int, meta model.Metadata) time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()

	finished := t.finish(name, model.StepCompleted, t.now())
	stage := t.stage(name)
	stage.RowsProcessed = rows
	if stage.Duration > 0 {
		stage.RowsPerSecond = float64(rows) / stage.Duration.Seconds()
	}
	t.saveStepWithMeta(name, meta)
	return finished
}

// FailStep marks a step as failed and records the error.
func (t *RunTracker) FailStep(name string, err error) time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()

	finished := t.finish(name, model.StepFailed, t.now())
	t.saveStep(name)
	t.record("save run error", func(r Recorder) error {
		return r.SaveRunError(t.ctx, model.ErrorRecord{
			RunID:     t.metrics.RunID,
			Step:      name,
			Kind:      string(KindOf(err)),
			Message:   err.Error(),
			CreatedAt: finished,
		})
	})
	return finished
}

// SkipStep marks a step that never ran because an upstream failed.
func (t *RunTracker) SkipStep(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stage(name).Status = model.StepSkipped
	t.saveStep(name)
}

// Log forwards a step log entry.
func (t *RunTracker) Log(entry model.LogEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.record("save run log", func(r Recorder) error {
		return r.SaveRunLog(t.ctx, model.LogRecord{
			RunID:     t.metrics.RunID,
			Step:      entry.Step,
			Level:     entry.Level,
			Message:   entry.Message,
			Rows:      entry.Rows,
			CreatedAt: entry.Time,
		})
	})
}

// Complete marks the run as succeeded.
func (t *RunTracker) Complete() RunMetrics {
	return t.end(model.RunSucceeded, "", nil)
}

// Fail marks the run as failed at step.
func (t *RunTracker) Fail(step string, err error) RunMetrics {
	return t.end(model.RunFailed, step, err)
}

func (t *RunTracker) end(status model.RunStatus, step string, err error) RunMetrics {
	t.mu.Lock()
	defer t.mu.Unlock()

	finished := t.now()
	t.metrics.EndTime = &finished
	t.metrics.Duration = finished.Sub(t.metrics.StartTime)
	t.metrics.Status = status

	message := ""
	if err != nil {
		message = err.Error()
	}
	t.record("finish run", func(r Recorder) error {
		return r.FinishRun(t.ctx, t.metrics.RunID, status, step, message, finished)
	})
	return t.snapshot()
}

func (t *RunTracker) finish(name string, status model.StepStatus, at time.Time) time.Time {
	stage := t.stage(name)
	stage.EndTime = &at
	stage.Status = status
	if !stage.StartTime.IsZero() {
		stage.Duration = at.Sub(stage.StartTime)
	}
	return at
}

func (t *RunTracker) stage(name string) *StageMetrics {
	i, ok := t.index[name]
	if !ok {
		t.index[name] = len(t.metrics.Steps)
		t.metrics.Steps = append(t.metrics.Steps, StageMetrics{Step: name, Status: model.StepPending})
		i = len(t.metrics.Steps) - 1
	}
	return &t.metrics.Steps[i]
}

func (t *RunTracker) saveStep(name string) {
	t.saveStepWithMeta(name, nil)
}

func (t *RunTracker) saveStepWithMeta(name string, meta model.Metadata) {
	stage := *t.stage(name)
	rec := model.StepRecord{
		RunID:      t.metrics.RunID,
		Step:       name,
		Status:     stage.Status,
		Rows:       stage.RowsProcessed,
		FinishedAt: stage.EndTime,
	}
	if !stage.StartTime.IsZero() {
		started := stage.StartTime
		rec.StartedAt = &started
	}
	if len(meta) > 0 {
		if data, err := jsonAPI.Marshal(meta); err == nil {
			rec.Metadata = string(data)
		}
	}
	t.record("save step progress", func(r Recorder) error {
		return r.SaveStepProgress(t.ctx, rec)
	})
}

func (t *RunTracker) record(action string, fn func(Recorder) error) {
	if t.recorder == nil {
		return
	}
	if err := fn(t.recorder); err != nil {
		t.logger.Warn("run history update failed",
			logging.String("action", action),
			logging.Error(err),
		)
	}
}

func (t *RunTracker) snapshot() RunMetrics {
	out := t.metrics
	out.Steps = append([]StageMetrics(nil), t.metrics.Steps...)
	return out
}
