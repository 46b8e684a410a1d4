package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"wiki-data-pipeline/internal/model"
)

// DefaultListLimit caps list queries when the caller passes no limit.
const DefaultListLimit = 100

// CreateRun stores a new run.
func (s *Store) CreateRun(ctx context.Context, run model.RunRecord) error {
	if run.ID == "" {
		return errors.New("run id is empty")
	}
	created := run.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	updated := run.UpdatedAt
	if updated.IsZero() {
		updated = created
	}
	_, err := s.execWithRetry(ctx, `
		INSERT INTO runs (id, job, status, failed_step, error, created_at, updated_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Job, string(run.Status), run.FailedStep, run.Error,
		formatTime(created), formatTime(updated), formatTimePtr(run.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	return nil
}

// FinishRun records the final status of a run.
func (s *Store) FinishRun(ctx context.Context, runID string, status model.RunStatus, failedStep, message string, finishedAt time.Time) error {
	finished := formatTime(finishedAt)
	res, err := s.execWithRetry(ctx, `
		UPDATE runs SET status = ?, failed_step = ?, error = ?, updated_at = ?, finished_at = ?
		WHERE id = ?`,
		string(status), failedStep, message, finished, finished, runID,
	)
	if err != nil {
		return fmt.Errorf("update run %s: %w", runID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return nil
}

// SaveStepProgress inserts or replaces the progress row of one step.
func (s *Store) SaveStepProgress(ctx context.Context, step model.StepRecord) error {
	_, err := s.execWithRetry(ctx, `
		INSERT INTO step_progress (run_id, step, position, status, row_count, metadata, started_at, finished_at)
		VALUES (?, ?, (SELECT COUNT(*) FROM step_progress WHERE run_id = ?), ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, step) DO UPDATE SET
			status = excluded.status,
			row_count = excluded.row_count,
			metadata = CASE WHEN excluded.metadata = '' THEN step_progress.metadata ELSE excluded.metadata END,
			started_at = COALESCE(excluded.started_at, step_progress.started_at),
			finished_at = COALESCE(excluded.finished_at, step_progress.finished_at)`,
		step.RunID, step.Step, step.RunID, string(step.Status), step.Rows, step.Metadata,
		formatTimePtr(step.StartedAt), formatTimePtr(step.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("save step %s/%s: %w", step.RunID, step.Step, err)
	}
	return nil
}

// SaveRunError records a step failure.
func (s *Store) SaveRunError(ctx context.Context, rec model.ErrorRecord) error {
	_, err := s.execWithRetry(ctx, `
		INSERT INTO run_errors (run_id, step, kind, message, created_at) VALUES (?, ?, ?, ?, ?)`,
		rec.RunID, rec.Step, rec.Kind, rec.Message, formatTime(rec.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("save error for run %s: %w", rec.RunID, err)
	}
	return nil
}

// SaveRunLog records a step log line.
func (s *Store) SaveRunLog(ctx context.Context, rec model.LogRecord) error {
	_, err := s.execWithRetry(ctx, `
		INSERT INTO run_logs (run_id, step, level, message, row_count, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Step, rec.Level, rec.Message, rec.Rows, formatTime(rec.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("save log for run %s: %w", rec.RunID, err)
	}
	return nil
}

// ListRuns returns the newest runs first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]model.RunRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job, status, failed_step, error, created_at, updated_at, finished_at
		FROM runs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := []model.RunRecord{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun returns one run, or ErrNotFound.
func (s *Store) GetRun(ctx context.Context, runID string) (model.RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, job, status, failed_step, error, created_at, updated_at, finished_at
		FROM runs WHERE id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.RunRecord{}, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return run, err
}

// ListSteps returns the step progress of a run in plan order.
func (s *Store) ListSteps(ctx context.Context, runID string) ([]model.StepRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, step, status, row_count, metadata, started_at, finished_at
		FROM step_progress WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	defer rows.Close()

	steps := []model.StepRecord{}
	for rows.Next() {
		var (
			rec               model.StepRecord
			status            string
			started, finished sql.NullString
		)
		if err := rows.Scan(&rec.RunID, &rec.Step, &status, &rec.Rows, &rec.Metadata, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		rec.Status = model.StepStatus(status)
		if rec.StartedAt, err = parseTimePtr(started); err != nil {
			return nil, err
		}
		if rec.FinishedAt, err = parseTimePtr(finished); err != nil {
			return nil, err
		}
		steps = append(steps, rec)
	}
	return steps, rows.Err()
}

// ListErrors returns the recorded failures of a run.
func (s *Store) ListErrors(ctx context.Context, runID string) ([]model.ErrorRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, step, kind, message, created_at
		FROM run_errors WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list errors: %w", err)
	}
	defer rows.Close()

	records := []model.ErrorRecord{}
	for rows.Next() {
		var (
			rec     model.ErrorRecord
			created string
		)
		if err := rows.Scan(&rec.ID, &rec.RunID, &rec.Step, &rec.Kind, &rec.Message, &created); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		if rec.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ListLogs returns up to limit log lines of a run, oldest first.
func (s *Store) ListLogs(ctx context.Context, runID string, limit int) ([]model.LogRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, step, level, message, row_count, created_at
		FROM run_logs WHERE run_id = ? ORDER BY id LIMIT ?`, runID, limit)
	if err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	defer rows.Close()

	records := []model.LogRecord{}
	for rows.Next() {
		var (
			rec     model.LogRecord
			created string
		)
		if err := rows.Scan(&rec.ID, &rec.RunID, &rec.Step, &rec.Level, &rec.Message, &rec.Rows, &created); err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		if rec.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (model.RunRecord, error) {
	var (
		run              model.RunRecord
		status           string
		created, updated string
		finished         sql.NullString
	)
	if err := row.Scan(&run.ID, &run.Job, &status, &run.FailedStep, &run.Error, &created, &updated, &finished); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return run, err
		}
		return run, fmt.Errorf("scan run: %w", err)
	}
	run.Status = model.RunStatus(status)

	var err error
	if run.CreatedAt, err = parseTime(created); err != nil {
		return run, err
	}
	if run.UpdatedAt, err = parseTime(updated); err != nil {
		return run, err
	}
	if run.FinishedAt, err = parseTimePtr(finished); err != nil {
		return run, err
	}
	return run, nil
}
