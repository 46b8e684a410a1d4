package model

import "time"

// RunStatus is the lifecycle state of a job run
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// StepStatus is the state of one step inside a run
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// LogEntry is one step log line kept with the run result
type LogEntry struct {
	Time    time.Time `json:"time"`
	Step    string    `json:"step"`
	Level   string    `json:"level"` // info, error
	Message string    `json:"message"`
	Rows    int       `json:"rows"`
}

// RunRecord is the persisted view of a job run
type RunRecord struct {
	ID         string     `json:"id"`
	Job        string     `json:"job"`
	Status     RunStatus  `json:"status"`
	FailedStep string     `json:"failed_step,omitempty"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// StepRecord is the persisted progress of one step
type StepRecord struct {
	RunID      string     `json:"run_id"`
	Step       string     `json:"step"`
	Status     StepStatus `json:"status"`
	Rows       int        `json:"rows"`
	Metadata   string     `json:"metadata,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// ErrorRecord is a persisted step failure
type ErrorRecord struct {
	ID        int64     `json:"id"`
	RunID     string    `json:"run_id"`
	Step      string    `json:"step"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// LogRecord is a persisted log line for a run
type LogRecord struct {
	ID        int64     `json:"id"`
	RunID     string    `json:"run_id"`
	Step      string    `json:"step"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Rows      int       `json:"rows"`
	CreatedAt time.Time `json:"created_at"`
}
