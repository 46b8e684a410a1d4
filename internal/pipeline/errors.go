package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrSchemaViolation   = errors.New("schema violation")
	ErrGraphDefinition   = errors.New("graph definition error")
	ErrSourceUnavailable = errors.New("source unavailable")
	ErrSinkWrite         = errors.New("sink write error")
	ErrUnknownJob        = errors.New("unknown job")
)

// ErrorKind is the stable classification reported for failed runs.
type ErrorKind string

const (
	KindSchemaViolation   ErrorKind = "schema_violation"
	KindGraphDefinition   ErrorKind = "graph_definition"
	KindSourceUnavailable ErrorKind = "source_unavailable"
	KindSinkWrite         ErrorKind = "sink_write"
	KindUnknownJob        ErrorKind = "unknown_job"
	KindUnknown           ErrorKind = "unknown"
)

// Wrap tags err with one of the sentinels above and prefixes the step and
// message so the cause stays readable in logs.
func Wrap(marker error, step, message string, err error) error {
	detail := buildDetail(step, message)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// KindOf classifies an error by the sentinel it wraps.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSchemaViolation):
		return KindSchemaViolation
	case errors.Is(err, ErrGraphDefinition):
		return KindGraphDefinition
	case errors.Is(err, ErrSourceUnavailable):
		return KindSourceUnavailable
	case errors.Is(err, ErrSinkWrite):
		return KindSinkWrite
	case errors.Is(err, ErrUnknownJob):
		return KindUnknownJob
	default:
		return KindUnknown
	}
}

// StepError carries the name of the step that failed a run.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// ErrorKind returns the classification of the underlying error.
func (e *StepError) ErrorKind() string { return string(KindOf(e.Err)) }

// FailedStep returns the step name recorded in err, if any.
func FailedStep(err error) string {
	var stepErr *StepError
	if errors.As(err, &stepErr) {
		return stepErr.Step
	}
	return ""
}

func buildDetail(step, message string) string {
	parts := make([]string, 0, 2)
	if step = strings.TrimSpace(step); step != "" {
		parts = append(parts, step)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "step failure"
	}
	return strings.Join(parts, ": ")
}
