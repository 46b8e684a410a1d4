package pipeline

import "context"

type ctxKey int

const (
	runIDKey ctxKey = iota
	jobKey
)

// WithRunID attaches the run id to ctx so sinks can stamp their output.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// RunIDFromContext returns the run id set by WithRunID.
func RunIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey).(string)
	return id
}

// WithJob attaches the job name to ctx.
func WithJob(ctx context.Context, job string) context.Context {
	return context.WithValue(ctx, jobKey, job)
}

// JobFromContext returns the job name set by WithJob.
func JobFromContext(ctx context.Context) string {
	job, _ := ctx.Value(jobKey).(string)
	return job
}
