// Package store persists run history in SQLite: runs, per-step progress,
// step errors, step log lines and optional copies of the page artifacts.
//
// The runner reports through the pipeline.Recorder methods; the CLI and the
// HTTP API read the same tables back.
package store
