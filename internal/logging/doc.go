// Package logging builds the slog loggers used by the pipeline CLI and API.
//
// It provides a compact console handler for terminals, a JSON handler for
// machines, level parsing and attribute helpers so every component tags its
// lines the same way. NewNop returns a logger for tests and optional wiring.
package logging
