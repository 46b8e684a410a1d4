// Package config loads, normalizes and validates the pipeline configuration.
//
// Files are TOML by default; a .yaml or .yml extension switches to YAML.
// A handful of environment variables override file values so the same file
// can be reused across machines.
package config
