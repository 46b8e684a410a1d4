package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"wiki-data-pipeline/internal/model"
)

//go:embed sample_config.toml
var sampleConfig string

// DefaultConfigFile is looked up in the working directory when no path is given.
const DefaultConfigFile = "pipeline.toml"

// Source selects and tunes the upstream data source.
type Source struct {
	Kind           string `toml:"kind" yaml:"kind"` // wikipedia, generic or file
	URL            string `toml:"url" yaml:"url"`
	Path           string `toml:"path" yaml:"path"`
	Limit          int    `toml:"limit" yaml:"limit"`
	MaxPages       int    `toml:"max_pages" yaml:"max_pages"`
	Namespace      *int   `toml:"namespace" yaml:"namespace"`
	TimeoutSeconds int    `toml:"timeout_seconds" yaml:"timeout_seconds"`
	UserAgent      string `toml:"user_agent" yaml:"user_agent"`
}

// Retry bounds the fetch retry loop.
type Retry struct {
	MaxAttempts       int     `toml:"max_attempts" yaml:"max_attempts"`
	InitialDelayMS    int     `toml:"initial_delay_ms" yaml:"initial_delay_ms"`
	MaxDelayMS        int     `toml:"max_delay_ms" yaml:"max_delay_ms"`
	BackoffMultiplier float64 `toml:"backoff_multiplier" yaml:"backoff_multiplier"`
	Jitter            bool    `toml:"jitter" yaml:"jitter"`
}

// Output names the persisted artifacts.
type Output struct {
	Dir          string `toml:"dir" yaml:"dir"`
	PagesFile    string `toml:"pages_file" yaml:"pages_file"`
	FilteredFile string `toml:"filtered_file" yaml:"filtered_file"`
	// SQLiteMirror also writes each artifact into the run store's pages table.
	SQLiteMirror bool `toml:"sqlite_mirror" yaml:"sqlite_mirror"`
}

// Filter holds the criteria expression for filter_pages_by_criteria.
type Filter struct {
	Criteria string `toml:"criteria" yaml:"criteria"`
}

// Store locates the run history database.
type Store struct {
	Path string `toml:"path" yaml:"path"`
}

// S3 configures the optional object storage copy of each artifact.
type S3 struct {
	Enabled      bool   `toml:"enabled" yaml:"enabled"`
	Bucket       string `toml:"bucket" yaml:"bucket"`
	Region       string `toml:"region" yaml:"region"`
	Endpoint     string `toml:"endpoint" yaml:"endpoint"`
	Prefix       string `toml:"prefix" yaml:"prefix"`
	AccessKey    string `toml:"access_key" yaml:"access_key"`
	SecretKey    string `toml:"secret_key" yaml:"secret_key"`
	UsePathStyle bool   `toml:"use_path_style" yaml:"use_path_style"`
}

// Logging contains configuration for log output.
type Logging struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
	File   string `toml:"file" yaml:"file"`
}

// API configures the run history server.
type API struct {
	Bind            string `toml:"bind" yaml:"bind"`
	ShutdownTimeout string `toml:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// Config encapsulates all configuration values for the pipeline.
type Config struct {
	Source  Source  `toml:"source" yaml:"source"`
	Retry   Retry   `toml:"retry" yaml:"retry"`
	Output  Output  `toml:"output" yaml:"output"`
	Filter  Filter  `toml:"filter" yaml:"filter"`
	Store   Store   `toml:"store" yaml:"store"`
	S3      S3      `toml:"s3" yaml:"s3"`
	Logging Logging `toml:"logging" yaml:"logging"`
	API     API     `toml:"api" yaml:"api"`
}

// Load locates, parses, normalizes and validates a configuration file. A
// missing file is not an error: defaults and environment overrides apply.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		if err := decodeFile(resolvedPath, &cfg); err != nil {
			return nil, "", false, err
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse config: %w", err)
		}
	default:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse config: %w", err)
		}
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if strings.TrimSpace(path) == "" {
		path = DefaultConfigFile
	}
	expanded, err := expandPath(path)
	if err != nil {
		return "", false, err
	}
	info, err := os.Stat(expanded)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return expanded, false, nil
		}
		return "", false, fmt.Errorf("stat config: %w", err)
	}
	if info.IsDir() {
		return "", false, fmt.Errorf("config path %q is a directory", expanded)
	}
	return expanded, true, nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// CreateSample writes the sample configuration file to path.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders cfg as TOML.
func (c *Config) Encode() ([]byte, error) {
	return toml.Marshal(c)
}

// WikipediaAPI returns the allpages request settings.
func (c *Config) WikipediaAPI() model.WikipediaAPIConfig {
	api := model.NewWikipediaAPIConfig(c.Source.URL, c.Source.Limit)
	api.MaxPages = c.Source.MaxPages
	api.Namespace = c.Source.Namespace
	api.UserAgent = c.Source.UserAgent
	return api
}

// FetchTimeout is the per-request HTTP timeout.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Source.TimeoutSeconds) * time.Second
}

// RetryPolicy converts the retry section to the runtime representation.
func (c *Config) RetryPolicy() model.RetryConfig {
	return model.RetryConfig{
		MaxAttempts:       c.Retry.MaxAttempts,
		InitialDelay:      time.Duration(c.Retry.InitialDelayMS) * time.Millisecond,
		MaxDelay:          time.Duration(c.Retry.MaxDelayMS) * time.Millisecond,
		BackoffMultiplier: c.Retry.BackoffMultiplier,
		Jitter:            c.Retry.Jitter,
	}
}

// PagesPath is the destination of store_pages_to_csv.
func (c *Config) PagesPath() string {
	return filepath.Join(c.Output.Dir, c.Output.PagesFile)
}

// FilteredPath is the destination of store_filtered_pages_to_csv.
func (c *Config) FilteredPath() string {
	return filepath.Join(c.Output.Dir, c.Output.FilteredFile)
}
