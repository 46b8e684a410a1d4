package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"wiki-data-pipeline/internal/config"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{config.EnvAPIURL, config.EnvOutputPath, config.EnvLogLevel} {
		t.Setenv(key, "")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "pipeline.toml")

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if exists {
		t.Fatal("expected config file to be absent")
	}
	if resolved != path {
		t.Fatalf("resolved = %q, want %q", resolved, path)
	}
	if cfg.Source.Kind != "wikipedia" || cfg.Source.URL != config.Default().Source.URL {
		t.Fatalf("unexpected source defaults: %+v", cfg.Source)
	}
	if !filepath.IsAbs(cfg.Output.Dir) || !strings.HasSuffix(cfg.Output.Dir, filepath.Join("data", "output")) {
		t.Fatalf("output dir not expanded: %q", cfg.Output.Dir)
	}
	if cfg.Filter.Criteria != "contains:List of" {
		t.Fatalf("unexpected criteria: %q", cfg.Filter.Criteria)
	}
	if got := cfg.WikipediaAPI(); got.Limit != 10 || got.MaxPages != 1 || got.UserAgent == "" {
		t.Fatalf("unexpected api config: %+v", got)
	}
	if cfg.FetchTimeout() != 30*time.Second {
		t.Fatalf("fetch timeout = %v", cfg.FetchTimeout())
	}
	retry := cfg.RetryPolicy()
	if retry.MaxAttempts != 3 || retry.InitialDelay != time.Second || retry.MaxDelay != 30*time.Second {
		t.Fatalf("unexpected retry policy: %+v", retry)
	}
}

func TestLoadTOMLAndEnvOverrides(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.toml")
	content := `
[source]
url = "https://example.org/w/api.php"
limit = 50
max_pages = 0

[output]
dir = "` + filepath.ToSlash(filepath.Join(dir, "out")) + `"
filtered_file = "lists.csv"

[filter]
criteria = "  startswith:List  "

[logging]
level = "DEBUG"
format = "fancy"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to exist")
	}
	if cfg.Source.Limit != 50 || cfg.Source.MaxPages != 0 {
		t.Fatalf("unexpected source: %+v", cfg.Source)
	}
	if cfg.FilteredPath() != filepath.Join(dir, "out", "lists.csv") {
		t.Fatalf("filtered path = %q", cfg.FilteredPath())
	}
	if cfg.PagesPath() != filepath.Join(dir, "out", "pages.csv") {
		t.Fatalf("pages path = %q", cfg.PagesPath())
	}
	if cfg.Filter.Criteria != "startswith:List" {
		t.Fatalf("criteria not trimmed: %q", cfg.Filter.Criteria)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "auto" {
		t.Fatalf("logging not normalized: %+v", cfg.Logging)
	}

	envOut := filepath.Join(dir, "env-out")
	t.Setenv(config.EnvAPIURL, "https://mirror.example.org/api.php")
	t.Setenv(config.EnvOutputPath, envOut)
	t.Setenv(config.EnvLogLevel, "warn")

	cfg, _, _, err = config.Load(path)
	if err != nil {
		t.Fatalf("Load with env returned error: %v", err)
	}
	if cfg.Source.URL != "https://mirror.example.org/api.php" {
		t.Fatalf("url override ignored: %q", cfg.Source.URL)
	}
	if cfg.Output.Dir != envOut {
		t.Fatalf("output override ignored: %q", cfg.Output.Dir)
	}
	if cfg.Logging.Level != "warn" {
		t.Fatalf("log level override ignored: %q", cfg.Logging.Level)
	}
}

func TestLoadYAML(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.yaml")
	content := "source:\n  kind: file\n  path: " + filepath.ToSlash(filepath.Join(dir, "pages.json")) + "\nfilter:\n  criteria: equals:Ocean\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Source.Kind != "file" || cfg.Source.Path != filepath.Join(dir, "pages.json") {
		t.Fatalf("unexpected source: %+v", cfg.Source)
	}
	if cfg.Filter.Criteria != "equals:Ocean" {
		t.Fatalf("criteria = %q", cfg.Filter.Criteria)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"unknown kind", func(c *config.Config) { c.Source.Kind = "ftp" }, "source.kind"},
		{"relative url", func(c *config.Config) { c.Source.URL = "api.php" }, "absolute URL"},
		{"file without path", func(c *config.Config) { c.Source.Kind = "file" }, "source.path"},
		{"limit too large", func(c *config.Config) { c.Source.Limit = 501 }, "source.limit"},
		{"negative max pages", func(c *config.Config) { c.Source.MaxPages = -1 }, "source.max_pages"},
		{"zero attempts", func(c *config.Config) { c.Retry.MaxAttempts = 0 }, "retry.max_attempts"},
		{"max below initial", func(c *config.Config) { c.Retry.MaxDelayMS = 10 }, "retry.max_delay_ms"},
		{"shrinking backoff", func(c *config.Config) { c.Retry.BackoffMultiplier = 0.5 }, "backoff_multiplier"},
		{"nested output file", func(c *config.Config) { c.Output.PagesFile = "sub/pages.csv" }, "output.pages_file"},
		{"same output files", func(c *config.Config) { c.Output.FilteredFile = c.Output.PagesFile }, "must differ"},
		{"mirror without store", func(c *config.Config) { c.Output.SQLiteMirror = true; c.Store.Path = "" }, "sqlite_mirror"},
		{"s3 without bucket", func(c *config.Config) { c.S3.Enabled = true }, "s3.bucket"},
		{"s3 half credentials", func(c *config.Config) { c.S3.Enabled = true; c.S3.Bucket = "b"; c.S3.AccessKey = "k" }, "together"},
		{"empty bind", func(c *config.Config) { c.API.Bind = " " }, "api.bind"},
		{"bad shutdown timeout", func(c *config.Config) { c.API.ShutdownTimeout = "soon" }, "api.shutdown_timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			if err := cfg.Validate(); err != nil {
				t.Fatalf("default config invalid: %v", err)
			}
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Validate error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestCreateSampleLoadsCleanly(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "pipeline.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("sample config does not load: %v", err)
	}
	if !exists {
		t.Fatal("expected sample file to exist")
	}

	defaults := config.Default()
	if cfg.Source.URL != defaults.Source.URL || cfg.Retry != defaults.Retry || cfg.API != defaults.API {
		t.Fatalf("sample drifted from defaults: %+v", cfg)
	}
}

func TestEncodeRoundTripsThroughTOML(t *testing.T) {
	cfg := config.Default()
	cfg.Output.SQLiteMirror = true

	data, err := cfg.Encode()
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}
	if !strings.Contains(string(data), "sqlite_mirror = true") {
		t.Fatalf("encoded config missing mirror flag:\n%s", data)
	}
	var decoded config.Config
	if err := toml.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Output != cfg.Output || decoded.Source.Limit != cfg.Source.Limit {
		t.Fatalf("decoded config differs: %+v", decoded)
	}
}
