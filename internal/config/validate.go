package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateSource(); err != nil {
		return err
	}
	if err := c.validateRetry(); err != nil {
		return err
	}
	if err := c.validateOutput(); err != nil {
		return err
	}
	if err := c.validateS3(); err != nil {
		return err
	}
	return c.validateAPI()
}

func (c *Config) validateSource() error {
	switch c.Source.Kind {
	case "wikipedia", "generic":
		if c.Source.URL == "" {
			return fmt.Errorf("source.url is required for %s sources (or set %s)", c.Source.Kind, EnvAPIURL)
		}
		parsed, err := url.Parse(c.Source.URL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("source.url %q is not an absolute URL", c.Source.URL)
		}
	case "file":
		if c.Source.Path == "" {
			return errors.New("source.path is required for file sources")
		}
	default:
		return fmt.Errorf("source.kind: unsupported value %q", c.Source.Kind)
	}
	if c.Source.Limit <= 0 || c.Source.Limit > 500 {
		return errors.New("source.limit must be between 1 and 500")
	}
	if c.Source.MaxPages < 0 {
		return errors.New("source.max_pages must be zero or positive")
	}
	if c.Source.TimeoutSeconds <= 0 {
		return errors.New("source.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateRetry() error {
	if c.Retry.MaxAttempts < 1 {
		return errors.New("retry.max_attempts must be at least 1")
	}
	if c.Retry.InitialDelayMS < 0 || c.Retry.MaxDelayMS < 0 {
		return errors.New("retry delays must not be negative")
	}
	if c.Retry.MaxDelayMS > 0 && c.Retry.MaxDelayMS < c.Retry.InitialDelayMS {
		return errors.New("retry.max_delay_ms must not be below retry.initial_delay_ms")
	}
	if c.Retry.BackoffMultiplier < 1 {
		return errors.New("retry.backoff_multiplier must be at least 1")
	}
	return nil
}

func (c *Config) validateOutput() error {
	if c.Output.Dir == "" {
		return fmt.Errorf("output.dir must be set (or set %s)", EnvOutputPath)
	}
	for key, name := range map[string]string{
		"output.pages_file":    c.Output.PagesFile,
		"output.filtered_file": c.Output.FilteredFile,
	} {
		if filepath.Base(name) != name {
			return fmt.Errorf("%s must be a file name, got %q", key, name)
		}
	}
	if c.Output.PagesFile == c.Output.FilteredFile {
		return errors.New("output.pages_file and output.filtered_file must differ")
	}
	if c.Output.SQLiteMirror && c.Store.Path == "" {
		return errors.New("output.sqlite_mirror requires store.path")
	}
	return nil
}

func (c *Config) validateS3() error {
	if !c.S3.Enabled {
		return nil
	}
	if c.S3.Bucket == "" {
		return errors.New("s3.bucket is required when s3 is enabled")
	}
	if c.S3.Region == "" {
		return errors.New("s3.region is required when s3 is enabled")
	}
	if (c.S3.AccessKey == "") != (c.S3.SecretKey == "") {
		return errors.New("s3.access_key and s3.secret_key must be set together")
	}
	return nil
}

func (c *Config) validateAPI() error {
	if strings.TrimSpace(c.API.Bind) == "" {
		return errors.New("api.bind must be set")
	}
	if c.API.ShutdownTimeout != "" {
		if _, err := time.ParseDuration(c.API.ShutdownTimeout); err != nil {
			return fmt.Errorf("api.shutdown_timeout: %w", err)
		}
	}
	return nil
}
