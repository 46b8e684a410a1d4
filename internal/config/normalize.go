package config

import (
	"fmt"
	"os"
	"strings"
)

// Environment overrides applied after the file is read.
const (
	EnvAPIURL     = "WIKI_API_URL"
	EnvOutputPath = "OUTPUT_PATH"
	EnvLogLevel   = "PIPELINE_LOG_LEVEL"
)

func (c *Config) normalize() error {
	c.applyEnv()
	c.normalizeSource()
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeLogging()
	c.Filter.Criteria = strings.TrimSpace(c.Filter.Criteria)
	if c.Filter.Criteria == "" {
		c.Filter.Criteria = defaultCriteria
	}
	c.S3.Bucket = strings.TrimSpace(c.S3.Bucket)
	c.S3.Prefix = strings.Trim(strings.TrimSpace(c.S3.Prefix), "/")
	return nil
}

func (c *Config) applyEnv() {
	if value, ok := lookupEnv(EnvAPIURL); ok {
		c.Source.URL = value
	}
	if value, ok := lookupEnv(EnvOutputPath); ok {
		c.Output.Dir = value
	}
	if value, ok := lookupEnv(EnvLogLevel); ok {
		c.Logging.Level = value
	}
}

func lookupEnv(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	value = strings.TrimSpace(value)
	return value, ok && value != ""
}

func (c *Config) normalizeSource() {
	c.Source.Kind = strings.ToLower(strings.TrimSpace(c.Source.Kind))
	if c.Source.Kind == "" {
		c.Source.Kind = "wikipedia"
	}
	c.Source.URL = strings.TrimSpace(c.Source.URL)
	c.Source.UserAgent = strings.TrimSpace(c.Source.UserAgent)
	if c.Source.UserAgent == "" {
		c.Source.UserAgent = defaultUserAgent
	}
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Output.Dir, err = expandPath(c.Output.Dir); err != nil {
		return fmt.Errorf("output.dir: %w", err)
	}
	if c.Store.Path, err = expandPath(c.Store.Path); err != nil {
		return fmt.Errorf("store.path: %w", err)
	}
	if c.Source.Path, err = expandPath(c.Source.Path); err != nil {
		return fmt.Errorf("source.path: %w", err)
	}
	if c.Logging.File, err = expandPath(c.Logging.File); err != nil {
		return fmt.Errorf("logging.file: %w", err)
	}
	if strings.TrimSpace(c.Output.PagesFile) == "" {
		c.Output.PagesFile = defaultPagesFile
	}
	if strings.TrimSpace(c.Output.FilteredFile) == "" {
		c.Output.FilteredFile = defaultFilteredFile
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "console", "json", "auto":
	default:
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
