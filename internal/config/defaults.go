package config

import "wiki-data-pipeline/internal/model"

const (
	defaultSourceURL    = "https://en.wikipedia.org/w/api.php"
	defaultUserAgent    = "wiki-data-pipeline/1.0"
	defaultLogLevel     = "info"
	defaultLogFormat    = "auto"
	defaultCriteria     = "contains:List of"
	defaultPagesFile    = "pages.csv"
	defaultFilteredFile = "filtered_pages.csv"
)

// Default returns the built-in configuration.
func Default() Config {
	retry := model.DefaultFetchRetry
	return Config{
		Source: Source{
			Kind:           "wikipedia",
			URL:            defaultSourceURL,
			Limit:          10,
			MaxPages:       1,
			TimeoutSeconds: 30,
			UserAgent:      defaultUserAgent,
		},
		Retry: Retry{
			MaxAttempts:       retry.MaxAttempts,
			InitialDelayMS:    int(retry.InitialDelay.Milliseconds()),
			MaxDelayMS:        int(retry.MaxDelay.Milliseconds()),
			BackoffMultiplier: retry.BackoffMultiplier,
			Jitter:            retry.Jitter,
		},
		Output: Output{
			Dir:          "data/output",
			PagesFile:    defaultPagesFile,
			FilteredFile: defaultFilteredFile,
		},
		Filter: Filter{Criteria: defaultCriteria},
		Store:  Store{Path: "data/pipeline.db"},
		S3: S3{
			Region: "us-east-1",
			Prefix: "wiki-data-pipeline",
		},
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
		API: API{
			Bind:            "127.0.0.1:8080",
			ShutdownTimeout: "10s",
		},
	}
}
