// Package app assembles the pipeline from configuration: source, sinks,
// run history store, step graph and runner. Both binaries start here.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"wiki-data-pipeline/internal/config"
	"wiki-data-pipeline/internal/logging"
	"wiki-data-pipeline/internal/model"
	"wiki-data-pipeline/internal/pipeline"
	"wiki-data-pipeline/internal/store"
	"wiki-data-pipeline/pkg/utils"
)

// App is a ready-to-run pipeline.
type App struct {
	Config *config.Config
	Logger *slog.Logger
	Store  *store.Store // nil when the history database is disabled
	Graph  *pipeline.Graph
	Runner *pipeline.Runner
	Output *utils.OutputManager
}

// Options tune how an App is assembled.
type Options struct {
	// WithoutStore skips opening the history database, for dry runs.
	WithoutStore bool
}

// New builds the graph and runner described by cfg.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	a := &App{
		Config: cfg,
		Logger: logger,
		Output: utils.NewOutputManager(cfg.Output.Dir),
	}

	if !opts.WithoutStore && cfg.Store.Path != "" {
		s, err := store.Open(cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		a.Store = s
	}

	source, err := NewSource(cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	sink, err := a.newSink(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	criteria, err := pipeline.ParsePredicate(cfg.Filter.Criteria)
	if err != nil {
		a.Close()
		return nil, err
	}

	graph, err := pipeline.NewGraph(pipeline.Deps{
		Source:       source,
		Schema:       pipeline.PageSchema,
		Processor:    pipeline.NewProcessor(pipeline.DefaultSource),
		Criteria:     criteria,
		Sink:         sink,
		PagesPath:    cfg.PagesPath(),
		FilteredPath: cfg.FilteredPath(),
		Logger:       logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Graph = graph

	var recorder pipeline.Recorder
	if a.Store != nil {
		recorder = a.Store
	}
	a.Runner = pipeline.NewRunner(graph, recorder, logger)
	return a, nil
}

// Close releases the history database.
func (a *App) Close() error {
	if a == nil || a.Store == nil {
		return nil
	}
	err := a.Store.Close()
	a.Store = nil
	return err
}

// NewSource builds the upstream source named by source.kind.
func NewSource(cfg *config.Config, logger *slog.Logger) (pipeline.Source, error) {
	switch cfg.Source.Kind {
	case "", "wikipedia":
		return pipeline.NewWikipediaSource(cfg.WikipediaAPI(), cfg.FetchTimeout(), cfg.RetryPolicy(), logger), nil
	case "generic":
		return &pipeline.GenericAPISource{
			Source: model.DataSource{Type: "api", Name: "generic", URL: cfg.Source.URL},
			Client: &http.Client{Timeout: cfg.FetchTimeout()},
			Retry:  cfg.RetryPolicy(),
			Logger: logging.NewComponentLogger(logger, "generic"),
		}, nil
	case "file":
		return &pipeline.FileSource{Path: cfg.Source.Path}, nil
	default:
		return nil, fmt.Errorf("unsupported source kind %q", cfg.Source.Kind)
	}
}

func (a *App) newSink(ctx context.Context) (pipeline.Sink, error) {
	sinks := pipeline.Fanout{pipeline.FileSink{}}
	if a.Config.Output.SQLiteMirror && a.Store != nil {
		sinks = append(sinks, pipeline.SQLiteSink{Store: a.Store})
	}
	if s3cfg := a.Config.S3; s3cfg.Enabled {
		s3Sink, err := pipeline.NewS3Sink(ctx, pipeline.S3Options{
			Bucket:       s3cfg.Bucket,
			Region:       s3cfg.Region,
			Endpoint:     s3cfg.Endpoint,
			Prefix:       s3cfg.Prefix,
			AccessKey:    s3cfg.AccessKey,
			SecretKey:    s3cfg.SecretKey,
			UsePathStyle: s3cfg.UsePathStyle,
		})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s3Sink)
	}
	if len(sinks) == 1 {
		return sinks[0], nil
	}
	return sinks, nil
}
