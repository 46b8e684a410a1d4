package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"time"

	"wiki-data-pipeline/internal/logging"
	"wiki-data-pipeline/internal/model"
	"wiki-data-pipeline/pkg/utils"
)

// Step names. Each names exactly one artifact.
const (
	StepFetchRawPages      = "fetch_raw_pages"
	StepValidatePages      = "validate_pages"
	StepCleanAndProcess    = "clean_and_process_pages"
	StepStorePages         = "store_pages_to_csv"
	StepFilterPages        = "filter_pages_by_criteria"
	StepStoreFilteredPages = "store_filtered_pages_to_csv"
)

// Job names.
const (
	JobWikipediaETL = "wikipedia_etl_job"
	JobFilterPages  = "filter_pages_job"
	JobFullPipeline = "full_pipeline_job"
	JobValidation   = "validation_job"
)

// Deps are the collaborators the step catalogue is built from.
type Deps struct {
	Source       Source
	Schema       Schema
	Processor    Processor
	Criteria     Predicate
	Sink         Sink
	PagesPath    string
	FilteredPath string
	Logger       *slog.Logger
}

// NewGraph registers the page steps and the four jobs over them.
func NewGraph(deps Deps) (*Graph, error) {
	if deps.Source == nil {
		return nil, graphError("no source configured")
	}
	if deps.Sink == nil {
		return nil, graphError("no sink configured")
	}
	if deps.Criteria == nil {
		pred, err := ParsePredicate(DefaultCriteria)
		if err != nil {
			return nil, err
		}
		deps.Criteria = pred
	}
	if deps.Schema.Fields == nil {
		deps.Schema = PageSchema
	}
	assets := &pageAssets{deps: deps, logger: logging.NewComponentLogger(deps.Logger, "assets")}

	return NewBuilder().
		AddStep(StepFetchRawPages, nil, assets.fetchRawPages,
			"Fetch raw page listings from "+deps.Source.Describe()).
		AddStep(StepValidatePages, []string{StepFetchRawPages}, assets.validatePages,
			"Validate raw pages against the page schema").
		AddStep(StepCleanAndProcess, []string{StepValidatePages}, assets.cleanAndProcess,
			"Clean titles, drop duplicates and add processing metadata").
		AddStep(StepStorePages, []string{StepCleanAndProcess}, assets.storePages,
			"Persist processed pages to "+filepath.Base(deps.PagesPath)).
		AddStep(StepFilterPages, []string{StepCleanAndProcess}, assets.filterPages,
			"Filter processed pages by "+deps.Criteria.String()).
		AddStep(StepStoreFilteredPages, []string{StepFilterPages}, assets.storeFilteredPages,
			"Persist filtered pages to "+filepath.Base(deps.FilteredPath)).
		AddJob(JobWikipediaETL, "Fetch, validate, clean and store pages",
			StepFetchRawPages, StepValidatePages, StepCleanAndProcess, StepStorePages).
		AddJob(JobFilterPages, "Fetch, validate, clean, filter and store filtered pages",
			StepFetchRawPages, StepValidatePages, StepCleanAndProcess, StepFilterPages, StepStoreFilteredPages).
		AddJob(JobFullPipeline, "Run every step",
			StepFetchRawPages, StepValidatePages, StepCleanAndProcess, StepStorePages, StepFilterPages, StepStoreFilteredPages).
		AddJob(JobValidation, "Fetch and validate pages only",
			StepFetchRawPages, StepValidatePages).
		Build()
}

type pageAssets struct {
	deps   Deps
	logger *slog.Logger
}

func (a *pageAssets) fetchRawPages(ctx context.Context, _ Inputs) (model.Batch, model.Metadata, error) {
	raw, err := a.deps.Source.Fetch(ctx)
	if err != nil {
		if !errors.Is(err, ErrSourceUnavailable) {
			err = Wrap(ErrSourceUnavailable, StepFetchRawPages, "fetch", err)
		}
		return model.Batch{}, nil, err
	}

	titles := make([]string, 0, len(raw))
	for _, rec := range raw {
		if title, ok := utils.ToString(rec[model.ColumnTitle]); ok {
			titles = append(titles, title)
		}
	}
	return model.NewRawBatch(raw), model.Metadata{
		"num_records": model.Count(len(raw)),
		"source":      model.URL(a.deps.Source.Describe()),
		"preview":     model.Text(model.Preview(titles, previewSize)),
	}, nil
}

func (a *pageAssets) validatePages(_ context.Context, in Inputs) (model.Batch, model.Metadata, error) {
	raw, err := in.Get(StepFetchRawPages)
	if err != nil {
		return model.Batch{}, nil, err
	}
	batch, report, err := a.deps.Schema.Validate(raw.Raw)
	if err != nil {
		return model.Batch{}, nil, err
	}
	if report.DroppedInvalid > 0 || report.DroppedDuplicates > 0 {
		a.logger.Info("records dropped during validation",
			logging.Int("dropped_invalid", report.DroppedInvalid),
			logging.Int("dropped_duplicates", report.DroppedDuplicates),
		)
	}
	return batch, report.Metadata(), nil
}

func (a *pageAssets) cleanAndProcess(_ context.Context, in Inputs) (model.Batch, model.Metadata, error) {
	validated, err := in.Get(StepValidatePages)
	if err != nil {
		return model.Batch{}, nil, err
	}
	batch, report := a.deps.Processor.CleanAndProcess(validated)
	meta := report.Metadata()
	meta["preview"] = model.Text(model.Preview(batch.Titles(), previewSize))
	return batch, meta, nil
}

func (a *pageAssets) filterPages(_ context.Context, in Inputs) (model.Batch, model.Metadata, error) {
	processed, err := in.Get(StepCleanAndProcess)
	if err != nil {
		return model.Batch{}, nil, err
	}
	batch, report := FilterByCriteria(processed, a.deps.Criteria)
	if report.Fallback {
		a.logger.Info("filter matched nothing, passing all pages through",
			logging.String("criteria", report.Criteria),
			logging.Int(logging.FieldRows, report.OutputRows),
		)
	}
	meta := report.Metadata()
	meta["preview"] = model.Text(model.Preview(batch.Titles(), previewSize))
	return batch, meta, nil
}

func (a *pageAssets) storePages(ctx context.Context, in Inputs) (model.Batch, model.Metadata, error) {
	return a.store(ctx, in, StepCleanAndProcess, a.deps.PagesPath)
}

func (a *pageAssets) storeFilteredPages(ctx context.Context, in Inputs) (model.Batch, model.Metadata, error) {
	return a.store(ctx, in, StepFilterPages, a.deps.FilteredPath)
}

func (a *pageAssets) store(ctx context.Context, in Inputs, upstream, destination string) (model.Batch, model.Metadata, error) {
	batch, err := in.Get(upstream)
	if err != nil {
		return model.Batch{}, nil, err
	}
	if err := a.deps.Sink.Write(ctx, batch, destination); err != nil {
		return model.Batch{}, nil, err
	}

	result := ExportResult{
		Type:        fileType(destination),
		Path:        destination,
		RecordCount: len(batch.Records),
		ExportedAt:  time.Now().UTC(),
	}
	meta := model.Metadata{
		"file_path":     model.Path(result.Path),
		"records_saved": model.Count(result.RecordCount),
		"format":        model.Text(result.Type),
	}
	if size := utils.NewOutputManager(filepath.Dir(destination)).GetFileSize(destination); size >= 0 {
		meta["file_size"] = model.Count(int(size))
	}
	a.logger.Info("pages exported",
		logging.String("path", result.Path),
		logging.Int(logging.FieldRows, result.RecordCount),
	)
	return batch, meta, nil
}
