package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"wiki-data-pipeline/internal/config"
	"wiki-data-pipeline/internal/model"
	"wiki-data-pipeline/internal/pipeline"
)

func fileConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	input := filepath.Join(dir, "pages.json")
	payload := `{"data": [
		{"pageid": 1, "title": "List of rivers"},
		{"pageid": 2, "title": "  Zebra  "},
		{"pageid": 2, "title": "Zebra duplicate"},
		{"pageid": 3, "title": ""}
	]}`
	if err := os.WriteFile(input, []byte(payload), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Source.Kind = "file"
	cfg.Source.Path = input
	cfg.Output.Dir = filepath.Join(dir, "out")
	cfg.Output.SQLiteMirror = true
	cfg.Store.Path = filepath.Join(dir, "pipeline.db")
	return &cfg
}

func TestNewRunsFullPipelineFromFile(t *testing.T) {
	cfg := fileConfig(t)
	a, err := New(context.Background(), cfg, nil, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	if got := len(a.Graph.Jobs()); got != 4 {
		t.Fatalf("jobs = %d, want 4", got)
	}

	result, err := a.Runner.RunJob(context.Background(), pipeline.JobFullPipeline)
	if err != nil {
		t.Fatalf("RunJob: %v", err)
	}

	processed, ok := result.Output(pipeline.StepCleanAndProcess)
	if !ok || len(processed.Records) != 2 {
		t.Fatalf("processed output missing: %+v", processed)
	}
	for _, rec := range processed.Records {
		if rec.Source != pipeline.DefaultSource {
			t.Fatalf("source = %q, want %q", rec.Source, pipeline.DefaultSource)
		}
	}

	pages, err := os.ReadFile(cfg.PagesPath())
	if err != nil {
		t.Fatalf("pages artifact: %v", err)
	}
	if lines := strings.Count(string(pages), "\n"); lines != 3 {
		t.Fatalf("pages.csv has %d lines, want header + 2 rows:\n%s", lines, pages)
	}
	filtered, err := os.ReadFile(cfg.FilteredPath())
	if err != nil {
		t.Fatalf("filtered artifact: %v", err)
	}
	if !strings.Contains(string(filtered), "List of rivers") || strings.Contains(string(filtered), "Zebra") {
		t.Fatalf("unexpected filtered output:\n%s", filtered)
	}

	run, err := a.Store.GetRun(context.Background(), result.RunID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != model.RunSucceeded {
		t.Fatalf("stored status %s", run.Status)
	}
	mirrored, err := a.Store.ListPages(context.Background(), filepath.Base(cfg.PagesPath()))
	if err != nil {
		t.Fatalf("ListPages: %v", err)
	}
	if len(mirrored) != 2 {
		t.Fatalf("mirrored %d pages, want 2", len(mirrored))
	}
}

func TestNewWithoutStore(t *testing.T) {
	cfg := fileConfig(t)
	a, err := New(context.Background(), cfg, nil, Options{WithoutStore: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.Store != nil {
		t.Fatal("store opened for WithoutStore")
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(cfg.Store.Path); !os.IsNotExist(err) {
		t.Fatalf("history database created: %v", err)
	}
}

func TestNewSourceKinds(t *testing.T) {
	cfg := config.Default()
	tests := []struct {
		kind    string
		want    string
		wantErr bool
	}{
		{"wikipedia", "*pipeline.WikipediaSource", false},
		{"generic", "*pipeline.GenericAPISource", false},
		{"file", "*pipeline.FileSource", false},
		{"ftp", "", true},
	}
	for _, tt := range tests {
		cfg.Source.Kind = tt.kind
		src, err := NewSource(&cfg, nil)
		if tt.wantErr {
			if err == nil {
				t.Errorf("%s: expected error", tt.kind)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: %v", tt.kind, err)
			continue
		}
		if got := typeName(src); got != tt.want {
			t.Errorf("%s: source type %s, want %s", tt.kind, got, tt.want)
		}
	}
}

func typeName(src pipeline.Source) string {
	switch src.(type) {
	case *pipeline.WikipediaSource:
		return "*pipeline.WikipediaSource"
	case *pipeline.GenericAPISource:
		return "*pipeline.GenericAPISource"
	case *pipeline.FileSource:
		return "*pipeline.FileSource"
	default:
		return "unknown"
	}
}
