package pipeline

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"wiki-data-pipeline/internal/model"
)

func noop(context.Context, Inputs) (model.Batch, model.Metadata, error) {
	return model.NewBatch(nil), nil, nil
}

func TestBuildRejectsBadGraphs(t *testing.T) {
	tests := []struct {
		name  string
		build func() *Builder
	}{
		{"cycle", func() *Builder {
			return NewBuilder().
				AddStep("a", []string{"c"}, noop, "").
				AddStep("b", []string{"a"}, noop, "").
				AddStep("c", []string{"b"}, noop, "")
		}},
		{"dangling upstream", func() *Builder {
			return NewBuilder().AddStep("a", []string{"missing"}, noop, "")
		}},
		{"self dependency", func() *Builder {
			return NewBuilder().AddStep("a", []string{"a"}, noop, "")
		}},
		{"duplicate step", func() *Builder {
			return NewBuilder().AddStep("a", nil, noop, "").AddStep("a", nil, noop, "")
		}},
		{"nil function", func() *Builder {
			return NewBuilder().AddStep("a", nil, nil, "")
		}},
		{"job with unknown step", func() *Builder {
			return NewBuilder().AddStep("a", nil, noop, "").AddJob("j", "", "a", "b")
		}},
		{"job missing upstream", func() *Builder {
			return NewBuilder().
				AddStep("a", nil, noop, "").
				AddStep("b", []string{"a"}, noop, "").
				AddJob("j", "", "b")
		}},
		{"disconnected job", func() *Builder {
			return NewBuilder().
				AddStep("a", nil, noop, "").
				AddStep("b", nil, noop, "").
				AddJob("j", "", "a", "b")
		}},
		{"empty job", func() *Builder {
			return NewBuilder().AddStep("a", nil, noop, "").AddJob("j", "")
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.build().Build()
			if !errors.Is(err, ErrGraphDefinition) {
				t.Fatalf("Build error = %v, want ErrGraphDefinition", err)
			}
			if KindOf(err) != KindGraphDefinition {
				t.Fatalf("KindOf = %s", KindOf(err))
			}
		})
	}
}

func TestPlanOrdersByDependencyThenDeclaration(t *testing.T) {
	// Declared out of dependency order: "load" comes before its upstream.
	g, err := NewBuilder().
		AddStep("load", []string{"extract"}, noop, "").
		AddStep("audit", []string{"extract"}, noop, "").
		AddStep("extract", nil, noop, "").
		AddStep("report", []string{"load", "audit"}, noop, "").
		AddJob("all", "", "report", "audit", "load", "extract").
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	plan, err := g.Plan("all")
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	want := []string{"extract", "load", "audit", "report"}
	if !reflect.DeepEqual(plan, want) {
		t.Fatalf("plan = %v, want %v", plan, want)
	}

	if _, err := g.Plan("nope"); !errors.Is(err, ErrUnknownJob) {
		t.Fatalf("unknown job error = %v", err)
	}
	if got := g.JobNames(); !reflect.DeepEqual(got, []string{"all"}) {
		t.Fatalf("JobNames = %v", got)
	}
}

func TestPageGraphJobs(t *testing.T) {
	g, err := NewGraph(Deps{Source: &stubSource{}, Sink: &memorySink{}, PagesPath: "p.csv", FilteredPath: "f.csv"})
	if err != nil {
		t.Fatalf("NewGraph: %v", err)
	}
	tests := map[string][]string{
		JobWikipediaETL: {StepFetchRawPages, StepValidatePages, StepCleanAndProcess, StepStorePages},
		JobFilterPages:  {StepFetchRawPages, StepValidatePages, StepCleanAndProcess, StepFilterPages, StepStoreFilteredPages},
		JobFullPipeline: {StepFetchRawPages, StepValidatePages, StepCleanAndProcess, StepStorePages, StepFilterPages, StepStoreFilteredPages},
		JobValidation:   {StepFetchRawPages, StepValidatePages},
	}
	for job, want := range tests {
		plan, err := g.Plan(job)
		if err != nil {
			t.Fatalf("Plan(%s): %v", job, err)
		}
		if !reflect.DeepEqual(plan, want) {
			t.Errorf("Plan(%s) = %v, want %v", job, plan, want)
		}
	}

	if _, err := NewGraph(Deps{Sink: &memorySink{}}); !errors.Is(err, ErrGraphDefinition) {
		t.Fatalf("missing source error = %v", err)
	}
}

func TestGraphAccessorsReturnCopies(t *testing.T) {
	var got []string
	g, err := NewBuilder().
		AddStep("a", nil, noop, "").
		AddStep("b", []string{"a"}, func(_ context.Context, in Inputs) (model.Batch, model.Metadata, error) {
			for name := range in {
				got = append(got, name)
			}
			return model.Batch{}, nil, nil
		}, "").
		AddJob("j", "", "a", "b").
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	step, _ := g.Step("b")
	step.Upstreams[0] = "zzz"
	for _, s := range g.Steps() {
		if len(s.Upstreams) > 0 {
			s.Upstreams[0] = "zzz"
		}
	}
	job, _ := g.Job("j")
	job.Steps[0] = "zzz"
	for _, j := range g.Jobs() {
		j.Steps[1] = "zzz"
	}

	if step, _ := g.Step("b"); !reflect.DeepEqual(step.Upstreams, []string{"a"}) {
		t.Fatalf("upstreams = %v, want [a]", step.Upstreams)
	}
	if job, _ := g.Job("j"); !reflect.DeepEqual(job.Steps, []string{"a", "b"}) {
		t.Fatalf("job steps = %v, want [a b]", job.Steps)
	}
	if _, err := NewRunner(g, nil, nil).RunJob(context.Background(), "j"); err != nil {
		t.Fatalf("RunJob: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"a"}) {
		t.Fatalf("b received %v, want [a]", got)
	}
}
