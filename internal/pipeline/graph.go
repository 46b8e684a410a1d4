package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"wiki-data-pipeline/internal/model"
)

// StepFunc produces a step's output from the outputs of its upstreams.
type StepFunc func(ctx context.Context, in Inputs) (model.Batch, model.Metadata, error)

// Inputs holds the materialized outputs of a step's declared upstreams,
// keyed by step name.
type Inputs map[string]model.Batch

// Get returns the output of the named upstream.
func (in Inputs) Get(name string) (model.Batch, error) {
	batch, ok := in[name]
	if !ok {
		return model.Batch{}, fmt.Errorf("upstream %q not provided", name)
	}
	return batch, nil
}

// Step is a named unit of work.
type Step struct {
	Name        string
	Upstreams   []string
	Description string
	Fn          StepFunc

	order int
}

// Job is a named connected subset of steps, the unit of invocation.
type Job struct {
	Name        string
	Description string
	Steps       []string

	plan []string
}

// Plan returns the job's steps in execution order.
func (j Job) Plan() []string {
	return append([]string(nil), j.plan...)
}

func (s Step) clone() Step {
	s.Upstreams = append([]string(nil), s.Upstreams...)
	return s
}

func (j Job) clone() Job {
	j.Steps = append([]string(nil), j.Steps...)
	j.plan = append([]string(nil), j.plan...)
	return j
}

// Graph is the validated, immutable set of steps and jobs.
type Graph struct {
	steps    map[string]Step
	order    []string
	jobs     map[string]Job
	jobOrder []string
}

// Builder collects step and job declarations. Errors are reported by Build.
type Builder struct {
	steps []Step
	jobs  []Job
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// AddStep declares a step. Declaration order breaks ties when ordering.
func (b *Builder) AddStep(name string, upstreams []string, fn StepFunc, description string) *Builder {
	b.steps = append(b.steps, Step{
		Name:        name,
		Upstreams:   append([]string(nil), upstreams...),
		Description: description,
		Fn:          fn,
		order:       len(b.steps),
	})
	return b
}

// AddJob declares a job over previously or subsequently added steps.
func (b *Builder) AddJob(name, description string, steps ...string) *Builder {
	b.jobs = append(b.jobs, Job{
		Name:        name,
		Description: description,
		Steps:       append([]string(nil), steps...),
	})
	return b
}

// Build validates the declarations and resolves every job's plan.
func (b *Builder) Build() (*Graph, error) {
	g := &Graph{
		steps: make(map[string]Step, len(b.steps)),
		jobs:  make(map[string]Job, len(b.jobs)),
	}

	for _, step := range b.steps {
		if strings.TrimSpace(step.Name) == "" {
			return nil, graphError("step at position %d has no name", step.order)
		}
		if _, dup := g.steps[step.Name]; dup {
			return nil, graphError("step %q declared more than once", step.Name)
		}
		if step.Fn == nil {
			return nil, graphError("step %q has no function", step.Name)
		}
		g.steps[step.Name] = step
		g.order = append(g.order, step.Name)
	}

	for _, step := range b.steps {
		seen := make(map[string]struct{}, len(step.Upstreams))
		for _, up := range step.Upstreams {
			if up == step.Name {
				return nil, graphError("step %q depends on itself", step.Name)
			}
			if _, ok := g.steps[up]; !ok {
				return nil, graphError("step %q depends on unknown step %q", step.Name, up)
			}
			if _, dup := seen[up]; dup {
				return nil, graphError("step %q lists upstream %q twice", step.Name, up)
			}
			seen[up] = struct{}{}
		}
	}

	if _, err := g.topoOrder(g.order); err != nil {
		return nil, err
	}

	for _, job := range b.jobs {
		if strings.TrimSpace(job.Name) == "" {
			return nil, graphError("job has no name")
		}
		if _, dup := g.jobs[job.Name]; dup {
			return nil, graphError("job %q declared more than once", job.Name)
		}
		plan, err := g.resolveJob(job)
		if err != nil {
			return nil, err
		}
		job.plan = plan
		g.jobs[job.Name] = job
		g.jobOrder = append(g.jobOrder, job.Name)
	}

	return g, nil
}

func (g *Graph) resolveJob(job Job) ([]string, error) {
	if len(job.Steps) == 0 {
		return nil, graphError("job %q has no steps", job.Name)
	}

	members := make(map[string]struct{}, len(job.Steps))
	for _, name := range job.Steps {
		if _, ok := g.steps[name]; !ok {
			return nil, graphError("job %q references unknown step %q", job.Name, name)
		}
		if _, dup := members[name]; dup {
			return nil, graphError("job %q lists step %q twice", job.Name, name)
		}
		members[name] = struct{}{}
	}

	for _, name := range job.Steps {
		for _, up := range g.steps[name].Upstreams {
			if _, ok := members[up]; !ok {
				return nil, graphError("job %q includes %q but not its upstream %q", job.Name, name, up)
			}
		}
	}

	if !g.connected(job.Steps, members) {
		return nil, graphError("job %q is not a connected sub-graph", job.Name)
	}

	return g.topoOrder(job.Steps)
}

// topoOrder sorts names so that every step follows its upstreams. Among
// ready steps the earliest declared goes first.
func (g *Graph) topoOrder(names []string) ([]string, error) {
	members := make(map[string]struct{}, len(names))
	for _, name := range names {
		members[name] = struct{}{}
	}

	indegree := make(map[string]int, len(names))
	downstream := make(map[string][]string, len(names))
	for _, name := range names {
		indegree[name] += 0
		for _, up := range g.steps[name].Upstreams {
			if _, ok := members[up]; !ok {
				continue
			}
			indegree[name]++
			downstream[up] = append(downstream[up], name)
		}
	}

	var ready []string
	for _, name := range names {
		if indegree[name] == 0 {
			ready = append(ready, name)
		}
	}

	plan := make([]string, 0, len(names))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool {
			return g.steps[ready[i]].order < g.steps[ready[j]].order
		})
		next := ready[0]
		ready = ready[1:]
		plan = append(plan, next)
		for _, down := range downstream[next] {
			indegree[down]--
			if indegree[down] == 0 {
				ready = append(ready, down)
			}
		}
	}

	if len(plan) != len(names) {
		var stuck []string
		for _, name := range names {
			if indegree[name] > 0 {
				stuck = append(stuck, name)
			}
		}
		return nil, graphError("dependency cycle among steps %s", strings.Join(stuck, ", "))
	}
	return plan, nil
}

// connected reports whether the steps form one weakly connected component.
func (g *Graph) connected(names []string, members map[string]struct{}) bool {
	adjacent := make(map[string][]string, len(names))
	for _, name := range names {
		for _, up := range g.steps[name].Upstreams {
			if _, ok := members[up]; ok {
				adjacent[name] = append(adjacent[name], up)
				adjacent[up] = append(adjacent[up], name)
			}
		}
	}

	visited := map[string]struct{}{names[0]: {}}
	queue := []string{names[0]}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range adjacent[cur] {
			if _, ok := visited[next]; ok {
				continue
			}
			visited[next] = struct{}{}
			queue = append(queue, next)
		}
	}
	return len(visited) == len(names)
}

func graphError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrGraphDefinition, fmt.Sprintf(format, args...))
}

// Step returns a copy of the named step.
func (g *Graph) Step(name string) (Step, bool) {
	step, ok := g.steps[name]
	return step.clone(), ok
}

// Steps returns all steps in declaration order.
func (g *Graph) Steps() []Step {
	out := make([]Step, 0, len(g.order))
	for _, name := range g.order {
		out = append(out, g.steps[name].clone())
	}
	return out
}

// Job returns a copy of the named job.
func (g *Graph) Job(name string) (Job, bool) {
	job, ok := g.jobs[name]
	return job.clone(), ok
}

// Jobs returns all jobs in declaration order.
func (g *Graph) Jobs() []Job {
	out := make([]Job, 0, len(g.jobOrder))
	for _, name := range g.jobOrder {
		out = append(out, g.jobs[name].clone())
	}
	return out
}

// JobNames returns the registered job names in declaration order.
func (g *Graph) JobNames() []string {
	return append([]string(nil), g.jobOrder...)
}

// Plan returns the execution order of the named job.
func (g *Graph) Plan(jobName string) ([]string, error) {
	job, ok := g.jobs[jobName]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %s)", ErrUnknownJob, jobName, strings.Join(g.jobOrder, ", "))
	}
	return job.Plan(), nil
}
