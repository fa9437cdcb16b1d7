package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/alexisbeaulieu97/dft/internal/component"
	"github.com/alexisbeaulieu97/dft/internal/config"
	"github.com/alexisbeaulieu97/dft/internal/logger"
	"github.com/alexisbeaulieu97/dft/internal/state"
	"github.com/alexisbeaulieu97/dft/internal/template"
	dfterrors "github.com/alexisbeaulieu97/dft/pkg/errors"
)

// PipelineResult is one pipeline's outcome in a run summary.
type PipelineResult struct {
	Name    string
	Status  string
	Windows int
	Err     error
}

// Summary aggregates an invocation's per-pipeline outcomes.
type Summary struct {
	RunID   string
	Results []PipelineResult
}

// Counts tallies results per status.
func (s *Summary) Counts() (success, failure, skipped int) {
	for _, r := range s.Results {
		switch r.Status {
		case state.StatusSuccess:
			success++
		case state.StatusFailure:
			failure++
		case state.StatusSkipped:
			skipped++
		}
	}
	return success, failure, skipped
}

// Failed reports whether any pipeline failed or was skipped; skips count as
// failures for the exit code.
func (s *Summary) Failed() bool {
	_, failure, skipped := s.Counts()
	return failure > 0 || skipped > 0
}

// Orchestrator is the top-level control loop: validate, select, order, run
// pipelines, propagate skips, update state.
type Orchestrator struct {
	Project   *config.Project
	Pipelines []*config.Pipeline
	Factory   *component.Factory
	Store     *state.Store
	Log       *logger.Logger

	// Now is injectable for deterministic plans in tests.
	Now func() time.Time

	// Overrides holds --vars key=value pairs, the highest context layer.
	Overrides map[string]any

	FullRefresh bool
	RunID       string
}

// Validate aggregates every structural problem: cross-document references,
// unknown component types, and cycles at both graph levels.
func (o *Orchestrator) Validate() []error {
	crossErrs := config.CrossValidate(o.Project, o.Pipelines)
	errs := append([]error(nil), crossErrs...)

	for _, pipeline := range o.Pipelines {
		for _, step := range pipeline.Steps {
			if step.ComponentType == "" {
				continue
			}
			if !o.Factory.Knows(step.Kind, step.ComponentType) {
				errs = append(errs, dfterrors.NewDependencyError(
					pipeline.Name,
					"steps."+step.ID,
					fmt.Sprintf("unknown %s type %q", step.Kind, step.ComponentType),
				))
			}
		}

		stepGraph, err := BuildStepGraph(pipeline)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := stepGraph.CycleCheck(); err != nil {
			errs = append(errs, err)
		}
	}

	// Cross-pipeline references must resolve before the graph can be built.
	if len(crossErrs) == 0 {
		graph, err := BuildPipelineGraph(o.Pipelines)
		if err != nil {
			errs = append(errs, err)
		} else if err := graph.CycleCheck(); err != nil {
			errs = append(errs, err)
		}
	}

	return errs
}

// Run validates, selects, and executes pipelines in dependency order. The
// returned error is non-nil only for pre-run failures (validation, selector);
// per-pipeline failures land in the summary.
func (o *Orchestrator) Run(ctx context.Context, include, exclude []string) (*Summary, error) {
	if errs := o.Validate(); len(errs) > 0 {
		return nil, validationReport(errs)
	}

	graph, err := BuildPipelineGraph(o.Pipelines)
	if err != nil {
		return nil, err
	}

	selected, err := NewSelector(graph, o.Pipelines).Select(include, exclude)
	if err != nil {
		return nil, err
	}

	byName := config.PipelineMap(o.Pipelines)
	summary := &Summary{RunID: o.RunID}
	failed := make(map[string]bool)

	for _, name := range selected {
		pipeline := byName[name]

		if upstream := failedAncestor(graph, name, failed); upstream != "" {
			o.Log.WithFields(map[string]any{"pipeline": name, "upstream": upstream}).Warn("skipping pipeline, upstream failed")
			o.recordTerminal(name, state.StatusSkipped)
			summary.Results = append(summary.Results, PipelineResult{Name: name, Status: state.StatusSkipped})
			failed[name] = true
			continue
		}

		if err := ctx.Err(); err != nil {
			o.recordTerminal(name, state.StatusSkipped)
			summary.Results = append(summary.Results, PipelineResult{Name: name, Status: state.StatusSkipped, Err: err})
			failed[name] = true
			continue
		}

		result := o.runPipeline(ctx, pipeline)
		if result.Status != state.StatusSuccess {
			failed[name] = true
		}
		summary.Results = append(summary.Results, result)
	}

	return summary, nil
}

// runPipeline plans and executes one pipeline, updating its state after
// every successful plan entry.
func (o *Orchestrator) runPipeline(ctx context.Context, pipeline *config.Pipeline) PipelineResult {
	log := o.Log.WithFields(map[string]any{"pipeline": pipeline.Name})

	pipelineState, err := o.Store.Load(pipeline.Name)
	if err != nil {
		log.Error(err, "failed to load state")
		return PipelineResult{Name: pipeline.Name, Status: state.StatusFailure, Err: err}
	}

	planner := &Planner{Now: o.now, FullRefresh: o.FullRefresh}
	plan, err := planner.BuildPlan(pipeline, pipelineState)
	if err != nil {
		log.Error(err, "failed to build execution plan")
		o.recordTerminal(pipeline.Name, state.StatusFailure)
		return PipelineResult{Name: pipeline.Name, Status: state.StatusFailure, Err: err}
	}

	log.WithFields(map[string]any{"strategy": plan.Strategy, "entries": len(plan.Entries)}).Info("running pipeline")

	baseCtx, err := o.baseContext(pipeline, pipelineState)
	if err != nil {
		log.Error(err, "failed to render pipeline variables")
		o.recordTerminal(pipeline.Name, state.StatusFailure)
		return PipelineResult{Name: pipeline.Name, Status: state.StatusFailure, Err: err}
	}
	runner := &Runner{Project: o.Project, Factory: o.Factory, Log: o.Log}

	completed := 0
	for _, entry := range plan.Entries {
		if err := ctx.Err(); err != nil {
			o.recordTerminal(pipeline.Name, state.StatusFailure)
			return PipelineResult{Name: pipeline.Name, Status: state.StatusFailure, Windows: completed, Err: err}
		}

		tctx := entryContext(baseCtx, entry, o.Overrides)

		if err := runner.Run(ctx, pipeline, tctx); err != nil {
			log.Error(err, "pipeline entry failed")
			o.recordTerminal(pipeline.Name, state.StatusFailure)
			return PipelineResult{Name: pipeline.Name, Status: state.StatusFailure, Windows: completed, Err: err}
		}

		if entry.Window != nil {
			if err := o.advanceCursor(pipeline.Name, entry.Window.End); err != nil {
				log.Error(err, "failed to advance cursor")
				return PipelineResult{Name: pipeline.Name, Status: state.StatusFailure, Windows: completed, Err: err}
			}
		}
		completed++
	}

	if plan.Strategy == StrategyFull {
		today := truncateToDay(o.now())
		if err := o.Store.Update(pipeline.Name, map[string]any{
			state.KeyLastProcessedDate: today.Format("2006-01-02"),
		}); err != nil {
			return PipelineResult{Name: pipeline.Name, Status: state.StatusFailure, Err: err}
		}
	}

	o.recordTerminal(pipeline.Name, state.StatusSuccess)
	return PipelineResult{Name: pipeline.Name, Status: state.StatusSuccess, Windows: completed}
}

// baseContext assembles the layered variable context up to the pipeline
// scope. Project and pipeline variables are rendered before they are
// pushed, each against the layers below it, so a declaration like
// `start_date: "{{ yesterday() }}"` is a computed date by the time a step
// references it. Batch and override layers stack per plan entry.
func (o *Orchestrator) baseContext(pipeline *config.Pipeline, pipelineState map[string]any) (*template.Context, error) {
	builtins := map[string]any{
		"project_name":  o.Project.ProjectName,
		"pipeline_name": pipeline.Name,
		"run_id":        o.RunID,
	}

	ctx := template.NewContext().
		WithClock(o.now).
		WithState(state.NewReader(pipelineState))
	ctx = ctx.Push(template.LayerBuiltin, builtins)
	if len(o.Project.Variables) > 0 {
		rendered, err := template.RenderMap(o.Project.Variables, ctx)
		if err != nil {
			return nil, err
		}
		ctx = ctx.Push(template.LayerProject, rendered)
	}
	if len(pipeline.Variables) > 0 {
		rendered, err := template.RenderMap(pipeline.Variables, ctx)
		if err != nil {
			return nil, err
		}
		ctx = ctx.Push(template.LayerPipeline, rendered)
	}
	return ctx, nil
}

// entryContext stacks the batch window layer (for microbatch entries) and
// the command-line override layer on top of the base context.
func entryContext(base *template.Context, entry PlanEntry, overrides map[string]any) *template.Context {
	ctx := base
	if w := entry.Window; w != nil {
		ctx = ctx.Push(template.LayerBatch, map[string]any{
			"batch_start":       template.NewTimestamp(w.Start),
			"batch_end":         template.NewTimestamp(w.End),
			"batch_period":      w.Period,
			"event_time_column": w.EventTimeColumn,
			"batch_start_time":  w.Start,
			"batch_end_time":    w.End,
		})
	}
	if len(overrides) > 0 {
		ctx = ctx.Push(template.LayerOverride, overrides)
	}
	return ctx
}

// advanceCursor moves the microbatch cursor to the window end. The cursor
// never regresses: a lookback window ending at or before the stored cursor
// leaves it unchanged.
func (o *Orchestrator) advanceCursor(pipeline string, end time.Time) error {
	current, err := o.Store.Load(pipeline)
	if err != nil {
		return err
	}
	if cursor, ok, err := cursorFromState(pipeline, current, end.Location()); err == nil && ok && !end.After(cursor) {
		return nil
	}
	return o.Store.Update(pipeline, map[string]any{
		state.KeyLastProcessedTimestamp: template.NewTimestamp(end).ISOFormat(),
		state.KeyLastProcessedDate:      end.Format("2006-01-02"),
	})
}

// recordTerminal writes the run's terminal status keys. Cursor keys are
// never touched here.
func (o *Orchestrator) recordTerminal(pipeline, status string) {
	err := o.Store.Update(pipeline, map[string]any{
		state.KeyLastStatus: status,
		state.KeyLastRunAt:  template.NewTimestamp(o.now()).ISOFormat(),
		state.KeyLastRunID:  o.RunID,
	})
	if err != nil {
		o.Log.Error(err, "failed to record pipeline status")
	}
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// failedAncestor returns the first upstream pipeline of name that failed in
// this invocation, or "".
func failedAncestor(graph *Graph, name string, failed map[string]bool) string {
	for _, ancestor := range graph.Ancestors(name) {
		if failed[ancestor] {
			return ancestor
		}
	}
	return ""
}

func validationReport(errs []error) error {
	report := ""
	for i, err := range errs {
		if i > 0 {
			report += "\n"
		}
		report += err.Error()
	}
	return fmt.Errorf("validation failed with %d issue(s):\n%s", len(errs), report)
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
