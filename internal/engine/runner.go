package engine

import (
	"context"
	"fmt"

	"github.com/alexisbeaulieu97/dft/internal/component"
	"github.com/alexisbeaulieu97/dft/internal/config"
	"github.com/alexisbeaulieu97/dft/internal/logger"
	"github.com/alexisbeaulieu97/dft/internal/template"
	dfterrors "github.com/alexisbeaulieu97/dft/pkg/errors"
)

// Runner executes one pipeline's step DAG for one plan entry. Steps run
// sequentially in topological order; packets produced by sources and
// processors are held in memory for the invocation and dropped at its end.
type Runner struct {
	Project *config.Project
	Factory *component.Factory
	Log     *logger.Logger
}

// Run executes every step for one plan entry with the given variable
// context. Any step failure fails the pipeline for this entry.
func (r *Runner) Run(ctx context.Context, pipeline *config.Pipeline, tctx *template.Context) error {
	graph, err := BuildStepGraph(pipeline)
	if err != nil {
		return err
	}

	levels, err := graph.TopologicalLevels()
	if err != nil {
		return err
	}

	levelOf := make(map[string]int)
	var order []string
	for i, level := range levels {
		for _, id := range level {
			levelOf[id] = i
			order = append(order, id)
		}
	}

	steps := config.StepMap(pipeline.Steps)
	packets := make(map[string]*component.Packet, len(order))
	vars := component.Vars(tctx.Flatten())

	for _, stepID := range order {
		if err := ctx.Err(); err != nil {
			return dfterrors.NewComponentError(pipeline.Name, stepID, err)
		}

		step := steps[stepID]
		r.Log.WithFields(map[string]any{"pipeline": pipeline.Name, "step": stepID, "kind": step.Kind}).Debug("executing step")

		switch step.Kind {
		case config.KindSource:
			source, err := r.Factory.NewSource(r.Project, pipeline.Name, step, tctx)
			if err != nil {
				return dfterrors.NewComponentError(pipeline.Name, stepID, err)
			}
			packet, err := source.Extract(ctx, vars)
			if err != nil {
				return dfterrors.NewComponentError(pipeline.Name, stepID, err)
			}
			packets[stepID] = packet

		case config.KindProcessor:
			processor, err := r.Factory.NewProcessor(r.Project, pipeline.Name, step, tctx)
			if err != nil {
				return dfterrors.NewComponentError(pipeline.Name, stepID, err)
			}
			input, err := selectInput(pipeline.Name, step, packets, levelOf)
			if err != nil {
				return err
			}
			packet, err := processor.Process(ctx, input, vars)
			if err != nil {
				return dfterrors.NewComponentError(pipeline.Name, stepID, err)
			}
			packets[stepID] = packet

		case config.KindEndpoint:
			endpoint, err := r.Factory.NewEndpoint(r.Project, pipeline.Name, step, tctx)
			if err != nil {
				return dfterrors.NewComponentError(pipeline.Name, stepID, err)
			}
			input, err := selectInput(pipeline.Name, step, packets, levelOf)
			if err != nil {
				return err
			}
			if err := endpoint.Load(ctx, input, vars); err != nil {
				return dfterrors.NewComponentError(pipeline.Name, stepID, err)
			}

		default:
			return dfterrors.NewComponentError(pipeline.Name, stepID, fmt.Errorf("unknown step kind %q", step.Kind))
		}
	}

	return nil
}

// selectInput picks the single input packet for a processor or endpoint.
// With one producing upstream that packet is the input; with several, the
// latest in topological order wins, ties broken by depends_on position.
func selectInput(pipeline string, step config.Step, packets map[string]*component.Packet, levelOf map[string]int) (*component.Packet, error) {
	chosen := ""
	chosenLevel := -1
	for _, dep := range step.DependsOn {
		if _, ok := packets[dep]; !ok {
			continue
		}
		if levelOf[dep] > chosenLevel {
			chosen = dep
			chosenLevel = levelOf[dep]
		}
	}

	if chosen == "" {
		return nil, dfterrors.NewComponentError(pipeline, step.ID, fmt.Errorf("no upstream packet available"))
	}
	return packets[chosen], nil
}
