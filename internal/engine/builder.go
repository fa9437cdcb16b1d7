package engine

import (
	"github.com/alexisbeaulieu97/dft/internal/config"
)

// BuildPipelineGraph constructs the inter-pipeline DAG from depends_on
// declarations. References to unknown pipelines must have been rejected by
// validation before this is called.
func BuildPipelineGraph(pipelines []*config.Pipeline) (*Graph, error) {
	graph := NewGraph("pipeline graph")

	for _, pipeline := range pipelines {
		if err := graph.AddNode(pipeline.Name); err != nil {
			return nil, err
		}
	}

	for _, pipeline := range pipelines {
		for _, upstream := range pipeline.DependsOn {
			if err := graph.AddEdge(upstream, pipeline.Name); err != nil {
				return nil, err
			}
		}
	}

	return graph, nil
}

// BuildStepGraph constructs one pipeline's intra-pipeline step DAG.
func BuildStepGraph(pipeline *config.Pipeline) (*Graph, error) {
	graph := NewGraph("step graph of " + pipeline.Name)

	for _, step := range pipeline.Steps {
		if err := graph.AddNode(step.ID); err != nil {
			return nil, err
		}
	}

	for _, step := range pipeline.Steps {
		for _, upstream := range step.DependsOn {
			if err := graph.AddEdge(upstream, step.ID); err != nil {
				return nil, err
			}
		}
	}

	return graph, nil
}
