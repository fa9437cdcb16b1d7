package engine

import (
	"fmt"
	"strings"

	"github.com/alexisbeaulieu97/dft/internal/config"
	dfterrors "github.com/alexisbeaulieu97/dft/pkg/errors"
)

// Selector resolves dbt-style selection expressions against the pipeline
// graph. Grammar per atom: an optional leading '+' (upstream closure), a
// body that is either a pipeline name or tag:<name>, and an optional
// trailing '+' (downstream closure). Atoms join by ',' as set union.
type Selector struct {
	graph     *Graph
	pipelines map[string]*config.Pipeline
}

// NewSelector creates a selector over the loaded pipelines and their graph.
func NewSelector(graph *Graph, pipelines []*config.Pipeline) *Selector {
	return &Selector{graph: graph, pipelines: config.PipelineMap(pipelines)}
}

// Select resolves the include and exclude expression lists to the final
// pipeline list, ordered topologically (not in selection order). An empty
// include list means all pipelines.
func (s *Selector) Select(include, exclude []string) ([]string, error) {
	var included map[string]struct{}

	if len(include) == 0 {
		included = make(map[string]struct{}, len(s.pipelines))
		for name := range s.pipelines {
			included[name] = struct{}{}
		}
	} else {
		included = make(map[string]struct{})
		for _, expr := range include {
			set, err := s.resolve(expr)
			if err != nil {
				return nil, err
			}
			for name := range set {
				included[name] = struct{}{}
			}
		}
	}

	for _, expr := range exclude {
		set, err := s.resolve(expr)
		if err != nil {
			return nil, err
		}
		for name := range set {
			delete(included, name)
		}
	}

	order, err := s.graph.TopologicalOrder()
	if err != nil {
		return nil, err
	}

	var out []string
	for _, name := range order {
		if _, ok := included[name]; ok {
			out = append(out, name)
		}
	}
	return out, nil
}

// resolve evaluates one selector expression, which may contain several
// comma-joined atoms.
func (s *Selector) resolve(expr string) (map[string]struct{}, error) {
	result := make(map[string]struct{})

	for _, atom := range strings.Split(expr, ",") {
		atom = strings.TrimSpace(atom)
		if atom == "" {
			return nil, dfterrors.NewSelectorError(expr, "empty selector atom")
		}

		set, err := s.resolveAtom(expr, atom)
		if err != nil {
			return nil, err
		}
		for name := range set {
			result[name] = struct{}{}
		}
	}

	return result, nil
}

func (s *Selector) resolveAtom(expr, atom string) (map[string]struct{}, error) {
	upstream := strings.HasPrefix(atom, "+")
	body := strings.TrimPrefix(atom, "+")
	downstream := strings.HasSuffix(body, "+")
	body = strings.TrimSuffix(body, "+")

	if body == "" || strings.ContainsAny(body, "+ ") {
		return nil, dfterrors.NewSelectorError(expr, fmt.Sprintf("malformed atom %q", atom))
	}

	var seeds []string
	if tag, ok := strings.CutPrefix(body, "tag:"); ok {
		if tag == "" {
			return nil, dfterrors.NewSelectorError(expr, "empty tag name")
		}
		for name, pipeline := range s.pipelines {
			if pipeline.HasTag(tag) {
				seeds = append(seeds, name)
			}
		}
		if len(seeds) == 0 {
			return nil, dfterrors.NewSelectorError(expr, fmt.Sprintf("no pipeline has tag %q", tag))
		}
	} else {
		if _, ok := s.pipelines[body]; !ok {
			return nil, dfterrors.NewSelectorError(expr, fmt.Sprintf("unknown pipeline %q", body))
		}
		seeds = []string{body}
	}

	set := make(map[string]struct{})
	for _, seed := range seeds {
		set[seed] = struct{}{}
		if upstream {
			for _, name := range s.graph.Ancestors(seed) {
				set[name] = struct{}{}
			}
		}
		if downstream {
			for _, name := range s.graph.Descendants(seed) {
				set[name] = struct{}{}
			}
		}
	}

	return set, nil
}
