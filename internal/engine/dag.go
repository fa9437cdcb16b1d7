package engine

import (
	"fmt"
	"sort"

	dfterrors "github.com/alexisbeaulieu97/dft/pkg/errors"
)

// Graph is a directed acyclic graph over string-keyed nodes. The same
// structure backs both levels of the system: the inter-pipeline graph (nodes
// are pipeline names) and each pipeline's step graph (nodes are step ids).
type Graph struct {
	scope      string
	nodes      map[string]struct{}
	deps       map[string][]string
	dependents map[string][]string
}

// NewGraph creates an empty graph. The scope labels cycle errors
// ("pipeline graph", "step graph of events").
func NewGraph(scope string) *Graph {
	return &Graph{
		scope:      scope,
		nodes:      make(map[string]struct{}),
		deps:       make(map[string][]string),
		dependents: make(map[string][]string),
	}
}

// AddNode inserts a vertex.
func (g *Graph) AddNode(id string) error {
	if _, exists := g.nodes[id]; exists {
		return fmt.Errorf("duplicate node %q in %s", id, g.scope)
	}
	g.nodes[id] = struct{}{}
	return nil
}

// AddEdge records that downstream depends on upstream.
func (g *Graph) AddEdge(upstream, downstream string) error {
	if _, ok := g.nodes[upstream]; !ok {
		return fmt.Errorf("unknown node %q in %s", upstream, g.scope)
	}
	if _, ok := g.nodes[downstream]; !ok {
		return fmt.Errorf("unknown node %q in %s", downstream, g.scope)
	}

	g.deps[downstream] = append(g.deps[downstream], upstream)
	g.dependents[upstream] = append(g.dependents[upstream], downstream)
	return nil
}

// Has reports whether id is a node.
func (g *Graph) Has(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// Nodes lists all node ids, sorted.
func (g *Graph) Nodes() []string {
	out := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// TopologicalLevels computes the Kahn layering. Nodes inside one level are
// sorted lexicographically; this tie-break is part of the contract so two
// runs over the same inputs produce identical plans.
func (g *Graph) TopologicalLevels() ([][]string, error) {
	indegree := make(map[string]int, len(g.nodes))
	for id := range g.nodes {
		indegree[id] = len(g.deps[id])
	}

	var queue []string
	for id, degree := range indegree {
		if degree == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	processed := 0
	var levels [][]string

	for len(queue) > 0 {
		currentLevel := append([]string(nil), queue...)
		sort.Strings(currentLevel)
		levels = append(levels, currentLevel)

		var nextLevel []string
		for _, id := range currentLevel {
			processed++
			for _, dependent := range g.dependents[id] {
				indegree[dependent]--
				if indegree[dependent] == 0 {
					nextLevel = append(nextLevel, dependent)
				}
			}
		}

		sort.Strings(nextLevel)
		queue = nextLevel
	}

	if processed != len(g.nodes) {
		return nil, dfterrors.NewCycleError(g.scope, g.findCycle())
	}

	return levels, nil
}

// TopologicalOrder flattens the levels into one sequence.
func (g *Graph) TopologicalOrder() ([]string, error) {
	levels, err := g.TopologicalLevels()
	if err != nil {
		return nil, err
	}

	var out []string
	for _, level := range levels {
		out = append(out, level...)
	}
	return out, nil
}

// CycleCheck fails with the participating nodes when the graph has a cycle.
func (g *Graph) CycleCheck() error {
	_, err := g.TopologicalLevels()
	return err
}

// Ancestors returns the transitive upstream closure of id, sorted. The node
// itself is not included.
func (g *Graph) Ancestors(id string) []string {
	return g.closure(id, g.deps)
}

// Descendants returns the transitive downstream closure of id, sorted. The
// node itself is not included.
func (g *Graph) Descendants(id string) []string {
	return g.closure(id, g.dependents)
}

func (g *Graph) closure(id string, adjacency map[string][]string) []string {
	visited := make(map[string]bool)
	stack := append([]string(nil), adjacency[id]...)

	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[current] {
			continue
		}
		visited[current] = true
		stack = append(stack, adjacency[current]...)
	}

	out := make([]string, 0, len(visited))
	for node := range visited {
		out = append(out, node)
	}
	sort.Strings(out)
	return out
}

// findCycle returns the nodes participating in a dependency cycle in walk
// order, ending with a repeat of the entry node.
func (g *Graph) findCycle() []string {
	visiting := make(map[string]bool, len(g.nodes))
	visited := make(map[string]bool, len(g.nodes))
	var stack []string
	var cycle []string

	var dfs func(string) bool
	dfs = func(node string) bool {
		visiting[node] = true
		stack = append(stack, node)

		for _, dep := range g.deps[node] {
			if visited[dep] {
				continue
			}
			if visiting[dep] {
				idx := indexOf(stack, dep)
				if idx >= 0 {
					cycle = append([]string{}, stack[idx:]...)
					cycle = append(cycle, dep)
				}
				return true
			}
			if dfs(dep) {
				return true
			}
		}

		visiting[node] = false
		visited[node] = true
		stack = stack[:len(stack)-1]
		return false
	}

	for _, id := range g.Nodes() {
		if visited[id] {
			continue
		}
		if dfs(id) {
			break
		}
	}

	return cycle
}

func indexOf(slice []string, target string) int {
	for i, v := range slice {
		if v == target {
			return i
		}
	}
	return -1
}
