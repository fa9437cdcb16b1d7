package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/dft/internal/config"
	dfterrors "github.com/alexisbeaulieu97/dft/pkg/errors"
)

func buildGraph(t *testing.T, nodes []string, edges [][2]string) *Graph {
	t.Helper()

	graph := NewGraph("test graph")
	for _, node := range nodes {
		require.NoError(t, graph.AddNode(node))
	}
	for _, edge := range edges {
		require.NoError(t, graph.AddEdge(edge[0], edge[1]))
	}
	return graph
}

func TestTopologicalLevelsRespectEdges(t *testing.T) {
	t.Parallel()

	graph := buildGraph(t,
		[]string{"a", "b", "c", "d"},
		[][2]string{{"a", "b"}, {"a", "c"}, {"b", "d"}, {"c", "d"}},
	)

	levels, err := graph.TopologicalLevels()
	require.NoError(t, err)
	require.Equal(t, [][]string{{"a"}, {"b", "c"}, {"d"}}, levels)
}

func TestTopologicalOrderIsLexicographicWithinLevel(t *testing.T) {
	t.Parallel()

	graph := buildGraph(t, []string{"zeta", "alpha", "mid"}, nil)

	order, err := graph.TopologicalOrder()
	require.NoError(t, err)
	require.Equal(t, []string{"alpha", "mid", "zeta"}, order)
}

func TestTopologicalOrderIsDeterministic(t *testing.T) {
	t.Parallel()

	build := func() *Graph {
		return buildGraph(t,
			[]string{"d", "c", "b", "a", "e"},
			[][2]string{{"a", "c"}, {"b", "c"}, {"c", "e"}, {"d", "e"}},
		)
	}

	first, err := build().TopologicalOrder()
	require.NoError(t, err)
	second, err := build().TopologicalOrder()
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestCycleDetectionListsParticipants(t *testing.T) {
	t.Parallel()

	graph := buildGraph(t,
		[]string{"a", "b", "c"},
		[][2]string{{"a", "b"}, {"b", "c"}, {"c", "a"}},
	)

	err := graph.CycleCheck()
	require.Error(t, err)

	var cycleErr *dfterrors.CycleError
	require.ErrorAs(t, err, &cycleErr)
	require.Equal(t, "test graph", cycleErr.Scope)
	require.Subset(t, cycleErr.Participants, []string{"a", "b", "c"})
}

func TestAncestorsAndDescendants(t *testing.T) {
	t.Parallel()

	graph := buildGraph(t,
		[]string{"a", "b", "c", "d", "x"},
		[][2]string{{"a", "b"}, {"b", "c"}, {"c", "d"}},
	)

	require.Equal(t, []string{"a", "b"}, graph.Ancestors("c"))
	require.Equal(t, []string{"c", "d"}, graph.Descendants("b"))
	require.Empty(t, graph.Ancestors("a"))
	require.Empty(t, graph.Descendants("x"))
}

func TestDuplicateNodeFails(t *testing.T) {
	t.Parallel()

	graph := NewGraph("test graph")
	require.NoError(t, graph.AddNode("a"))
	require.Error(t, graph.AddNode("a"))
}

func TestUnknownEdgeEndpointFails(t *testing.T) {
	t.Parallel()

	graph := NewGraph("test graph")
	require.NoError(t, graph.AddNode("a"))
	require.Error(t, graph.AddEdge("a", "ghost"))
	require.Error(t, graph.AddEdge("ghost", "a"))
}

func TestBuildStepGraph(t *testing.T) {
	t.Parallel()

	pipeline := &config.Pipeline{
		Name: "events",
		Steps: []config.Step{
			{ID: "extract", Kind: config.KindSource},
			{ID: "clean", Kind: config.KindProcessor, DependsOn: []string{"extract"}},
			{ID: "load", Kind: config.KindEndpoint, DependsOn: []string{"clean"}},
		},
	}

	graph, err := BuildStepGraph(pipeline)
	require.NoError(t, err)

	order, err := graph.TopologicalOrder()
	require.NoError(t, err)
	require.Equal(t, []string{"extract", "clean", "load"}, order)
}
