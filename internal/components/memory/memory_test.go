package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/dft/internal/component"
)

func staticSpec() component.Spec {
	return component.Spec{
		StepID: "extract",
		Config: map[string]any{
			"columns": []any{"id", "status"},
			"rows": []any{
				[]any{1, "active"},
				[]any{2, "inactive"},
				[]any{3, "active"},
			},
		},
	}
}

func TestStaticSourceEmitsRows(t *testing.T) {
	t.Parallel()

	source, err := NewStaticSource(staticSpec())
	require.NoError(t, err)

	packet, err := source.Extract(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, []string{"id", "status"}, packet.Data.Columns)
	require.Equal(t, 3, packet.Data.NumRows())

	ok, err := source.TestConnection(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
}

func TestStaticSourceRejectsRaggedRows(t *testing.T) {
	t.Parallel()

	_, err := NewStaticSource(component.Spec{
		StepID: "extract",
		Config: map[string]any{
			"columns": []any{"id"},
			"rows":    []any{[]any{1, "extra"}},
		},
	})
	require.Error(t, err)
}

func TestFilterProcessorEq(t *testing.T) {
	t.Parallel()

	source, err := NewStaticSource(staticSpec())
	require.NoError(t, err)
	packet, err := source.Extract(context.Background(), nil)
	require.NoError(t, err)

	filter, err := NewFilterProcessor(component.Spec{
		StepID: "keep_active",
		Config: map[string]any{"column": "status", "value": "active"},
	})
	require.NoError(t, err)

	out, err := filter.Process(context.Background(), packet, nil)
	require.NoError(t, err)
	require.Equal(t, 2, out.Data.NumRows())

	// Input untouched.
	require.Equal(t, 3, packet.Data.NumRows())
}

func TestFilterProcessorUnknownColumnFails(t *testing.T) {
	t.Parallel()

	filter, err := NewFilterProcessor(component.Spec{
		StepID: "f",
		Config: map[string]any{"column": "ghost", "value": "x"},
	})
	require.NoError(t, err)

	_, err = filter.Process(context.Background(), component.NewPacket(&component.Table{Columns: []string{"id"}}), nil)
	require.Error(t, err)
}

func TestRenameColumnsProcessor(t *testing.T) {
	t.Parallel()

	rename, err := NewRenameColumnsProcessor(component.Spec{
		StepID: "rename",
		Config: map[string]any{"mapping": map[string]any{"id": "user_id"}},
	})
	require.NoError(t, err)

	in := component.NewPacket(&component.Table{Columns: []string{"id", "status"}})
	out, err := rename.Process(context.Background(), in, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"user_id", "status"}, out.Data.Columns)
}

func TestPassthroughReturnsInput(t *testing.T) {
	t.Parallel()

	p, err := NewPassthroughProcessor(component.Spec{})
	require.NoError(t, err)

	in := component.NewPacket(&component.Table{Columns: []string{"id"}})
	out, err := p.Process(context.Background(), in, nil)
	require.NoError(t, err)
	require.Same(t, in, out)
}
