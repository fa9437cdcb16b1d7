package template

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	dfterrors "github.com/alexisbeaulieu97/dft/pkg/errors"
)

func frozenClock() func() time.Time {
	fixed := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	return func() time.Time { return fixed }
}

func testContext() *Context {
	return NewContext().
		WithClock(frozenClock()).
		Push(LayerProject, map[string]any{"schema": "analytics", "limit": 100}).
		Push(LayerPipeline, map[string]any{"table": "events"})
}

func TestRenderLiteralPassesThrough(t *testing.T) {
	t.Parallel()

	out, err := Render("select * from events", testContext())
	require.NoError(t, err)
	require.Equal(t, "select * from events", out)
}

func TestRenderVarLookup(t *testing.T) {
	t.Parallel()

	out, err := Render(`select * from {{ var("schema") }}.{{ var("table") }}`, testContext())
	require.NoError(t, err)
	require.Equal(t, "select * from analytics.events", out)
}

func TestRenderBareIdentifier(t *testing.T) {
	t.Parallel()

	out, err := Render("{{ table }}", testContext())
	require.NoError(t, err)
	require.Equal(t, "events", out)
}

func TestRenderLayerPrecedence(t *testing.T) {
	t.Parallel()

	ctx := testContext().Push(LayerOverride, map[string]any{"table": "events_v2"})
	out, err := Render(`{{ var("table") }}`, ctx)
	require.NoError(t, err)
	require.Equal(t, "events_v2", out)
}

func TestRenderUnknownVariableFails(t *testing.T) {
	t.Parallel()

	_, err := Render(`{{ var("missing") }}`, testContext())
	require.Error(t, err)

	var tmplErr *dfterrors.TemplateError
	require.ErrorAs(t, err, &tmplErr)
	require.Contains(t, err.Error(), "missing")
	require.Contains(t, err.Error(), LayerPipeline)
}

func TestRenderEnvVar(t *testing.T) {
	t.Parallel()

	ctx := testContext().WithEnv(func(name string) (string, bool) {
		if name == "DB_HOST" {
			return "db.internal", true
		}
		return "", false
	})

	out, err := Render(`{{ env_var("DB_HOST") }}`, ctx)
	require.NoError(t, err)
	require.Equal(t, "db.internal", out)

	out, err = Render(`{{ env_var("DB_PORT", "5432") }}`, ctx)
	require.NoError(t, err)
	require.Equal(t, "5432", out)

	_, err = Render(`{{ env_var("DB_PORT") }}`, ctx)
	require.Error(t, err)
}

type mapState map[string]any

func (m mapState) Get(key string) (any, bool) {
	v, ok := m[key]
	return v, ok
}

func TestRenderStateGet(t *testing.T) {
	t.Parallel()

	ctx := testContext().WithState(mapState{"last_processed_date": "2024-03-14"})

	out, err := Render(`{{ state.get("last_processed_date") }}`, ctx)
	require.NoError(t, err)
	require.Equal(t, "2024-03-14", out)

	out, err = Render(`{{ state.get("cursor", "1970-01-01") }}`, ctx)
	require.NoError(t, err)
	require.Equal(t, "1970-01-01", out)

	_, err = Render(`{{ state.get("cursor") }}`, ctx)
	require.Error(t, err)
}

func TestRenderDateHelpers(t *testing.T) {
	t.Parallel()

	ctx := testContext()

	out, err := Render(`{{ today().strftime("%Y-%m-%d") }}`, ctx)
	require.NoError(t, err)
	require.Equal(t, "2024-03-15", out)

	out, err = Render(`{{ yesterday().strftime("%Y-%m-%d") }}`, ctx)
	require.NoError(t, err)
	require.Equal(t, "2024-03-14", out)

	out, err = Render(`{{ days_ago(7).strftime("%Y-%m-%d") }}`, ctx)
	require.NoError(t, err)
	require.Equal(t, "2024-03-08", out)

	out, err = Render(`{{ now().isoformat() }}`, ctx)
	require.NoError(t, err)
	require.Equal(t, "2024-03-15T10:30:00+00:00", out)
}

func TestRenderTimestampArithmetic(t *testing.T) {
	t.Parallel()

	out, err := Render(`{{ (now() - timedelta(hours=2)).strftime("%H:%M") }}`, testContext())
	require.NoError(t, err)
	require.Equal(t, "08:30", out)

	out, err = Render(`{{ (today() + timedelta(days=1, minutes=30)).isoformat() }}`, testContext())
	require.NoError(t, err)
	require.Equal(t, "2024-03-16T00:30:00+00:00", out)
}

func TestRenderBatchVariables(t *testing.T) {
	t.Parallel()

	start := NewTimestamp(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	end := NewTimestamp(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	ctx := testContext().Push(LayerBatch, map[string]any{
		"batch_start":       start,
		"batch_end":         end,
		"batch_period":      "day",
		"event_time_column": "event_date",
	})

	out, err := Render(
		`delete from t where {{ event_time_column }} >= '{{ batch_start }}' and {{ event_time_column }} < '{{ batch_end }}'`,
		ctx,
	)
	require.NoError(t, err)
	require.Equal(t, `delete from t where event_date >= '2024-01-01T00:00:00+00:00' and event_date < '2024-01-02T00:00:00+00:00'`, out)

	out, err = Render(`{{ batch_start.strftime("%Y%m%d") }}`, ctx)
	require.NoError(t, err)
	require.Equal(t, "20240101", out)
}

func TestRenderIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := testContext()
	once, err := Render(`{{ var("schema") }}.{{ var("table") }}`, ctx)
	require.NoError(t, err)

	twice, err := Render(once, ctx)
	require.NoError(t, err)
	require.Equal(t, once, twice)
}

func TestRenderDoesNotMutateContext(t *testing.T) {
	t.Parallel()

	ctx := testContext()
	before := ctx.LayerNames()

	_, err := Render(`{{ var("schema") }}`, ctx)
	require.NoError(t, err)
	require.Equal(t, before, ctx.LayerNames())

	_, ok := ctx.Lookup("schema_rendered")
	require.False(t, ok)
}

func TestRenderUnclosedDelimiterFails(t *testing.T) {
	t.Parallel()

	_, err := Render(`{{ var("schema")`, testContext())
	require.Error(t, err)
}

func TestRenderMapRendersNestedLeaves(t *testing.T) {
	t.Parallel()

	cfg := map[string]any{
		"query": `select * from {{ var("table") }}`,
		"options": map[string]any{
			"schema": `{{ var("schema") }}`,
			"limit":  50,
		},
		"columns": []any{"id", `{{ var("table") }}_at`},
	}

	out, err := RenderMap(cfg, testContext())
	require.NoError(t, err)
	require.Equal(t, "select * from events", out["query"])
	require.Equal(t, "analytics", out["options"].(map[string]any)["schema"])
	require.Equal(t, 50, out["options"].(map[string]any)["limit"])
	require.Equal(t, "events_at", out["columns"].([]any)[1])

	// Input untouched.
	require.Equal(t, `select * from {{ var("table") }}`, cfg["query"])
}

func TestEvaluateNumbers(t *testing.T) {
	t.Parallel()

	v, err := Evaluate("1 + 2", testContext())
	require.NoError(t, err)
	require.Equal(t, float64(3), v)

	v, err = Evaluate(`var("limit")`, testContext())
	require.NoError(t, err)
	require.Equal(t, 100, v)
}
