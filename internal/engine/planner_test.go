package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/dft/internal/config"
	"github.com/alexisbeaulieu97/dft/internal/state"
	dfterrors "github.com/alexisbeaulieu97/dft/pkg/errors"
)

func microbatchPipeline(mb *config.Microbatch) *config.Pipeline {
	return &config.Pipeline{Name: "events", Microbatch: mb}
}

func fixedNow(value string) func() time.Time {
	t, err := time.ParseInLocation("2006-01-02T15:04:05", value, time.UTC)
	if err != nil {
		panic(err)
	}
	return func() time.Time { return t }
}

func windowBounds(t *testing.T, plan *ExecutionPlan) [][2]string {
	t.Helper()

	out := make([][2]string, 0, len(plan.Entries))
	for _, entry := range plan.Entries {
		require.NotNil(t, entry.Window)
		out = append(out, [2]string{
			entry.Window.Start.Format("2006-01-02T15:04"),
			entry.Window.End.Format("2006-01-02T15:04"),
		})
	}
	return out
}

func TestFullStrategySingleEntry(t *testing.T) {
	t.Parallel()

	planner := &Planner{Now: fixedNow("2024-06-01T12:00:00")}
	plan, err := planner.BuildPlan(&config.Pipeline{Name: "events"}, map[string]any{})
	require.NoError(t, err)
	require.Equal(t, StrategyFull, plan.Strategy)
	require.Len(t, plan.Entries, 1)
	require.Nil(t, plan.Entries[0].Window)
}

func TestMicrobatchColdStart(t *testing.T) {
	t.Parallel()

	planner := &Planner{Now: fixedNow("2024-06-01T12:00:00")}
	plan, err := planner.BuildPlan(microbatchPipeline(&config.Microbatch{
		EventTimeColumn: "event_date",
		BatchSize:       "day",
		Lookback:        0,
		Begin:           "2024-01-01T00:00",
		End:             "2024-01-04T00:00",
	}), map[string]any{})
	require.NoError(t, err)
	require.Equal(t, StrategyMicrobatch, plan.Strategy)
	require.Equal(t, [][2]string{
		{"2024-01-01T00:00", "2024-01-02T00:00"},
		{"2024-01-02T00:00", "2024-01-03T00:00"},
		{"2024-01-03T00:00", "2024-01-04T00:00"},
	}, windowBounds(t, plan))
}

func TestMicrobatchWarmRestartWithLookback(t *testing.T) {
	t.Parallel()

	planner := &Planner{Now: fixedNow("2024-01-06T07:45:00")}
	plan, err := planner.BuildPlan(microbatchPipeline(&config.Microbatch{
		EventTimeColumn: "event_date",
		BatchSize:       "day",
		Lookback:        2,
		Begin:           "2024-01-01T00:00",
	}), map[string]any{
		state.KeyLastProcessedTimestamp: "2024-01-05T00:00:00+00:00",
	})
	require.NoError(t, err)
	// now truncated to a day boundary is 2024-01-06.
	require.Equal(t, [][2]string{
		{"2024-01-03T00:00", "2024-01-04T00:00"},
		{"2024-01-04T00:00", "2024-01-05T00:00"},
		{"2024-01-05T00:00", "2024-01-06T00:00"},
	}, windowBounds(t, plan))
}

func TestMicrobatchLookbackClampsToBegin(t *testing.T) {
	t.Parallel()

	planner := &Planner{Now: fixedNow("2024-01-03T12:00:00")}
	plan, err := planner.BuildPlan(microbatchPipeline(&config.Microbatch{
		EventTimeColumn: "event_date",
		BatchSize:       "day",
		Lookback:        10,
		Begin:           "2024-01-01T00:00",
	}), map[string]any{
		state.KeyLastProcessedTimestamp: "2024-01-02T00:00:00+00:00",
	})
	require.NoError(t, err)
	require.Equal(t, "2024-01-01T00:00", plan.Entries[0].Window.Start.Format("2006-01-02T15:04"))
}

func TestMicrobatchFullRefreshResetsToBegin(t *testing.T) {
	t.Parallel()

	planner := &Planner{Now: fixedNow("2024-01-04T00:00:00"), FullRefresh: true}
	plan, err := planner.BuildPlan(microbatchPipeline(&config.Microbatch{
		EventTimeColumn: "event_date",
		BatchSize:       "day",
		Begin:           "2024-01-01T00:00",
	}), map[string]any{
		state.KeyLastProcessedTimestamp: "2024-01-03T00:00:00+00:00",
	})
	require.NoError(t, err)
	require.Len(t, plan.Entries, 3)
	require.Equal(t, "2024-01-01T00:00", plan.Entries[0].Window.Start.Format("2006-01-02T15:04"))
}

func TestMicrobatchNoCursorNoBeginFails(t *testing.T) {
	t.Parallel()

	planner := &Planner{Now: fixedNow("2024-01-04T00:00:00")}
	_, err := planner.BuildPlan(microbatchPipeline(&config.Microbatch{
		EventTimeColumn: "event_date",
		BatchSize:       "day",
	}), map[string]any{})
	require.Error(t, err)

	var mbErr *dfterrors.MicrobatchError
	require.ErrorAs(t, err, &mbErr)
}

func TestMicrobatchEndBeforeBeginFails(t *testing.T) {
	t.Parallel()

	planner := &Planner{Now: fixedNow("2024-01-04T00:00:00")}
	_, err := planner.BuildPlan(microbatchPipeline(&config.Microbatch{
		EventTimeColumn: "event_date",
		BatchSize:       "day",
		Begin:           "2024-01-03T00:00",
		End:             "2024-01-01T00:00",
	}), map[string]any{})
	require.Error(t, err)

	var mbErr *dfterrors.MicrobatchError
	require.ErrorAs(t, err, &mbErr)
}

func TestMicrobatchUpToDateYieldsNoWindows(t *testing.T) {
	t.Parallel()

	planner := &Planner{Now: fixedNow("2024-01-04T06:00:00")}
	plan, err := planner.BuildPlan(microbatchPipeline(&config.Microbatch{
		EventTimeColumn: "event_date",
		BatchSize:       "day",
		Begin:           "2024-01-01T00:00",
	}), map[string]any{
		state.KeyLastProcessedTimestamp: "2024-01-04T00:00:00+00:00",
	})
	require.NoError(t, err)
	require.Empty(t, plan.Entries)
}

func TestMicrobatchHourWindows(t *testing.T) {
	t.Parallel()

	planner := &Planner{Now: fixedNow("2024-01-01T03:30:00")}
	plan, err := planner.BuildPlan(microbatchPipeline(&config.Microbatch{
		EventTimeColumn: "event_ts",
		BatchSize:       "hour",
		Begin:           "2024-01-01T00:00",
	}), map[string]any{})
	require.NoError(t, err)
	// End truncates down to 03:00.
	require.Equal(t, [][2]string{
		{"2024-01-01T00:00", "2024-01-01T01:00"},
		{"2024-01-01T01:00", "2024-01-01T02:00"},
		{"2024-01-01T02:00", "2024-01-01T03:00"},
	}, windowBounds(t, plan))
}

func TestMicrobatchPlanIsDeterministic(t *testing.T) {
	t.Parallel()

	build := func() *ExecutionPlan {
		planner := &Planner{Now: fixedNow("2024-01-06T07:45:00")}
		plan, err := planner.BuildPlan(microbatchPipeline(&config.Microbatch{
			EventTimeColumn: "event_date",
			BatchSize:       "day",
			Lookback:        1,
			Begin:           "2024-01-01T00:00",
		}), map[string]any{
			state.KeyLastProcessedTimestamp: "2024-01-03T00:00:00+00:00",
		})
		require.NoError(t, err)
		return plan
	}

	require.Equal(t, build(), build())
}

func TestWindowCarriesPeriodAndColumn(t *testing.T) {
	t.Parallel()

	planner := &Planner{Now: fixedNow("2024-01-02T00:00:00")}
	plan, err := planner.BuildPlan(microbatchPipeline(&config.Microbatch{
		EventTimeColumn: "event_date",
		BatchSize:       "day",
		Begin:           "2024-01-01T00:00",
	}), map[string]any{})
	require.NoError(t, err)
	require.Len(t, plan.Entries, 1)
	require.Equal(t, "day", plan.Entries[0].Window.Period)
	require.Equal(t, "event_date", plan.Entries[0].Window.EventTimeColumn)
}
