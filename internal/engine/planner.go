package engine

import (
	"fmt"
	"time"

	"github.com/alexisbeaulieu97/dft/internal/component"
	"github.com/alexisbeaulieu97/dft/internal/config"
	"github.com/alexisbeaulieu97/dft/internal/state"
	dfterrors "github.com/alexisbeaulieu97/dft/pkg/errors"
)

// Strategy names.
const (
	StrategyFull       = "full"
	StrategyMicrobatch = "microbatch"
)

// PlanEntry is one unit of pipeline execution: the whole pipeline for the
// full strategy, one batch window for microbatch.
type PlanEntry struct {
	Window *component.Window
}

// ExecutionPlan is the ordered list of plan entries for one pipeline in one
// invocation.
type ExecutionPlan struct {
	Pipeline string
	Strategy string
	Entries  []PlanEntry
}

// Planner derives execution plans. Now is injectable so tests can freeze the
// clock; two invocations with the same state and the same now() produce
// byte-identical plans.
type Planner struct {
	Now         func() time.Time
	FullRefresh bool
}

// batchSizes maps batch_size tags to window durations. month and year are
// fixed 30/365 day approximations.
var batchSizes = map[string]time.Duration{
	"10min": 10 * time.Minute,
	"hour":  time.Hour,
	"day":   24 * time.Hour,
	"week":  7 * 24 * time.Hour,
	"month": 30 * 24 * time.Hour,
	"year":  365 * 24 * time.Hour,
}

// BuildPlan computes the plan for one pipeline given its loaded state.
func (p *Planner) BuildPlan(pipeline *config.Pipeline, pipelineState map[string]any) (*ExecutionPlan, error) {
	if pipeline.Microbatch == nil {
		return &ExecutionPlan{
			Pipeline: pipeline.Name,
			Strategy: StrategyFull,
			Entries:  []PlanEntry{{}},
		}, nil
	}

	windows, err := p.microbatchWindows(pipeline, pipelineState)
	if err != nil {
		return nil, err
	}

	entries := make([]PlanEntry, 0, len(windows))
	for i := range windows {
		entries = append(entries, PlanEntry{Window: &windows[i]})
	}

	return &ExecutionPlan{
		Pipeline: pipeline.Name,
		Strategy: StrategyMicrobatch,
		Entries:  entries,
	}, nil
}

func (p *Planner) microbatchWindows(pipeline *config.Pipeline, pipelineState map[string]any) ([]component.Window, error) {
	mb := pipeline.Microbatch
	size, ok := batchSizes[mb.BatchSize]
	if !ok {
		return nil, dfterrors.NewMicrobatchError(pipeline.Name, fmt.Sprintf("invalid batch_size %q", mb.BatchSize))
	}

	now := p.now()
	loc := now.Location()

	var begin time.Time
	if mb.Begin != "" {
		parsed, err := parseTimestamp(mb.Begin, loc)
		if err != nil {
			return nil, dfterrors.NewMicrobatchError(pipeline.Name, fmt.Sprintf("invalid begin %q: %v", mb.Begin, err))
		}
		begin = parsed
	}

	cursor, hasCursor, err := cursorFromState(pipeline.Name, pipelineState, loc)
	if err != nil {
		return nil, err
	}
	if p.FullRefresh {
		hasCursor = false
	}
	if !hasCursor {
		if mb.Begin == "" {
			return nil, dfterrors.NewMicrobatchError(pipeline.Name, "no cursor in state and no begin configured")
		}
		cursor = begin
	}

	start := cursor.Add(-time.Duration(mb.Lookback) * size)
	if !begin.IsZero() && start.Before(begin) {
		start = begin
	}

	end := now
	if mb.End != "" {
		configEnd, err := parseTimestamp(mb.End, loc)
		if err != nil {
			return nil, dfterrors.NewMicrobatchError(pipeline.Name, fmt.Sprintf("invalid end %q: %v", mb.End, err))
		}
		if !begin.IsZero() && configEnd.Before(begin) {
			return nil, dfterrors.NewMicrobatchError(pipeline.Name, "end precedes begin")
		}
		if configEnd.Before(end) {
			end = configEnd
		}
	}
	end = truncateToEpochMultiple(end, size)

	var windows []component.Window
	for w := start; w.Before(end); w = w.Add(size) {
		windowEnd := w.Add(size)
		if windowEnd.After(end) {
			windowEnd = end
		}
		windows = append(windows, component.Window{
			Start:           w,
			End:             windowEnd,
			Period:          mb.BatchSize,
			EventTimeColumn: mb.EventTimeColumn,
		})
	}

	return windows, nil
}

func (p *Planner) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func cursorFromState(pipeline string, pipelineState map[string]any, loc *time.Location) (time.Time, bool, error) {
	raw, ok := pipelineState[state.KeyLastProcessedTimestamp]
	if !ok {
		return time.Time{}, false, nil
	}

	text, ok := raw.(string)
	if !ok {
		return time.Time{}, false, dfterrors.NewMicrobatchError(pipeline, fmt.Sprintf("state cursor has unexpected type %T", raw))
	}

	cursor, err := parseTimestamp(text, loc)
	if err != nil {
		return time.Time{}, false, dfterrors.NewMicrobatchError(pipeline, fmt.Sprintf("invalid state cursor %q: %v", text, err))
	}
	return cursor, true, nil
}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTimestamp(s string, loc *time.Location) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format")
}

// truncateToEpochMultiple rounds t down to a multiple of size counted from
// the Unix epoch.
func truncateToEpochMultiple(t time.Time, size time.Duration) time.Time {
	sizeSec := int64(size / time.Second)
	sec := t.Unix()
	truncated := (sec / sizeSec) * sizeSec
	if sec < 0 && sec%sizeSec != 0 {
		truncated -= sizeSec
	}
	return time.Unix(truncated, 0).In(t.Location())
}
