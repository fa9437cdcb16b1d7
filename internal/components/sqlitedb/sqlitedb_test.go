package sqlitedb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/alexisbeaulieu97/dft/internal/component"
)

func newDB(t *testing.T) (string, *gorm.DB) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Exec(`CREATE TABLE events (event_date TEXT, value TEXT)`).Error)
	return path, db
}

func spec(path string, extra map[string]any) component.Spec {
	cfg := map[string]any{"path": path}
	for k, v := range extra {
		cfg[k] = v
	}
	return component.Spec{StepID: "step", Config: cfg}
}

func TestEndpointAppendAndSourceRoundTrip(t *testing.T) {
	t.Parallel()

	path, _ := newDB(t)

	endpoint, err := NewEndpoint(spec(path, map[string]any{"table": "events"}))
	require.NoError(t, err)

	packet := component.NewPacket(&component.Table{
		Columns: []string{"event_date", "value"},
		Rows:    [][]any{{"2024-01-01", "a"}, {"2024-01-02", "b"}},
	})
	require.NoError(t, endpoint.Load(context.Background(), packet, nil))

	source, err := NewSource(spec(path, map[string]any{
		"query": "select event_date, value from events order by event_date",
	}))
	require.NoError(t, err)

	out, err := source.Extract(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, []string{"event_date", "value"}, out.Data.Columns)
	require.Equal(t, 2, out.Data.NumRows())
}

func TestEndpointReplaceTruncatesFirst(t *testing.T) {
	t.Parallel()

	path, db := newDB(t)
	require.NoError(t, db.Exec(`INSERT INTO events VALUES ('2023-12-31', 'old')`).Error)

	endpoint, err := NewEndpoint(spec(path, map[string]any{"table": "events", "mode": "replace"}))
	require.NoError(t, err)

	packet := component.NewPacket(&component.Table{
		Columns: []string{"event_date", "value"},
		Rows:    [][]any{{"2024-01-01", "new"}},
	})
	require.NoError(t, endpoint.Load(context.Background(), packet, nil))

	var count int64
	require.NoError(t, db.Raw(`SELECT count(*) FROM events`).Scan(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestEndpointWindowReplaceDeletesWindow(t *testing.T) {
	t.Parallel()

	path, db := newDB(t)
	loc := time.UTC

	endpoint, err := NewEndpoint(spec(path, map[string]any{
		"table":             "events",
		"event_time_column": "event_date",
	}))
	require.NoError(t, err)

	// Seed through the endpoint so stored values use the driver's encoding.
	seed := component.NewPacket(&component.Table{
		Columns: []string{"event_date", "value"},
		Rows: [][]any{
			{time.Date(2024, 1, 1, 0, 0, 0, 0, loc), "keep"},
			{time.Date(2024, 1, 2, 0, 0, 0, 0, loc), "stale"},
		},
	})
	require.NoError(t, endpoint.Load(context.Background(), seed, nil))

	vars := component.Vars{
		"batch_start_time": time.Date(2024, 1, 2, 0, 0, 0, 0, loc),
		"batch_end_time":   time.Date(2024, 1, 3, 0, 0, 0, 0, loc),
	}
	packet := component.NewPacket(&component.Table{
		Columns: []string{"event_date", "value"},
		Rows:    [][]any{{time.Date(2024, 1, 2, 0, 0, 0, 0, loc), "fresh"}},
	})
	require.NoError(t, endpoint.Load(context.Background(), packet, vars))

	var values []string
	require.NoError(t, db.Raw(`SELECT value FROM events ORDER BY event_date`).Scan(&values).Error)
	require.Equal(t, []string{"keep", "fresh"}, values)
}

func TestSourceTestConnection(t *testing.T) {
	t.Parallel()

	path, _ := newDB(t)
	source, err := NewSource(spec(path, map[string]any{"query": "select 1"}))
	require.NoError(t, err)

	ok, err := source.TestConnection(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
}

func TestEndpointRequiresPath(t *testing.T) {
	t.Parallel()

	endpoint, err := NewEndpoint(component.Spec{StepID: "e", Config: map[string]any{"table": "events"}})
	require.NoError(t, err)

	err = endpoint.Load(context.Background(), component.NewPacket(&component.Table{}), nil)
	require.Error(t, err)
}
