package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	dfterrors "github.com/alexisbeaulieu97/dft/pkg/errors"
)

const projectDoc = `project_name: demo

state:
  ignore_in_git: true

connections:
  warehouse:
    type: postgres
    host: "{{ env_var('DB_HOST', 'localhost') }}"
    port: 5432
    database: analytics

variables:
  schema: analytics

logging:
  level: debug
`

const eventsDoc = `pipeline_name: events
description: Loads raw events.
tags: [daily, core]

variables:
  table: raw_events
  microbatch:
    event_time_column: event_date
    batch_size: day
    lookback: 1
    begin: "2024-01-01T00:00"

steps:
  - id: extract
    type: source
    source_type: static
    config:
      columns: [id, event_date]

  - id: clean
    type: processor
    processor_type: passthrough
    depends_on: [extract]

  - id: load
    type: endpoint
    endpoint_type: console
    depends_on: [clean]
    config:
      print_rows: false
`

func writeProject(t *testing.T, pipelineDocs map[string]string) string {
	t.Helper()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ProjectFileName), []byte(projectDoc), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, PipelinesDirName), 0o755))
	for name, doc := range pipelineDocs {
		require.NoError(t, os.WriteFile(filepath.Join(root, PipelinesDirName, name), []byte(doc), 0o644))
	}
	return root
}

func TestLoadProjectParsesEverything(t *testing.T) {
	t.Parallel()

	root := writeProject(t, map[string]string{"events.yml": eventsDoc})

	project, pipelines, err := LoadProject(root)
	require.NoError(t, err)

	require.Equal(t, "demo", project.ProjectName)
	require.True(t, project.State.IgnoreInGit)
	require.Equal(t, "debug", project.Logging.Level)
	require.Equal(t, "analytics", project.Variables["schema"])

	conn := project.Connections["warehouse"]
	require.Equal(t, "postgres", conn.Type)
	// Expression text is captured verbatim; rendering happens later.
	require.Equal(t, `{{ env_var('DB_HOST', 'localhost') }}`, conn.Fields["host"])
	require.Equal(t, 5432, conn.Fields["port"])

	require.Len(t, pipelines, 1)
	pipeline := pipelines[0]
	require.Equal(t, "events", pipeline.Name)
	require.Equal(t, []string{"daily", "core"}, pipeline.Tags)
	require.Equal(t, "raw_events", pipeline.Variables["table"])

	require.NotNil(t, pipeline.Microbatch)
	require.Equal(t, "event_date", pipeline.Microbatch.EventTimeColumn)
	require.Equal(t, "day", pipeline.Microbatch.BatchSize)
	require.Equal(t, 1, pipeline.Microbatch.Lookback)
	require.Equal(t, "2024-01-01T00:00", pipeline.Microbatch.Begin)
	// Lifted out of the plain variables.
	_, hasMicrobatchVar := pipeline.Variables["microbatch"]
	require.False(t, hasMicrobatchVar)

	require.Len(t, pipeline.Steps, 3)
	require.Equal(t, "source", pipeline.Steps[0].Kind)
	require.Equal(t, "static", pipeline.Steps[0].ComponentType)
	require.Equal(t, "passthrough", pipeline.Steps[1].ComponentType)
	require.Equal(t, []string{"clean"}, pipeline.Steps[2].DependsOn)
}

func TestLoadPipelinesMultiDocument(t *testing.T) {
	t.Parallel()

	doc := `pipeline_name: a
steps:
  - id: s
    type: source
    source_type: static
---
name: b
depends_on: [a]
steps:
  - id: s
    type: source
    source_type: static
`
	root := writeProject(t, map[string]string{"both.yml": doc})

	_, pipelines, err := LoadProject(root)
	require.NoError(t, err)
	require.Len(t, pipelines, 2)
	require.Equal(t, "a", pipelines[0].Name)
	// The name key works as an alias for pipeline_name.
	require.Equal(t, "b", pipelines[1].Name)
	require.Equal(t, []string{"a"}, pipelines[1].DependsOn)
}

func TestLoadPipelinesRecursesSubdirectories(t *testing.T) {
	t.Parallel()

	root := writeProject(t, map[string]string{"events.yml": eventsDoc})
	nested := filepath.Join(root, PipelinesDirName, "marts")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(nested, "mart.yaml"), []byte(`pipeline_name: mart
depends_on: [events]
steps:
  - id: s
    type: source
    source_type: static
`), 0o644))

	_, pipelines, err := LoadProject(root)
	require.NoError(t, err)
	require.Len(t, pipelines, 2)
}

func TestDuplicatePipelineNameFails(t *testing.T) {
	t.Parallel()

	doc := `pipeline_name: dup
steps:
  - id: s
    type: source
    source_type: static
`
	root := writeProject(t, map[string]string{"one.yml": doc, "two.yml": doc})

	_, _, err := LoadProject(root)
	require.Error(t, err)

	var dupErr *dfterrors.DuplicatePipelineError
	require.ErrorAs(t, err, &dupErr)
	require.Equal(t, "dup", dupErr.Name)
}

func TestMissingProjectFileFails(t *testing.T) {
	t.Parallel()

	_, _, err := LoadProject(t.TempDir())
	require.Error(t, err)

	var projErr *dfterrors.ProjectError
	require.ErrorAs(t, err, &projErr)
}

func TestMalformedPipelineFails(t *testing.T) {
	t.Parallel()

	root := writeProject(t, map[string]string{"broken.yml": "pipeline_name: [oops\n"})

	_, _, err := LoadProject(root)
	require.Error(t, err)

	var parseErr *dfterrors.ParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestPipelineWithoutNameFails(t *testing.T) {
	t.Parallel()

	root := writeProject(t, map[string]string{"anon.yml": "description: no name\nsteps:\n  - id: s\n    type: source\n    source_type: static\n"})

	_, _, err := LoadProject(root)
	require.Error(t, err)
	require.Contains(t, err.Error(), "pipeline_name")
}

func TestStateOptionsDefaultToIgnored(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ProjectFileName), []byte("project_name: demo\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, PipelinesDirName), 0o755))

	project, _, err := LoadProject(root)
	require.NoError(t, err)
	require.True(t, project.State.IgnoreInGit)
}
