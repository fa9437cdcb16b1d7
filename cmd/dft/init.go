package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/dft/internal/config"
)

const projectTemplate = `project_name: %s

state:
  ignore_in_git: true

connections: {}

variables: {}

logging:
  level: info
`

const examplePipeline = `pipeline_name: example
description: Copies a static table to the console.
tags: [example]

steps:
  - id: extract
    type: source
    source_type: static
    config:
      columns: [id, name]
      rows:
        - [1, alice]
        - [2, bob]

  - id: load
    type: endpoint
    endpoint_type: console
    depends_on: [extract]
    config:
      print_rows: true
`

const envStub = `# Environment variables for this project. Loaded by dft run, validate and deps.
`

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init <name>",
		Short: "Scaffold a new project directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			if _, err := os.Stat(name); err == nil {
				return fmt.Errorf("directory %q already exists", name)
			}

			if err := os.MkdirAll(filepath.Join(name, config.PipelinesDirName), 0o755); err != nil {
				return err
			}

			files := map[string]string{
				filepath.Join(name, config.ProjectFileName):                 fmt.Sprintf(projectTemplate, name),
				filepath.Join(name, config.PipelinesDirName, "example.yml"): examplePipeline,
				filepath.Join(name, ".env"):                                 envStub,
				filepath.Join(name, ".gitignore"):                           ".dft/\n.env\n",
			}
			for path, content := range files {
				if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
					return err
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "created project %q\n", name)
			fmt.Fprintf(cmd.OutOrStdout(), "next: cd %s && dft run\n", name)
			return nil
		},
	}

	return cmd
}
