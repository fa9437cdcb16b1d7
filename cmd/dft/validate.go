package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/dft/internal/engine"
	"github.com/alexisbeaulieu97/dft/internal/state"
)

func newValidateCmd(root *rootFlags) *cobra.Command {
	var selects []string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the project without executing anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := prepare(root)
			if err != nil {
				return err
			}

			orchestrator := &engine.Orchestrator{
				Project:   app.Project,
				Pipelines: app.Pipelines,
				Factory:   app.Factory,
				Store:     state.NewStore(app.Project.Root),
				Log:       app.Log,
			}

			errs := orchestrator.Validate()
			if len(errs) > 0 {
				for _, err := range errs {
					fmt.Fprintln(cmd.ErrOrStderr(), err)
				}
				return errs[0]
			}

			// Selector resolution is part of validation when --select is given.
			if len(selects) > 0 {
				graph, err := engine.BuildPipelineGraph(app.Pipelines)
				if err != nil {
					return err
				}
				if _, err := engine.NewSelector(graph, app.Pipelines).Select(selects, nil); err != nil {
					return err
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "project %q is valid: %d pipeline(s)\n", app.Project.ProjectName, len(app.Pipelines))
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&selects, "select", "s", nil, "Selector expression (repeatable)")

	return cmd
}
