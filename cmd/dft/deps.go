package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/dft/internal/config"
	"github.com/alexisbeaulieu97/dft/internal/engine"
)

func newDepsCmd(root *rootFlags) *cobra.Command {
	var selects []string

	cmd := &cobra.Command{
		Use:   "deps",
		Short: "Print the resolved pipeline graph in execution order",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := prepare(root)
			if err != nil {
				return err
			}

			graph, err := engine.BuildPipelineGraph(app.Pipelines)
			if err != nil {
				return err
			}
			if err := graph.CycleCheck(); err != nil {
				return err
			}

			selected, err := engine.NewSelector(graph, app.Pipelines).Select(selects, nil)
			if err != nil {
				return err
			}

			byName := config.PipelineMap(app.Pipelines)
			for _, name := range selected {
				pipeline := byName[name]

				line := name
				if len(pipeline.Tags) > 0 {
					line += fmt.Sprintf("  [%s]", strings.Join(pipeline.Tags, ", "))
				}
				fmt.Fprintln(cmd.OutOrStdout(), line)

				for _, upstream := range pipeline.DependsOn {
					fmt.Fprintf(cmd.OutOrStdout(), "  <- %s\n", upstream)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&selects, "select", "s", nil, "Selector expression (repeatable)")

	return cmd
}
