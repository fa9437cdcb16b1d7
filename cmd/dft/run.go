package main

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/dft/internal/engine"
	"github.com/alexisbeaulieu97/dft/internal/state"
)

type runOptions struct {
	selects     []string
	excludes    []string
	vars        []string
	fullRefresh bool
}

func newRunCmd(root *rootFlags) *cobra.Command {
	opts := runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute selected pipelines in dependency order",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := prepare(root)
			if err != nil {
				return err
			}

			overrides, err := parseVars(opts.vars)
			if err != nil {
				return err
			}

			orchestrator := &engine.Orchestrator{
				Project:     app.Project,
				Pipelines:   app.Pipelines,
				Factory:     app.Factory,
				Store:       state.NewStore(app.Project.Root),
				Log:         app.Log,
				Overrides:   overrides,
				FullRefresh: opts.fullRefresh,
				RunID:       uuid.NewString(),
			}

			summary, err := orchestrator.Run(cmd.Context(), opts.selects, opts.excludes)
			if err != nil {
				return err
			}

			fmt.Fprint(cmd.OutOrStdout(), renderSummary(summary))
			if summary.Failed() {
				return errRunFailed
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&opts.selects, "select", "s", nil, "Selector expression (repeatable)")
	cmd.Flags().StringArrayVar(&opts.excludes, "exclude", nil, "Exclusion expression (repeatable)")
	cmd.Flags().StringArrayVar(&opts.vars, "vars", nil, "Variable overrides k=v[,k=v...] (repeatable)")
	cmd.Flags().BoolVar(&opts.fullRefresh, "full-refresh", false, "Reset microbatch cursors to begin")

	return cmd
}

// parseVars turns --vars k=v[,k=v...] occurrences into the override layer.
func parseVars(entries []string) (map[string]any, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	out := make(map[string]any)
	for _, entry := range entries {
		for _, pair := range strings.Split(entry, ",") {
			pair = strings.TrimSpace(pair)
			if pair == "" {
				continue
			}
			key, value, found := strings.Cut(pair, "=")
			if !found || key == "" {
				return nil, fmt.Errorf("invalid --vars entry %q, want k=v", pair)
			}
			out[strings.TrimSpace(key)] = strings.TrimSpace(value)
		}
	}
	return out, nil
}
