package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/dft/internal/config"
	"github.com/alexisbeaulieu97/dft/internal/state"
)

func newUpdateGitignoreCmd(root *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update-gitignore",
		Short: "Reconcile the state directory ignore entry with state.ignore_in_git",
		RunE: func(cmd *cobra.Command, args []string) error {
			project, err := config.ParseProjectFile(filepath.Join(root.projectDir, config.ProjectFileName))
			if err != nil {
				return err
			}

			msg, err := state.ReconcileGitignore(root.projectDir, project.State.IgnoreInGit)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}

	return cmd
}
