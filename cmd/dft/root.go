package main

import (
	"github.com/spf13/cobra"
)

type rootFlags struct {
	projectDir string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "dft",
		Short:         "dft runs configuration-driven ETL pipelines",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().StringVarP(&flags.projectDir, "project-dir", "p", ".", "Path to the project directory")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")

	cmd.AddCommand(newRunCmd(flags))
	cmd.AddCommand(newValidateCmd(flags))
	cmd.AddCommand(newDepsCmd(flags))
	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newUpdateGitignoreCmd(flags))
	cmd.AddCommand(newVersionCmd())

	return cmd
}
