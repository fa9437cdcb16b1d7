package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	dfterrors "github.com/alexisbeaulieu97/dft/pkg/errors"
)

// Exit codes per the CLI contract.
const (
	exitOK        = 0
	exitRunFailed = 1
	exitConfig    = 2
	exitSelector  = 3
)

// errRunFailed marks a run that completed with failed or skipped pipelines.
var errRunFailed = errors.New("one or more pipelines failed")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errRunFailed) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(exitCodeFor(err))
	}
}

func exitCodeFor(err error) int {
	if err == nil {
		return exitOK
	}
	if errors.Is(err, errRunFailed) {
		return exitRunFailed
	}

	var selectorErr *dfterrors.SelectorError
	if errors.As(err, &selectorErr) {
		return exitSelector
	}

	var (
		projectErr    *dfterrors.ProjectError
		parseErr      *dfterrors.ParseError
		duplicateErr  *dfterrors.DuplicatePipelineError
		dependencyErr *dfterrors.DependencyError
		cycleErr      *dfterrors.CycleError
		microbatchErr *dfterrors.MicrobatchError
	)
	switch {
	case errors.As(err, &projectErr),
		errors.As(err, &parseErr),
		errors.As(err, &duplicateErr),
		errors.As(err, &dependencyErr),
		errors.As(err, &cycleErr),
		errors.As(err, &microbatchErr):
		return exitConfig
	}

	return exitConfig
}
