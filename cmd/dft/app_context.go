package main

import (
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/alexisbeaulieu97/dft/internal/component"
	"github.com/alexisbeaulieu97/dft/internal/components"
	"github.com/alexisbeaulieu97/dft/internal/config"
	"github.com/alexisbeaulieu97/dft/internal/logger"
)

// AppContext bundles everything a subcommand needs after project load.
type AppContext struct {
	Project   *config.Project
	Pipelines []*config.Pipeline
	Factory   *component.Factory
	Log       *logger.Logger
}

// prepare loads .env, the project, and all pipeline declarations, and wires
// the component factory. The .env file is loaded once, before anything
// resolves selectors or environment variables.
func prepare(flags *rootFlags) (*AppContext, error) {
	root := flags.projectDir

	// Missing .env is fine; a broken one is not worth failing the run over
	// either, godotenv only errors on unreadable files here.
	_ = godotenv.Load(filepath.Join(root, ".env"))

	project, pipelines, err := config.LoadProject(root)
	if err != nil {
		return nil, err
	}

	level := project.Logging.Level
	if flags.logLevel != "" {
		level = flags.logLevel
	}
	if level == "" {
		level = "info"
	}

	log, err := logger.New(logger.Options{Level: level, HumanReadable: true})
	if err != nil {
		return nil, err
	}

	factory := component.NewFactory()
	components.RegisterBuiltins(factory)

	return &AppContext{
		Project:   project,
		Pipelines: pipelines,
		Factory:   factory,
		Log:       log,
	}, nil
}
