// Package app wires the pieces of a run together: loading the workflow,
// resolving the configuration, planning the graph and executing it.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/vk/flowmake/internal/ctxlog"
	"github.com/vk/flowmake/internal/executor"
	"github.com/vk/flowmake/internal/hcl"
	"github.com/vk/flowmake/internal/runcfg"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	workflow *hcl.Workflow
	cfg      *runcfg.Map
	runner   executor.Runner
}

// NewApp loads the workflow and resolves the configuration, returning a
// fully initialized App with its own isolated logger.
func NewApp(outW io.Writer, appConfig *Config, loader *hcl.Loader, runner executor.Runner) (*App, error) {
	logger := newLogger(appConfig.LogLevel, appConfig.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	workflow, err := loader.Load(ctx, appConfig.RulesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow: %w", err)
	}
	logger.Debug("Workflow loaded.", "rules", workflow.Registry.Len())

	cfg, err := runcfg.Resolve(workflow.ConfigFile, appConfig.ConfigFile, appConfig.ConfigOverrides)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve configuration: %w", err)
	}
	logger.Debug("Configuration resolved.", "keys", cfg.Keys())

	return &App{
		outW:     outW,
		logger:   logger,
		workflow: workflow,
		cfg:      cfg,
		runner:   runner,
	}, nil
}

// Workflow returns the loaded workflow model. This is primarily for testing.
func (a *App) Workflow() *hcl.Workflow {
	return a.workflow
}
