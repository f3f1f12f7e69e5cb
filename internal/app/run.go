package app

import (
	"context"
	"fmt"

	"github.com/vk/flowmake/internal/ctxlog"
	"github.com/vk/flowmake/internal/dag"
	"github.com/vk/flowmake/internal/executor"
	"github.com/vk/flowmake/internal/job"
)

// Run executes the main application logic based on the provided configuration.
func (a *App) Run(ctx context.Context, appConfig *Config) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	targets, err := a.resolveTargets(appConfig)
	if err != nil {
		return err
	}
	a.logger.Debug("Targets resolved.", "targets", targets)

	builder := dag.NewBuilder(a.workflow.Registry, job.NewExpander(a.cfg))
	graph, err := builder.Plan(ctx, targets)
	if err != nil {
		return fmt.Errorf("failed to build dependency graph: %w", err)
	}
	a.logger.Debug("Dependency graph built.", "node_count", graph.Len())

	opts := executor.Options{
		Targets:       targets,
		Jobs:          appConfig.Jobs,
		DryRun:        appConfig.DryRun,
		PrintCommands: appConfig.PrintCommands,
		ForceAll:      appConfig.ForceAll,
		Out:           a.outW,
	}
	if appConfig.ForceTargets {
		opts.ForceTargets = targets
	}

	if appConfig.DryRun {
		a.logger.Info("Dry run: reporting planned jobs without executing.")
		_, err := executor.New(graph, a.runner, opts).Execute(ctx)
		return err
	}

	a.logger.Info("🚀 Starting concurrent execution...", "jobs", appConfig.Jobs)
	report, err := executor.New(graph, a.runner, opts).Execute(ctx)
	if err != nil {
		return fmt.Errorf("execution failed: %w", err)
	}
	a.logger.Info("🏁 Execution finished.",
		"ran", report.Ran, "up_to_date", report.UpToDate)
	return nil
}

// resolveTargets returns the requested target paths, falling back to the
// outputs of the default target rule when none were given.
func (a *App) resolveTargets(appConfig *Config) ([]string, error) {
	if len(appConfig.Targets) > 0 {
		return appConfig.Targets, nil
	}

	defaultRule, ok := a.workflow.Registry.DefaultTarget()
	if !ok {
		return nil, fmt.Errorf("no targets given and no rule with concrete outputs to default to")
	}
	a.logger.Debug("Using default target rule.", "rule", defaultRule.Name)

	var targets []string
	for _, out := range defaultRule.Outputs {
		path, err := out.Expand(nil)
		if err != nil {
			return nil, err
		}
		targets = append(targets, path)
	}
	return targets, nil
}
