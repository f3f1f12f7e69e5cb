package app

import "errors"

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	// RulesPath is a workflow .hcl file or a directory of them.
	RulesPath string
	// Targets are the requested output paths. Empty means the default
	// target rule.
	Targets []string

	// ConfigFile overrides the workflow-declared config file.
	ConfigFile string
	// ConfigOverrides are "key=value" entries from repeated -config flags.
	ConfigOverrides []string

	DryRun        bool
	PrintCommands bool
	// ForceTargets re-runs the jobs producing the requested targets.
	ForceTargets bool
	// ForceAll re-runs every job in the plan.
	ForceAll bool
	// Jobs is the parallelism budget.
	Jobs int

	LogFormat string
	LogLevel  string
}

// NewConfig validates a Config and returns it.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.RulesPath == "" {
		return nil, errors.New("a rules path is required and cannot be empty")
	}
	if cfg.Jobs < 1 {
		cfg.Jobs = 1
	}
	return &cfg, nil
}
