// Package cli parses the command line into an app.Config.
package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/vk/flowmake/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// stringList collects repeated flag occurrences.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(value string) error {
	*s = append(*s, value)
	return nil
}

// Parse processes command-line arguments. It returns a populated app.Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	flagSet := flag.NewFlagSet("flowmake", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
flowmake - a rule-based workflow engine for file-producing pipelines.

Usage:
  flowmake [options] [TARGET ...]

Arguments:
  TARGET
    Output file path(s) to build. Without targets, the first rule with
    concrete outputs is built.

Options:
`)
		flagSet.PrintDefaults()
	}

	rulesFlag := flagSet.String("rules", "rules", "Path to a workflow .hcl file or a directory of them.")
	rFlag := flagSet.String("r", "", "Path to the workflow file or directory (shorthand).")
	configFileFlag := flagSet.String("configfile", "", "Config file overriding the workflow-declared one.")
	var overrides stringList
	flagSet.Var(&overrides, "config", "Config override as key=value. May be repeated.")
	dryRunFlag := flagSet.Bool("n", false, "Dry run: report planned jobs without executing.")
	printFlag := flagSet.Bool("p", false, "Print each shell command before running it.")
	forceFlag := flagSet.Bool("f", false, "Force re-run of the jobs producing the requested targets.")
	forceAllFlag := flagSet.Bool("F", false, "Force re-run of every job in the plan.")
	jobsFlag := flagSet.Int("j", 1, "Number of concurrent threads the run may use.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "warn", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	rulesPath := *rulesFlag
	if *rFlag != "" {
		rulesPath = *rFlag
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	if *jobsFlag < 1 {
		return nil, false, &ExitError{Code: 2, Message: "invalid -j: must be at least 1"}
	}

	config, err := app.NewConfig(app.Config{
		RulesPath:       rulesPath,
		Targets:         flagSet.Args(),
		ConfigFile:      *configFileFlag,
		ConfigOverrides: overrides,
		DryRun:          *dryRunFlag,
		PrintCommands:   *printFlag,
		ForceTargets:    *forceFlag,
		ForceAll:        *forceAllFlag,
		Jobs:            *jobsFlag,
		LogFormat:       logFormat,
		LogLevel:        logLevel,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	return config, false, nil
}
