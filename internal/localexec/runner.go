// Package localexec runs job commands on the local machine through the
// shell. It is the default implementation of the executor's Runner boundary.
package localexec

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/vk/flowmake/internal/ctxlog"
	"github.com/vk/flowmake/internal/job"
)

// Runner executes shell commands with `sh -c`.
type Runner struct {
	// Stdout and Stderr receive the command's output streams.
	Stdout io.Writer
	Stderr io.Writer
}

// New creates a runner wired to the process's own stdout and stderr.
func New() *Runner {
	return &Runner{Stdout: os.Stdout, Stderr: os.Stderr}
}

// Run creates the output directories and executes the job's command,
// removing any outputs the command left behind on failure so a later run
// never trusts half-written files.
func (r *Runner) Run(ctx context.Context, j *job.Job) error {
	logger := ctxlog.FromContext(ctx)

	for _, out := range j.Outputs {
		if dir := filepath.Dir(out); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("creating output directory for %s: %w", out, err)
			}
		}
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", j.Shell)
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr

	logger.Debug("Running shell command.", "job", j.ID(), "command", j.Shell)
	if err := cmd.Run(); err != nil {
		for _, out := range j.Outputs {
			if rmErr := os.Remove(out); rmErr == nil {
				logger.Warn("Removed incomplete output of failed job.", "path", out)
			}
		}
		return fmt.Errorf("shell command failed: %w", err)
	}

	for _, out := range j.Outputs {
		if _, err := os.Stat(out); err != nil {
			return fmt.Errorf("job %s finished but did not produce output %s", j.ID(), out)
		}
	}
	return nil
}
