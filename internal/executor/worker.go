package executor

import (
	"context"
	"fmt"
	"os"

	"github.com/vk/flowmake/internal/ctxlog"
	"github.com/vk/flowmake/internal/node"
)

// worker is the core processing loop for a single concurrent worker.
func (e *Executor) worker(ctx context.Context, readyChan chan *node.Node, workerID int) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Worker started.", "workerID", workerID)

	for n := range readyChan {
		workerLogger := logger.With("workerID", workerID, "nodeID", n.ID())

		if ctx.Err() != nil {
			n.Skip(ctx.Err(), &e.wg)
			continue
		}

		if n.Kind == node.FileNode {
			if n.TryFinish(node.Done) {
				e.finish(ctx, n, readyChan)
			}
			continue
		}

		if !e.mustRun[n.ID()] {
			if n.TryFinish(node.UpToDate) {
				workerLogger.Debug("Job is up to date, skipping.")
				e.finish(ctx, n, readyChan)
			}
			continue
		}

		if !n.TryStart() {
			// Already skipped after an upstream failure.
			continue
		}

		weight := int64(n.Job.Threads)
		if weight > int64(e.opts.Jobs) {
			weight = int64(e.opts.Jobs)
		}
		if err := e.sem.Acquire(ctx, weight); err != nil {
			n.SetState(node.Failed)
			n.Error = err
			e.wg.Done()
			continue
		}

		workerLogger.Debug("Worker picked up job for execution.", "threads", weight)
		if n.Job.Message != "" {
			workerLogger.Info(n.Job.Message, "job", n.ID())
		}
		if e.opts.PrintCommands {
			fmt.Fprintln(e.opts.Out, n.Job.Shell)
		}

		err := e.runner.Run(ctx, n.Job)
		e.sem.Release(weight)

		if err != nil {
			workerLogger.Error("Job execution failed.", "error", err)
			n.SetState(node.Failed)
			n.Error = err
			e.skipDependents(ctx, n)
			e.wg.Done()
			continue
		}

		workerLogger.Debug("Job execution succeeded.")
		n.SetState(node.Done)
		e.finish(ctx, n, readyChan)
	}
	logger.Debug("Worker finished.", "workerID", workerID)
}

// finish completes a successful (or up-to-date) node: dependents with no
// remaining unmet dependencies are released to the pool, temp outputs with no
// pending consumers are removed, and the run WaitGroup is decremented.
func (e *Executor) finish(ctx context.Context, n *node.Node, readyChan chan *node.Node) {
	logger := ctxlog.FromContext(ctx)

	dependents, err := e.graph.Dependents(n.ID())
	if err != nil {
		logger.Error("Failed to get dependents for completed node.", "nodeID", n.ID(), "error", err)
	} else {
		for _, dependent := range dependents {
			if dependent.DecrementDepCount() == 0 {
				logger.Debug("Unlocking dependent node.", "dependentID", dependent.ID())
				readyChan <- dependent
			}
		}
	}

	if n.Kind == node.JobNode {
		deps, err := e.graph.Dependencies(n.ID())
		if err != nil {
			logger.Error("Failed to get dependencies for completed node.", "nodeID", n.ID(), "error", err)
		} else {
			for _, dep := range deps {
				if dep.DecrementConsumerCount() == 0 && dep.Kind == node.JobNode && dep.Job.Rule.Temp {
					e.removeTempOutputs(ctx, dep)
				}
			}
		}
	}

	e.wg.Done()
}

// removeTempOutputs deletes the outputs of a temp-marked job once nothing
// pending consumes them.
func (e *Executor) removeTempOutputs(ctx context.Context, n *node.Node) {
	logger := ctxlog.FromContext(ctx)
	n.Cleanup(func() {
		for _, out := range n.Job.Outputs {
			if err := os.Remove(out); err != nil && !os.IsNotExist(err) {
				logger.Warn("Failed to remove temporary output.", "path", out, "error", err)
				continue
			}
			logger.Debug("Removed temporary output.", "path", out)
		}
	})
}

// UpstreamError marks a job that never ran because a dependency failed. The
// report uses the type to tell skipped jobs apart from real failures.
type UpstreamError struct {
	DependencyID string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("skipped due to upstream failure of '%s'", e.DependencyID)
}

// skipDependents recursively marks all downstream nodes as failed.
func (e *Executor) skipDependents(ctx context.Context, n *node.Node) {
	logger := ctxlog.FromContext(ctx)

	dependents, err := e.graph.Dependents(n.ID())
	if err != nil {
		logger.Error("Failed to get dependents while skipping nodes.", "nodeID", n.ID(), "error", err)
		return
	}

	for _, dependent := range dependents {
		err := &UpstreamError{DependencyID: n.ID()}
		if dependent.Skip(err, &e.wg) {
			logger.Warn("Skipping dependent node due to upstream failure.",
				"nodeID", dependent.ID(), "dependency", n.ID())
			e.skipDependents(ctx, dependent)
		}
	}
}
