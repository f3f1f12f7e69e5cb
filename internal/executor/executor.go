// Package executor runs a planned dependency graph: a bounded worker pool
// consumes ready nodes from a channel, jobs acquire weight from a shared
// thread budget, and failures skip dependents without stopping independent
// work. The graph itself is read-only here; all run-state lives on nodes.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/vk/flowmake/internal/ctxlog"
	"github.com/vk/flowmake/internal/dag"
	"github.com/vk/flowmake/internal/job"
	"github.com/vk/flowmake/internal/node"
)

// Runner executes one job's shell command. It is the boundary to the outside
// world; tests substitute fakes and dry runs never call it.
type Runner interface {
	Run(ctx context.Context, j *job.Job) error
}

// Options configure one execution of a plan.
type Options struct {
	// Jobs is the parallelism budget: the worker count and the total thread
	// weight runnable at once. Values below 1 mean 1.
	Jobs int
	// Targets lists the concrete paths this run was asked to produce.
	// On-disk staleness is judged against these.
	Targets []string
	// DryRun reports the planned commands in dependency order without
	// executing anything or touching the filesystem.
	DryRun bool
	// PrintCommands echoes each shell command to Out as it is dispatched.
	PrintCommands bool
	// ForceAll re-runs every job regardless of timestamps.
	ForceAll bool
	// ForceTargets re-runs the jobs producing these concrete paths
	// regardless of timestamps.
	ForceTargets []string
	// Out receives dry-run listings and echoed commands.
	Out io.Writer
}

// Executor orchestrates the end-to-end execution of one dependency graph.
type Executor struct {
	graph  *dag.Graph
	runner Runner
	opts   Options

	wg sync.WaitGroup
	// sem meters the thread budget shared by all running jobs.
	sem *semaphore.Weighted
	// mustRun marks the node IDs that are stale or forced. Computed once
	// before workers start, read-only after.
	mustRun map[string]bool
}

// New creates an executor for the given graph.
func New(graph *dag.Graph, runner Runner, opts Options) *Executor {
	if opts.Jobs < 1 {
		opts.Jobs = 1
	}
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	return &Executor{
		graph:  graph,
		runner: runner,
		opts:   opts,
		sem:    semaphore.NewWeighted(int64(opts.Jobs)),
	}
}

// Execute runs the plan. In dry-run mode it only writes the ordered command
// list to Out. The returned Report is valid even when err is non-nil; err
// aggregates the per-job failures.
func (e *Executor) Execute(ctx context.Context) (*Report, error) {
	logger := ctxlog.FromContext(ctx)

	order, err := e.graph.TopoOrder()
	if err != nil {
		return nil, err
	}

	report := &Report{}
	e.mustRun = e.computeRunSet(ctx, order)
	for _, n := range order {
		if e.mustRun[n.ID()] {
			report.Planned = append(report.Planned, n.ID())
			report.Commands = append(report.Commands, n.Job.Shell)
		}
	}
	logger.Debug("Run set computed.", "total_nodes", len(order), "to_run", len(report.Planned))

	if e.opts.DryRun {
		for i, id := range report.Planned {
			fmt.Fprintf(e.opts.Out, "job %s:\n\t%s\n", id, report.Commands[i])
		}
		fmt.Fprintf(e.opts.Out, "%d job(s) would run, %d up to date.\n",
			len(report.Planned), e.upToDateCount(order))
		return report, nil
	}

	readyChan := make(chan *node.Node, e.graph.Len())
	rootCount := 0
	for _, n := range e.graph.Nodes() {
		if n.DepCount() == 0 {
			readyChan <- n
			rootCount++
		}
	}
	logger.Debug("Found all root nodes.", "count", rootCount)

	e.wg.Add(e.graph.Len())

	logger.Debug("Starting worker pool.", "workers", e.opts.Jobs)
	for i := 0; i < e.opts.Jobs; i++ {
		go e.worker(ctx, readyChan, i)
	}

	e.wg.Wait()
	close(readyChan)

	e.tally(report)
	if len(report.Failed) > 0 {
		return report, fmt.Errorf("execution failed for %s: %w",
			strings.Join(report.Failed, ", "), e.rootCause())
	}
	return report, nil
}

// rootCause returns the first real per-job error, ignoring the synthetic
// skipped-because-of-upstream errors.
func (e *Executor) rootCause() error {
	for _, n := range e.graph.Nodes() {
		if n.GetState() != node.Failed || n.Error == nil {
			continue
		}
		var upstream *UpstreamError
		if errors.As(n.Error, &upstream) || errors.Is(n.Error, context.Canceled) {
			continue
		}
		return n.Error
	}
	return errors.New("job failed")
}

func (e *Executor) upToDateCount(order []*node.Node) int {
	count := 0
	for _, n := range order {
		if n.Kind == node.JobNode && !e.mustRun[n.ID()] {
			count++
		}
	}
	return count
}

func (e *Executor) tally(report *Report) {
	for _, n := range e.graph.Nodes() {
		if n.Kind != node.JobNode {
			continue
		}
		switch n.GetState() {
		case node.Done:
			report.Ran++
		case node.UpToDate:
			report.UpToDate++
		case node.Failed:
			var upstream *UpstreamError
			if errors.As(n.Error, &upstream) {
				report.Skipped = append(report.Skipped, n.ID())
			} else {
				report.Failed = append(report.Failed, n.ID())
			}
		}
	}
}

// Report summarizes one execution.
type Report struct {
	// Planned lists the IDs of jobs that are stale or forced, in dependency
	// order, with Commands holding the matching shell commands.
	Planned  []string
	Commands []string
	// Ran and UpToDate count jobs executed and jobs skipped as fresh.
	Ran      int
	UpToDate int
	// Failed lists jobs whose command failed; Skipped lists jobs not run
	// because something upstream failed.
	Failed  []string
	Skipped []string
}
