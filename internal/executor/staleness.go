package executor

import (
	"context"
	"os"
	"time"

	"github.com/vk/flowmake/internal/ctxlog"
	"github.com/vk/flowmake/internal/job"
	"github.com/vk/flowmake/internal/node"
)

// computeRunSet decides, before anything runs, which jobs must execute. The
// decision is demand driven from the requested targets: a job is seeded into
// the run set when it is forced, when a requested output is missing, or when
// an existing output is older than an existing input. Demand then flows both
// ways until stable: a running job pulls in the producers of its missing
// inputs, and pushes a rerun onto every consumer of its outputs. An output
// that is merely absent, like a temporary intermediate removed by an earlier
// run, triggers nothing while the requested targets stay fresh.
func (e *Executor) computeRunSet(ctx context.Context, order []*node.Node) map[string]bool {
	logger := ctxlog.FromContext(ctx)

	requested := make(map[string]bool, len(e.opts.Targets))
	for _, target := range e.opts.Targets {
		requested[target] = true
	}
	forced := make(map[string]bool, len(e.opts.ForceTargets))
	for _, target := range e.opts.ForceTargets {
		if n, ok := e.graph.Producer(target); ok && n.Kind == node.JobNode {
			forced[n.ID()] = true
		}
	}

	mustRun := make(map[string]bool, len(order))
	reasons := make(map[string]string, len(order))
	for _, n := range order {
		if n.Kind != node.JobNode {
			continue
		}
		switch {
		case e.opts.ForceAll || forced[n.ID()]:
			mustRun[n.ID()] = true
			reasons[n.ID()] = "forced"
		case jobStale(n.Job, requested):
			mustRun[n.ID()] = true
			reasons[n.ID()] = "outputs missing or outdated"
		}
	}

	for changed := true; changed; {
		changed = false
		for _, n := range order {
			if n.Kind != node.JobNode || !mustRun[n.ID()] {
				continue
			}
			for _, in := range n.Job.Inputs {
				if _, err := os.Stat(in); err == nil {
					continue
				}
				p, ok := e.graph.Producer(in)
				if ok && p.Kind == node.JobNode && !mustRun[p.ID()] {
					mustRun[p.ID()] = true
					reasons[p.ID()] = "provides a missing input"
					changed = true
				}
			}
			dependents, err := e.graph.Dependents(n.ID())
			if err != nil {
				continue
			}
			for _, d := range dependents {
				if d.Kind == node.JobNode && !mustRun[d.ID()] {
					mustRun[d.ID()] = true
					reasons[d.ID()] = "input will be rebuilt"
					changed = true
				}
			}
		}
	}

	for id, reason := range reasons {
		logger.Debug("Job scheduled.", "job", id, "reason", reason)
	}
	return mustRun
}

// jobStale reports whether the job's on-disk state demands a run by itself: a
// requested output is missing, or an existing output is older than an
// existing input. Missing inputs and missing unrequested outputs are judged
// by the demand propagation above, not here.
func jobStale(j *job.Job, requested map[string]bool) bool {
	var newestInput time.Time
	for _, in := range j.Inputs {
		if fi, err := os.Stat(in); err == nil && fi.ModTime().After(newestInput) {
			newestInput = fi.ModTime()
		}
	}
	for _, out := range j.Outputs {
		fi, err := os.Stat(out)
		if err != nil {
			if requested[out] {
				return true
			}
			continue
		}
		if fi.ModTime().Before(newestInput) {
			return true
		}
	}
	return false
}
