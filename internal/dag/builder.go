package dag

import (
	"context"
	"fmt"
	"os"

	"github.com/vk/flowmake/internal/ctxlog"
	"github.com/vk/flowmake/internal/job"
	"github.com/vk/flowmake/internal/node"
	"github.com/vk/flowmake/internal/rule"
	"github.com/vk/flowmake/internal/wildcard"
)

// Builder resolves requested targets to the jobs that produce them,
// depth-first with memoization by concrete path.
type Builder struct {
	registry *rule.Registry
	expander *job.Expander
}

// NewBuilder creates a planner over the given rules and configuration-bound
// expander.
func NewBuilder(registry *rule.Registry, expander *job.Expander) *Builder {
	return &Builder{registry: registry, expander: expander}
}

// candidate is one rule whose output pattern matched a target.
type candidate struct {
	rule    *rule.Rule
	binding wildcard.Binding
}

// Plan builds the dependency graph covering exactly the jobs needed to
// produce the requested targets. Any planning error (missing rule,
// ambiguity, cycle, bad expansion) aborts the whole plan.
func (b *Builder) Plan(ctx context.Context, targets []string) (*Graph, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Plan: starting target resolution.", "targets", targets)

	graph := New()
	memo := make(map[string]*node.Node)
	resolving := make(map[string]bool)
	var stack []string

	var resolve func(target string) (*node.Node, error)
	resolve = func(target string) (*node.Node, error) {
		// The in-progress check must precede the memo lookup: a job's outputs
		// are memoized before its inputs are resolved, so a back-edge to an
		// in-flight job would otherwise be served from the memo.
		if resolving[target] {
			return nil, &CycleError{Path: append(append([]string{}, stack...), target)}
		}
		if n, ok := memo[target]; ok {
			return n, nil
		}

		cands, err := b.matchRules(target)
		if err != nil {
			return nil, err
		}

		if len(cands) == 0 {
			if _, statErr := os.Stat(target); statErr != nil {
				return nil, &NoRuleError{Target: target}
			}
			leaf := node.NewFileNode(target)
			graph.AddNode(leaf)
			memo[target] = leaf
			logger.Debug("Plan: leaf file.", "path", target)
			return leaf, nil
		}

		chosen, err := selectCandidate(target, cands)
		if err != nil {
			return nil, err
		}

		j, err := b.expander.Expand(chosen.rule, chosen.binding)
		if err != nil {
			return nil, err
		}
		jobNode := node.NewJobNode(j)
		graph.AddNode(jobNode)
		for _, out := range j.Outputs {
			memo[out] = jobNode
		}
		logger.Debug("Plan: job expanded.", "job", j.ID(), "inputs", len(j.Inputs))

		for _, out := range j.Outputs {
			resolving[out] = true
		}
		stack = append(stack, target)

		for _, input := range j.Inputs {
			dep, err := resolve(input)
			if err != nil {
				return nil, err
			}
			if err := graph.AddEdge(dep.ID(), jobNode.ID()); err != nil {
				return nil, fmt.Errorf("linking %s -> %s: %w", dep.ID(), jobNode.ID(), err)
			}
		}

		stack = stack[:len(stack)-1]
		for _, out := range j.Outputs {
			delete(resolving, out)
		}
		return jobNode, nil
	}

	for _, target := range targets {
		if _, err := resolve(target); err != nil {
			return nil, err
		}
	}

	graph.producers = memo
	graph.InitCounters()
	if err := graph.DetectCycles(); err != nil {
		return nil, err
	}
	logger.Debug("Plan: graph complete.", "nodes", graph.Len())
	return graph, nil
}

// matchRules collects every rule with an output pattern matching the target.
// A rule contributes at most one candidate even if several of its outputs
// match.
func (b *Builder) matchRules(target string) ([]candidate, error) {
	var cands []candidate
	for _, r := range b.registry.All() {
		for _, out := range r.Outputs {
			binding, ok, err := out.Match(target)
			if err != nil {
				return nil, fmt.Errorf("rule %q: matching %q: %w", r.Name, target, err)
			}
			if ok {
				cands = append(cands, candidate{rule: r, binding: binding})
				break
			}
		}
	}
	return cands, nil
}

// selectCandidate applies the ambiguity policy: a single match wins; among
// several, a unique non-fallback rule wins; everything else is an error
// naming all contenders.
func selectCandidate(target string, cands []candidate) (candidate, error) {
	if len(cands) == 1 {
		return cands[0], nil
	}

	var nonFallback []candidate
	for _, c := range cands {
		if !c.rule.Fallback {
			nonFallback = append(nonFallback, c)
		}
	}
	if len(nonFallback) == 1 {
		return nonFallback[0], nil
	}

	names := make([]string, 0, len(cands))
	for _, c := range cands {
		names = append(names, c.rule.Name)
	}
	return candidate{}, &AmbiguousRuleError{Target: target, Rules: names}
}
