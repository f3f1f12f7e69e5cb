// Package rule defines the format-agnostic rule model and the registry that
// holds every rule declared by a workflow.
package rule

import (
	"github.com/hashicorp/hcl/v2"

	"github.com/vk/flowmake/internal/wildcard"
)

// Rule is a template describing how to produce output files from input files.
// A Rule is immutable once registered; concrete jobs are produced by binding
// its wildcards to values.
type Rule struct {
	// Name is the unique rule identifier.
	Name string
	// Outputs are the path patterns this rule produces.
	Outputs []*wildcard.Pattern
	// Inputs are the path patterns this rule consumes. Every wildcard used in
	// an input must also appear in an output, so that matching an output
	// binds everything needed to concretize the inputs.
	Inputs []*wildcard.Pattern
	// Params holds the unevaluated parameter expressions, keyed by parameter
	// name. They are evaluated per job against the wildcard binding and the
	// config lookup functions.
	Params map[string]hcl.Expression
	// Shell is the command template with {placeholder} substitution slots.
	Shell string
	// Threads is the weight a job of this rule consumes from the run's
	// parallelism budget. Always at least 1.
	Threads int
	// Temp marks the outputs as temporary: they are removed once no pending
	// job consumes them.
	Temp bool
	// Fallback marks the rule as the designated tie-breaker: when a target
	// matches several rules, a unique non-fallback match wins and a fallback
	// rule is only chosen when nothing else matches.
	Fallback bool
	// Message is an optional human-readable description logged at job start.
	Message string
	// SourceFile records where the rule was declared, for diagnostics.
	SourceFile string
}

// HasWildcards reports whether any output pattern contains a wildcard. Rules
// without output wildcards are concrete and eligible as the default target.
func (r *Rule) HasWildcards() bool {
	for _, p := range r.Outputs {
		if p.HasWildcards() {
			return true
		}
	}
	return false
}
