// Package job turns a matched rule into a concrete, fully-bound unit of
// work: resolved input and output paths, evaluated parameters, and a shell
// command ready to hand to a runner.
package job

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vk/flowmake/internal/rule"
	"github.com/vk/flowmake/internal/wildcard"
)

// Job is one concrete instantiation of a rule. Jobs are pure descriptions;
// nothing here touches the filesystem or runs commands.
type Job struct {
	// Rule is the template this job was expanded from.
	Rule *rule.Rule
	// Binding holds the wildcard values that concretized the rule.
	Binding wildcard.Binding
	// Inputs and Outputs are the concrete file paths.
	Inputs  []string
	Outputs []string
	// Params are the evaluated parameter values, rendered as strings.
	Params map[string]string
	// Shell is the fully substituted command.
	Shell string
	// Threads is the parallelism weight inherited from the rule.
	Threads int
	// Message is the optional description inherited from the rule.
	Message string
}

// ID returns a stable human-readable identifier: the rule name plus the
// wildcard binding, e.g. `align[sample=wt_a]`.
func (j *Job) ID() string {
	if len(j.Binding) == 0 {
		return j.Rule.Name
	}
	keys := make([]string, 0, len(j.Binding))
	for k := range j.Binding {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, j.Binding[k]))
	}
	return fmt.Sprintf("%s[%s]", j.Rule.Name, strings.Join(parts, ","))
}
