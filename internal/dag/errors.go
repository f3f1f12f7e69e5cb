package dag

import (
	"fmt"
	"strings"
)

// NoRuleError reports a target that no rule produces and that does not exist
// on disk.
type NoRuleError struct {
	Target string
}

func (e *NoRuleError) Error() string {
	return fmt.Sprintf("no rule to make target %q (and no such file exists)", e.Target)
}

// AmbiguousRuleError reports a target matched by more than one rule with no
// fallback tie-break.
type AmbiguousRuleError struct {
	Target string
	Rules  []string
}

func (e *AmbiguousRuleError) Error() string {
	return fmt.Sprintf("ambiguous rules for target %q: %s both/all match; mark one with fallback = true or disambiguate the output patterns",
		e.Target, strings.Join(e.Rules, ", "))
}

// CycleError reports a dependency cycle, with the chain of targets that
// closes it.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cyclic dependency: %s", strings.Join(e.Path, " -> "))
}
