package rule

import "fmt"

// DuplicateRuleError reports a second registration under an already-used name.
type DuplicateRuleError struct {
	Name       string
	SourceFile string
}

func (e *DuplicateRuleError) Error() string {
	if e.SourceFile != "" {
		return fmt.Sprintf("duplicate rule name %q (already declared in %s)", e.Name, e.SourceFile)
	}
	return fmt.Sprintf("duplicate rule name %q", e.Name)
}

// Registry holds all declared rules, preserving declaration order. Rules are
// registered during loading and the registry is treated as read-only after.
type Registry struct {
	byName  map[string]*Rule
	ordered []*Rule
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Rule)}
}

// Register adds a rule, failing with DuplicateRuleError if the name is taken.
func (reg *Registry) Register(r *Rule) error {
	if prev, ok := reg.byName[r.Name]; ok {
		return &DuplicateRuleError{Name: r.Name, SourceFile: prev.SourceFile}
	}
	reg.byName[r.Name] = r
	reg.ordered = append(reg.ordered, r)
	return nil
}

// All returns every registered rule in declaration order.
func (reg *Registry) All() []*Rule {
	return reg.ordered
}

// Lookup returns the rule with the given name.
func (reg *Registry) Lookup(name string) (*Rule, bool) {
	r, ok := reg.byName[name]
	return r, ok
}

// Len returns the number of registered rules.
func (reg *Registry) Len() int { return len(reg.ordered) }

// DefaultTarget returns the first rule whose outputs are all concrete, the
// rule a bare invocation builds. The boolean is false when no rule qualifies.
func (reg *Registry) DefaultTarget() (*Rule, bool) {
	for _, r := range reg.ordered {
		if !r.HasWildcards() && len(r.Outputs) > 0 {
			return r, true
		}
	}
	return nil, false
}
