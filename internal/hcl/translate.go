package hcl

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"

	"github.com/vk/flowmake/internal/rule"
	"github.com/vk/flowmake/internal/schema"
	"github.com/vk/flowmake/internal/wildcard"
)

// translateRule converts a raw HCL rule block into the agnostic rule model,
// compiling its patterns and validating the wildcard surface.
func translateRule(raw *schema.Rule, sourceFile string) (*rule.Rule, error) {
	r := &rule.Rule{
		Name:       raw.Name,
		Shell:      raw.Shell,
		Threads:    raw.Threads,
		Temp:       raw.Temp,
		Fallback:   raw.Fallback,
		Message:    raw.Message,
		SourceFile: sourceFile,
	}
	if r.Threads < 1 {
		r.Threads = 1
	}
	if r.Shell == "" {
		return nil, fmt.Errorf("rule %q in %s: shell command must not be empty", raw.Name, sourceFile)
	}

	outputs, err := pathList(raw.Output)
	if err != nil {
		return nil, fmt.Errorf("rule %q in %s: output: %w", raw.Name, sourceFile, err)
	}
	if len(outputs) == 0 {
		return nil, fmt.Errorf("rule %q in %s: at least one output is required", raw.Name, sourceFile)
	}
	inputs, err := pathList(raw.Input)
	if err != nil {
		return nil, fmt.Errorf("rule %q in %s: input: %w", raw.Name, sourceFile, err)
	}

	outputNames := map[string]bool{}
	for _, out := range outputs {
		p, err := wildcard.Compile(out)
		if err != nil {
			return nil, fmt.Errorf("rule %q in %s: %w", raw.Name, sourceFile, err)
		}
		r.Outputs = append(r.Outputs, p)
		for _, name := range p.Names() {
			outputNames[name] = true
		}
	}
	for _, in := range inputs {
		p, err := wildcard.Compile(in)
		if err != nil {
			return nil, fmt.Errorf("rule %q in %s: %w", raw.Name, sourceFile, err)
		}
		for _, name := range p.Names() {
			if !outputNames[name] {
				return nil, fmt.Errorf(
					"rule %q in %s: input wildcard %q does not appear in any output, so it can never be bound",
					raw.Name, sourceFile, name)
			}
		}
		r.Inputs = append(r.Inputs, p)
	}

	if raw.Params != nil {
		attrs, diags := raw.Params.Body.JustAttributes()
		if diags.HasErrors() {
			return nil, fmt.Errorf("rule %q in %s: params: %w", raw.Name, sourceFile, diags)
		}
		r.Params = make(map[string]hcl.Expression, len(attrs))
		for name, attr := range attrs {
			r.Params[name] = attr.Expr
		}
	}

	return r, nil
}
