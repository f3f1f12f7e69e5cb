package job

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/flowmake/internal/rule"
	"github.com/vk/flowmake/internal/runcfg"
	"github.com/vk/flowmake/internal/wildcard"
)

// Expander instantiates jobs from rules against one resolved configuration.
type Expander struct {
	cfg *runcfg.Map
}

// NewExpander creates an expander bound to the given configuration.
func NewExpander(cfg *runcfg.Map) *Expander {
	return &Expander{cfg: cfg}
}

// Expand produces the concrete job for a rule under a wildcard binding. It is
// a pure transformation: paths are substituted, parameter expressions are
// evaluated against the binding and the config lookup functions, and the
// shell template is rendered.
func (e *Expander) Expand(r *rule.Rule, binding wildcard.Binding) (*Job, error) {
	j := &Job{
		Rule:    r,
		Binding: binding,
		Threads: r.Threads,
		Message: r.Message,
	}

	for _, p := range r.Outputs {
		path, err := p.Expand(binding)
		if err != nil {
			return nil, fmt.Errorf("rule %q: expanding output: %w", r.Name, err)
		}
		j.Outputs = append(j.Outputs, path)
	}
	for _, p := range r.Inputs {
		path, err := p.Expand(binding)
		if err != nil {
			return nil, fmt.Errorf("rule %q: expanding input: %w", r.Name, err)
		}
		j.Inputs = append(j.Inputs, path)
	}

	params, err := e.evalParams(r, binding)
	if err != nil {
		return nil, err
	}
	j.Params = params

	shell, err := renderShell(r.Shell, j)
	if err != nil {
		return nil, fmt.Errorf("rule %q: %w", r.Name, err)
	}
	j.Shell = shell
	return j, nil
}

// evalParams evaluates each parameter expression with the wildcards object
// and the config()/config_or() functions in scope.
func (e *Expander) evalParams(r *rule.Rule, binding wildcard.Binding) (map[string]string, error) {
	if len(r.Params) == 0 {
		return nil, nil
	}

	evalCtx := &hcl.EvalContext{
		Variables: map[string]cty.Value{"wildcards": bindingObject(binding)},
		Functions: e.cfg.Functions(),
	}

	params := make(map[string]string, len(r.Params))
	for name, expr := range r.Params {
		val, diags := expr.Value(evalCtx)
		if diags.HasErrors() {
			return nil, fmt.Errorf("rule %q: evaluating param %q: %w", r.Name, name, diags)
		}
		rendered, err := valueString(val)
		if err != nil {
			return nil, fmt.Errorf("rule %q: param %q: %w", r.Name, name, err)
		}
		params[name] = rendered
	}
	return params, nil
}

func bindingObject(binding wildcard.Binding) cty.Value {
	if len(binding) == 0 {
		return cty.EmptyObjectVal
	}
	attrs := make(map[string]cty.Value, len(binding))
	for k, v := range binding {
		attrs[k] = cty.StringVal(v)
	}
	return cty.ObjectVal(attrs)
}

// valueString renders an evaluated parameter for command-line use. Lists are
// joined with single spaces, the way file lists are.
func valueString(val cty.Value) (string, error) {
	if val.IsNull() {
		return "", fmt.Errorf("value is null")
	}
	ty := val.Type()
	switch {
	case ty == cty.String:
		return val.AsString(), nil
	case ty == cty.Number:
		return val.AsBigFloat().Text('f', -1), nil
	case ty == cty.Bool:
		if val.True() {
			return "true", nil
		}
		return "false", nil
	case ty.IsTupleType() || ty.IsListType():
		var parts []string
		for it := val.ElementIterator(); it.Next(); {
			_, elem := it.Element()
			s, err := valueString(elem)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		}
		return joinSpace(parts), nil
	default:
		return "", fmt.Errorf("unsupported value type %s", ty.FriendlyName())
	}
}

func joinSpace(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += " "
		}
		out += p
	}
	return out
}
