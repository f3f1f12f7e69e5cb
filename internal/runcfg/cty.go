package runcfg

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
)

// Functions exposes the config lookups to HCL parameter expressions:
// config("key") is the mandatory form and config_or("key", default) the
// optional one, mirroring Get and GetDefault.
func (m *Map) Functions() map[string]function.Function {
	return map[string]function.Function{
		"config":    m.configFunc(),
		"config_or": m.configOrFunc(),
	}
}

func (m *Map) configFunc() function.Function {
	return function.New(&function.Spec{
		Params: []function.Parameter{
			{Name: "key", Type: cty.String},
		},
		Type: func(args []cty.Value) (cty.Type, error) {
			v, err := m.Get(args[0].AsString())
			if err != nil {
				return cty.NilType, err
			}
			ctyVal, err := toCty(v)
			if err != nil {
				return cty.NilType, err
			}
			return ctyVal.Type(), nil
		},
		Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
			v, err := m.Get(args[0].AsString())
			if err != nil {
				return cty.NilVal, err
			}
			return toCty(v)
		},
	})
}

func (m *Map) configOrFunc() function.Function {
	return function.New(&function.Spec{
		Params: []function.Parameter{
			{Name: "key", Type: cty.String},
			{Name: "default", Type: cty.DynamicPseudoType},
		},
		Type: func(args []cty.Value) (cty.Type, error) {
			if v, ok := m.values[args[0].AsString()]; ok {
				ctyVal, err := toCty(v)
				if err != nil {
					return cty.NilType, err
				}
				return ctyVal.Type(), nil
			}
			return args[1].Type(), nil
		},
		Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
			if v, ok := m.values[args[0].AsString()]; ok {
				return toCty(v)
			}
			return args[1], nil
		},
	})
}

// toCty converts a value decoded from YAML into its cty equivalent.
func toCty(v any) (cty.Value, error) {
	switch val := v.(type) {
	case nil:
		return cty.NullVal(cty.DynamicPseudoType), nil
	case string:
		return cty.StringVal(val), nil
	case bool:
		return cty.BoolVal(val), nil
	case int:
		return cty.NumberIntVal(int64(val)), nil
	case int64:
		return cty.NumberIntVal(val), nil
	case float64:
		return cty.NumberFloatVal(val), nil
	case []any:
		if len(val) == 0 {
			return cty.EmptyTupleVal, nil
		}
		elems := make([]cty.Value, 0, len(val))
		for _, item := range val {
			elem, err := toCty(item)
			if err != nil {
				return cty.NilVal, err
			}
			elems = append(elems, elem)
		}
		return cty.TupleVal(elems), nil
	case map[string]any:
		if len(val) == 0 {
			return cty.EmptyObjectVal, nil
		}
		attrs := make(map[string]cty.Value, len(val))
		for k, item := range val {
			attr, err := toCty(item)
			if err != nil {
				return cty.NilVal, err
			}
			attrs[k] = attr
		}
		return cty.ObjectVal(attrs), nil
	default:
		return cty.NilVal, fmt.Errorf("config value of unsupported type %T", v)
	}
}
