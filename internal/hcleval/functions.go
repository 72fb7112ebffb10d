package hcleval

import (
	"maps"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"

	"github.com/specialistvlad/modrun/internal/runner"
)

var baseFunctions = map[string]function.Function{
	"coalesce":   stdlib.CoalesceFunc,
	"concat":     stdlib.ConcatFunc,
	"contains":   stdlib.ContainsFunc,
	"format":     stdlib.FormatFunc,
	"join":       stdlib.JoinFunc,
	"jsondecode": stdlib.JSONDecodeFunc,
	"jsonencode": stdlib.JSONEncodeFunc,
	"keys":       stdlib.KeysFunc,
	"length":     stdlib.LengthFunc,
	"lookup":     stdlib.LookupFunc,
	"lower":      stdlib.LowerFunc,
	"merge":      stdlib.MergeFunc,
	"replace":    stdlib.ReplaceFunc,
	"split":      stdlib.SplitFunc,
	"trimspace":  stdlib.TrimSpaceFunc,
	"upper":      stdlib.UpperFunc,
	"values":     stdlib.ValuesFunc,
}

// moduleFunctions returns the functions visible to one module: the base set,
// the registry's functions and the meta accessors bound to meta.
func (e *Evaluator) moduleFunctions(meta *runner.ImportMeta) map[string]function.Function {
	fns := maps.Clone(baseFunctions)
	maps.Copy(fns, e.registry.Functions())

	fns["env"] = stringFunc("key", cty.String, func(key string) (cty.Value, error) {
		v, err := meta.Env.Get(key)
		if err != nil {
			return cty.NilVal, err
		}
		return cty.StringVal(v), nil
	})
	fns["resolve"] = stringFunc("id", cty.String, func(id string) (cty.Value, error) {
		v, err := meta.Resolve(id, "")
		if err != nil {
			return cty.NilVal, err
		}
		return cty.StringVal(v), nil
	})
	fns["glob"] = stringFunc("pattern", cty.DynamicPseudoType, func(pattern string) (cty.Value, error) {
		if _, err := meta.Glob(pattern); err != nil {
			return cty.NilVal, err
		}
		return cty.EmptyObjectVal, nil
	})
	return fns
}

func stringFunc(param string, ret cty.Type, impl func(string) (cty.Value, error)) function.Function {
	return function.New(&function.Spec{
		Params: []function.Parameter{{Name: param, Type: cty.String}},
		Type:   function.StaticReturnType(ret),
		Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
			return impl(args[0].AsString())
		},
	})
}
