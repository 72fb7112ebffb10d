package print

import (
	"log/slog"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	ctyjson "github.com/zclconf/go-cty/cty/json"

	"github.com/specialistvlad/modrun/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct {
	Logger *slog.Logger
}

// Func returns the print function: it logs its argument and returns it
// unchanged, so it can wrap any expression.
func (m *Module) Func() function.Function {
	return function.New(&function.Spec{
		Params: []function.Parameter{{
			Name:             "value",
			Type:             cty.DynamicPseudoType,
			AllowNull:        true,
			AllowUnknown:     true,
			AllowDynamicType: true,
		}},
		Type: func(args []cty.Value) (cty.Type, error) {
			return args[0].Type(), nil
		},
		Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
			logger := m.Logger
			if logger == nil {
				logger = slog.Default()
			}
			v := args[0]
			if !v.IsWhollyKnown() {
				logger.Info("print", "value", "(unknown)")
				return v, nil
			}
			out, err := ctyjson.Marshal(v, v.Type())
			if err != nil {
				return cty.NilVal, err
			}
			logger.Info("print", "value", string(out))
			return v, nil
		},
	})
}

// Register registers the print function.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterFunction("print", m.Func())
}
