package env_vars

import (
	"context"
	"os"
	"strings"

	"github.com/zclconf/go-cty/cty"

	"github.com/specialistvlad/modrun/internal/exports"
	"github.com/specialistvlad/modrun/internal/registry"
)

// Spec is the specifier modules import the environment from.
const Spec = "builtin:env"

// Module implements the registry.Module interface for this package.
type Module struct {
	// Environ replaces os.Environ, mostly for tests.
	Environ func() []string
}

// Load builds the namespace of builtin:env. "all" and "default" both hold
// the environment as a map of strings.
func (m *Module) Load(ctx context.Context) (*exports.Namespace, error) {
	environ := m.Environ
	if environ == nil {
		environ = os.Environ
	}

	vars := make(map[string]cty.Value)
	for _, e := range environ() {
		k, v, ok := strings.Cut(e, "=")
		if ok && k != "" {
			vars[k] = cty.StringVal(v)
		}
	}

	all := cty.MapValEmpty(cty.String)
	if len(vars) > 0 {
		all = cty.MapVal(vars)
	}

	ns := exports.NewModule()
	if err := ns.Set("all", all); err != nil {
		return nil, err
	}
	if err := ns.Set(exports.DefaultKey, all); err != nil {
		return nil, err
	}
	return ns, nil
}

// Register registers the builtin:env loader.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterExternal(Spec, m.Load)
}
