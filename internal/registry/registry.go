package registry

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/zclconf/go-cty/cty/function"

	"github.com/specialistvlad/modrun/internal/exports"
)

// Module is the interface that all builtin modules must implement to be
// registered.
type Module interface {
	Register(r *Registry)
}

// ExternalLoader produces the namespace of an externalized builtin module.
type ExternalLoader func(ctx context.Context) (*exports.Namespace, error)

// Registry holds the external loaders and functions of a single application
// instance.
type Registry struct {
	mu        sync.RWMutex
	externals map[string]ExternalLoader
	functions map[string]function.Function
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		externals: make(map[string]ExternalLoader),
		functions: make(map[string]function.Function),
	}
}

// Load registers every module in order.
func (r *Registry) Load(modules ...Module) *Registry {
	for _, m := range modules {
		m.Register(r)
	}
	return r
}

// RegisterExternal registers the loader behind an externalized specifier such
// as "builtin:env".
func (r *Registry) RegisterExternal(spec string, loader ExternalLoader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.externals[spec]; exists {
		panic(fmt.Sprintf("external module '%s' already registered", spec))
	}
	slog.Debug("Registering external module.", "spec", spec)
	r.externals[spec] = loader
}

// RegisterFunction registers a function callable from module expressions.
func (r *Registry) RegisterFunction(name string, fn function.Function) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.functions[name]; exists {
		panic(fmt.Sprintf("function '%s' already registered", name))
	}
	slog.Debug("Registering function.", "name", name)
	r.functions[name] = fn
}

// External returns the loader registered for spec.
func (r *Registry) External(spec string) (ExternalLoader, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.externals[spec]
	return l, ok
}

// Externals returns the registered specifiers, sorted.
func (r *Registry) Externals() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.externals))
}

// Functions returns a copy of the registered functions.
func (r *Registry) Functions() map[string]function.Function {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.functions)
}
