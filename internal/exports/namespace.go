// Package exports implements the export namespace a module populates while it
// executes, and the star re-export helper that forwards bindings from one
// namespace to another.
//
// A namespace keeps its identity for the lifetime of one execution: importers
// in a cycle receive the same *Namespace, possibly half populated, and observe
// later assignments through it.
package exports

import (
	"errors"
	"fmt"
	"sync"
)

const (
	// DefaultKey is the binding name of a module's default export.
	DefaultKey = "default"
	// InteropKey marks a namespace produced by transpiled module interop.
	InteropKey = "__esModule"

	moduleTag = "Module"
)

var (
	// ErrNotConfigurable is returned when redefining a binding that was
	// declared non-configurable.
	ErrNotConfigurable = errors.New("binding is not configurable")
	// ErrReadOnly is returned when assigning to a getter-backed binding.
	ErrReadOnly = errors.New("binding is read-only")
)

// Getter computes the current value of a live binding.
type Getter func() any

type binding struct {
	value        any
	get          Getter
	configurable bool
}

// Namespace is an ordered, concurrency-safe set of named bindings.
type Namespace struct {
	mu       sync.RWMutex
	tag      string
	keys     []string
	bindings map[string]*binding
}

// New returns an empty, untagged namespace.
func New() *Namespace {
	return &Namespace{bindings: make(map[string]*binding)}
}

// NewModule returns an empty namespace tagged as a module namespace.
func NewModule() *Namespace {
	ns := New()
	ns.tag = moduleTag
	return ns
}

// FromMap builds a namespace holding plain bindings for every entry of m.
// Keys are added in the order of the keys slice when given, else map order.
func FromMap(m map[string]any, keys ...string) *Namespace {
	ns := New()
	if len(keys) == 0 {
		for k := range m {
			keys = append(keys, k)
		}
	}
	for _, k := range keys {
		if v, ok := m[k]; ok {
			_ = ns.Set(k, v)
		}
	}
	return ns
}

// Tag returns the namespace tag ("Module" for module namespaces).
func (n *Namespace) Tag() string { return n.tag }

// IsModule reports whether the namespace was created by NewModule.
func (n *Namespace) IsModule() bool { return n.tag == moduleTag }

// Set assigns a plain, configurable binding. Assigning over a getter-backed
// binding fails with ErrReadOnly.
func (n *Namespace) Set(key string, v any) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if b, ok := n.bindings[key]; ok {
		if b.get != nil {
			return fmt.Errorf("assign %q: %w", key, ErrReadOnly)
		}
		b.value = v
		return nil
	}
	n.keys = append(n.keys, key)
	n.bindings[key] = &binding{value: v, configurable: true}
	return nil
}

// Define installs a getter-backed binding. Redefining a configurable binding
// replaces it in place; redefining a non-configurable one fails.
func (n *Namespace) Define(key string, get Getter, configurable bool) error {
	if get == nil {
		return fmt.Errorf("define %q: nil getter", key)
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	if b, ok := n.bindings[key]; ok {
		if !b.configurable {
			return fmt.Errorf("define %q: %w", key, ErrNotConfigurable)
		}
		b.value, b.get, b.configurable = nil, get, configurable
		return nil
	}
	n.keys = append(n.keys, key)
	n.bindings[key] = &binding{get: get, configurable: configurable}
	return nil
}

// Get returns the current value of key. Getters run outside the namespace
// lock, so a getter may read other namespaces (or this one) freely.
func (n *Namespace) Get(key string) (any, bool) {
	n.mu.RLock()
	b, ok := n.bindings[key]
	var (
		v   any
		get Getter
	)
	if ok {
		v, get = b.value, b.get
	}
	n.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if get != nil {
		return get(), true
	}
	return v, true
}

// Has reports whether key is bound.
func (n *Namespace) Has(key string) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	_, ok := n.bindings[key]
	return ok
}

// Keys returns binding names in definition order.
func (n *Namespace) Keys() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return append([]string(nil), n.keys...)
}

// Len returns the number of bindings.
func (n *Namespace) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.keys)
}

// Snapshot resolves every binding and returns the values keyed by name.
func (n *Namespace) Snapshot() map[string]any {
	keys := n.Keys()
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		if v, ok := n.Get(k); ok {
			out[k] = v
		}
	}
	return out
}
