package runner

import (
	"context"
	"fmt"
	"sync"

	"github.com/specialistvlad/modrun/internal/exports"
	"github.com/specialistvlad/modrun/internal/hmr"
)

// ImportMetadata qualifies a static import.
type ImportMetadata struct {
	// ImportedNames are the bindings the importer reads.
	ImportedNames []string
	// IsDynamicImport is set for imports made through DynamicImport.
	IsDynamicImport bool
}

// ImportFunc imports dep from the executing module.
type ImportFunc func(ctx context.Context, dep string, md *ImportMetadata) (*exports.Namespace, error)

// DynamicImportFunc imports dep lazily; relative specifiers resolve against
// the executing module.
type DynamicImportFunc func(ctx context.Context, dep any) (*exports.Namespace, error)

// Context is everything an executing module can reach.
type Context struct {
	Import        ImportFunc
	DynamicImport DynamicImportFunc
	// Exports is populated by the module while it runs.
	Exports *exports.Namespace
	// ExportAll star-re-exports source into Exports.
	ExportAll func(source any)
	Meta      *ImportMeta
}

// Env is the environment binding of ImportMeta. Only statically known keys
// are provided to modules, so dynamic access always fails.
type Env struct{}

// Get fails: dynamic access of the environment is not supported.
func (Env) Get(key string) (string, error) {
	return "", &UnsupportedError{
		Feature: `Dynamic access of "meta.env"`,
		Hint:    fmt.Sprintf(`Please, use "meta.env.%s" instead.`, key),
	}
}

// ImportMeta describes the executing module.
type ImportMeta struct {
	Filename string
	Dirname  string
	URL      string
	Env      Env

	hotOwner  string
	hotClient func() *hmr.Client

	mu  sync.Mutex
	hot *hmr.HotContext
}

// Resolve is not available inside the runner.
func (m *ImportMeta) Resolve(id, parent string) (string, error) {
	return "", &UnsupportedError{Feature: "meta.resolve"}
}

// Glob is not available inside the runner; globs must be expanded before
// execution.
func (m *ImportMeta) Glob(patterns ...string) (map[string]any, error) {
	return nil, &UnsupportedError{Feature: "meta.glob", Hint: "Expand globs before the module is executed."}
}

// Hot returns the module's hot context. It returns (nil, nil) when HMR is
// disabled and ErrHMRDestroyed once the runner released its HMR client. The
// context is created on first access.
func (m *ImportMeta) Hot() (*hmr.HotContext, error) {
	if m.hotClient == nil {
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.hot, nil
	}
	client := m.hotClient()
	if client == nil {
		return nil, ErrHMRDestroyed
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hot == nil {
		client.Logger().Debug("Creating hmr context.", "url", m.hotOwner)
		m.hot = client.NewHotContext(m.hotOwner)
	}
	return m.hot, nil
}

// SetHot replaces the hot context.
func (m *ImportMeta) SetHot(h *hmr.HotContext) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hot = h
}
