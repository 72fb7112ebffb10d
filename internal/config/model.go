package config

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/hashicorp/go-multierror"
)

// DefaultEnvironment names the environment built from the top-level settings.
const DefaultEnvironment = "default"

// ErrUnknownEnvironment is returned by Resolve for an undeclared environment.
var ErrUnknownEnvironment = errors.New("unknown environment")

// Loader reads a project file into a Model.
type Loader interface {
	Load(ctx context.Context, path string) (*Model, error)
}

// Model is the whole project configuration.
type Model struct {
	Root         string
	Entries      []string
	Externals    []External
	StallTimeout time.Duration
	SourceMaps   bool
	Fetch        *Fetch
	HMR          *HMR
	Environments map[string]*Environment
}

// External marks specifiers matching Pattern as externalized with Kind.
type External struct {
	Pattern string
	Kind    string
}

// Fetch selects and configures the fetch backend.
type Fetch struct {
	Backend    string // "fs" or "http"
	BaseURL    string
	RetryMax   int
	Timeout    time.Duration
	Extensions []string
}

// HMR selects and configures the hot update transport.
type HMR struct {
	Transport string // "socketio", "websocket" or "watch"
	URL       string
	Namespace string
	Event     string
	Debounce  time.Duration
}

// Environment overlays the top-level settings. Empty fields inherit.
type Environment struct {
	Name         string
	Root         string
	Entries      []string
	Externals    []External
	StallTimeout time.Duration
	Fetch        *Fetch
	HMR          *HMR
}

// Resolved is the effective configuration of one environment.
type Resolved struct {
	Name         string
	Root         string
	Entries      []string
	Externals    []External
	StallTimeout time.Duration
	SourceMaps   bool
	Fetch        Fetch
	HMR          *HMR
}

// EnvironmentNames returns the declared environments, sorted. A model
// without environments has only DefaultEnvironment.
func (m *Model) EnvironmentNames() []string {
	if len(m.Environments) == 0 {
		return []string{DefaultEnvironment}
	}
	return slices.Sorted(maps.Keys(m.Environments))
}

// Resolve returns the settings of the named environment. An empty name or
// DefaultEnvironment selects the top-level settings unless an environment of
// that name is declared.
func (m *Model) Resolve(name string) (*Resolved, error) {
	if name == "" {
		name = DefaultEnvironment
	}

	r := &Resolved{
		Name:         name,
		Root:         m.Root,
		Entries:      slices.Clone(m.Entries),
		Externals:    slices.Clone(m.Externals),
		StallTimeout: m.StallTimeout,
		SourceMaps:   m.SourceMaps,
		HMR:          m.HMR,
	}
	if m.Fetch != nil {
		r.Fetch = *m.Fetch
	}

	env, ok := m.Environments[name]
	if !ok {
		if name != DefaultEnvironment {
			return nil, fmt.Errorf("%w: %q", ErrUnknownEnvironment, name)
		}
	} else {
		if env.Root != "" {
			r.Root = env.Root
		}
		if len(env.Entries) > 0 {
			r.Entries = slices.Clone(env.Entries)
		}
		if len(env.Externals) > 0 {
			r.Externals = slices.Clone(env.Externals)
		}
		if env.StallTimeout > 0 {
			r.StallTimeout = env.StallTimeout
		}
		if env.Fetch != nil {
			r.Fetch = *env.Fetch
		}
		if env.HMR != nil {
			r.HMR = env.HMR
		}
	}

	if r.Fetch.Backend == "" {
		r.Fetch.Backend = "fs"
	}
	if len(r.Fetch.Extensions) == 0 {
		r.Fetch.Extensions = []string{".hcl"}
	}
	return r, nil
}

// ResolvePaths makes relative roots absolute against baseDir, usually the
// directory of the project file.
func (m *Model) ResolvePaths(baseDir string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(baseDir, p)
	}
	m.Root = abs(m.Root)
	for _, env := range m.Environments {
		env.Root = abs(env.Root)
	}
}

// Validate reports every invalid setting of every environment.
func (m *Model) Validate() error {
	var result error
	for _, name := range m.EnvironmentNames() {
		r, err := m.Resolve(name)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		if err := r.Validate(); err != nil {
			result = multierror.Append(result, fmt.Errorf("environment %q: %w", name, err))
		}
	}
	return result
}

// Validate reports every invalid setting.
func (r *Resolved) Validate() error {
	var result error
	for _, ext := range r.Externals {
		if !doublestar.ValidatePattern(ext.Pattern) {
			result = multierror.Append(result, fmt.Errorf("invalid external pattern %q", ext.Pattern))
		}
		switch ext.Kind {
		case "", "module", "commonjs", "builtin", "network":
		default:
			result = multierror.Append(result, fmt.Errorf("external %q: unknown kind %q", ext.Pattern, ext.Kind))
		}
	}

	switch r.Fetch.Backend {
	case "fs":
	case "http":
		if r.Fetch.BaseURL == "" {
			result = multierror.Append(result, errors.New("fetch backend http requires base_url"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("unknown fetch backend %q", r.Fetch.Backend))
	}

	if r.HMR != nil {
		switch r.HMR.Transport {
		case "watch":
			if r.Fetch.Backend != "fs" {
				result = multierror.Append(result, errors.New("hmr transport watch requires the fs fetch backend"))
			}
		case "socketio", "websocket":
			if r.HMR.URL == "" {
				result = multierror.Append(result, fmt.Errorf("hmr transport %s requires url", r.HMR.Transport))
			}
		default:
			result = multierror.Append(result, fmt.Errorf("unknown hmr transport %q", r.HMR.Transport))
		}
	}
	return result
}
