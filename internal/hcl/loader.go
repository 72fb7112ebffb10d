package hcl

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/specialistvlad/modrun/internal/config"
	"github.com/specialistvlad/modrun/internal/ctxlog"
)

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct{}

var _ config.Loader = (*Loader)(nil)

// NewLoader creates a new HCL configuration loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses the project file at path.
func (l *Loader) Load(ctx context.Context, path string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path", path)

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", path, diags)
	}
	return l.decode(ctx, file, path)
}

// LoadBytes parses src as if read from filename.
func (l *Loader) LoadBytes(ctx context.Context, src []byte, filename string) (*config.Model, error) {
	file, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}
	return l.decode(ctx, file, filename)
}

func (l *Loader) decode(ctx context.Context, file *hcl.File, path string) (*config.Model, error) {
	var root fileRoot
	if diags := gohcl.DecodeBody(file.Body, nil, &root); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", path, diags)
	}

	model, err := translate(&root)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	model.ResolvePaths(filepath.Dir(path))

	ctxlog.FromContext(ctx).Debug("HCL loading complete.",
		"entries", len(model.Entries),
		"environments", len(model.Environments),
	)
	return model, nil
}

func translate(root *fileRoot) (*config.Model, error) {
	stall, err := parseDuration("stall_timeout", root.StallTimeout)
	if err != nil {
		return nil, err
	}
	fetch, err := translateFetch(root.Fetch)
	if err != nil {
		return nil, err
	}
	hmr, err := translateHMR(root.HMR)
	if err != nil {
		return nil, err
	}

	model := &config.Model{
		Root:         root.Root,
		Entries:      root.Entries,
		Externals:    translateExternals(root.Externals),
		StallTimeout: stall,
		SourceMaps:   root.SourceMaps,
		Fetch:        fetch,
		HMR:          hmr,
	}

	for _, env := range root.Environments {
		if model.Environments == nil {
			model.Environments = make(map[string]*config.Environment)
		}
		if _, dup := model.Environments[env.Name]; dup {
			return nil, fmt.Errorf("duplicate environment %q", env.Name)
		}
		translated, err := translateEnvironment(env)
		if err != nil {
			return nil, fmt.Errorf("environment %q: %w", env.Name, err)
		}
		model.Environments[env.Name] = translated
	}
	return model, nil
}

func translateEnvironment(env *environment) (*config.Environment, error) {
	stall, err := parseDuration("stall_timeout", env.StallTimeout)
	if err != nil {
		return nil, err
	}
	fetch, err := translateFetch(env.Fetch)
	if err != nil {
		return nil, err
	}
	hmr, err := translateHMR(env.HMR)
	if err != nil {
		return nil, err
	}
	return &config.Environment{
		Name:         env.Name,
		Root:         env.Root,
		Entries:      env.Entries,
		Externals:    translateExternals(env.Externals),
		StallTimeout: stall,
		Fetch:        fetch,
		HMR:          hmr,
	}, nil
}

func translateExternals(in []*external) []config.External {
	if len(in) == 0 {
		return nil
	}
	out := make([]config.External, 0, len(in))
	for _, e := range in {
		kind := e.Kind
		if kind == "" {
			kind = "module"
		}
		out = append(out, config.External{Pattern: e.Pattern, Kind: kind})
	}
	return out
}

func translateFetch(b *fetchBlock) (*config.Fetch, error) {
	if b == nil {
		return nil, nil
	}
	timeout, err := parseDuration("fetch.timeout", b.Timeout)
	if err != nil {
		return nil, err
	}
	return &config.Fetch{
		Backend:    b.Backend,
		BaseURL:    b.BaseURL,
		RetryMax:   b.Retries,
		Timeout:    timeout,
		Extensions: b.Extensions,
	}, nil
}

func translateHMR(b *hmrBlock) (*config.HMR, error) {
	if b == nil {
		return nil, nil
	}
	debounce, err := parseDuration("hmr.debounce", b.Debounce)
	if err != nil {
		return nil, err
	}
	return &config.HMR{
		Transport: b.Transport,
		URL:       b.URL,
		Namespace: b.Namespace,
		Event:     b.Event,
		Debounce:  debounce,
	}, nil
}

func parseDuration(field, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", field, err)
	}
	return d, nil
}
