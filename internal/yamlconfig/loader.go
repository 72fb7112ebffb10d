// Package yamlconfig implements config.Loader for YAML project files.
package yamlconfig

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/specialistvlad/modrun/internal/config"
	"github.com/specialistvlad/modrun/internal/ctxlog"
)

type fileRoot struct {
	Root         string                  `yaml:"root"`
	Entries      []string                `yaml:"entries"`
	StallTimeout duration                `yaml:"stall_timeout"`
	SourceMaps   bool                    `yaml:"source_maps"`
	Externals    []external              `yaml:"externals"`
	Fetch        *fetchBlock             `yaml:"fetch"`
	HMR          *hmrBlock               `yaml:"hmr"`
	Environments map[string]*environment `yaml:"environments"`
}

type external struct {
	Pattern string `yaml:"pattern"`
	Kind    string `yaml:"kind"`
}

type fetchBlock struct {
	Backend    string   `yaml:"backend"`
	BaseURL    string   `yaml:"base_url"`
	Retries    int      `yaml:"retries"`
	Timeout    duration `yaml:"timeout"`
	Extensions []string `yaml:"extensions"`
}

type hmrBlock struct {
	Transport string   `yaml:"transport"`
	URL       string   `yaml:"url"`
	Namespace string   `yaml:"namespace"`
	Event     string   `yaml:"event"`
	Debounce  duration `yaml:"debounce"`
}

type environment struct {
	Root         string      `yaml:"root"`
	Entries      []string    `yaml:"entries"`
	StallTimeout duration    `yaml:"stall_timeout"`
	Externals    []external  `yaml:"externals"`
	Fetch        *fetchBlock `yaml:"fetch"`
	HMR          *hmrBlock   `yaml:"hmr"`
}

// duration decodes "5s"-style strings.
type duration time.Duration

func (d *duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	if s == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = duration(v)
	return nil
}

// Loader is the YAML implementation of config.Loader.
type Loader struct{}

var _ config.Loader = (*Loader)(nil)

// NewLoader creates a new YAML configuration loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load reads the project file at path.
func (l *Loader) Load(ctx context.Context, path string) (*config.Model, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read YAML file %s: %w", path, err)
	}
	return l.LoadBytes(ctx, src, path)
}

// LoadBytes decodes src as if read from filename. Unknown keys are errors.
func (l *Loader) LoadBytes(ctx context.Context, src []byte, filename string) (*config.Model, error) {
	dec := yaml.NewDecoder(bytes.NewReader(src))
	dec.KnownFields(true)

	var root fileRoot
	if err := dec.Decode(&root); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode YAML file %s: %w", filename, err)
	}

	model := &config.Model{
		Root:         root.Root,
		Entries:      root.Entries,
		StallTimeout: time.Duration(root.StallTimeout),
		SourceMaps:   root.SourceMaps,
		Externals:    translateExternals(root.Externals),
		Fetch:        translateFetch(root.Fetch),
		HMR:          translateHMR(root.HMR),
	}
	for name, env := range root.Environments {
		if env == nil {
			env = &environment{}
		}
		if model.Environments == nil {
			model.Environments = make(map[string]*config.Environment)
		}
		model.Environments[name] = &config.Environment{
			Name:         name,
			Root:         env.Root,
			Entries:      env.Entries,
			StallTimeout: time.Duration(env.StallTimeout),
			Externals:    translateExternals(env.Externals),
			Fetch:        translateFetch(env.Fetch),
			HMR:          translateHMR(env.HMR),
		}
	}
	model.ResolvePaths(filepath.Dir(filename))

	ctxlog.FromContext(ctx).Debug("YAML loading complete.", "path", filename, "environments", len(model.Environments))
	return model, nil
}

func translateExternals(in []external) []config.External {
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

func translateFetch(b *fetchBlock) *config.Fetch {
	if b == nil {
		return nil
	}
	return &config.Fetch{
		Backend:    b.Backend,
		BaseURL:    b.BaseURL,
		RetryMax:   b.Retries,
		Timeout:    time.Duration(b.Timeout),
		Extensions: b.Extensions,
	}
}

func translateHMR(b *hmrBlock) *config.HMR {
	if b == nil {
		return nil
	}
	return &config.HMR{
		Transport: b.Transport,
		URL:       b.URL,
		Namespace: b.Namespace,
		Event:     b.Event,
		Debounce:  time.Duration(b.Debounce),
	}
}
