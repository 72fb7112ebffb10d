package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/specialistvlad/modrun/internal/config"
	"github.com/specialistvlad/modrun/internal/ctxlog"
	"github.com/specialistvlad/modrun/internal/hcl"
	"github.com/specialistvlad/modrun/internal/registry"
	"github.com/specialistvlad/modrun/internal/yamlconfig"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW   io.Writer
	outMu  sync.Mutex
	logger *slog.Logger
	config *Config

	model        *config.Model
	registry     *registry.Registry
	environments []*environment

	httpServer *http.Server
	closeOnce  sync.Once
}

// NewApp loads the project configuration and builds one runner per selected
// environment. Results are written to outW and logs to logW. When modules is
// empty the core builtin modules are registered.
func NewApp(ctx context.Context, outW, logW io.Writer, cfg *Config, modules ...registry.Module) (*App, error) {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, logW)
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Debug("Logger configured successfully.")

	a := &App{
		outW:   outW,
		logger: logger,
		config: cfg,
	}

	model, err := loadModel(ctx, cfg.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	a.model = model
	logger.Debug("Configuration loaded.", "path", cfg.ConfigPath, "environments", model.EnvironmentNames())

	if len(modules) == 0 {
		modules = coreModules(a)
	}
	a.registry = registry.New().Load(modules...)
	logger.Debug("All Go modules registered.", "count", len(modules), "externals", a.registry.Externals())

	names := cfg.Environments
	if len(names) == 0 {
		names = model.EnvironmentNames()
	}
	for _, name := range names {
		settings, err := a.settingsFor(name)
		if err != nil {
			a.Close()
			return nil, err
		}
		env, err := a.newEnvironment(ctx, settings)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("environment %q: %w", name, err)
		}
		a.environments = append(a.environments, env)
	}
	return a, nil
}

// loadModel picks a loader by file extension. No path means an empty model.
func loadModel(ctx context.Context, path string) (*config.Model, error) {
	if path == "" {
		return &config.Model{}, nil
	}
	var loader config.Loader
	switch strings.ToLower(filepath.Ext(path)) {
	case ".hcl":
		loader = hcl.NewLoader()
	case ".yaml", ".yml":
		loader = yamlconfig.NewLoader()
	default:
		return nil, fmt.Errorf("unsupported config file %s: want .hcl, .yaml or .yml", path)
	}
	return loader.Load(ctx, path)
}

// settingsFor resolves an environment and applies the command line overrides.
func (a *App) settingsFor(name string) (*config.Resolved, error) {
	settings, err := a.model.Resolve(name)
	if err != nil {
		return nil, err
	}
	if a.config.Root != "" {
		settings.Root = a.config.Root
	}
	if settings.Root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		settings.Root = wd
	}
	root, err := filepath.Abs(settings.Root)
	if err != nil {
		return nil, err
	}
	settings.Root = root

	if len(a.config.Entries) > 0 {
		settings.Entries = a.config.Entries
	}
	if a.config.Watch && settings.HMR == nil {
		settings.HMR = &config.HMR{Transport: "watch"}
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("environment %q: %w", name, err)
	}
	return settings, nil
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Environments returns the names of the running environments in order.
func (a *App) Environments() []string {
	names := make([]string, 0, len(a.environments))
	for _, env := range a.environments {
		names = append(names, env.name)
	}
	return names
}

// Close destroys every runner and closes the hot update transports.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		for _, env := range a.environments {
			env.close(a.logger)
		}
	})
}
