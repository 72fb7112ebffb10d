package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/afero"

	"github.com/specialistvlad/modrun/internal/config"
	"github.com/specialistvlad/modrun/internal/fetch"
	"github.com/specialistvlad/modrun/internal/hcleval"
	"github.com/specialistvlad/modrun/internal/hmr"
	"github.com/specialistvlad/modrun/internal/runner"
)

// environment is one runner together with the transports feeding it.
type environment struct {
	name     string
	settings *config.Resolved
	logger   *slog.Logger
	runner   *runner.Runner
	conn     hotConnection
}

// hotConnection is an hmr.Connection the app has to start and stop.
type hotConnection interface {
	hmr.Connection
	Close() error
}

func (a *App) newEnvironment(ctx context.Context, settings *config.Resolved) (*environment, error) {
	logger := a.logger.With("environment", settings.Name)
	env := &environment{name: settings.Name, settings: settings, logger: logger}

	backend, err := newBackend(settings, logger)
	if err != nil {
		return nil, err
	}

	opts := runner.Options{
		Root:         settings.Root,
		Transport:    backend,
		StallTimeout: settings.StallTimeout,
		Environment:  settings.Name,
		Logger:       logger,
	}
	if logger.Enabled(ctx, slog.LevelDebug) {
		opts.Debug = func(msg string, args ...any) { logger.Debug(msg, args...) }
	}
	if settings.SourceMaps {
		opts.SourceMapInterceptor = sourceMapInterceptor(logger)
	}
	if a.config.Watch && settings.HMR != nil {
		conn, err := newConnection(settings, logger)
		if err != nil {
			return nil, err
		}
		env.conn = conn
		opts.HMR = &runner.HMROptions{Connection: conn, Logger: logger.With("component", "hmr")}
	}

	r, err := runner.New(ctx, opts, hcleval.New(a.registry))
	if err != nil {
		return nil, err
	}
	env.runner = r
	logger.Debug("Environment ready.", "root", settings.Root, "backend", settings.Fetch.Backend, "runner_id", r.ID())
	return env, nil
}

func newBackend(settings *config.Resolved, logger *slog.Logger) (fetch.Backend, error) {
	switch settings.Fetch.Backend {
	case "http":
		return fetch.NewHTTPBackend(fetch.HTTPOptions{
			BaseURL:  settings.Fetch.BaseURL,
			RetryMax: settings.Fetch.RetryMax,
			Timeout:  settings.Fetch.Timeout,
			Logger:   logger,
		})
	case "fs":
		externals := make([]fetch.External, 0, len(settings.Externals))
		for _, e := range settings.Externals {
			externals = append(externals, fetch.External{Pattern: e.Pattern, Kind: fetch.Kind(e.Kind)})
		}
		fsys := afero.NewBasePathFs(afero.NewOsFs(), settings.Root)
		return fetch.NewFSBackend(fsys, fetch.FSOptions{
			Root:       settings.Root,
			Extensions: settings.Fetch.Extensions,
			Externals:  externals,
		})
	default:
		return nil, fmt.Errorf("unknown fetch backend %q", settings.Fetch.Backend)
	}
}

func newConnection(settings *config.Resolved, logger *slog.Logger) (hotConnection, error) {
	h := settings.HMR
	switch h.Transport {
	case "watch":
		return hmr.NewWatchConnection(hmr.WatchOptions{
			Root:       settings.Root,
			Extensions: settings.Fetch.Extensions,
			Debounce:   h.Debounce,
			Logger:     logger,
		}), nil
	case "websocket":
		return hmr.NewWebSocketConnection(h.URL, logger), nil
	case "socketio":
		return hmr.NewSocketIOConnection(hmr.SocketIOOptions{
			URL:       h.URL,
			Namespace: h.Namespace,
			Event:     h.Event,
			Logger:    logger,
		})
	default:
		return nil, fmt.Errorf("unknown hmr transport %q", h.Transport)
	}
}

// start connects the hot update transport, if any.
func (e *environment) start(ctx context.Context) error {
	switch c := e.conn.(type) {
	case nil:
		return nil
	case *hmr.WatchConnection:
		return c.Start(ctx)
	case *hmr.WebSocketConnection:
		return c.Connect(ctx)
	case *hmr.SocketIOConnection:
		return c.Connect(ctx)
	default:
		return fmt.Errorf("cannot start hmr connection %T", c)
	}
}

func (e *environment) close(logger *slog.Logger) {
	if e.runner != nil {
		e.runner.Destroy()
	}
	if e.conn != nil {
		if err := e.conn.Close(); err != nil {
			logger.Warn("Closing hmr connection failed.", "environment", e.name, "error", err)
		}
	}
}

// sourceMapInterceptor reports positions in module files as they are; HCL
// diagnostics already carry them. It only records installation.
func sourceMapInterceptor(logger *slog.Logger) func(*runner.Runner) func() {
	return func(r *runner.Runner) func() {
		logger.Debug("Source map interception installed.", "runner_id", r.ID())
		return func() {
			logger.Debug("Source map interception reset.", "runner_id", r.ID())
		}
	}
}
