package runner

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/specialistvlad/modrun/internal/ctxlog"
	"github.com/specialistvlad/modrun/internal/exports"
	"github.com/specialistvlad/modrun/internal/fetch"
	"github.com/specialistvlad/modrun/internal/hmr"
	"github.com/specialistvlad/modrun/internal/modulegraph"
	"github.com/specialistvlad/modrun/internal/tracing/traceattrs"
)

var tracer = otel.Tracer("github.com/specialistvlad/modrun/internal/runner")

// Runner imports and executes modules for one environment.
type Runner struct {
	id           string
	env          string
	root         string
	logger       *slog.Logger
	graph        modulegraph.Graph
	transport    fetch.Backend
	evaluator    Evaluator
	debug        func(msg string, args ...any)
	stallTimeout time.Duration

	inflight  singleflight.Group
	hmrClient atomic.Pointer[hmr.Client]
	destroyed atomic.Bool

	resetSourceMap func()
	resetOnce      sync.Once
}

// New builds a runner. ctx supplies the default logger and is the parent of
// the context HMR payloads are handled under.
func New(ctx context.Context, opts Options, evaluator Evaluator) (*Runner, error) {
	if opts.Transport == nil {
		return nil, errors.New("runner: a fetch transport is required")
	}
	if evaluator == nil {
		return nil, errors.New("runner: an evaluator is required")
	}
	if opts.Graph == nil {
		opts.Graph = modulegraph.New()
	}
	if opts.StallTimeout <= 0 {
		opts.StallTimeout = DefaultStallTimeout
	}
	if opts.Root == "" {
		opts.Root = "/"
	}

	id := uuid.NewString()
	logger := opts.Logger
	if logger == nil {
		logger = ctxlog.FromContext(ctx)
	}
	logger = logger.With("environment", opts.Environment, "runner_id", id)

	r := &Runner{
		id:           id,
		env:          opts.Environment,
		root:         modulegraph.NormalizeRoot(opts.Root),
		logger:       logger,
		graph:        opts.Graph,
		transport:    opts.Transport,
		evaluator:    evaluator,
		debug:        opts.Debug,
		stallTimeout: opts.StallTimeout,
	}

	if opts.HMR != nil {
		if opts.HMR.Connection == nil {
			return nil, errors.New("runner: hmr requires a connection")
		}
		hmrLogger := opts.HMR.Logger
		if hmrLogger == nil {
			hmrLogger = logger.With("component", "hmr")
		}
		client := hmr.NewClient(hmrLogger, opts.HMR.Connection, func(ctx context.Context, acceptedPath string) (*exports.Namespace, error) {
			return r.Import(ctx, acceptedPath)
		})
		r.hmrClient.Store(client)

		hmrCtx := ctxlog.WithLogger(context.WithoutCancel(ctx), logger)
		opts.HMR.Connection.OnUpdate(func(p hmr.Payload) {
			if err := r.handleHMRPayload(hmrCtx, p); err != nil {
				hmrLogger.Error("HMR payload handling failed.", "type", p.Type, "error", err)
			}
		})
	}

	if opts.SourceMapInterceptor != nil {
		r.resetSourceMap = opts.SourceMapInterceptor(r)
	}

	logger.Debug("Module runner created.", "root", r.root, "hmr", opts.HMR != nil)
	return r, nil
}

// Import executes the module at url (if it has not run yet) and returns its
// exports.
func (r *Runner) Import(ctx context.Context, url string) (*exports.Namespace, error) {
	ctx, span := tracer.Start(ctx, "runner.Import", trace.WithAttributes(
		traceattrs.ModuleURL(url),
		traceattrs.Environment(r.env),
		traceattrs.RunnerID(r.id),
	))
	defer span.End()
	ctx = ctxlog.WithLogger(ctx, r.logger)

	ns, err := r.importURL(ctx, url)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return ns, nil
}

func (r *Runner) importURL(ctx context.Context, url string) (*exports.Namespace, error) {
	if r.destroyed.Load() {
		return nil, ErrDestroyed
	}
	mod, err := r.cachedModule(ctx, url, "")
	if err != nil {
		return nil, err
	}
	return r.cachedRequest(ctx, url, mod, nil, nil)
}

// ClearCache drops every module and resets the HMR client state.
func (r *Runner) ClearCache() {
	r.graph.Clear()
	if c := r.hmrClient.Load(); c != nil {
		c.Clear()
	}
}

// Destroy resets source map interception, clears all caches and releases
// the HMR client. Every later Import fails with ErrDestroyed. In-flight
// executions are not cancelled.
func (r *Runner) Destroy() {
	r.resetOnce.Do(func() {
		if r.resetSourceMap != nil {
			r.resetSourceMap()
		}
	})
	r.ClearCache()
	r.hmrClient.Store(nil)
	r.destroyed.Store(true)
	r.logger.Debug("Module runner destroyed.")
}

// IsDestroyed reports whether Destroy was called.
func (r *Runner) IsDestroyed() bool { return r.destroyed.Load() }

// Graph returns the runner's module graph.
func (r *Runner) Graph() modulegraph.Graph { return r.graph }

// HMRClient returns the HMR client, or nil when HMR is disabled or the
// runner was destroyed.
func (r *Runner) HMRClient() *hmr.Client { return r.hmrClient.Load() }

// Root returns the normalized root, always ending in a slash.
func (r *Runner) Root() string { return r.root }

// Environment returns the environment name.
func (r *Runner) Environment() string { return r.env }

// ID returns the runner instance id.
func (r *Runner) ID() string { return r.id }

// Logger returns the runner logger.
func (r *Runner) Logger() *slog.Logger { return r.logger }

func (r *Runner) debugf(msg string, args ...any) {
	if r.debug != nil {
		r.debug(msg, args...)
	}
}
