package runner

import (
	"context"
	"log/slog"
	"time"

	"github.com/specialistvlad/modrun/internal/exports"
	"github.com/specialistvlad/modrun/internal/fetch"
	"github.com/specialistvlad/modrun/internal/hmr"
	"github.com/specialistvlad/modrun/internal/modulegraph"
)

// DefaultStallTimeout is how long a module may take before the debug hook is
// told about it.
const DefaultStallTimeout = 2 * time.Second

// Evaluator runs module code. The runner never interprets source itself.
type Evaluator interface {
	// RunInlinedModule executes code as the module at url. The module
	// reaches its dependencies and its exports through mctx.
	RunInlinedModule(ctx context.Context, mctx *Context, code, url string) error
	// RunExternalModule loads a module the backend chose not to inline.
	RunExternalModule(ctx context.Context, specifier string) (*exports.Namespace, error)
}

// HMROptions enables hot module replacement.
type HMROptions struct {
	Connection hmr.Connection
	// Logger receives HMR client logs. Defaults to the runner logger.
	Logger *slog.Logger
}

// Options configures a Runner.
type Options struct {
	// Root is stripped from absolute urls before they reach Transport.
	Root string
	// Transport fetches module metadata. Required.
	Transport fetch.Backend
	// Graph defaults to an empty in-memory graph.
	Graph modulegraph.Graph
	// HMR is nil when hot updates are disabled.
	HMR *HMROptions
	// SourceMapInterceptor is installed at construction; the function it
	// returns is called on Destroy.
	SourceMapInterceptor func(r *Runner) (reset func())
	// Debug, when set, receives diagnostic messages including stall reports.
	Debug func(msg string, args ...any)
	// StallTimeout defaults to DefaultStallTimeout.
	StallTimeout time.Duration
	// Environment names the runner in logs and traces.
	Environment string
	// Logger defaults to the logger carried by the construction context.
	Logger *slog.Logger
}
