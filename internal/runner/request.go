package runner

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/specialistvlad/modrun/internal/ctxlog"
	"github.com/specialistvlad/modrun/internal/exports"
	"github.com/specialistvlad/modrun/internal/fetch"
	"github.com/specialistvlad/modrun/internal/modulegraph"
	"github.com/specialistvlad/modrun/internal/tracing/traceattrs"
)

// cachedModule returns the graph node for url, fetching its metadata when
// needed. Concurrent calls for the same normalized url share one fetch.
func (r *Runner) cachedModule(ctx context.Context, rawURL, importer string) (*modulegraph.Node, error) {
	u := modulegraph.NormalizeAbsoluteURL(rawURL, r.root)

	v, err, shared := r.inflight.Do(u, func() (any, error) {
		cached, _ := r.graph.ModuleByURL(u)
		return r.moduleInformation(ctx, u, importer, cached)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		r.debugf("Module info request was shared.", "url", u)
	}
	return v.(*modulegraph.Node), nil
}

func (r *Runner) moduleInformation(ctx context.Context, u, importer string, cached *modulegraph.Node) (*modulegraph.Node, error) {
	if r.destroyed.Load() {
		return nil, ErrDestroyed
	}

	isCached := cached != nil && cached.Meta() != nil

	var (
		res *fetch.Result
		err error
	)
	if strings.HasPrefix(u, "data:") {
		res = fetch.Externalized(u, fetch.KindBuiltin)
	} else {
		res, err = r.transport.FetchModule(ctx, u, importer, fetch.Options{Cached: isCached})
		if err != nil {
			return nil, err
		}
		if res == nil {
			return nil, fmt.Errorf("fetch backend returned no result for %q", u)
		}
	}

	if res.IsCached() {
		if !isCached {
			return nil, &InvalidatedError{URL: u}
		}
		return cached, nil
	}

	meta := *res
	moduleID := meta.ID
	if meta.IsExternal() {
		moduleID = meta.Externalize
	}
	moduleURL := u
	if !meta.IsExternal() && meta.URL != "" {
		moduleURL = meta.URL
	}
	meta.URL = moduleURL

	mod := r.graph.EnsureModule(moduleID, moduleURL)
	// Edges and call stacks key on the node's canonical id.
	meta.ID = mod.ID()
	if meta.Invalidate {
		r.graph.InvalidateModule(mod)
	}
	mod.SetMeta(&meta)
	return mod, nil
}

// cachedRequest returns the exports of mod, executing it if no execution
// exists yet. A request that closes an import cycle receives the current,
// possibly partial, exports instead of waiting.
func (r *Runner) cachedRequest(ctx context.Context, u string, mod *modulegraph.Node, callstack []string, md *ImportMetadata) (*exports.Namespace, error) {
	meta := mod.Meta()
	if meta == nil {
		return nil, &InvalidatedError{URL: u}
	}
	moduleID := meta.ID

	if len(callstack) > 0 {
		mod.AddImporter(callstack[len(callstack)-1])
	}

	if r.isCircular(mod, moduleID, callstack) {
		if ns := mod.Exports(); ns != nil {
			return processImport(ns, meta, md)
		}
	}

	if r.debug != nil {
		timer := time.AfterFunc(r.stallTimeout, func() {
			r.debug(fmt.Sprintf("module %s takes over %s to load.\n%s", moduleID, r.stallTimeout, stallStack(callstack, moduleID)))
		})
		defer timer.Stop()
	}

	exec, started := mod.ClaimExecution()
	if started {
		ns, err := r.execute(ctx, u, mod, callstack)
		exec.Resolve(ns, err)
		mod.SetEvaluated(true)
	}

	ns, err := exec.Wait(ctx)
	if err != nil {
		return nil, err
	}
	return processImport(ns, meta, md)
}

func stallStack(callstack []string, moduleID string) string {
	stack := append(slices.Clone(callstack), moduleID)
	slices.Reverse(stack)
	var b strings.Builder
	b.WriteString("stack:")
	for _, id := range stack {
		b.WriteString("\n  - ")
		b.WriteString(id)
	}
	return b.String()
}

func (r *Runner) execute(ctx context.Context, u string, mod *modulegraph.Node, callstack []string) (ns *exports.Namespace, err error) {
	ctx, span := tracer.Start(ctx, "runner.execute", trace.WithAttributes(
		traceattrs.ModuleID(mod.ID()),
		traceattrs.CallDepth(len(callstack)),
	))
	defer span.End()

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("module %s panicked: %v", u, p)
		}
	}()
	return r.directRequest(ctx, u, mod, callstack)
}

// directRequest executes mod once, building the Context its code runs with.
func (r *Runner) directRequest(ctx context.Context, u string, mod *modulegraph.Node, parentStack []string) (*exports.Namespace, error) {
	meta := mod.Meta()
	if meta == nil {
		return nil, &InvalidatedError{URL: u}
	}
	moduleID := meta.ID
	callstack := append(slices.Clone(parentStack), moduleID)

	request := func(ctx context.Context, dep string, md *ImportMetadata) (*exports.Namespace, error) {
		importer := meta.File
		if importer == "" {
			importer = moduleID
		}
		depMod, err := r.cachedModule(ctx, dep, importer)
		if err != nil {
			return nil, err
		}
		depMod.AddImporter(moduleID)
		mod.AddImport(depMod.ID())
		return r.cachedRequest(ctx, dep, depMod, callstack, md)
	}

	dynamicRequest := func(ctx context.Context, dep any) (*exports.Namespace, error) {
		spec := fmt.Sprint(dep)
		if strings.HasPrefix(spec, ".") {
			spec = path.Join(path.Dir(u), spec)
		}
		return request(ctx, spec, &ImportMetadata{IsDynamicImport: true})
	}

	if meta.IsExternal() {
		r.debugf("Externalizing module.", "specifier", meta.Externalize)
		ns, err := r.evaluator.RunExternalModule(ctx, meta.Externalize)
		if err != nil {
			return nil, err
		}
		mod.SetExports(ns)
		return ns, nil
	}

	if meta.Code == nil {
		importer := ""
		if len(callstack) >= 2 {
			importer = callstack[len(callstack)-2]
		}
		return nil, &LoadError{URL: u, Importer: importer}
	}

	modulePath := meta.File
	if modulePath == "" {
		modulePath = moduleID
	}
	modulePath = modulegraph.CleanURL(modulePath)

	im := &ImportMeta{
		Filename: filepath.FromSlash(modulePath),
		Dirname:  filepath.FromSlash(path.Dir(modulePath)),
		URL:      fileHref(modulePath),
	}
	if r.hmrClient.Load() != nil {
		im.hotOwner = mod.URL()
		im.hotClient = r.hmrClient.Load
	}

	ns := exports.NewModule()
	mod.SetExports(ns)

	mctx := &Context{
		Import:        request,
		DynamicImport: dynamicRequest,
		Exports:       ns,
		ExportAll:     func(source any) { exports.ExportAll(ns, source) },
		Meta:          im,
	}

	ctxlog.FromContext(ctx).Debug("Executing module.", "url", im.URL)
	if err := r.evaluator.RunInlinedModule(ctx, mctx, *meta.Code, u); err != nil {
		return nil, err
	}
	return ns, nil
}

func fileHref(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return (&url.URL{Scheme: "file", Path: p}).String()
}
