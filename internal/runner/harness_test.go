package runner

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/modrun/internal/exports"
	"github.com/specialistvlad/modrun/internal/fetch"
	"github.com/specialistvlad/modrun/internal/hmr"
)

// script is the body of a fake module.
type script func(ctx context.Context, mctx *Context) error

// harness is an in-memory fetch backend and evaluator. The "code" of every
// inline module is a key into scripts.
type harness struct {
	mu        sync.Mutex
	modules   map[string]*fetch.Result
	scripts   map[string]script
	externals map[string]*exports.Namespace
	dirty     map[string]bool
	fetches   map[string]int
	cachedAsk map[string]int
	runs      map[string]int
	extRuns   map[string]int
}

func newHarness() *harness {
	return &harness{
		modules:   make(map[string]*fetch.Result),
		scripts:   make(map[string]script),
		externals: make(map[string]*exports.Namespace),
		dirty:     make(map[string]bool),
		fetches:   make(map[string]int),
		cachedAsk: make(map[string]int),
		runs:      make(map[string]int),
		extRuns:   make(map[string]int),
	}
}

func (h *harness) module(url string, fn script) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.modules[url] = fetch.Inline(url, url, url, url)
	h.scripts[url] = fn
}

func (h *harness) external(spec string, kind fetch.Kind, ns *exports.Namespace) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.modules[spec] = fetch.Externalized(spec, kind)
	h.externals[spec] = ns
}

func (h *harness) result(url string, res *fetch.Result) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.modules[url] = res
}

func (h *harness) touch(url string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dirty[url] = true
}

func (h *harness) count(m map[string]int, key string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return m[key]
}

func (h *harness) FetchModule(ctx context.Context, url, importer string, opts fetch.Options) (*fetch.Result, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fetches[url]++
	if opts.Cached {
		h.cachedAsk[url]++
	}

	res, ok := h.modules[url]
	if !ok {
		return nil, fmt.Errorf("resolving %q from %q: %w", url, importer, fetch.ErrNotFound)
	}
	if opts.Cached && !h.dirty[url] {
		return fetch.Cached(), nil
	}
	cp := *res
	if h.dirty[url] {
		cp.Invalidate = true
		delete(h.dirty, url)
	}
	return &cp, nil
}

func (h *harness) RunInlinedModule(ctx context.Context, mctx *Context, code, url string) error {
	h.mu.Lock()
	h.runs[url]++
	fn := h.scripts[code]
	h.mu.Unlock()

	if fn == nil {
		return nil
	}
	return fn(ctx, mctx)
}

func (h *harness) RunExternalModule(ctx context.Context, spec string) (*exports.Namespace, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.extRuns[spec]++
	if ns, ok := h.externals[spec]; ok {
		return ns, nil
	}
	return exports.FromMap(map[string]any{"spec": spec}), nil
}

func newTestRunner(t *testing.T, h *harness, mutate ...func(*Options)) *Runner {
	t.Helper()
	opts := Options{Root: "/project", Transport: h, Environment: "test"}
	for _, m := range mutate {
		m(&opts)
	}
	r, err := New(context.Background(), opts, h)
	require.NoError(t, err)
	return r
}

// fakeConn is an hmr.Connection driven by the test.
type fakeConn struct {
	mu      sync.Mutex
	handler func(hmr.Payload)
	sent    []hmr.Payload
}

func (f *fakeConn) IsReady() bool { return true }

func (f *fakeConn) Send(ctx context.Context, p hmr.Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, p)
	return nil
}

func (f *fakeConn) OnUpdate(h func(hmr.Payload)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = h
}

func (f *fakeConn) deliver(p hmr.Payload) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	h(p)
}

func setValue(mctx *Context, key string, v any) error {
	return mctx.Exports.Set(key, v)
}

func get(t *testing.T, ns *exports.Namespace, key string) any {
	t.Helper()
	v, ok := ns.Get(key)
	require.True(t, ok, "missing export %q", key)
	return v
}
