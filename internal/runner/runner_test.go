package runner

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/modrun/internal/exports"
	"github.com/specialistvlad/modrun/internal/fetch"
	"github.com/specialistvlad/modrun/internal/hmr"
)

func TestNew_Validation(t *testing.T) {
	h := newHarness()
	_, err := New(context.Background(), Options{}, h)
	require.Error(t, err)

	_, err = New(context.Background(), Options{Transport: h}, nil)
	require.Error(t, err)

	_, err = New(context.Background(), Options{Transport: h, HMR: &HMROptions{}}, h)
	require.Error(t, err)
}

func TestImport_SimpleModule(t *testing.T) {
	h := newHarness()
	h.module("/a.hcl", func(ctx context.Context, mctx *Context) error {
		assert.Equal(t, "/a.hcl", mctx.Meta.Filename)
		assert.Equal(t, "/", mctx.Meta.Dirname)
		assert.Equal(t, "file:///a.hcl", mctx.Meta.URL)
		return setValue(mctx, "x", 1)
	})
	r := newTestRunner(t, h)

	ns, err := r.Import(context.Background(), "/a.hcl")
	require.NoError(t, err)
	assert.True(t, ns.IsModule())
	assert.Equal(t, 1, get(t, ns, "x"))

	node, ok := r.Graph().ModuleByID("/a.hcl")
	require.True(t, ok)
	assert.True(t, node.Evaluated())
	assert.Same(t, ns, node.Exports())
}

func TestImport_StripsRootFromAbsoluteURL(t *testing.T) {
	h := newHarness()
	h.module("/a.hcl", nil)
	r := newTestRunner(t, h)

	_, err := r.Import(context.Background(), "/project/a.hcl")
	require.NoError(t, err)
	_, err = r.Import(context.Background(), "file:///project/a.hcl")
	require.NoError(t, err)
	assert.Equal(t, 1, h.count(h.runs, "/a.hcl"))
}

func TestImport_ConcurrentRequestsShareOneExecution(t *testing.T) {
	h := newHarness()
	release := make(chan struct{})
	h.module("/a.hcl", func(ctx context.Context, mctx *Context) error {
		<-release
		return setValue(mctx, "x", 1)
	})
	r := newTestRunner(t, h)

	const callers = 10
	results := make([]*exports.Namespace, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ns, err := r.Import(context.Background(), "/a.hcl")
			assert.NoError(t, err)
			results[i] = ns
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, ns := range results {
		require.NotNil(t, ns)
		assert.Same(t, results[0], ns)
	}
	assert.Equal(t, 1, h.count(h.runs, "/a.hcl"))
}

func TestImport_SelfImportReturnsPartialExports(t *testing.T) {
	h := newHarness()
	var own, imported *exports.Namespace
	h.module("/a.hcl", func(ctx context.Context, mctx *Context) error {
		own = mctx.Exports
		if err := setValue(mctx, "before", true); err != nil {
			return err
		}
		ns, err := mctx.Import(ctx, "/a.hcl", nil)
		if err != nil {
			return err
		}
		imported = ns
		return setValue(mctx, "after", true)
	})
	r := newTestRunner(t, h)

	ns, err := r.Import(context.Background(), "/a.hcl")
	require.NoError(t, err)
	assert.Same(t, own, imported)
	assert.Same(t, ns, imported)
	assert.True(t, ns.Has("after"))
	assert.Equal(t, 1, h.count(h.runs, "/a.hcl"))
}

func TestImport_RingCycle(t *testing.T) {
	h := newHarness()
	var seenFromC []string
	ring := map[string]string{"/a.hcl": "/b.hcl", "/b.hcl": "/c.hcl", "/c.hcl": "/a.hcl"}
	for self, next := range ring {
		h.module(self, func(ctx context.Context, mctx *Context) error {
			if err := setValue(mctx, "name", self); err != nil {
				return err
			}
			ns, err := mctx.Import(ctx, next, nil)
			if err != nil {
				return err
			}
			if self == "/c.hcl" {
				seenFromC = ns.Keys()
			}
			return setValue(mctx, "done", true)
		})
	}
	r := newTestRunner(t, h)

	ns, err := r.Import(context.Background(), "/a.hcl")
	require.NoError(t, err)
	assert.Equal(t, true, get(t, ns, "done"))
	// C saw A half-way through its execution.
	assert.Equal(t, []string{"name"}, seenFromC)

	for self, next := range ring {
		assert.Equal(t, 1, h.count(h.runs, self), "runs of %s", self)
		node, ok := r.Graph().ModuleByID(self)
		require.True(t, ok)
		assert.Contains(t, node.Imports(), next)
		nextNode, ok := r.Graph().ModuleByID(next)
		require.True(t, ok)
		assert.Contains(t, nextNode.Importers(), self)
	}
}

func TestImport_CrossGoroutineCycleDoesNotDeadlock(t *testing.T) {
	h := newHarness()
	var started sync.WaitGroup
	started.Add(2)
	pair := map[string]string{"/a.hcl": "/b.hcl", "/b.hcl": "/a.hcl"}
	for self, other := range pair {
		h.module(self, func(ctx context.Context, mctx *Context) error {
			if err := setValue(mctx, "name", self); err != nil {
				return err
			}
			started.Done()
			started.Wait()
			_, err := mctx.Import(ctx, other, nil)
			return err
		})
	}
	r := newTestRunner(t, h)

	done := make(chan error, 2)
	for url := range pair {
		go func() {
			_, err := r.Import(context.Background(), url)
			done <- err
		}()
	}

	for range 2 {
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("cross-goroutine cycle deadlocked")
		}
	}
	assert.Equal(t, 1, h.count(h.runs, "/a.hcl"))
	assert.Equal(t, 1, h.count(h.runs, "/b.hcl"))
}

func TestImport_InvalidatedByBackendReexecutes(t *testing.T) {
	h := newHarness()
	h.module("/a.hcl", func(ctx context.Context, mctx *Context) error {
		return setValue(mctx, "x", 1)
	})
	r := newTestRunner(t, h)
	ctx := context.Background()

	first, err := r.Import(ctx, "/a.hcl")
	require.NoError(t, err)

	again, err := r.Import(ctx, "/a.hcl")
	require.NoError(t, err)
	assert.Same(t, first, again)
	assert.Equal(t, 1, h.count(h.cachedAsk, "/a.hcl"))

	h.touch("/a.hcl")
	fresh, err := r.Import(ctx, "/a.hcl")
	require.NoError(t, err)
	assert.NotSame(t, first, fresh)
	assert.Equal(t, 2, h.count(h.runs, "/a.hcl"))
}

func TestImport_InvalidateModuleRefetches(t *testing.T) {
	h := newHarness()
	h.module("/a.hcl", nil)
	r := newTestRunner(t, h)
	ctx := context.Background()

	first, err := r.Import(ctx, "/a.hcl")
	require.NoError(t, err)

	node, _ := r.Graph().ModuleByID("/a.hcl")
	r.Graph().InvalidateModule(node)

	fresh, err := r.Import(ctx, "/a.hcl")
	require.NoError(t, err)
	assert.NotSame(t, first, fresh)
	assert.Equal(t, 2, h.count(h.runs, "/a.hcl"))
	assert.Equal(t, 2, h.count(h.fetches, "/a.hcl"))
	assert.Equal(t, 0, h.count(h.cachedAsk, "/a.hcl"))
}

func TestClearCache_RefetchesFromScratch(t *testing.T) {
	h := newHarness()
	h.module("/a.hcl", nil)
	r := newTestRunner(t, h)
	ctx := context.Background()

	_, err := r.Import(ctx, "/a.hcl")
	require.NoError(t, err)
	r.ClearCache()
	assert.Empty(t, r.Graph().All())

	_, err = r.Import(ctx, "/a.hcl")
	require.NoError(t, err)
	assert.Equal(t, 2, h.count(h.runs, "/a.hcl"))
	assert.Equal(t, 0, h.count(h.cachedAsk, "/a.hcl"))
}

func TestDestroy(t *testing.T) {
	h := newHarness()
	var meta *ImportMeta
	h.module("/a.hcl", func(ctx context.Context, mctx *Context) error {
		meta = mctx.Meta
		return nil
	})
	resets := 0
	r := newTestRunner(t, h, func(o *Options) {
		o.HMR = &HMROptions{Connection: &fakeConn{}}
		o.SourceMapInterceptor = func(*Runner) func() { return func() { resets++ } }
	})

	_, err := r.Import(context.Background(), "/a.hcl")
	require.NoError(t, err)
	hot, err := meta.Hot()
	require.NoError(t, err)
	require.NotNil(t, hot)

	r.Destroy()
	assert.True(t, r.IsDestroyed())
	assert.Equal(t, 1, resets)
	assert.Nil(t, r.HMRClient())
	assert.Empty(t, r.Graph().All())

	_, err = r.Import(context.Background(), "/a.hcl")
	require.ErrorIs(t, err, ErrDestroyed)

	_, err = meta.Hot()
	require.ErrorIs(t, err, ErrHMRDestroyed)
}

func TestImportMeta_UnsupportedFeaturesFailLoudly(t *testing.T) {
	h := newHarness()
	h.module("/env.hcl", func(ctx context.Context, mctx *Context) error {
		_, err := mctx.Meta.Env.Get("API_KEY")
		return err
	})
	h.module("/other.hcl", func(ctx context.Context, mctx *Context) error {
		_, err := mctx.Meta.Resolve("./x", "")
		assert.ErrorIs(t, err, ErrUnsupported)
		_, err = mctx.Meta.Glob("*.hcl")
		assert.ErrorIs(t, err, ErrUnsupported)
		hot, err := mctx.Meta.Hot()
		assert.NoError(t, err)
		assert.Nil(t, hot)
		return nil
	})
	r := newTestRunner(t, h)

	_, err := r.Import(context.Background(), "/env.hcl")
	require.ErrorIs(t, err, ErrUnsupported)
	var unsupported *UnsupportedError
	require.ErrorAs(t, err, &unsupported)
	assert.Contains(t, err.Error(), `meta.env.API_KEY`)

	_, err = r.Import(context.Background(), "/other.hcl")
	require.NoError(t, err)
}

func TestImport_ErrorsPropagateToEveryWaiter(t *testing.T) {
	h := newHarness()
	boom := errors.New("boom")
	h.module("/bad.hcl", func(ctx context.Context, mctx *Context) error { return boom })
	h.module("/main.hcl", func(ctx context.Context, mctx *Context) error {
		_, err := mctx.Import(ctx, "/bad.hcl", nil)
		return err
	})
	r := newTestRunner(t, h)

	_, err := r.Import(context.Background(), "/main.hcl")
	require.ErrorIs(t, err, boom)
	_, err = r.Import(context.Background(), "/bad.hcl")
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, h.count(h.runs, "/bad.hcl"))
}

func TestImport_PanicBecomesError(t *testing.T) {
	h := newHarness()
	h.module("/a.hcl", func(ctx context.Context, mctx *Context) error { panic("kaboom") })
	r := newTestRunner(t, h)

	_, err := r.Import(context.Background(), "/a.hcl")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")
}

func TestImport_MissingCodeIsLoadError(t *testing.T) {
	h := newHarness()
	h.result("/empty.hcl", &fetch.Result{ID: "/empty.hcl", URL: "/empty.hcl", File: "/empty.hcl"})
	h.module("/main.hcl", func(ctx context.Context, mctx *Context) error {
		_, err := mctx.Import(ctx, "/empty.hcl", nil)
		return err
	})
	r := newTestRunner(t, h)

	_, err := r.Import(context.Background(), "/main.hcl")
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, "/empty.hcl", loadErr.URL)
	assert.Equal(t, "/main.hcl", loadErr.Importer)
}

func TestImport_CachedWithoutStateIsInvalidatedError(t *testing.T) {
	h := newHarness()
	h.result("/a.hcl", fetch.Cached())
	r := newTestRunner(t, h)

	_, err := r.Import(context.Background(), "/a.hcl")
	var invalidated *InvalidatedError
	require.ErrorAs(t, err, &invalidated)
	assert.Contains(t, err.Error(), "mistakenly invalidated during fetch phase")
}

func TestImport_DataURLSkipsBackend(t *testing.T) {
	h := newHarness()
	r := newTestRunner(t, h)

	const u = "data:application/json,{}"
	ns, err := r.Import(context.Background(), u)
	require.NoError(t, err)
	assert.Equal(t, u, get(t, ns, "spec"))
	assert.Equal(t, 0, h.count(h.fetches, u))
	assert.Equal(t, 1, h.count(h.extRuns, u))
}

func TestImport_ExternalInterop(t *testing.T) {
	h := newHarness()
	h.external("esm-lib", fetch.KindModule, exports.FromMap(map[string]any{"a": 1}))
	h.external("cjs-lib", fetch.KindCommonJS, exports.FromMap(map[string]any{"default": 1}))
	h.external("builtin:x", fetch.KindBuiltin, exports.New())

	importWith := func(dep string, md *ImportMetadata) error {
		url := "/importer-" + strings.ReplaceAll(dep, ":", "-") + ".hcl"
		h.module(url, func(ctx context.Context, mctx *Context) error {
			_, err := mctx.Import(ctx, dep, md)
			return err
		})
		r := newTestRunner(t, h)
		_, err := r.Import(context.Background(), url)
		return err
	}

	err := importWith("esm-lib", &ImportMetadata{ImportedNames: []string{"a", "b", "c"}})
	var missing *MissingExportError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"b", "c"}, missing.Missing)
	assert.Contains(t, err.Error(), "The requested module 'esm-lib' does not provide an export named 'c'")

	err = importWith("cjs-lib", &ImportMetadata{ImportedNames: []string{"x"}})
	require.ErrorAs(t, err, &missing)
	assert.Contains(t, err.Error(), "Named export 'x' not found")
	assert.Contains(t, err.Error(), "CommonJS")

	require.NoError(t, importWith("esm-lib", &ImportMetadata{ImportedNames: []string{"a"}}))
	require.NoError(t, importWith("esm-lib", nil))
	require.NoError(t, importWith("builtin:x", &ImportMetadata{ImportedNames: []string{"nope"}}))
}

func TestDynamicImport_SkipsInteropAndResolvesRelative(t *testing.T) {
	h := newHarness()
	h.module("/src/dep.hcl", func(ctx context.Context, mctx *Context) error {
		return setValue(mctx, "ok", true)
	})
	h.external("esm-lib", fetch.KindModule, exports.New())
	h.module("/src/main.hcl", func(ctx context.Context, mctx *Context) error {
		ns, err := mctx.DynamicImport(ctx, "./dep.hcl")
		if err != nil {
			return err
		}
		if err := mctx.Exports.Set("dep", ns); err != nil {
			return err
		}
		_, err = mctx.DynamicImport(ctx, "esm-lib")
		return err
	})
	r := newTestRunner(t, h)

	ns, err := r.Import(context.Background(), "/src/main.hcl")
	require.NoError(t, err)
	dep := get(t, ns, "dep").(*exports.Namespace)
	assert.Equal(t, true, get(t, dep, "ok"))
}

func TestStallTimerReportsCallStack(t *testing.T) {
	h := newHarness()
	h.module("/slow.hcl", func(ctx context.Context, mctx *Context) error {
		time.Sleep(100 * time.Millisecond)
		return nil
	})
	h.module("/main.hcl", func(ctx context.Context, mctx *Context) error {
		_, err := mctx.Import(ctx, "/slow.hcl", nil)
		return err
	})

	var (
		mu   sync.Mutex
		msgs []string
	)
	r := newTestRunner(t, h, func(o *Options) {
		o.StallTimeout = 20 * time.Millisecond
		o.Debug = func(msg string, args ...any) {
			mu.Lock()
			defer mu.Unlock()
			msgs = append(msgs, msg)
		}
	})

	_, err := r.Import(context.Background(), "/main.hcl")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	var stall string
	for _, m := range msgs {
		if strings.HasPrefix(m, "module /slow.hcl takes over") {
			stall = m
		}
	}
	require.NotEmpty(t, stall, "no stall report in %v", msgs)
	assert.Contains(t, stall, "stack:\n  - /slow.hcl\n  - /main.hcl")
}

func TestImport_WaiterHonoursContext(t *testing.T) {
	h := newHarness()
	release := make(chan struct{})
	h.module("/a.hcl", func(ctx context.Context, mctx *Context) error {
		<-release
		return nil
	})
	r := newTestRunner(t, h)

	go func() { _, _ = r.Import(context.Background(), "/a.hcl") }()
	require.Eventually(t, func() bool { return h.count(h.runs, "/a.hcl") == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := r.Import(ctx, "/a.hcl")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	_, err = r.Import(context.Background(), "/a.hcl")
	require.NoError(t, err)
	assert.Equal(t, 1, h.count(h.runs, "/a.hcl"))
}

func TestImportMeta_HotIsLazyAndStable(t *testing.T) {
	h := newHarness()
	var first, second *hmr.HotContext
	h.module("/a.hcl", func(ctx context.Context, mctx *Context) error {
		var err error
		if first, err = mctx.Meta.Hot(); err != nil {
			return err
		}
		second, err = mctx.Meta.Hot()
		return err
	})
	r := newTestRunner(t, h, func(o *Options) { o.HMR = &HMROptions{Connection: &fakeConn{}} })

	_, err := r.Import(context.Background(), "/a.hcl")
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Same(t, first, second)
	assert.Equal(t, "/a.hcl", first.OwnerPath())
}

func TestImport_CancelledWaiterLeavesNodeUnevaluated(t *testing.T) {
	h := newHarness()
	release := make(chan struct{})
	h.module("/a.hcl", func(ctx context.Context, mctx *Context) error {
		<-release
		return nil
	})
	r := newTestRunner(t, h)

	done := make(chan error, 1)
	go func() {
		_, err := r.Import(context.Background(), "/a.hcl")
		done <- err
	}()
	require.Eventually(t, func() bool { return h.count(h.runs, "/a.hcl") == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := r.Import(ctx, "/a.hcl")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	node, ok := r.Graph().ModuleByURL("/a.hcl")
	require.True(t, ok)
	assert.False(t, node.Evaluated(), "evaluated before the execution settled")
	assert.False(t, node.Execution().Settled())

	close(release)
	require.NoError(t, <-done)
	assert.True(t, node.Evaluated())
	assert.True(t, node.Execution().Settled())
}

func TestImport_NonCanonicalBackendIDKeepsEdgesSymmetric(t *testing.T) {
	h := newHarness()
	h.module("/a.hcl", func(ctx context.Context, mctx *Context) error {
		_, err := mctx.Import(ctx, "/b.hcl", nil)
		return err
	})
	h.module("/b.hcl", func(ctx context.Context, mctx *Context) error {
		return setValue(mctx, "v", 1)
	})
	h.result("/a.hcl", fetch.Inline("/@fs/a.hcl", "/a.hcl", "/a.hcl", "/a.hcl"))
	r := newTestRunner(t, h)

	_, err := r.Import(context.Background(), "/a.hcl")
	require.NoError(t, err)

	a, ok := r.Graph().ModuleByURL("/a.hcl")
	require.True(t, ok)
	b, ok := r.Graph().ModuleByID("/b.hcl")
	require.True(t, ok)
	assert.Equal(t, "/a.hcl", a.ID())
	assert.Equal(t, "/a.hcl", a.Meta().ID)
	assert.Equal(t, []string{"/b.hcl"}, a.Imports())
	assert.Equal(t, []string{"/a.hcl"}, b.Importers())
}

func TestDestroy_ConcurrentCallsResetSourceMapOnce(t *testing.T) {
	h := newHarness()
	var (
		mu     sync.Mutex
		resets int
	)
	r := newTestRunner(t, h, func(o *Options) {
		o.SourceMapInterceptor = func(*Runner) func() {
			return func() {
				mu.Lock()
				defer mu.Unlock()
				resets++
			}
		}
	})

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Destroy()
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, resets)
	assert.True(t, r.IsDestroyed())
}
