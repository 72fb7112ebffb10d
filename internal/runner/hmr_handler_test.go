package runner

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/modrun/internal/exports"
	"github.com/specialistvlad/modrun/internal/hmr"
)

func newHMRRunner(t *testing.T, h *harness) (*Runner, *fakeConn) {
	t.Helper()
	conn := &fakeConn{}
	r := newTestRunner(t, h, func(o *Options) { o.HMR = &HMROptions{Connection: conn} })
	return r, conn
}

func TestHMR_SelfAcceptingUpdateReexecutes(t *testing.T) {
	h := newHarness()
	var (
		mu       sync.Mutex
		accepted []*exports.Namespace
		disposed int
		version  int
	)
	h.module("/a.hcl", func(ctx context.Context, mctx *Context) error {
		hot, err := mctx.Meta.Hot()
		if err != nil {
			return err
		}
		hot.Accept(func(mod *exports.Namespace) {
			mu.Lock()
			defer mu.Unlock()
			accepted = append(accepted, mod)
		})
		hot.Dispose(func(hmr.Data) {
			mu.Lock()
			defer mu.Unlock()
			disposed++
		})
		mu.Lock()
		version++
		v := version
		mu.Unlock()
		return setValue(mctx, "version", v)
	})
	r, conn := newHMRRunner(t, h)

	first, err := r.Import(context.Background(), "/a.hcl")
	require.NoError(t, err)

	h.touch("/a.hcl")
	conn.deliver(hmr.Payload{
		Type:    hmr.TypeUpdate,
		Updates: []hmr.Update{{Type: hmr.UpdateJS, Path: "/a.hcl", AcceptedPath: "/a.hcl"}},
	})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, disposed)
	require.Len(t, accepted, 1)
	require.NotNil(t, accepted[0])
	assert.NotSame(t, first, accepted[0])
	assert.Equal(t, 2, get(t, accepted[0], "version"))
	assert.Equal(t, 2, h.count(h.runs, "/a.hcl"))
}

func TestHMR_UpdateForUnknownModuleIsIgnored(t *testing.T) {
	h := newHarness()
	r, _ := newHMRRunner(t, h)

	err := r.handleHMRPayload(context.Background(), hmr.Payload{
		Type:    hmr.TypeUpdate,
		Updates: []hmr.Update{{Type: hmr.UpdateJS, Path: "/nope.hcl", AcceptedPath: "/nope.hcl"}},
	})
	require.NoError(t, err)
	assert.Zero(t, h.count(h.fetches, "/nope.hcl"))
}

func TestHMR_UpdateListenersAreNotified(t *testing.T) {
	h := newHarness()
	var events []string
	h.module("/a.hcl", func(ctx context.Context, mctx *Context) error {
		hot, err := mctx.Meta.Hot()
		if err != nil {
			return err
		}
		hot.On(hmr.EventBeforeUpdate, func(any) { events = append(events, "before") })
		hot.On(hmr.EventAfterUpdate, func(any) { events = append(events, "after") })
		hot.On("custom:ping", func(data any) { events = append(events, "custom:"+data.(string)) })
		return nil
	})
	r, _ := newHMRRunner(t, h)
	ctx := context.Background()

	_, err := r.Import(ctx, "/a.hcl")
	require.NoError(t, err)

	require.NoError(t, r.handleHMRPayload(ctx, hmr.Payload{Type: hmr.TypeUpdate}))
	require.NoError(t, r.handleHMRPayload(ctx, hmr.Payload{Type: hmr.TypeCustom, Event: "custom:ping", Data: "pong"}))
	assert.Equal(t, []string{"before", "after", "custom:pong"}, events)
}

func TestHMR_FullReloadReimportsEntrypoints(t *testing.T) {
	h := newHarness()
	h.module("/dep.hcl", nil)
	h.module("/main.hcl", func(ctx context.Context, mctx *Context) error {
		_, err := mctx.Import(ctx, "/dep.hcl", nil)
		return err
	})
	h.module("/other.hcl", nil)
	r, conn := newHMRRunner(t, h)
	ctx := context.Background()

	_, err := r.Import(ctx, "/main.hcl")
	require.NoError(t, err)
	_, err = r.Import(ctx, "/other.hcl")
	require.NoError(t, err)

	conn.deliver(hmr.Payload{Type: hmr.TypeFullReload, TriggeredBy: "/dep.hcl"})
	assert.Equal(t, 2, h.count(h.runs, "/main.hcl"))
	assert.Equal(t, 2, h.count(h.runs, "/dep.hcl"))
	// Clearing the graph drops modules the reload did not reach.
	_, ok := r.Graph().ModuleByID("/other.hcl")
	assert.False(t, ok)

	_, err = r.Import(ctx, "/other.hcl")
	require.NoError(t, err)
	conn.deliver(hmr.Payload{Type: hmr.TypeFullReload})
	assert.Equal(t, 3, h.count(h.runs, "/main.hcl"))
	assert.Equal(t, 3, h.count(h.runs, "/other.hcl"))
}

func TestHMR_FullReloadWithUnknownTriggerDoesNothing(t *testing.T) {
	h := newHarness()
	h.module("/main.hcl", nil)
	r, _ := newHMRRunner(t, h)
	ctx := context.Background()

	_, err := r.Import(ctx, "/main.hcl")
	require.NoError(t, err)
	require.NoError(t, r.handleHMRPayload(ctx, hmr.Payload{Type: hmr.TypeFullReload, TriggeredBy: "/elsewhere.hcl"}))
	assert.Equal(t, 1, h.count(h.runs, "/main.hcl"))
	assert.Len(t, r.Graph().All(), 1)
}

func TestHMR_FullReloadReturnsImportErrors(t *testing.T) {
	h := newHarness()
	h.module("/main.hcl", nil)
	r, _ := newHMRRunner(t, h)
	ctx := context.Background()

	_, err := r.Import(ctx, "/main.hcl")
	require.NoError(t, err)

	h.mu.Lock()
	delete(h.modules, "/main.hcl")
	h.mu.Unlock()

	err = r.handleHMRPayload(ctx, hmr.Payload{Type: hmr.TypeFullReload})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/main.hcl")
}

func TestHMR_PruneRunsPruneCallbacks(t *testing.T) {
	h := newHarness()
	var pruned []string
	h.module("/a.hcl", func(ctx context.Context, mctx *Context) error {
		hot, err := mctx.Meta.Hot()
		if err != nil {
			return err
		}
		hot.Data()["count"] = 7
		hot.Prune(func(data hmr.Data) { pruned = append(pruned, "a") })
		return nil
	})
	r, _ := newHMRRunner(t, h)
	ctx := context.Background()

	_, err := r.Import(ctx, "/a.hcl")
	require.NoError(t, err)
	require.NoError(t, r.handleHMRPayload(ctx, hmr.Payload{Type: hmr.TypePrune, Paths: []string{"/a.hcl", "/b.hcl"}}))
	assert.Equal(t, []string{"a"}, pruned)
}

func TestHMR_ErrorAndPingPayloads(t *testing.T) {
	h := newHarness()
	var errs []any
	h.module("/a.hcl", func(ctx context.Context, mctx *Context) error {
		hot, err := mctx.Meta.Hot()
		if err != nil {
			return err
		}
		hot.On(hmr.EventError, func(data any) { errs = append(errs, data) })
		return nil
	})
	r, _ := newHMRRunner(t, h)
	ctx := context.Background()

	_, err := r.Import(ctx, "/a.hcl")
	require.NoError(t, err)

	require.NoError(t, r.handleHMRPayload(ctx, hmr.Payload{Type: hmr.TypeError, Err: &hmr.ErrorInfo{Message: "bad", Stack: "at x"}}))
	require.NoError(t, r.handleHMRPayload(ctx, hmr.Payload{Type: hmr.TypePing}))
	require.NoError(t, r.handleHMRPayload(ctx, hmr.Payload{Type: "mystery"}))
	assert.Len(t, errs, 1)
}

func TestHMR_ConnectedFlushesQueuedMessages(t *testing.T) {
	h := newHarness()
	r, conn := newHMRRunner(t, h)
	ctx := context.Background()

	require.NoError(t, r.HMRClient().Send(ctx, hmr.Payload{Type: hmr.TypeCustom, Event: "x"}))
	conn.deliver(hmr.Payload{Type: hmr.TypeConnected})

	conn.mu.Lock()
	defer conn.mu.Unlock()
	require.NotEmpty(t, conn.sent)
	assert.Equal(t, "x", conn.sent[len(conn.sent)-1].Event)
}

func TestHMR_DestroyedRunnerIgnoresPayloads(t *testing.T) {
	h := newHarness()
	h.module("/a.hcl", nil)
	r, conn := newHMRRunner(t, h)

	_, err := r.Import(context.Background(), "/a.hcl")
	require.NoError(t, err)
	r.Destroy()

	conn.deliver(hmr.Payload{Type: hmr.TypeFullReload})
	assert.Equal(t, 1, h.count(h.runs, "/a.hcl"))
}
