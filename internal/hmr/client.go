package hmr

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/specialistvlad/modrun/internal/exports"
)

// ImportFunc re-imports an accepted module after an update.
type ImportFunc func(ctx context.Context, acceptedPath string) (*exports.Namespace, error)

// Data is the per-module scratch space that survives hot updates.
type Data map[string]any

type acceptCallback struct {
	deps []string
	fn   func(mods []*exports.Namespace)
}

type hotModule struct {
	id        string
	callbacks []acceptCallback
}

type listener struct {
	owner string
	fn    func(data any)
}

// Client tracks accept, dispose and prune registrations made by modules and
// applies server updates against them.
//
// Thread-safety: safe for concurrent use. Updates are applied one batch at a
// time.
type Client struct {
	logger        *slog.Logger
	conn          Connection
	importUpdated ImportFunc

	mu              sync.Mutex
	hotModules      map[string]*hotModule
	dataMap         map[string]Data
	disposeMap      map[string]func(Data)
	pruneMap        map[string]func(Data)
	customListeners map[string][]*listener
	pending         []Payload

	updateMu sync.Mutex
}

// NewClient returns a client bound to conn. importUpdated is called with the
// accepted path of every applied update.
func NewClient(logger *slog.Logger, conn Connection, importUpdated ImportFunc) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{logger: logger, conn: conn, importUpdated: importUpdated}
	c.resetLocked()
	return c
}

func (c *Client) resetLocked() {
	c.hotModules = make(map[string]*hotModule)
	c.dataMap = make(map[string]Data)
	c.disposeMap = make(map[string]func(Data))
	c.pruneMap = make(map[string]func(Data))
	c.customListeners = make(map[string][]*listener)
}

// Logger returns the client's logger.
func (c *Client) Logger() *slog.Logger { return c.logger }

// Connection returns the underlying connection.
func (c *Client) Connection() Connection { return c.conn }

// Clear forgets every registration. The connection is left untouched.
func (c *Client) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
}

// NewHotContext returns the hot handle for the module at ownerPath. Accept
// callbacks and listeners left by a previous execution of the same module are
// dropped.
func (c *Client) NewHotContext(ownerPath string) *HotContext {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.dataMap[ownerPath]; !ok {
		c.dataMap[ownerPath] = Data{}
	}
	if mod, ok := c.hotModules[ownerPath]; ok {
		mod.callbacks = nil
	}
	for event, ls := range c.customListeners {
		c.customListeners[event] = slices.DeleteFunc(ls, func(l *listener) bool { return l.owner == ownerPath })
	}
	return &HotContext{client: c, ownerPath: ownerPath}
}

// Send delivers p, queueing it until the connection is ready.
func (c *Client) Send(ctx context.Context, p Payload) error {
	c.mu.Lock()
	c.pending = append(c.pending, p)
	c.mu.Unlock()
	return c.Flush(ctx)
}

// Flush delivers queued messages if the connection is ready.
func (c *Client) Flush(ctx context.Context) error {
	if c.conn == nil || !c.conn.IsReady() {
		return nil
	}
	c.mu.Lock()
	queue := c.pending
	c.pending = nil
	c.mu.Unlock()

	var result error
	for _, p := range queue {
		if err := c.conn.Send(ctx, p); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result
}

// NotifyListeners calls every listener registered for event.
func (c *Client) NotifyListeners(event string, data any) {
	c.mu.Lock()
	ls := slices.Clone(c.customListeners[event])
	c.mu.Unlock()

	for _, l := range ls {
		l.fn(data)
	}
}

// PrunePaths runs the dispose and then the prune callbacks of modules that are
// no longer imported.
func (c *Client) PrunePaths(paths []string) {
	type call struct {
		fn   func(Data)
		data Data
	}
	var disposers, pruners []call

	c.mu.Lock()
	for _, p := range paths {
		if fn := c.disposeMap[p]; fn != nil {
			disposers = append(disposers, call{fn, c.dataMap[p]})
		}
		if fn := c.pruneMap[p]; fn != nil {
			pruners = append(pruners, call{fn, c.dataMap[p]})
		}
	}
	c.mu.Unlock()

	for _, d := range disposers {
		d.fn(d.data)
	}
	for _, p := range pruners {
		p.fn(p.data)
	}
}

// QueueUpdates applies a batch of updates: every accepted module is
// re-imported first, then the accept callbacks run in update order. Failures
// are collected and returned together.
func (c *Client) QueueUpdates(ctx context.Context, updates []Update) error {
	c.updateMu.Lock()
	defer c.updateMu.Unlock()

	var (
		result   error
		appliers []func()
	)
	for _, u := range updates {
		apply, err := c.fetchUpdate(ctx, u)
		if err != nil {
			result = multierror.Append(result, err)
		}
		if apply != nil {
			appliers = append(appliers, apply)
		}
	}
	for _, apply := range appliers {
		apply()
	}
	return result
}

// FetchUpdate applies a single update.
func (c *Client) FetchUpdate(ctx context.Context, u Update) error {
	return c.QueueUpdates(ctx, []Update{u})
}

func (c *Client) fetchUpdate(ctx context.Context, u Update) (func(), error) {
	c.mu.Lock()
	mod, ok := c.hotModules[u.Path]
	var qualified []acceptCallback
	if ok {
		for _, cb := range mod.callbacks {
			if slices.Contains(cb.deps, u.AcceptedPath) {
				qualified = append(qualified, cb)
			}
		}
	}
	disposer := c.disposeMap[u.AcceptedPath]
	data := c.dataMap[u.AcceptedPath]
	c.mu.Unlock()

	if !ok {
		// The updated module was never loaded by this runner.
		return nil, nil
	}

	isSelfUpdate := u.Path == u.AcceptedPath
	var (
		fetched *exports.Namespace
		err     error
	)
	if isSelfUpdate || len(qualified) > 0 {
		if disposer != nil {
			disposer(data)
		}
		fetched, err = c.importUpdated(ctx, u.AcceptedPath)
		if err != nil {
			c.warnFailedUpdate(err, u.AcceptedPath)
			err = fmt.Errorf("hot update of %s: %w", u.AcceptedPath, err)
		}
	}

	return func() {
		for _, cb := range qualified {
			mods := make([]*exports.Namespace, len(cb.deps))
			for i, dep := range cb.deps {
				if dep == u.AcceptedPath {
					mods[i] = fetched
				}
			}
			cb.fn(mods)
		}
		loggedPath := u.Path
		if !isSelfUpdate {
			loggedPath = u.AcceptedPath + " via " + u.Path
		}
		c.logger.Debug("Hot updated.", "path", loggedPath)
	}, err
}

func (c *Client) warnFailedUpdate(err error, path string) {
	c.logger.Error("Hot update failed.", "path", path, "error", err)
	c.logger.Error(fmt.Sprintf("Failed to reload %s. This could be due to syntax errors or importing non-existent modules. (see errors above)", path))
}

func (c *Client) addAcceptCallback(owner string, cb acceptCallback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	mod, ok := c.hotModules[owner]
	if !ok {
		mod = &hotModule{id: owner}
		c.hotModules[owner] = mod
	}
	mod.callbacks = append(mod.callbacks, cb)
}

func (c *Client) addListener(event string, l *listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.customListeners[event] = append(c.customListeners[event], l)
}

func (c *Client) removeListener(event string, l *listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.customListeners[event] = slices.DeleteFunc(c.customListeners[event], func(x *listener) bool { return x == l })
}
