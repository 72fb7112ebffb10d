package hmr

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchOptions configures a WatchConnection.
type WatchOptions struct {
	// Root is the directory module urls are relative to.
	Root string
	// Extensions limits which files trigger reloads. Empty means ".hcl".
	Extensions []string
	// Debounce suppresses repeated events for the same file.
	Debounce time.Duration
	Logger   *slog.Logger
}

// WatchConnection turns local file changes into full-reload payloads. It is
// the HMR transport used when no dev server is running.
type WatchConnection struct {
	opts    WatchOptions
	logger  *slog.Logger
	watcher *fsnotify.Watcher

	ready         atomic.Bool
	slot          handlerSlot
	invalidations chan string
	done          chan struct{}
}

var _ Connection = (*WatchConnection)(nil)

// NewWatchConnection returns a connection that watches opts.Root once started.
func NewWatchConnection(opts WatchOptions) *WatchConnection {
	if len(opts.Extensions) == 0 {
		opts.Extensions = []string{".hcl"}
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 100 * time.Millisecond
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &WatchConnection{
		opts:          opts,
		logger:        logger.With("transport", "watch", "root", opts.Root),
		invalidations: make(chan string, 16),
		done:          make(chan struct{}),
	}
}

// Start begins watching every directory below Root. Watching stops when ctx
// is done or Close is called.
func (c *WatchConnection) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	err = filepath.WalkDir(c.opts.Root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(p)
		}
		return nil
	})
	if err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch directory %s: %w", c.opts.Root, err)
	}

	c.watcher = watcher
	c.ready.Store(true)
	c.logger.Info("👀 Started watching for module changes")

	go c.watchLoop(ctx)
	c.slot.deliver(Payload{Type: TypeConnected})
	return nil
}

func (c *WatchConnection) watchLoop(ctx context.Context) {
	defer close(c.done)
	defer func() {
		c.ready.Store(false)
		c.watcher.Close()
	}()

	debounce := make(map[string]time.Time)

	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("Stopping file watcher (context cancelled)")
			return

		case path := <-c.invalidations:
			c.slot.deliver(Payload{Type: TypeFullReload, TriggeredBy: path})

		case event, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = c.watcher.Add(event.Name)
					continue
				}
			}
			if !c.relevant(event) {
				continue
			}
			if last, seen := debounce[event.Name]; seen && time.Since(last) < c.opts.Debounce {
				continue
			}
			debounce[event.Name] = time.Now()

			url, err := c.toURL(event.Name)
			if err != nil {
				c.logger.Warn("Ignoring change outside root.", "file", event.Name, "error", err)
				continue
			}
			c.logger.Info("Module file changed, reloading", "file", url, "op", event.Op.String())
			c.slot.deliver(Payload{Type: TypeFullReload, TriggeredBy: url})

		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			c.logger.Error("Watcher error", "error", err)
		}
	}
}

func (c *WatchConnection) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	return slices.Contains(c.opts.Extensions, filepath.Ext(event.Name))
}

func (c *WatchConnection) toURL(file string) (string, error) {
	rel, err := filepath.Rel(c.opts.Root, file)
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%s is outside %s", file, c.opts.Root)
	}
	return "/" + filepath.ToSlash(rel), nil
}

// Done is closed when the watch loop stops.
func (c *WatchConnection) Done() <-chan struct{} { return c.done }

// IsReady implements Connection.
func (c *WatchConnection) IsReady() bool { return c.ready.Load() }

// OnUpdate implements Connection.
func (c *WatchConnection) OnUpdate(handler func(Payload)) { c.slot.set(handler) }

// Send implements Connection. There is no server to talk to; an invalidation
// is answered locally with a full reload of the modules above the sender.
func (c *WatchConnection) Send(ctx context.Context, p Payload) error {
	if p.Type != TypeCustom || p.Event != EventInvalidate {
		return nil
	}
	data, _ := p.Data.(map[string]any)
	path, _ := data["path"].(string)
	if path == "" {
		return nil
	}
	select {
	case c.invalidations <- path:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops watching.
func (c *WatchConnection) Close() error {
	if c.watcher == nil {
		return nil
	}
	return c.watcher.Close()
}
