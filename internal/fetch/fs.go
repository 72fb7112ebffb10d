package fetch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"

	"github.com/specialistvlad/modrun/internal/ctxlog"
)

// ErrNotFound is returned when a module url resolves to no file.
var ErrNotFound = errors.New("module not found")

// BuiltinPrefix marks specifiers served by the evaluator's builtin registry.
const BuiltinPrefix = "builtin:"

// External maps a doublestar pattern to the kind its matches externalize as.
type External struct {
	Pattern string
	Kind    Kind
}

// FSOptions configures an FSBackend.
type FSOptions struct {
	// Root is the on-disk directory the filesystem is rooted at. It is only
	// used to report absolute file names.
	Root string
	// Extensions are tried in order when a specifier has no extension.
	Extensions []string
	// Externals lists specifier patterns that are never read from disk.
	Externals []External
}

// FSBackend serves modules from an afero filesystem. Module urls are
// slash-separated paths from the filesystem root ("/src/main.hcl").
//
// Change detection is per file: a cached module is invalidated only when its
// own modification time changes. The backend does not know the import graph,
// so an importer whose dependency changed is still answered Cached and the
// dependency is not re-run through it. Hot updates that must reach changed
// dependencies need a full reload, which is what the watch transport sends.
//
// Thread-safety: safe for concurrent use.
type FSBackend struct {
	fs   afero.Fs
	opts FSOptions

	mu     sync.Mutex
	mtimes map[string]time.Time
}

// NewFSBackend returns a backend reading modules from fsys.
func NewFSBackend(fsys afero.Fs, opts FSOptions) (*FSBackend, error) {
	if len(opts.Extensions) == 0 {
		opts.Extensions = []string{".hcl"}
	}
	for _, ext := range opts.Externals {
		if !doublestar.ValidatePattern(ext.Pattern) {
			return nil, fmt.Errorf("invalid external pattern %q", ext.Pattern)
		}
	}
	return &FSBackend{fs: fsys, opts: opts, mtimes: make(map[string]time.Time)}, nil
}

// FetchModule implements Backend.
func (b *FSBackend) FetchModule(ctx context.Context, url, importer string, opts Options) (*Result, error) {
	logger := ctxlog.FromContext(ctx)

	if strings.HasPrefix(url, BuiltinPrefix) {
		return Externalized(url, KindBuiltin), nil
	}
	for _, ext := range b.opts.Externals {
		if ok, _ := doublestar.Match(ext.Pattern, url); ok {
			logger.Debug("Externalizing module.", "url", url, "pattern", ext.Pattern)
			return Externalized(url, ext.Kind), nil
		}
	}

	resolved, info, err := b.resolve(url, importer)
	if err != nil {
		return nil, err
	}
	mtime := info.ModTime()

	b.mu.Lock()
	prev, seen := b.mtimes[resolved]
	b.mtimes[resolved] = mtime
	b.mu.Unlock()

	changed := seen && !prev.Equal(mtime)
	if opts.Cached && seen && !changed {
		return Cached(), nil
	}

	code, err := afero.ReadFile(b.fs, resolved)
	if err != nil {
		return nil, fmt.Errorf("reading module %q: %w", resolved, err)
	}
	logger.Debug("Module source loaded.", "url", resolved, "bytes", len(code), "changed", changed)

	res := Inline(resolved, resolved, b.fileName(resolved), string(code))
	res.Invalidate = changed
	return res, nil
}

// Forget drops the recorded modification time of url so that the next fetch
// returns fresh source.
func (b *FSBackend) Forget(url string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.mtimes, url)
}

func (b *FSBackend) resolve(url, importer string) (string, fs.FileInfo, error) {
	p := url
	if strings.HasPrefix(p, "./") || strings.HasPrefix(p, "../") {
		base := "/"
		if importer != "" {
			base = path.Dir(b.toURL(importer))
		}
		p = path.Join(base, p)
	}
	p = path.Clean("/" + strings.TrimPrefix(p, "/"))

	candidates := []string{p}
	if path.Ext(p) == "" {
		for _, ext := range b.opts.Extensions {
			candidates = append(candidates, p+ext)
		}
	}
	for _, c := range candidates {
		info, err := b.fs.Stat(c)
		if err == nil && !info.IsDir() {
			return c, info, nil
		}
	}
	if importer != "" {
		return "", nil, fmt.Errorf("resolving %q from %q: %w", url, importer, ErrNotFound)
	}
	return "", nil, fmt.Errorf("resolving %q: %w", url, ErrNotFound)
}

// toURL turns an importer reported as an absolute file name back into a
// filesystem url.
func (b *FSBackend) toURL(importer string) string {
	importer = filepath.ToSlash(importer)
	if b.opts.Root != "" {
		root := strings.TrimSuffix(filepath.ToSlash(b.opts.Root), "/")
		if strings.HasPrefix(importer, root+"/") {
			return strings.TrimPrefix(importer, root)
		}
	}
	return importer
}

func (b *FSBackend) fileName(url string) string {
	if b.opts.Root == "" {
		return url
	}
	return filepath.ToSlash(filepath.Join(b.opts.Root, filepath.FromSlash(url)))
}
