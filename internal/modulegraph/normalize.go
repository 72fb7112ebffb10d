package modulegraph

import (
	"net/url"
	"path/filepath"
	"strings"
)

const (
	fsPrefix     = "/@fs/"
	idPrefix     = "/@id/"
	nullByteMark = "__x00__"
)

// NormalizeModuleID canonicalizes a module id: forward slashes, no "/@fs/",
// "file:/" or "node:" prefix, and a single leading slash.
func NormalizeModuleID(id string) string {
	id = filepath.ToSlash(strings.ReplaceAll(id, `\`, "/"))
	if strings.HasPrefix(id, fsPrefix) {
		id = "/" + strings.TrimPrefix(id, fsPrefix)
	}
	if strings.HasPrefix(id, "file:/") {
		id = "/" + strings.TrimPrefix(id, "file:/")
	}
	id = strings.TrimPrefix(id, "node:")
	if strings.HasPrefix(id, "//") {
		id = "/" + strings.TrimLeft(id, "/")
	}
	return id
}

// NormalizeAbsoluteURL rewrites a requested url into the form the fetch
// backend prefers: "file://" urls become decoded paths, and a path under root
// becomes root-relative with its leading slash kept.
func NormalizeAbsoluteURL(u, root string) string {
	u = strings.ReplaceAll(u, `\`, "/")
	if strings.HasPrefix(u, "file://") {
		u = strings.TrimPrefix(u, "file://")
		if decoded, err := url.PathUnescape(u); err == nil {
			u = decoded
		}
	}
	root = NormalizeRoot(root)
	if root != "/" && strings.HasPrefix(u, root) {
		u = u[len(root)-1:]
	}
	return u
}

// NormalizeRoot returns root with forward slashes and a trailing slash.
func NormalizeRoot(root string) string {
	root = strings.ReplaceAll(root, `\`, "/")
	if !strings.HasSuffix(root, "/") {
		root += "/"
	}
	return root
}

// CleanURL strips the query and hash from u.
func CleanURL(u string) string {
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		return u[:i]
	}
	return u
}

// UnwrapID reverses the transport encoding of ids that are not valid urls.
func UnwrapID(id string) string {
	if strings.HasPrefix(id, idPrefix) {
		id = strings.TrimPrefix(id, idPrefix)
		id = strings.ReplaceAll(id, nullByteMark, "\x00")
	}
	return id
}
