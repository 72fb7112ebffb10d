// Package fetch defines how the runner obtains module source: the Backend
// interface, the Result variants it returns, and two implementations, one over
// an afero filesystem and one over HTTP.
package fetch

import (
	"context"
)

// Kind classifies an externalized module.
type Kind string

const (
	KindModule   Kind = "module"
	KindCommonJS Kind = "commonjs"
	KindBuiltin  Kind = "builtin"
	KindNetwork  Kind = "network"
	KindUnknown  Kind = ""
)

// Result is what a backend returns for one module request. Exactly one of
// three shapes is used:
//
//   - Cached: Cache is true and nothing else is set.
//   - Externalized: Externalize holds the specifier, Kind the module kind.
//   - Inline: Code, File, ID and URL describe the source; Invalidate asks the
//     runner to drop any previous state for the module.
//
// The JSON encoding is the wire format of the HTTP backend.
type Result struct {
	Cache bool `json:"cache,omitempty"`

	Externalize string `json:"externalize,omitempty"`
	Kind        Kind   `json:"type,omitempty"`

	Code       *string `json:"code,omitempty"`
	File       string  `json:"file,omitempty"`
	ID         string  `json:"id,omitempty"`
	URL        string  `json:"url,omitempty"`
	Invalidate bool    `json:"invalidate,omitempty"`
}

// Cached returns the "nothing changed" result.
func Cached() *Result {
	return &Result{Cache: true}
}

// Externalized returns a result telling the runner to load spec natively.
func Externalized(spec string, kind Kind) *Result {
	return &Result{Externalize: spec, Kind: kind}
}

// Inline returns a result carrying source code.
func Inline(id, url, file, code string) *Result {
	return &Result{ID: id, URL: url, File: file, Code: &code}
}

// IsCached reports whether the result is the Cached variant.
func (r *Result) IsCached() bool { return r != nil && r.Cache }

// IsExternal reports whether the result is the Externalized variant.
func (r *Result) IsExternal() bool { return r != nil && !r.Cache && r.Externalize != "" }

// IsInline reports whether the result is the Inline variant.
func (r *Result) IsInline() bool { return r != nil && !r.IsCached() && !r.IsExternal() }

// Options qualifies a fetch request.
type Options struct {
	// Cached is true when the runner already holds metadata for the module
	// and a Cached reply is acceptable.
	Cached bool
}

// Backend resolves a module url, relative to an optional importer, into a
// Result.
type Backend interface {
	FetchModule(ctx context.Context, url, importer string, opts Options) (*Result, error)
}

// BackendFunc adapts a plain function to the Backend interface.
type BackendFunc func(ctx context.Context, url, importer string, opts Options) (*Result, error)

// FetchModule calls f.
func (f BackendFunc) FetchModule(ctx context.Context, url, importer string, opts Options) (*Result, error) {
	return f(ctx, url, importer, opts)
}
