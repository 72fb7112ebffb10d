package runner

import (
	"errors"
	"fmt"
	"strings"

	"github.com/specialistvlad/modrun/internal/fetch"
)

var (
	// ErrDestroyed is returned by every operation once Destroy was called.
	ErrDestroyed = errors.New("module runner has been destroyed")
	// ErrHMRDestroyed is returned when a module asks for its hot context
	// after the runner released its HMR client.
	ErrHMRDestroyed = errors.New("hmr client was destroyed")
	// ErrUnsupported is wrapped by every UnsupportedError.
	ErrUnsupported = errors.New("unsupported in module runner")
)

// UnsupportedError reports a module-facing feature the runner does not
// provide.
type UnsupportedError struct {
	Feature string
	Hint    string
}

func (e *UnsupportedError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s is not supported in the module runner. %s", e.Feature, e.Hint)
	}
	return fmt.Sprintf("%s is not supported in the module runner", e.Feature)
}

func (e *UnsupportedError) Unwrap() error { return ErrUnsupported }

// InvalidatedError is returned when the backend answers "cached" for a module
// the runner holds no valid state for.
type InvalidatedError struct {
	URL string
}

func (e *InvalidatedError) Error() string {
	return fmt.Sprintf("module %q was mistakenly invalidated during fetch phase", e.URL)
}

// LoadError is returned when an inline module arrives without source code.
type LoadError struct {
	URL      string
	Importer string
}

func (e *LoadError) Error() string {
	if e.Importer != "" {
		return fmt.Sprintf("failed to load %q imported from %s", e.URL, e.Importer)
	}
	return fmt.Sprintf("failed to load %q", e.URL)
}

// MissingExportError is returned when a static import names bindings an
// externalized module does not provide.
type MissingExportError struct {
	Specifier string
	Kind      fetch.Kind
	Missing   []string
}

func (e *MissingExportError) Error() string {
	if e.Kind == fetch.KindModule {
		return fmt.Sprintf("The requested module '%s' does not provide an export named '%s'", e.Specifier, e.Missing[len(e.Missing)-1])
	}
	return fmt.Sprintf("Named export '%s' not found. The requested module '%s' is a CommonJS module, "+
		"which may not support all module.exports as named exports.\n"+
		"CommonJS modules can always be imported via the default export, for example using:\n\n"+
		"import \"%s\" { names = [\"default\"] }\n"+
		"# then read %s from the default export",
		strings.Join(e.Missing, "', '"), e.Specifier, e.Specifier, strings.Join(e.Missing, ", "))
}
