package hcleval

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"

	"github.com/specialistvlad/modrun/internal/ctxlog"
	"github.com/specialistvlad/modrun/internal/exports"
	"github.com/specialistvlad/modrun/internal/registry"
	"github.com/specialistvlad/modrun/internal/runner"
)

// ErrUnknownExternal is returned for an externalized specifier that is
// neither a data url nor registered.
var ErrUnknownExternal = errors.New("unknown external module")

// Evaluator implements runner.Evaluator for HCL modules.
type Evaluator struct {
	registry *registry.Registry
}

var _ runner.Evaluator = (*Evaluator)(nil)

// New creates an Evaluator backed by reg. A nil reg means no builtins.
func New(reg *registry.Registry) *Evaluator {
	if reg == nil {
		reg = registry.New()
	}
	return &Evaluator{registry: reg}
}

// RunInlinedModule implements runner.Evaluator.
func (e *Evaluator) RunInlinedModule(ctx context.Context, mctx *runner.Context, code, url string) error {
	logger := ctxlog.FromContext(ctx).With("module", url)

	file, diags := hclsyntax.ParseConfig([]byte(code), url, hcl.InitialPos)
	if err := diagError(diags); err != nil {
		return fmt.Errorf("parsing %s: %w", url, err)
	}

	var mf moduleFile
	if err := diagError(gohcl.DecodeBody(file.Body, nil, &mf)); err != nil {
		return fmt.Errorf("decoding %s: %w", url, err)
	}
	logger.Debug("Module decoded.", "imports", len(mf.Imports), "exports", len(mf.Exports))

	vars := map[string]cty.Value{
		"meta": cty.ObjectVal(map[string]cty.Value{
			"filename": cty.StringVal(mctx.Meta.Filename),
			"dirname":  cty.StringVal(mctx.Meta.Dirname),
			"url":      cty.StringVal(mctx.Meta.URL),
		}),
	}

	for _, imp := range mf.Imports {
		if imp.Alias == "meta" {
			return fmt.Errorf("%s: import alias %q is reserved", url, imp.Alias)
		}
		var (
			ns  *exports.Namespace
			err error
		)
		if imp.Dynamic {
			ns, err = mctx.DynamicImport(ctx, imp.From)
		} else {
			ns, err = mctx.Import(ctx, resolveSpecifier(url, imp.From), &runner.ImportMetadata{ImportedNames: imp.Names})
		}
		if err != nil {
			return err
		}
		v, err := NamespaceValue(ns)
		if err != nil {
			return fmt.Errorf("%s: import %q: %w", url, imp.Alias, err)
		}
		vars[imp.Alias] = v
	}

	ectx := &hcl.EvalContext{
		Variables: vars,
		Functions: e.moduleFunctions(mctx.Meta),
	}
	// Local exports are fixed before star re-exports so that they shadow
	// same-named bindings of the re-exported modules.
	for _, ex := range mf.Exports {
		v, diags := ex.Value.Value(ectx)
		if err := diagError(diags); err != nil {
			return fmt.Errorf("export %q: %w", ex.Name, err)
		}
		if err := mctx.Exports.Define(ex.Name, func() any { return v }, false); err != nil {
			return fmt.Errorf("export %q: %w", ex.Name, err)
		}
	}

	for _, ea := range mf.ExportAll {
		ns, err := mctx.Import(ctx, resolveSpecifier(url, ea.From), nil)
		if err != nil {
			return err
		}
		mctx.ExportAll(ns)
	}

	if mf.Hot != nil && mf.Hot.Accept {
		hot, err := mctx.Meta.Hot()
		if err != nil {
			return err
		}
		if hot != nil {
			hot.Accept(nil)
		}
	}
	return nil
}

// RunExternalModule implements runner.Evaluator. It serves data urls and
// builtins from the registry.
func (e *Evaluator) RunExternalModule(ctx context.Context, specifier string) (*exports.Namespace, error) {
	if strings.HasPrefix(specifier, "data:") {
		return decodeDataURL(specifier)
	}
	load, ok := e.registry.External(specifier)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownExternal, specifier)
	}
	ctxlog.FromContext(ctx).Debug("Loading builtin module.", "spec", specifier)
	return load(ctx)
}

func resolveSpecifier(importer, spec string) string {
	if strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../") {
		return path.Join(path.Dir(importer), spec)
	}
	return spec
}
