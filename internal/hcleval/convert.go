package hcleval

import (
	"errors"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"

	"github.com/specialistvlad/modrun/internal/exports"
)

// NamespaceValue converts ns to an object value. Nested namespaces become
// nested objects; Go values are converted by their implied type.
func NamespaceValue(ns *exports.Namespace) (cty.Value, error) {
	return namespaceValue(ns, make(map[*exports.Namespace]bool))
}

func namespaceValue(ns *exports.Namespace, seen map[*exports.Namespace]bool) (cty.Value, error) {
	if ns == nil {
		return cty.EmptyObjectVal, nil
	}
	if seen[ns] {
		return cty.NilVal, errors.New("namespace refers to itself")
	}
	seen[ns] = true
	defer delete(seen, ns)

	attrs := make(map[string]cty.Value, ns.Len())
	for _, key := range ns.Keys() {
		raw, ok := ns.Get(key)
		if !ok {
			continue
		}
		v, err := toValue(raw, seen)
		if err != nil {
			return cty.NilVal, fmt.Errorf("export %q: %w", key, err)
		}
		attrs[key] = v
	}
	if len(attrs) == 0 {
		return cty.EmptyObjectVal, nil
	}
	return cty.ObjectVal(attrs), nil
}

func toValue(raw any, seen map[*exports.Namespace]bool) (cty.Value, error) {
	switch v := raw.(type) {
	case nil:
		return cty.NullVal(cty.DynamicPseudoType), nil
	case cty.Value:
		return v, nil
	case *exports.Namespace:
		return namespaceValue(v, seen)
	}
	ty, err := gocty.ImpliedType(raw)
	if err != nil {
		return cty.NilVal, fmt.Errorf("unable to infer cty.Type: %w", err)
	}
	return gocty.ToCtyValue(raw, ty)
}

// diagError turns diagnostics into an error. An error returned by a function
// call stays reachable through errors.Is and errors.As.
func diagError(diags hcl.Diagnostics) error {
	if !diags.HasErrors() {
		return nil
	}
	for _, d := range diags {
		extra, ok := hcl.DiagnosticExtra[hclsyntax.FunctionCallDiagExtra](d)
		if ok && extra.FunctionCallError() != nil {
			return fmt.Errorf("%s: %w", diags.Error(), extra.FunctionCallError())
		}
	}
	return diags
}
