// Package traceattrs holds the span attribute names used consistently across
// modrun. It imports nothing from the rest of the module so any package can
// use it.
package traceattrs

import (
	"go.opentelemetry.io/otel/attribute"
)

// ModuleURL identifies the url a module was requested under.
func ModuleURL(url string) attribute.KeyValue {
	return attribute.String("modrun.module.url", url)
}

// ModuleID identifies a module by its canonical id.
//
// The given id should be the value of [modulegraph.Node.ID].
func ModuleID(id string) attribute.KeyValue {
	return attribute.String("modrun.module.id", id)
}

// ModuleExternal records the specifier of an externalized module.
func ModuleExternal(spec string) attribute.KeyValue {
	return attribute.String("modrun.module.external", spec)
}

// Environment names the runner environment a span belongs to.
func Environment(name string) attribute.KeyValue {
	return attribute.String("modrun.environment", name)
}

// RunnerID identifies one runner instance.
func RunnerID(id string) attribute.KeyValue {
	return attribute.String("modrun.runner.id", id)
}

// CallDepth is the length of the import call stack when a module executed.
func CallDepth(depth int) attribute.KeyValue {
	return attribute.Int("modrun.callstack.depth", depth)
}
