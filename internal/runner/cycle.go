package runner

import (
	"slices"

	"github.com/specialistvlad/modrun/internal/modulegraph"
)

func (r *Runner) isCircular(mod *modulegraph.Node, moduleID string, callstack []string) bool {
	return slices.Contains(callstack, moduleID) ||
		isCircularModule(mod) ||
		r.isCircularImport(mod.Importers(), moduleID)
}

// isCircularModule reports whether mod imports one of its own importers.
func isCircularModule(mod *modulegraph.Node) bool {
	for _, id := range mod.Imports() {
		if mod.HasImporter(id) {
			return true
		}
	}
	return false
}

// isCircularImport walks importer edges upwards from importers and reports
// whether moduleID is reachable. Each module is visited once.
func (r *Runner) isCircularImport(importers []string, moduleID string) bool {
	visited := make(map[string]struct{})
	stack := slices.Clone(importers)

	for len(stack) > 0 {
		importer := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if _, seen := visited[importer]; seen {
			continue
		}
		visited[importer] = struct{}{}

		if importer == moduleID {
			return true
		}
		if m, ok := r.graph.ModuleByID(importer); ok {
			stack = append(stack, m.Importers()...)
		}
	}
	return false
}
