// Package runner executes modules: it resolves a module through a fetch
// backend, runs it at most once per graph through an Evaluator, records the
// dependency edges between modules, and serves repeated and concurrent
// requests from the shared execution.
//
// Circular imports are resolved by handing the importer the cycle member's
// partially populated exports instead of waiting for an execution that is
// itself waiting on the importer. Three checks detect a cycle:
//   - the module id is already on the import call stack
//   - one of the module's imports also imports it
//   - a walk up the module's importers reaches the module again
//
// The last two catch cycles whose members are being executed by different
// goroutines, which never share a call stack.
package runner
