// Package modulegraph holds the evaluated-module graph shared by a runner and
// its HMR client.
//
// # Responsibilities
//
// The graph indexes nodes three ways:
//   - **By id**: the canonical key, used for dependency edges
//   - **By url**: every url a module was requested under, used for dedup
//   - **By file**: the id without query or hash, used by HMR to find all
//     variants of a changed file
//
// Each Node owns its own lock. Dependency edges (Imports/Importers) are plain
// id sets maintained by the runner; the graph never walks them itself.
//
// # Lifecycle
//
// 1. **Created** lazily by EnsureModule on first reference
// 2. **Populated** by the runner (metadata, exports, execution future)
// 3. **Invalidated** when the fetch backend or HMR reports a change
// 4. **Dropped** only when the whole graph is cleared
package modulegraph
