package modulegraph

// Graph is the evaluated-module graph of one runner.
//
// # Thread-Safety
//
// Implementations MUST be safe for concurrent use: concurrent imports create
// and look up nodes from many goroutines.
type Graph interface {
	// EnsureModule returns the node for id, creating it if needed, and
	// registers url as an alias of it.
	//
	// Thread-safety: Must be safe to call concurrently; two callers racing
	// on the same id receive the same node.
	EnsureModule(id, url string) *Node

	// ModuleByID looks up a node by (normalized) id.
	ModuleByID(id string) (*Node, bool)

	// ModuleByURL looks up a node by any url it was registered under.
	ModuleByURL(url string) (*Node, bool)

	// ModulesByFile returns every node whose id maps to file.
	ModulesByFile(file string) []*Node

	// InvalidateModule clears the node's metadata, execution, exports and
	// imports. The node itself stays in the graph.
	InvalidateModule(n *Node)

	// Clear drops every node.
	Clear()

	// All returns every node, sorted by id.
	All() []*Node
}
