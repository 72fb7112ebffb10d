package modulegraph

import (
	"sort"
	"sync"

	"github.com/specialistvlad/modrun/internal/exports"
	"github.com/specialistvlad/modrun/internal/fetch"
	"github.com/specialistvlad/modrun/internal/future"
)

// Execution is the shared, write-once outcome of running a module.
type Execution = future.Future[*exports.Namespace]

// Node is one module in the graph.
type Node struct {
	// id, url and file are fixed at creation.
	id   string
	url  string
	file string

	mu sync.Mutex
	// meta is the last fetch result, nil until the first fetch completes.
	meta *fetch.Result
	// exports is created once per execution and mutated in place.
	exports *exports.Namespace
	// execution is nil until the first execution starts.
	execution *Execution
	evaluated bool
	importers map[string]struct{}
	imports   map[string]struct{}
}

func newNode(id, url string) *Node {
	return &Node{
		id:        id,
		url:       url,
		file:      CleanURL(id),
		importers: make(map[string]struct{}),
		imports:   make(map[string]struct{}),
	}
}

// ID returns the canonical module id.
func (n *Node) ID() string { return n.id }

// URL returns the url the node was first created for.
func (n *Node) URL() string { return n.url }

// File returns the id stripped of query and hash.
func (n *Node) File() string { return n.file }

// Meta returns the last fetch result, or nil.
func (n *Node) Meta() *fetch.Result {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.meta
}

// SetMeta records the latest fetch result.
func (n *Node) SetMeta(meta *fetch.Result) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.meta = meta
}

// Exports returns the namespace of the current execution, or nil.
func (n *Node) Exports() *exports.Namespace {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.exports
}

// SetExports installs the namespace of the current execution.
func (n *Node) SetExports(ns *exports.Namespace) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.exports = ns
}

// Execution returns the in-flight or completed execution, or nil.
func (n *Node) Execution() *Execution {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.execution
}

// ClaimExecution returns the node's execution future, creating it if the node
// has none. The second result is true for the single caller that created it;
// that caller must run the module and resolve the future.
func (n *Node) ClaimExecution() (*Execution, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.execution != nil {
		return n.execution, false
	}
	n.execution = future.New[*exports.Namespace]()
	n.evaluated = false
	return n.execution, true
}

// Evaluated reports whether an execution request for the node has settled.
func (n *Node) Evaluated() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.evaluated
}

// SetEvaluated updates the evaluated flag.
func (n *Node) SetEvaluated(v bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.evaluated = v
}

// AddImporter records that the module with the given id imports n.
func (n *Node) AddImporter(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.importers[id] = struct{}{}
}

// AddImport records that n imports the module with the given id.
func (n *Node) AddImport(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.imports[id] = struct{}{}
}

// HasImporter reports whether id is a recorded importer of n.
func (n *Node) HasImporter(id string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ok := n.importers[id]
	return ok
}

// Importers returns a sorted copy of the importer ids.
func (n *Node) Importers() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return sortedKeys(n.importers)
}

// Imports returns a sorted copy of the imported ids.
func (n *Node) Imports() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return sortedKeys(n.imports)
}

// invalidate forgets everything learned from the last fetch and execution.
// Importers are kept: the modules that depend on n still do.
func (n *Node) invalidate() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.evaluated = false
	n.meta = nil
	n.execution = nil
	n.exports = nil
	n.imports = make(map[string]struct{})
}

// Info is a point-in-time view of a node, used for diagnostics.
type Info struct {
	ID        string   `json:"id"`
	URL       string   `json:"url"`
	File      string   `json:"file"`
	Evaluated bool     `json:"evaluated"`
	External  string   `json:"external,omitempty"`
	Imports   []string `json:"imports"`
	Importers []string `json:"importers"`
}

// Info returns a snapshot of the node.
func (n *Node) Info() Info {
	n.mu.Lock()
	defer n.mu.Unlock()
	info := Info{
		ID:        n.id,
		URL:       n.url,
		File:      n.file,
		Evaluated: n.evaluated,
		Imports:   sortedKeys(n.imports),
		Importers: sortedKeys(n.importers),
	}
	if n.meta != nil {
		info.External = n.meta.Externalize
	}
	return info
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
