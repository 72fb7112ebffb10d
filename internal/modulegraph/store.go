package modulegraph

import (
	"sort"
	"sync"
)

// Store is the in-memory Graph implementation.
type Store struct {
	mu     sync.RWMutex
	byID   map[string]*Node
	byURL  map[string]*Node
	byFile map[string]map[*Node]struct{}
}

var _ Graph = (*Store)(nil)

// New creates an empty graph.
func New() *Store {
	s := &Store{}
	s.reset()
	return s
}

func (s *Store) reset() {
	s.byID = make(map[string]*Node)
	s.byURL = make(map[string]*Node)
	s.byFile = make(map[string]map[*Node]struct{})
}

// EnsureModule implements Graph.
func (s *Store) EnsureModule(id, url string) *Node {
	id = NormalizeModuleID(id)

	s.mu.Lock()
	defer s.mu.Unlock()

	if n, ok := s.byID[id]; ok {
		s.byURL[url] = n
		return n
	}

	n := newNode(id, url)
	s.byID[id] = n
	s.byURL[url] = n
	if s.byFile[n.file] == nil {
		s.byFile[n.file] = make(map[*Node]struct{})
	}
	s.byFile[n.file][n] = struct{}{}
	return n
}

// ModuleByID implements Graph.
func (s *Store) ModuleByID(id string) (*Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.byID[NormalizeModuleID(id)]
	return n, ok
}

// ModuleByURL implements Graph.
func (s *Store) ModuleByURL(url string) (*Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.byURL[UnwrapID(url)]
	return n, ok
}

// ModulesByFile implements Graph.
func (s *Store) ModulesByFile(file string) []*Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.byFile[file]
	nodes := make([]*Node, 0, len(set))
	for n := range set {
		nodes = append(nodes, n)
	}
	sortNodes(nodes)
	return nodes
}

// InvalidateModule implements Graph.
func (s *Store) InvalidateModule(n *Node) {
	if n != nil {
		n.invalidate()
	}
}

// Clear implements Graph.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
}

// All implements Graph.
func (s *Store) All() []*Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	nodes := make([]*Node, 0, len(s.byID))
	for _, n := range s.byID {
		nodes = append(nodes, n)
	}
	sortNodes(nodes)
	return nodes
}

func sortNodes(nodes []*Node) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].id < nodes[j].id })
}
