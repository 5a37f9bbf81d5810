// Package registry holds the in-memory state of every feeder node.
package registry

import (
	"sort"
	"sync"

	"github.com/devghori1264/feederbalancer/internal/models"
)

// Registry maps node id to node state. Nodes are seeded once and never
// deleted; all mutation goes through Update.
type Registry struct {
	mu    sync.RWMutex
	nodes map[string]*models.Node
}

// New seeds a registry. Later duplicates of an id are ignored.
func New(seed []models.Node) *Registry {
	r := &Registry{nodes: make(map[string]*models.Node, len(seed))}
	for _, n := range seed {
		if _, exists := r.nodes[n.ID]; exists {
			continue
		}
		c := n.Clone()
		r.nodes[n.ID] = &c
	}
	return r
}

// Get returns a copy of the node.
func (r *Registry) Get(id string) (models.Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.nodes[id]
	if !ok {
		return models.Node{}, false
	}
	return n.Clone(), true
}

// List returns copies of all nodes ordered by id.
func (r *Registry) List() []models.Node {
	r.mu.RLock()
	out := make([]models.Node, 0, len(r.nodes))
	for _, n := range r.nodes {
		out = append(out, n.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len reports the fleet size.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}

// Update applies fn to the node under the write lock and returns the
// resulting copy. The id cannot be changed by fn. Reports false when the
// node does not exist.
func (r *Registry) Update(id string, fn func(n *models.Node)) (models.Node, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[id]
	if !ok {
		return models.Node{}, false
	}
	fn(n)
	n.ID = id
	return n.Clone(), true
}
