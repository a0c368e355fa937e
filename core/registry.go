package core

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrDuplicateNode indicates a radio node id was registered twice. This is
// a programming-contract violation: well-formed topology input never
// produces it.
var ErrDuplicateNode = errors.New("duplicate radio node id")

// Registry owns the radio nodes of one emulation run.
//
// The registry read lock may be held by the location-event worker while a
// caller concurrently resets the registry; the RWMutex guarantees neither
// side observes a torn node map. This lock is never nested with the
// manager's interface-counter lock.
type Registry struct {
	mu    sync.RWMutex
	nodes map[int]*RadioNode
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{nodes: make(map[int]*RadioNode)}
}

// Add registers a radio node. Duplicate ids are a hard error.
func (r *Registry) Add(node *RadioNode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.nodes[node.ID]; exists {
		return fmt.Errorf("%w: %d (%s)", ErrDuplicateNode, node.ID, node.Name)
	}
	r.nodes[node.ID] = node
	return nil
}

// Get returns the radio node with the given id, or nil.
func (r *Registry) Get(id int) *RadioNode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.nodes[id]
}

// Len returns the number of registered radio nodes.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}

// NodesSorted returns all radio nodes in ascending id order. Iteration
// over the returned slice happens outside the registry lock.
func (r *Registry) NodesSorted() []*RadioNode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	nodes := make([]*RadioNode, 0, len(r.nodes))
	for _, n := range r.nodes {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes
}

// Clear removes every radio node. Assigned NEM ids die with their nodes.
func (r *Registry) Clear() {
	r.mu.Lock()
	r.nodes = make(map[int]*RadioNode)
	r.mu.Unlock()
}

// NumNEMs returns the total number of interface attachments across all
// registered radio nodes.
func (r *Registry) NumNEMs() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, n := range r.nodes {
		count += len(n.Interfaces())
	}
	return count
}

// HostNodes returns the distinct host nodes that own at least one radio
// interface, in ascending id order.
func (r *Registry) HostNodes() []*HostNode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[int]*HostNode)
	for _, n := range r.nodes {
		for _, ni := range n.Interfaces() {
			if ni.Node != nil {
				seen[ni.Node.ID] = ni.Node
			}
		}
	}
	hosts := make([]*HostNode, 0, len(seen))
	for _, h := range seen {
		hosts = append(hosts, h)
	}
	sort.Slice(hosts, func(i, j int) bool { return hosts[i].ID < hosts[j].ID })
	return hosts
}

// LookupNEM resolves a NEM id to its owning radio node and interface by a
// full scan, returning the first match. Stale ids for nodes that left the
// topology simply fail to resolve.
func (r *Registry) LookupNEM(nemID uint16) (*RadioNode, *NetworkInterface, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, n := range r.nodes {
		if ni := n.InterfaceForNEM(nemID); ni != nil {
			return n, ni, true
		}
	}
	return nil, nil, false
}

// Servers returns the names of servers that participate in at least one
// registered radio node, visiting nodes in ascending id order so the
// resulting first-seen order is deterministic.
func (r *Registry) Servers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]int, 0, len(r.nodes))
	for id := range r.nodes {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	var names []string
	seen := make(map[string]bool)
	for _, id := range ids {
		for _, ni := range r.nodes[id].Interfaces() {
			if ni.Node == nil || ni.Node.Server == "" || seen[ni.Node.Server] {
				continue
			}
			seen[ni.Node.Server] = true
			names = append(names, ni.Node.Server)
		}
	}
	return names
}
