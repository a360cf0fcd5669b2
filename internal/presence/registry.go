package presence

import (
	"sort"
	"sync"
)

// JoinResult describes what a Join changed.
type JoinResult struct {
	// Evicted is the id of the connection that previously held the name,
	// empty when the name was free or already held by the joiner.
	Evicted string
	// PreviousName is the name the joiner held before, if it rejoined
	// under a different one.
	PreviousName string
}

// Registry is the bidirectional connection id <-> display name mapping.
// A display name maps to at most one connection at a time.
type Registry struct {
	mu     sync.RWMutex
	byConn map[string]string // connID -> pseudo
	byName map[string]string // pseudo -> connID
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byConn: make(map[string]string),
		byName: make(map[string]string),
	}
}

// Join binds connID to pseudo. If another connection holds pseudo its
// mapping is removed first and its id is reported in the result so the
// caller can close it. Rejoining under a new name releases the old one.
func (r *Registry) Join(connID, pseudo string) JoinResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res JoinResult

	if holder, ok := r.byName[pseudo]; ok && holder != connID {
		delete(r.byConn, holder)
		delete(r.byName, pseudo)
		res.Evicted = holder
	}

	if prev, ok := r.byConn[connID]; ok && prev != pseudo {
		if r.byName[prev] == connID {
			delete(r.byName, prev)
		}
		res.PreviousName = prev
	}

	r.byConn[connID] = pseudo
	r.byName[pseudo] = connID
	return res
}

// Leave removes the mapping for connID and reports whether there was one.
func (r *Registry) Leave(connID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pseudo, ok := r.byConn[connID]
	if !ok {
		return "", false
	}
	delete(r.byConn, connID)
	// the name may already belong to a newer connection
	if r.byName[pseudo] == connID {
		delete(r.byName, pseudo)
	}
	return pseudo, true
}

// Count returns the number of joined connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}

// PseudoOf returns the name bound to connID.
func (r *Registry) PseudoOf(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pseudo, ok := r.byConn[connID]
	return pseudo, ok
}

// ConnectionOf returns the connection currently holding pseudo.
func (r *Registry) ConnectionOf(pseudo string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	connID, ok := r.byName[pseudo]
	return connID, ok
}

// Pseudos returns the joined display names in lexical order.
func (r *Registry) Pseudos() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
