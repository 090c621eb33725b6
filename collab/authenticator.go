package collab

import (
	"context"
	"sync"

	"s2p/transport"
)

// AllowAllAuthenticator accepts every peer. It is the default when no
// authenticator is configured.
type AllowAllAuthenticator struct{}

func NewAllowAllAuthenticator() *AllowAllAuthenticator { return &AllowAllAuthenticator{} }

func (AllowAllAuthenticator) ShouldAccept(context.Context, transport.NodeID) bool { return true }

// AllowlistAuthenticator accepts only node ids that have been added to
// its allowlist. The list can be mutated concurrently with lookups.
type AllowlistAuthenticator struct {
	mu      sync.RWMutex
	allowed map[transport.NodeID]struct{}
}

// NewAllowlistAuthenticator builds an AllowlistAuthenticator seeded
// with the given node ids.
func NewAllowlistAuthenticator(initial ...transport.NodeID) *AllowlistAuthenticator {
	a := &AllowlistAuthenticator{allowed: make(map[transport.NodeID]struct{}, len(initial))}
	for _, id := range initial {
		a.allowed[id] = struct{}{}
	}
	return a
}

func (a *AllowlistAuthenticator) ShouldAccept(_ context.Context, nodeID transport.NodeID) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.allowed[nodeID]
	return ok
}

// Add adds a node id to the allowlist.
func (a *AllowlistAuthenticator) Add(nodeID transport.NodeID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.allowed[nodeID] = struct{}{}
}

// Remove removes a node id from the allowlist.
func (a *AllowlistAuthenticator) Remove(nodeID transport.NodeID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.allowed, nodeID)
}

// Snapshot returns the current allowlist contents.
func (a *AllowlistAuthenticator) Snapshot() []transport.NodeID {
	a.mu.RLock()
	defer a.mu.RUnlock()
	ids := make([]transport.NodeID, 0, len(a.allowed))
	for id := range a.allowed {
		ids = append(ids, id)
	}
	return ids
}
