package docsync

import (
	"context"
	"sync"

	"chronicle/docsync/internal/tree"
)

// Registry maps documents to the node that backs them in one store for the
// duration of a publish session.
type Registry interface {
	// Lookup returns the bound node and whether a binding exists.
	Lookup(ctx context.Context, doc Document) (tree.NodeHandle, bool, error)
	Register(ctx context.Context, doc Document, node tree.NodeHandle) error
}

var _ Registry = (*MemoryRegistry)(nil)

// MemoryRegistry is the default session-scoped Registry.
type MemoryRegistry struct {
	mu    sync.RWMutex
	nodes map[string]tree.NodeHandle
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{nodes: map[string]tree.NodeHandle{}}
}

func (r *MemoryRegistry) Lookup(_ context.Context, doc Document) (tree.NodeHandle, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	node, ok := r.nodes[Key(doc)]
	return node, ok, nil
}

func (r *MemoryRegistry) Register(_ context.Context, doc Document, node tree.NodeHandle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodes[Key(doc)] = node
	return nil
}

// Len returns the number of bindings.
func (r *MemoryRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}
