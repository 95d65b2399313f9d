package docsync

import (
	"context"

	"chronicle/docsync/internal/tree"
)

// ResolutionState is the outcome of resolving a document against the
// published store.
type ResolutionState int

const (
	// StateResolved means the published store already held the identifier.
	StateResolved ResolutionState = iota
	// StateCreated means a new published node was created under an existing parent.
	StateCreated
	// StateNeedsAncestorSync means the parent path is missing from the published
	// store; ancestors must be synchronized before the node can be created.
	StateNeedsAncestorSync
)

func (s ResolutionState) String() string {
	switch s {
	case StateResolved:
		return "resolved"
	case StateCreated:
		return "created"
	case StateNeedsAncestorSync:
		return "needs-ancestor-sync"
	default:
		return "unknown"
	}
}

// Resolution carries the published node (zero for StateNeedsAncestorSync).
type Resolution struct {
	Node  tree.NodeHandle
	State ResolutionState
}

// Created reports whether the resolution wrote a new node.
func (r Resolution) Created() bool {
	return r.State == StateCreated
}

// IdentityResolver finds or creates the published counterpart of a draft document.
type IdentityResolver struct {
	published tree.Store
}

func NewIdentityResolver(published tree.Store) *IdentityResolver {
	return &IdentityResolver{published: published}
}

// Resolve looks the document up by identifier, then by path, and creates it only
// when its parent is already published. A different identifier at the target
// path is returned as a *SynchronizationConflictError without touching the store.
func (r *IdentityResolver) Resolve(ctx context.Context, doc Document) (Resolution, error) {
	id, path := doc.Identifier(), doc.Path()

	found, err := r.published.HasIdentifier(ctx, id)
	if err != nil {
		return Resolution{}, storeError("lookup published identifier", err)
	}
	if found {
		node, err := r.published.FindByIdentifier(ctx, id)
		if err != nil {
			return Resolution{}, storeError("find published identifier", err)
		}
		return Resolution{Node: node, State: StateResolved}, nil
	}

	taken, err := r.published.HasPath(ctx, path)
	if err != nil {
		return Resolution{}, storeError("lookup published path", err)
	}
	if taken {
		occupant, err := r.published.FindByPath(ctx, path)
		if err != nil {
			return Resolution{}, storeError("find published path", err)
		}
		return Resolution{}, &SynchronizationConflictError{
			Path:               path,
			FoundIdentifier:    occupant.Identifier,
			ExpectedIdentifier: id,
		}
	}

	parentExists, err := r.published.HasPath(ctx, r.published.ParentPath(path))
	if err != nil {
		return Resolution{}, storeError("lookup published parent", err)
	}
	if !parentExists {
		return Resolution{State: StateNeedsAncestorSync}, nil
	}

	node, err := r.published.CreateAt(ctx, path, id)
	if err != nil {
		return Resolution{}, storeError("create published node", err)
	}
	return Resolution{Node: node, State: StateCreated}, nil
}
