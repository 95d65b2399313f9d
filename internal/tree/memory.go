package tree

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory Store used by tests and by single-process
// deployments that do not need persistence.
type MemoryStore struct {
	mu     sync.RWMutex
	byID   map[string]string
	byPath map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   map[string]string{},
		byPath: map[string]string{},
	}
}

func (s *MemoryStore) HasIdentifier(_ context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byID[id]
	return ok, nil
}

func (s *MemoryStore) HasPath(_ context.Context, path string) (bool, error) {
	if err := ValidatePath(path); err != nil {
		return false, err
	}
	if path == RootPath {
		return true, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byPath[path]
	return ok, nil
}

func (s *MemoryStore) FindByIdentifier(_ context.Context, id string) (NodeHandle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	path, ok := s.byID[id]
	if !ok {
		return NodeHandle{}, fmt.Errorf("identifier %s: %w", id, ErrNodeNotFound)
	}
	return NodeHandle{Identifier: id, Path: path}, nil
}

func (s *MemoryStore) FindByPath(_ context.Context, path string) (NodeHandle, error) {
	if err := ValidatePath(path); err != nil {
		return NodeHandle{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byPath[path]
	if !ok {
		return NodeHandle{}, fmt.Errorf("path %s: %w", path, ErrNodeNotFound)
	}
	return NodeHandle{Identifier: id, Path: path}, nil
}

func (s *MemoryStore) CreateAt(_ context.Context, path, id string) (NodeHandle, error) {
	if err := ValidatePath(path); err != nil {
		return NodeHandle{}, err
	}
	if id == "" {
		return NodeHandle{}, ErrInvalidIdentifier
	}
	if path == RootPath {
		return NodeHandle{}, fmt.Errorf("path %s: %w", path, ErrPathExists)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byPath[path]; ok {
		return NodeHandle{}, fmt.Errorf("path %s: %w", path, ErrPathExists)
	}
	if existing, ok := s.byID[id]; ok {
		return NodeHandle{}, fmt.Errorf("identifier %s at %s: %w", id, existing, ErrIdentifierExists)
	}
	parent := ParentPath(path)
	if _, ok := s.byPath[parent]; parent != RootPath && !ok {
		return NodeHandle{}, fmt.Errorf("parent %s: %w", parent, ErrParentMissing)
	}

	s.byPath[path] = id
	s.byID[id] = path
	return NodeHandle{Identifier: id, Path: path}, nil
}

func (s *MemoryStore) ParentPath(path string) string {
	return ParentPath(path)
}

// Nodes returns every node sorted by path.
func (s *MemoryStore) Nodes() []NodeHandle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	nodes := make([]NodeHandle, 0, len(s.byPath))
	for path, id := range s.byPath {
		nodes = append(nodes, NodeHandle{Identifier: id, Path: path})
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Path < nodes[j].Path })
	return nodes
}
