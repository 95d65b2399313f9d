package tree

import (
	"context"
	"sync/atomic"
)

var _ Store = (*InstrumentedStore)(nil)

// InstrumentedStore wraps a Store and counts the calls made through it.
type InstrumentedStore struct {
	Store
	reads  atomic.Int64
	writes atomic.Int64
}

// Instrument wraps store so callers can observe how many reads and successful
// writes a publish session performed.
func Instrument(store Store) *InstrumentedStore {
	return &InstrumentedStore{Store: store}
}

func (s *InstrumentedStore) HasIdentifier(ctx context.Context, id string) (bool, error) {
	s.reads.Add(1)
	return s.Store.HasIdentifier(ctx, id)
}

func (s *InstrumentedStore) HasPath(ctx context.Context, path string) (bool, error) {
	s.reads.Add(1)
	return s.Store.HasPath(ctx, path)
}

func (s *InstrumentedStore) FindByIdentifier(ctx context.Context, id string) (NodeHandle, error) {
	s.reads.Add(1)
	return s.Store.FindByIdentifier(ctx, id)
}

func (s *InstrumentedStore) FindByPath(ctx context.Context, path string) (NodeHandle, error) {
	s.reads.Add(1)
	return s.Store.FindByPath(ctx, path)
}

func (s *InstrumentedStore) CreateAt(ctx context.Context, path, id string) (NodeHandle, error) {
	node, err := s.Store.CreateAt(ctx, path, id)
	if err == nil {
		s.writes.Add(1)
	}
	return node, err
}

// Reads returns the number of lookups issued.
func (s *InstrumentedStore) Reads() int64 {
	return s.reads.Load()
}

// Writes returns the number of nodes created.
func (s *InstrumentedStore) Writes() int64 {
	return s.writes.Load()
}
