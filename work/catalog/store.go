package catalog

import (
	"sync"
	"sync/atomic"
)

// Store holds the current catalog behind an atomic pointer. Readers never
// block and never observe a partially built catalog: the only visible
// mutation is the single pointer swap in Publish. Generation assignment is
// serialized under a mutex so it stays strictly increasing even if two
// publishers ever race (the scheduler's single-flight guard means they
// should not).
type Store struct {
	current atomic.Pointer[Catalog]
	mu      sync.Mutex // serializes Publish
}

// NewStore creates a store primed with the empty generation-0 catalog so
// Read never returns nil.
func NewStore() *Store {
	s := &Store{}
	s.current.Store(Empty())
	return s
}

// Read returns the current catalog without blocking. The returned catalog
// and its entries must be treated as read-only.
func (s *Store) Read() *Catalog {
	return s.current.Load()
}

// Generation returns the generation of the current catalog.
func (s *Store) Generation() uint64 {
	return s.current.Load().Generation
}

// Publish assigns the next generation to cat and atomically replaces the
// current catalog. The caller hands over ownership: cat must not be
// modified after Publish returns.
func (s *Store) Publish(cat *Catalog) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	cat.Generation = s.current.Load().Generation + 1
	s.current.Store(cat)
	return cat.Generation
}
