package lattice

import (
	"slices"
	"sync"
)

// store caches the singleton instances of one scope.
// Reads are lock-free; commits are serialised and never replace an entry.
type store struct {
	entries sync.Map
	mu      sync.Mutex
	order   []ComponentKey
	closed  bool
}

func newStore() *store {
	return &store{}
}

func (s *store) load(key ComponentKey) (any, bool) {
	return s.entries.Load(key)
}

// commit stores instance under key unless another instance got there first.
// It returns the instance now held by the store and whether it is instance.
func (s *store) commit(key ComponentKey, instance any) (any, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, false, ErrScopeClosed
	}

	actual, loaded := s.entries.LoadOrStore(key, instance)
	if !loaded {
		s.order = append(s.order, key)
	}

	return actual, !loaded, nil
}

// keys returns the cached keys in commit order.
func (s *store) keys() []ComponentKey {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.order)
}

func (s *store) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.order)
}

// drain closes the store and hands back its content in commit order.
func (s *store) drain() ([]ComponentKey, map[ComponentKey]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	order := s.order
	s.order = nil

	instances := make(map[ComponentKey]any, len(order))
	for _, key := range order {
		if v, ok := s.entries.LoadAndDelete(key); ok {
			instances[key] = v
		}
	}

	return order, instances
}
