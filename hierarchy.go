package lattice

import (
	"slices"
	"sort"
	"sync"
)

// binding is one entry of a hierarchy.
type binding struct {
	provider  Provider
	priority  int
	explicit  bool
	lifecycle Lifecycle
	seq       int
}

// BindingHierarchy holds the candidate providers of one key, ordered by
// priority. At most one provider may occupy a priority; the highest wins.
// Collection hierarchies keep every entry and order them by insertion unless
// explicit priorities say otherwise.
type BindingHierarchy struct {
	key      ComponentKey
	bindings []*binding
	nextSeq  int
	mu       sync.RWMutex
}

func newBindingHierarchy(key ComponentKey) *BindingHierarchy {
	return &BindingHierarchy{key: key}
}

// Key returns the key of the hierarchy.
func (h *BindingHierarchy) Key() ComponentKey {
	return h.key
}

// Len returns the number of bound providers.
func (h *BindingHierarchy) Len() int {
	if h == nil {
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.bindings)
}

// Priorities returns the occupied priorities, highest first.
func (h *BindingHierarchy) Priorities() []int {
	if h == nil {
		return nil
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]int, 0, len(h.bindings))
	for _, b := range h.bindings {
		out = append(out, b.priority)
	}

	sort.Sort(sort.Reverse(sort.IntSlice(out)))

	return out
}

// Get returns the provider bound at priority.
func (h *BindingHierarchy) Get(priority int) (Provider, bool) {
	if h == nil {
		return nil, false
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, b := range h.bindings {
		if b.priority == priority {
			return b.provider, true
		}
	}

	return nil, false
}

// Highest returns the provider with the highest priority.
func (h *BindingHierarchy) Highest() (Provider, int, bool) {
	b := h.highest()
	if b == nil {
		return nil, 0, false
	}
	return b.provider, b.priority, true
}

func (h *BindingHierarchy) highest() *binding {
	if h == nil {
		return nil
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	var best *binding
	for _, b := range h.bindings {
		if best == nil || b.priority > best.priority {
			best = b
		}
	}

	return best
}

// add inserts b, rejecting an occupied priority. For collection hierarchies
// only explicit priorities are checked.
func (h *BindingHierarchy) add(b *binding) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, existing := range h.bindings {
		if existing.priority != b.priority {
			continue
		}
		if h.key.collection && !(existing.explicit && b.explicit) {
			continue
		}
		return newDuplicatePriority(h.key, b.priority)
	}

	b.seq = h.nextSeq
	h.nextSeq++
	h.bindings = append(h.bindings, b)

	return nil
}

// ordered returns the entries in collection order: explicit priorities
// descending, ties in insertion order.
func (h *BindingHierarchy) ordered() []*binding {
	if h == nil {
		return nil
	}

	h.mu.RLock()
	out := slices.Clone(h.bindings)
	h.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].priority > out[j].priority
	})

	return out
}

// registry holds the hierarchies bound in one scope.
type registry struct {
	hierarchies map[ComponentKey]*BindingHierarchy
	order       []ComponentKey
	mu          sync.RWMutex
}

func newRegistry() *registry {
	return &registry{
		hierarchies: make(map[ComponentKey]*BindingHierarchy),
	}
}

// get returns the hierarchy of a normalised key, nil when nothing was bound.
func (r *registry) get(key ComponentKey) *BindingHierarchy {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.hierarchies[key]
}

// getOrCreate returns the hierarchy of a normalised key, creating it.
func (r *registry) getOrCreate(key ComponentKey) *BindingHierarchy {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.hierarchies[key]
	if !ok {
		h = newBindingHierarchy(key)
		r.hierarchies[key] = h
		r.order = append(r.order, key)
	}

	return h
}

// all returns every hierarchy in registration order.
func (r *registry) all() []*BindingHierarchy {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*BindingHierarchy, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.hierarchies[key])
	}

	return out
}
