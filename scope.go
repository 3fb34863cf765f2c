package lattice

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Scope is a lifetime and visibility boundary owning a singleton store.
// Each container has one root scope; child scopes see their ancestors'
// bindings but not their siblings', and never write into an ancestor's store.
// A component bound in an ancestor is constructed by that ancestor, so it can
// only depend on what the ancestor sees.
type Scope struct {
	id        ScopeID
	parent    *Scope
	container *Container
	registry  *registry
	store     *store
	graph     *DependencyGraph
	flights   sync.Map // ComponentKey -> *singleflight.Group
	children  map[*Scope]struct{}
	closed    atomic.Bool
	mu        sync.Mutex
}

func newScope(c *Container, parent *Scope, id ScopeID) *Scope {
	return &Scope{
		id:        id,
		parent:    parent,
		container: c,
		registry:  newRegistry(),
		store:     newStore(),
		graph:     NewDependencyGraph(),
		children:  make(map[*Scope]struct{}),
	}
}

// ID returns the scope identity.
func (s *Scope) ID() ScopeID { return s.id }

// Graph returns the dependency edges recorded by constructions owned by
// this scope.
func (s *Scope) Graph() *DependencyGraph { return s.graph }

// Parent returns the enclosing scope, nil for the root.
func (s *Scope) Parent() *Scope { return s.parent }

// Container returns the owning container.
func (s *Scope) Container() *Container { return s.container }

// Bind starts a binding owned by this scope.
func (s *Scope) Bind(key ComponentKey) *BindingBuilder {
	return newBindingBuilder(s, key)
}

// Hierarchy returns the bindings of key in this scope. The result is never
// nil; an unbound key has an empty hierarchy.
func (s *Scope) Hierarchy(key ComponentKey) *BindingHierarchy {
	key = key.InScope(s.id)
	if h := s.registry.get(key); h != nil {
		return h
	}
	return newBindingHierarchy(key)
}

// Get resolves key from this scope.
func (s *Scope) Get(key ComponentKey) (any, error) {
	return s.GetContext(context.Background(), key)
}

// GetContext resolves key from this scope with a context handed to
// providers and lifecycle callbacks.
func (s *Scope) GetContext(ctx context.Context, key ComponentKey) (any, error) {
	return s.container.resolve(ctx, nil, key, s)
}

// NewScope creates a child scope.
func (s *Scope) NewScope() *Scope {
	child := newScope(s.container, s, ScopeID(uuid.NewString()))

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.children == nil {
		// Parent already torn down; the child is born closed.
		child.closed.Store(true)
		return child
	}

	s.children[child] = struct{}{}

	return child
}

// Cached returns the singleton cached for key in this scope or an ancestor.
func (s *Scope) Cached(key ComponentKey) (any, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if key.scope != "" && key.scope != cur.id {
			continue
		}
		if v, ok := cur.store.load(key.InScope(cur.id)); ok {
			return v, true
		}
	}
	return nil, false
}

// Put seeds the store with an instance for a singleton key bound in this
// scope. Prototype keys never touch the store.
func (s *Scope) Put(key ComponentKey, instance any) error {
	if s.isClosed() {
		return newScopeClosed(s.id)
	}

	key = key.InScope(s.id)

	b := s.registry.get(key).highest()
	if b == nil || b.lifecycle != Singleton {
		return &Error{Code: CodeNotSingleton, Message: "component " + key.String() + " is not a singleton in scope " + string(s.id), Key: key}
	}

	_, won, err := s.store.commit(key, instance)
	if err != nil {
		return err
	}

	if !won {
		return newInvalidBinding(key, "an instance is already cached")
	}

	return nil
}

// Len returns the number of cached singletons.
func (s *Scope) Len() int {
	return s.store.len()
}

// Closed reports whether the scope was torn down.
func (s *Scope) Closed() bool {
	return s.isClosed()
}

func (s *Scope) isClosed() bool {
	return s.closed.Load()
}

// singleton returns the instance cached under key, constructing it with
// build at most once for concurrent first requesters. Callers must not hold
// another key in flight; nested lookups go through speculative.
func (s *Scope) singleton(key ComponentKey, build func() (any, error)) (any, error) {
	if v, ok := s.store.load(key); ok {
		return v, nil
	}

	g, _ := s.flights.LoadOrStore(key, new(singleflight.Group))

	v, err, _ := g.(*singleflight.Group).Do("", func() (any, error) {
		if v, ok := s.store.load(key); ok {
			return v, nil
		}

		instance, err := build()
		if err != nil {
			return nil, err
		}

		return s.commit(key, instance)
	})

	return v, err
}

// speculative constructs key without waiting on other requesters. Concurrent
// builders race on the commit and the losers adopt the winner's instance.
func (s *Scope) speculative(key ComponentKey, build func() (any, error)) (any, error) {
	instance, err := build()
	if err != nil {
		return nil, err
	}

	return s.commit(key, instance)
}

func (s *Scope) commit(key ComponentKey, instance any) (any, error) {
	committed, won, err := s.store.commit(key, instance)
	if err != nil {
		return nil, err
	}

	if !won {
		s.container.metrics.commitLost.Inc(1)
		s.container.logger.Debug("singleton commit lost, adopting committed instance",
			zap.Stringer("key", key),
			zap.String("scope", string(s.id)),
		)
	}

	return committed, nil
}

// Close tears the scope down: child scopes first, then cached singletons with
// dependents before their dependencies. Further lookups fail.
func (s *Scope) Close(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return newScopeClosed(s.id)
	}

	var errs error

	s.mu.Lock()
	children := make([]*Scope, 0, len(s.children))
	for child := range s.children {
		children = append(children, child)
	}
	s.children = nil
	s.mu.Unlock()

	for _, child := range children {
		if child.isClosed() {
			continue
		}
		errs = multierr.Append(errs, child.Close(ctx))
	}

	order, instances := s.store.drain()
	for _, key := range s.graph.teardownOrder(order) {
		if err := teardown(ctx, instances[key]); err != nil {
			s.container.logger.Warn("component teardown failed",
				zap.Stringer("key", key),
				zap.String("scope", string(s.id)),
				zap.Error(err),
			)
			errs = multierr.Append(errs, newProviderInvocation(key, err))
		}
	}

	for _, h := range s.registry.all() {
		if !h.key.collection {
			continue
		}
		for _, b := range h.ordered() {
			sp, ok := b.provider.(*singletonProvider)
			if !ok {
				continue
			}
			if v, ok := sp.release(); ok {
				errs = multierr.Append(errs, teardown(ctx, v))
			}
		}
	}

	if s.parent != nil {
		s.parent.mu.Lock()
		delete(s.parent.children, s)
		s.parent.mu.Unlock()
	}

	s.container.logger.Debug("scope closed",
		zap.String("scope", string(s.id)),
		zap.Int("released", len(instances)),
	)

	return errs
}

// childScopes returns the open child scopes.
func (s *Scope) childScopes() []*Scope {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Scope, 0, len(s.children))
	for child := range s.children {
		out = append(out, child)
	}
	return out
}
