package lattice

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
)

// Deferred is an indirection cell standing in for a component whose
// construction is still in progress. It is handed out when a cycle is
// requested through an interface; the cell is settled with the finished
// instance (or the construction error) as soon as construction completes.
type Deferred struct {
	key   ComponentKey
	done  chan struct{}
	once  sync.Once
	value any
	err   error
}

func newDeferred(key ComponentKey) *Deferred {
	return &Deferred{key: key, done: make(chan struct{})}
}

// Key returns the key of the component the cell waits for.
func (d *Deferred) Key() ComponentKey { return d.key }

// Ready reports whether the cell was settled.
func (d *Deferred) Ready() bool {
	select {
	case <-d.done:
		return true
	default:
		return false
	}
}

// Get returns the target. It does not block: before settlement it fails with
// ErrHandleNotReady, which is what a constructor calling into its own cycle
// observes.
func (d *Deferred) Get() (any, error) {
	if !d.Ready() {
		return nil, &Error{
			Code:    CodeHandleNotReady,
			Message: fmt.Sprintf("component %s is still under construction", d.key),
			Key:     d.key,
		}
	}
	return d.value, d.err
}

// Wait blocks until the cell is settled or ctx is done.
func (d *Deferred) Wait(ctx context.Context) (any, error) {
	select {
	case <-d.done:
		return d.value, d.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// MustGet returns the target, panicking if it is not available.
func (d *Deferred) MustGet() any {
	v, err := d.Get()
	if err != nil {
		panic(err)
	}
	return v
}

// Unwrap returns the settled target, nil before settlement.
func (d *Deferred) Unwrap() any {
	if !d.Ready() {
		return nil
	}
	return d.value
}

func (d *Deferred) settle(value any, err error) {
	d.once.Do(func() {
		d.value, d.err = value, err
		close(d.done)
	})
}

// ForwarderFunc builds a value implementing an interface whose every method
// forwards to the target of h.
type ForwarderFunc func(h *Deferred) any

// RegisterForwarder registers the forwarder used to break cycles requested
// through the interface type t.
func (c *Container) RegisterForwarder(t reflect.Type, fn ForwarderFunc) error {
	key := KeyFor(t)

	if t == nil || t.Kind() != reflect.Interface {
		return newInvalidBinding(key, "forwarders can only be registered for interface types")
	}

	if fn == nil {
		return newInvalidBinding(key, "nil forwarder")
	}

	c.fwdMu.Lock()
	defer c.fwdMu.Unlock()

	c.forwarders[t] = fn

	return nil
}

// RegisterForwarder registers a typed forwarder for interface I.
//
//	type greeterForwarder struct{ *lattice.Deferred }
//
//	func (f greeterForwarder) Greet() string { return lattice.Forward[Greeter](f.Deferred).Greet() }
//
//	lattice.RegisterForwarder(c, func(h *lattice.Deferred) Greeter { return greeterForwarder{h} })
func RegisterForwarder[I any](c *Container, fn func(h *Deferred) I) error {
	if fn == nil {
		return c.RegisterForwarder(reflect.TypeFor[I](), nil)
	}

	return c.RegisterForwarder(reflect.TypeFor[I](), func(h *Deferred) any {
		return fn(h)
	})
}

// Forward returns the target of h as I. It panics when the target is not
// ready, which only happens if the cycle is used during its own construction.
func Forward[I any](h *Deferred) I {
	v := h.MustGet()

	typed, ok := v.(I)
	if !ok {
		panic(newTypeMismatch(h.key, v))
	}

	return typed
}

func (c *Container) forwarder(t reflect.Type) (ForwarderFunc, bool) {
	c.fwdMu.RLock()
	defer c.fwdMu.RUnlock()

	fn, ok := c.forwarders[t]
	return fn, ok
}

// Lazy holds a key and resolves it the first time Get is called. Failures
// are remembered like successes.
type Lazy[T any] struct {
	resolver Resolver
	key      ComponentKey
	once     sync.Once
	value    T
	err      error
	resolved atomic.Bool
}

// NewLazy creates a lazy lookup of key. A Resolution is replaced by its
// scope, since the resolution does not outlive its provider.
func NewLazy[T any](r Resolver, key ComponentKey) *Lazy[T] {
	if res, ok := r.(*Resolution); ok {
		r = res.Scope()
	}

	return &Lazy[T]{resolver: r, key: key}
}

// LazyOf creates a lazy lookup of the unnamed key of T.
func LazyOf[T any](r Resolver) *Lazy[T] {
	return NewLazy[T](r, KeyOf[T]())
}

// Get returns the component, resolving it on the first call.
func (l *Lazy[T]) Get() (T, error) {
	l.once.Do(func() {
		l.value, l.err = GetKey[T](l.resolver, l.key)
		l.resolved.Store(true)
	})

	return l.value, l.err
}

// MustGet is Get that panics on failure.
func (l *Lazy[T]) MustGet() T {
	value, err := l.Get()
	if err != nil {
		panic(fmt.Sprintf("lazy dependency %s failed: %v", l.key, err))
	}

	return value
}

// IsResolved reports whether Get has completed once.
func (l *Lazy[T]) IsResolved() bool {
	return l.resolved.Load()
}

func (l *Lazy[T]) Key() ComponentKey {
	return l.key
}
