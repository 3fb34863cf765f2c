package lattice

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
)

// Provider produces one component instance.
// Providers that need other components resolve them through r, which keeps
// the cycle guard and the owning scope of the call chain intact.
type Provider interface {
	Provide(r *Resolution) (any, error)
}

// Factory builds a component from a resolver.
type Factory func(r Resolver) (any, error)

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(r *Resolution) (any, error)

// Provide implements Provider.
func (f ProviderFunc) Provide(r *Resolution) (any, error) {
	return f(r)
}

// instanceProvider always returns the same pre-built value.
type instanceProvider struct {
	value any
}

func (p *instanceProvider) Provide(*Resolution) (any, error) {
	return p.value, nil
}

// factoryProvider calls a user factory.
type factoryProvider struct {
	factory Factory
}

func (p *factoryProvider) Provide(r *Resolution) (any, error) {
	return p.factory(r)
}

// typeProvider links a key to another key, usually an interface to the
// concrete type implementing it. The target is fully resolved, processed and
// cached under its own key.
type typeProvider struct {
	target ComponentKey
}

func (p *typeProvider) Provide(r *Resolution) (any, error) {
	return r.Get(p.target)
}

// zeroProvider allocates a fresh zero value for auto-constructed types whose
// dependencies are all injected by the populate stage.
type zeroProvider struct {
	typ reflect.Type
}

func (p *zeroProvider) Provide(*Resolution) (any, error) {
	if p.typ.Kind() == reflect.Pointer {
		return reflect.New(p.typ.Elem()).Interface(), nil
	}
	return reflect.New(p.typ).Elem().Interface(), nil
}

// singletonProvider wraps a provider with a one-shot cache. It backs
// singleton elements of collections, which have no key of their own in a
// scope store.
type singletonProvider struct {
	delegate Provider
	mu       sync.Mutex
	ready    atomic.Bool
	value    any
}

func newSingletonProvider(delegate Provider) *singletonProvider {
	return &singletonProvider{delegate: delegate}
}

// Provide implements Provider. The caller is responsible for processing.
func (p *singletonProvider) Provide(r *Resolution) (any, error) {
	return p.get(func() (any, error) { return p.delegate.Provide(r) })
}

// get returns the cached value, building it with build on first use.
func (p *singletonProvider) get(build func() (any, error)) (any, error) {
	if p.ready.Load() {
		return p.value, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ready.Load() {
		return p.value, nil
	}

	value, err := build()
	if err != nil {
		return nil, err
	}

	p.value = value
	p.ready.Store(true)

	return value, nil
}

// release drops the cached value and returns it.
func (p *singletonProvider) release() (any, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.ready.Load() {
		return nil, false
	}

	value := p.value
	p.value = nil
	p.ready.Store(false)

	return value, true
}

// providerKind names a provider for diagnostics.
func providerKind(p Provider) string {
	switch v := p.(type) {
	case *instanceProvider:
		return "instance"
	case *factoryProvider:
		return "factory"
	case *typeProvider:
		return "type:" + v.target.String()
	case *constructorProvider:
		return "constructor"
	case *zeroProvider:
		return "auto"
	case *singletonProvider:
		return "singleton(" + providerKind(v.delegate) + ")"
	case *collectionProvider:
		return fmt.Sprintf("collection(%d)", len(v.elements))
	default:
		return fmt.Sprintf("custom(%T)", p)
	}
}

// invoke calls a provider, converting a panic into an error.
func invoke(p Provider, r *Resolution) (instance any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			instance, err = nil, &PanicError{Value: rec}
		}
	}()

	return p.Provide(r)
}
