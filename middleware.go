package lattice

import (
	"context"
	"sync"
)

// Middleware observes resolutions and constructions. Hooks run for nested
// resolutions too, so implementations must be reentrant.
type Middleware interface {
	// BeforeResolve runs ahead of the lookup; an error aborts it.
	BeforeResolve(ctx context.Context, key ComponentKey) error

	// AfterResolve sees every outcome, failed lookups included.
	AfterResolve(ctx context.Context, key ComponentKey, instance any, err error) error

	// BeforeConstruct runs ahead of the provider; an error skips it.
	BeforeConstruct(ctx context.Context, key ComponentKey) error

	// AfterConstruct sees the advised instance or the construction error.
	// An error it returns discards the instance.
	AfterConstruct(ctx context.Context, key ComponentKey, instance any, err error) error
}

// middlewareChain runs hooks in registration order, stopping at the first error.
type middlewareChain struct {
	mu         sync.RWMutex
	middleware []Middleware
}

func newMiddlewareChain() *middlewareChain {
	return &middlewareChain{
		middleware: make([]Middleware, 0),
	}
}

func (m *middlewareChain) add(middleware Middleware) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.middleware = append(m.middleware, middleware)
}

func (m *middlewareChain) list() []Middleware {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.middleware
}

func (m *middlewareChain) beforeResolve(ctx context.Context, key ComponentKey) error {
	for _, mw := range m.list() {
		if err := mw.BeforeResolve(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func (m *middlewareChain) afterResolve(ctx context.Context, key ComponentKey, instance any, err error) error {
	for _, mw := range m.list() {
		if mwErr := mw.AfterResolve(ctx, key, instance, err); mwErr != nil {
			return mwErr
		}
	}
	return nil
}

func (m *middlewareChain) beforeConstruct(ctx context.Context, key ComponentKey) error {
	for _, mw := range m.list() {
		if err := mw.BeforeConstruct(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func (m *middlewareChain) afterConstruct(ctx context.Context, key ComponentKey, instance any, err error) error {
	for _, mw := range m.list() {
		if mwErr := mw.AfterConstruct(ctx, key, instance, err); mwErr != nil {
			return mwErr
		}
	}
	return nil
}

// FuncMiddleware adapts plain functions to Middleware. Nil hooks pass.
type FuncMiddleware struct {
	BeforeResolveFunc   func(ctx context.Context, key ComponentKey) error
	AfterResolveFunc    func(ctx context.Context, key ComponentKey, instance any, err error) error
	BeforeConstructFunc func(ctx context.Context, key ComponentKey) error
	AfterConstructFunc  func(ctx context.Context, key ComponentKey, instance any, err error) error
}

// BeforeResolve implements Middleware.
func (f *FuncMiddleware) BeforeResolve(ctx context.Context, key ComponentKey) error {
	if f.BeforeResolveFunc != nil {
		return f.BeforeResolveFunc(ctx, key)
	}
	return nil
}

// AfterResolve implements Middleware.
func (f *FuncMiddleware) AfterResolve(ctx context.Context, key ComponentKey, instance any, err error) error {
	if f.AfterResolveFunc != nil {
		return f.AfterResolveFunc(ctx, key, instance, err)
	}
	return nil
}

// BeforeConstruct implements Middleware.
func (f *FuncMiddleware) BeforeConstruct(ctx context.Context, key ComponentKey) error {
	if f.BeforeConstructFunc != nil {
		return f.BeforeConstructFunc(ctx, key)
	}
	return nil
}

// AfterConstruct implements Middleware.
func (f *FuncMiddleware) AfterConstruct(ctx context.Context, key ComponentKey, instance any, err error) error {
	if f.AfterConstructFunc != nil {
		return f.AfterConstructFunc(ctx, key, instance, err)
	}
	return nil
}
