package lattice

import (
	"context"
	"errors"
)

// Resolver resolves components. Container, Scope and Resolution implement it.
type Resolver interface {
	Get(key ComponentKey) (any, error)
}

// Resolution is the record of one component under construction. Providers
// and post-processors receive it; resolving through it keeps the cycle guard
// and owning scope of the call chain. A Resolution must not be used after the
// provider it was handed to returns, nor from another goroutine.
type Resolution struct {
	ctx       context.Context
	container *Container
	req       *request
	scope     *Scope
	key       ComponentKey
	parent    *Resolution
	instance  any
	values    map[any]any
}

func newResolution(ctx context.Context, c *Container, req *request, s *Scope, key ComponentKey, parent *Resolution) *Resolution {
	return &Resolution{
		ctx:       ctx,
		container: c,
		req:       req,
		scope:     s,
		key:       key,
		parent:    parent,
	}
}

// Get resolves a dependency of the component under construction.
func (r *Resolution) Get(key ComponentKey) (any, error) {
	return r.container.resolve(r.ctx, r, key, r.scope)
}

// Context returns the context of the originating Get call.
func (r *Resolution) Context() context.Context { return r.ctx }

// Key returns the key being resolved.
func (r *Resolution) Key() ComponentKey { return r.key }

// Scope returns the owning scope of the component under construction.
func (r *Resolution) Scope() *Scope { return r.scope }

// Parent returns the resolution that requested this one, nil at the top.
func (r *Resolution) Parent() *Resolution { return r.parent }

// Instance returns the instance under construction, nil before the provider
// returned.
func (r *Resolution) Instance() any { return r.instance }

// Container returns the resolving container.
func (r *Resolution) Container() *Container { return r.container }

// Set attaches a side value for later pipeline stages.
func (r *Resolution) Set(key, value any) {
	if r.values == nil {
		r.values = make(map[any]any)
	}
	r.values[key] = value
}

// Value returns a side value set by an earlier stage.
func (r *Resolution) Value(key any) any {
	return r.values[key]
}

// Depth returns the number of keys in flight on this call chain.
func (r *Resolution) Depth() int {
	return r.req.guard.depth()
}

// GetOptional resolves key, reporting found=false instead of an error when
// key itself has no binding and cannot be auto-constructed. Failures of key's
// own dependencies are still returned.
func GetOptional(r Resolver, key ComponentKey) (instance any, found bool, err error) {
	instance, err = r.Get(key)
	if err == nil {
		return instance, true, nil
	}

	var e *Error
	if errors.As(err, &e) && e.Code == CodeUnresolvedComponent && e.Key == key {
		return nil, false, nil
	}

	return nil, false, err
}
