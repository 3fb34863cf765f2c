package lattice

import (
	"context"
	"errors"
	"reflect"
	"time"

	"go.uber.org/zap"
)

// resolve is the entry point of every lookup. parent is nil for a top-level
// Get and the requesting resolution for a dependency.
func (c *Container) resolve(ctx context.Context, parent *Resolution, key ComponentKey, caller *Scope) (instance any, err error) {
	if ctx == nil {
		ctx = context.Background()
	}

	start := time.Now()
	c.metrics.resolves.Inc(1)

	defer func() {
		c.metrics.latency.UpdateSince(start)
		if err != nil {
			c.metrics.failures.Inc(1)
		}
	}()

	if err := c.middleware.beforeResolve(ctx, key); err != nil {
		return nil, err
	}

	req, release := c.requestFor(parent)
	defer release()

	instance, err = c.lookup(ctx, req, parent, key, caller)

	if mwErr := c.middleware.afterResolve(ctx, key, instance, err); mwErr != nil {
		return nil, mwErr
	}

	return instance, err
}

// requestFor returns the request a resolution joins. A top-level Get issued
// by a provider on the goroutine that is constructing it joins the request in
// flight there, so the cycle guard sees the re-entry.
func (c *Container) requestFor(parent *Resolution) (*request, func()) {
	if parent != nil {
		return parent.req, func() {}
	}

	gid := goroutineID()
	if active, ok := c.active.Load(gid); ok {
		return active.(*request), func() {}
	}

	req := newRequest()
	c.active.Store(gid, req)

	return req, func() { c.active.Delete(gid) }
}

// lookup runs the resolution algorithm for key as seen from caller.
func (c *Container) lookup(ctx context.Context, req *request, parent *Resolution, key ComponentKey, caller *Scope) (any, error) {
	if key.typ == nil {
		return nil, newInvalidBinding(key, "key has no type")
	}

	if caller.isClosed() {
		return nil, newScopeClosed(caller.id)
	}

	owner, b := c.locate(key, caller)
	if b == nil {
		if key.collection {
			return c.emptyCollection(parent, key, caller), nil
		}

		auto, err := c.autoBinding(key)
		if err != nil {
			return nil, err
		}
		if auto == nil {
			return nil, newUnresolvedComponent(key, "")
		}

		owner, b = caller, auto
	}

	okey := key.InScope(owner.id)

	if parent != nil {
		parent.scope.graph.AddEdge(parent.key, okey)
	} else {
		owner.graph.AddNode(okey)
	}

	if v, ok := req.memo[okey]; ok {
		return v, nil
	}

	if b.lifecycle == Singleton && !okey.collection {
		if v, ok := owner.store.load(okey); ok {
			return v, nil
		}
	}

	if h, err := c.detectCycle(req, owner, key, okey, b); h != nil || err != nil {
		return h, err
	}

	var (
		instance any
		err      error
	)

	build := func() (any, error) {
		return c.build(ctx, req, parent, owner, okey, b)
	}

	switch {
	case b.lifecycle != Singleton || okey.collection:
		instance, err = build()
	case req.guard.depth() == 0:
		instance, err = owner.singleton(okey, build)
	default:
		// Waiting on another requester's flight while holding keys of our
		// own can deadlock two requests that entered a cycle from opposite
		// ends.
		instance, err = owner.speculative(okey, build)
	}

	if err == nil && b.lifecycle == Singleton && !okey.collection {
		req.memo[okey] = instance
	}

	req.settle(okey, instance, err)

	return instance, err
}

// locate finds the highest binding of key in caller's scope chain, nearest
// scope first. Collection keys yield a synthetic binding aggregating the
// collected elements of the nearest scope holding any.
func (c *Container) locate(key ComponentKey, caller *Scope) (*Scope, *binding) {
	for cur := caller; cur != nil; cur = cur.parent {
		if key.scope != "" && key.scope != cur.id {
			continue
		}

		h := cur.registry.get(key.InScope(cur.id))
		if h.Len() == 0 {
			continue
		}

		if key.collection {
			return cur, &binding{provider: &collectionProvider{elements: h.ordered()}, lifecycle: Prototype}
		}

		return cur, h.highest()
	}

	return nil, nil
}

func (c *Container) emptyCollection(parent *Resolution, key ComponentKey, caller *Scope) *ComponentCollection {
	if parent != nil {
		parent.scope.graph.AddEdge(parent.key, key.InScope(caller.id))
	}
	return &ComponentCollection{key: key.InScope(caller.id)}
}

// autoBinding returns the binding used for an unbound concrete type, nil when
// the type cannot be auto-constructed.
func (c *Container) autoBinding(key ComponentKey) (*binding, error) {
	if !c.autoBind || key.name != "" || key.collection || !isConcrete(key.typ) {
		return nil, nil
	}

	if cached, ok := c.auto.Load(key.typ); ok {
		return cached.(*binding), nil
	}

	d, ok := c.metadata.Describe(key.typ)
	if !ok || !d.constructible() {
		return nil, nil
	}

	var p Provider = &zeroProvider{typ: key.typ}

	if d.Constructor != nil {
		cp, err := newConstructorProvider(d.Constructor)
		if err != nil {
			return nil, newInvalidBinding(key, "%v", err)
		}
		if !cp.resultType().AssignableTo(key.typ) {
			return nil, newInvalidBinding(key, "constructor returns %s", cp.resultType())
		}
		p = cp
	}

	b := &binding{provider: p, lifecycle: d.Lifecycle}

	actual, _ := c.auto.LoadOrStore(key.typ, b)

	c.logger.Debug("auto-binding concrete type",
		zap.Stringer("type", key.typ),
		zap.Stringer("lifecycle", d.Lifecycle),
	)

	return actual.(*binding), nil
}

// detectCycle checks whether resolving okey would re-enter a construction in
// flight on this request. A linked binding is checked through its target
// too, since the link is transparent. A cycle requested through an interface
// with a registered forwarder yields a deferred handle; any other cycle is an
// error.
func (c *Container) detectCycle(req *request, owner *Scope, key, okey ComponentKey, b *binding) (any, error) {
	chain := req.guard.chain(owner.id, okey)
	waitFor := okey

	if chain == nil {
		if link, ok := b.provider.(*typeProvider); ok {
			towner, tb := c.locate(link.target, owner)
			if tb == nil {
				towner = owner
			}

			tkey := link.target.InScope(towner.id)
			if tchain := req.guard.chain(towner.id, tkey); tchain != nil {
				n := len(tchain)
				chain = append(tchain[:n-1:n-1], okey, tkey)
				waitFor = tkey
			}
		}
	}

	if chain == nil {
		return nil, nil
	}

	if key.typ.Kind() == reflect.Interface {
		if fwd, ok := c.forwarder(key.typ); ok {
			h := newDeferred(waitFor)
			req.await(waitFor, h)

			v := fwd(h)
			if v == nil || !reflect.TypeOf(v).Implements(key.typ) {
				return nil, newTypeMismatch(key, v)
			}

			c.metrics.deferred.Inc(1)
			c.logger.Debug("cycle broken with deferred handle",
				zap.Stringer("key", okey),
				zap.Stringer("awaiting", waitFor),
				zap.Int("length", len(chain)),
			)

			return v, nil
		}
	}

	return nil, newCircularDependency(chain, cycleHint(chain))
}

func cycleHint(chain []ComponentKey) string {
	for _, k := range chain {
		if k.typ != nil && k.typ.Kind() == reflect.Interface {
			return "register a forwarder for " + k.typ.String() + " to break it"
		}
	}
	return "depend on an interface with a registered forwarder to break it"
}

// build constructs one instance of okey with the guard entry held for the
// whole construction.
func (c *Container) build(ctx context.Context, req *request, parent *Resolution, owner *Scope, okey ComponentKey, b *binding) (any, error) {
	req.guard.push(owner.id, okey)
	defer req.guard.pop(owner.id, okey)

	r := newResolution(ctx, c, req, owner, okey, parent)

	return c.produce(r, b.provider)
}

// element builds one element of a collection. Singleton elements are cached
// in their binding.
func (c *Container) element(r *Resolution, b *binding) (any, error) {
	er := newResolution(r.ctx, c, r.req, r.scope, r.key.Element(), r)

	if sp, ok := b.provider.(*singletonProvider); ok {
		return sp.get(func() (any, error) {
			return c.produce(er, sp.delegate)
		})
	}

	return c.produce(er, b.provider)
}

// produce invokes the provider and runs the pipeline and the advisor over
// its result.
func (c *Container) produce(r *Resolution, p Provider) (instance any, err error) {
	key := r.key

	if err := c.middleware.beforeConstruct(r.ctx, key); err != nil {
		return nil, err
	}

	defer func() {
		if mwErr := c.middleware.afterConstruct(r.ctx, key, instance, err); mwErr != nil {
			instance, err = nil, mwErr
		}
	}()

	_, linked := p.(*typeProvider)
	_, aggregate := p.(*collectionProvider)

	if !linked && !aggregate {
		c.metrics.invocations.Inc(1)
	}

	raw, err := invoke(p, r)
	if err != nil {
		if linked || aggregate {
			return nil, err
		}
		return nil, newProviderInvocation(key, err)
	}

	if raw == nil || isNilPointer(raw) {
		return nil, newProviderInvocation(key, errors.New("provider returned nil"))
	}

	if aggregate {
		return raw, nil
	}

	if !reflect.TypeOf(raw).AssignableTo(key.typ) {
		return nil, newTypeMismatch(key, raw)
	}

	processed := raw
	if !linked {
		processed, err = c.pipeline.run(r, raw)
		if err != nil {
			return nil, err
		}
	}

	advised, err := c.advisor.advise(key, processed)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("component constructed",
		zap.Stringer("key", key),
		zap.String("scope", string(r.scope.id)),
		zap.Int("depth", r.Depth()),
	)

	return advised, nil
}

func isNilPointer(v any) bool {
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}
