package lattice

import (
	"reflect"

	"go.uber.org/zap"
)

// Binder registers bindings. Container and Scope implement it.
type Binder interface {
	Bind(key ComponentKey) *BindingBuilder
}

// BindingBuilder configures one binding. Settings are chained and a To*
// terminal registers the binding, returning any configuration error
// immediately.
//
// Example:
//
//	err := c.Bind(lattice.KeyOf[Store]()).
//	    Priority(10).
//	    Singleton().
//	    ToType(reflect.TypeFor[*PostgresStore]())
type BindingBuilder struct {
	scope     *Scope
	key       ComponentKey
	priority  int
	explicit  bool
	lifecycle Lifecycle
	collect   bool
}

func newBindingBuilder(s *Scope, key ComponentKey) *BindingBuilder {
	return &BindingBuilder{scope: s, key: key}
}

// Priority sets the priority of the binding. Higher priorities win.
func (b *BindingBuilder) Priority(priority int) *BindingBuilder {
	b.priority = priority
	b.explicit = true
	return b
}

// Lifecycle sets the lifecycle of the binding.
func (b *BindingBuilder) Lifecycle(l Lifecycle) *BindingBuilder {
	b.lifecycle = l
	return b
}

// Singleton is shorthand for Lifecycle(Singleton).
func (b *BindingBuilder) Singleton() *BindingBuilder {
	return b.Lifecycle(Singleton)
}

// Prototype is shorthand for Lifecycle(Prototype).
func (b *BindingBuilder) Prototype() *BindingBuilder {
	return b.Lifecycle(Prototype)
}

// Scope moves the binding into another owning scope.
func (b *BindingBuilder) Scope(s *Scope) *BindingBuilder {
	if s != nil {
		b.scope = s
	}
	return b
}

// Collect adds the binding to the collection of its base key instead of
// the key's own hierarchy.
func (b *BindingBuilder) Collect() *BindingBuilder {
	b.collect = true
	return b
}

// ToInstance binds a pre-built value. Instances are always singletons.
func (b *BindingBuilder) ToInstance(value any) error {
	if value == nil {
		return newInvalidBinding(b.key, "nil instance")
	}

	if err := b.checkAssignable(reflect.TypeOf(value)); err != nil {
		return err
	}

	b.lifecycle = Singleton

	return b.register(&instanceProvider{value: value})
}

// ToFactory binds a factory function.
func (b *BindingBuilder) ToFactory(factory Factory) error {
	if factory == nil {
		return newInvalidBinding(b.key, "nil factory")
	}
	return b.register(&factoryProvider{factory: factory})
}

// ToProvider binds a custom provider.
func (b *BindingBuilder) ToProvider(p Provider) error {
	if p == nil {
		return newInvalidBinding(b.key, "nil provider")
	}
	return b.register(p)
}

// ToType links the key to another type, resolved under its own unnamed key.
func (b *BindingBuilder) ToType(t reflect.Type) error {
	if t == nil {
		return newInvalidBinding(b.key, "nil target type")
	}

	if t == b.key.typ && !b.collect {
		return newInvalidBinding(b.key, "type cannot be linked to itself")
	}

	if err := b.checkAssignable(t); err != nil {
		return err
	}

	return b.register(&typeProvider{target: KeyFor(t)})
}

// ToConstructor binds a constructor function whose parameters are resolved
// from the container. See In for parameter objects.
func (b *BindingBuilder) ToConstructor(constructor any) error {
	p, err := newConstructorProvider(constructor)
	if err != nil {
		return newInvalidBinding(b.key, "%v", err)
	}

	if err := b.checkAssignable(p.resultType()); err != nil {
		return err
	}

	return b.register(p)
}

func (b *BindingBuilder) checkAssignable(t reflect.Type) error {
	if b.key.typ == nil {
		return newInvalidBinding(b.key, "key has no type")
	}

	if !t.AssignableTo(b.key.typ) {
		return newInvalidBinding(b.key, "%s is not assignable to %s", t, b.key.typ)
	}

	return nil
}

func (b *BindingBuilder) register(p Provider) error {
	if b.key.typ == nil {
		return newInvalidBinding(b.key, "key has no type")
	}

	s := b.scope
	if s.isClosed() {
		return newScopeClosed(s.id)
	}

	key := b.key.InScope(s.id)
	if b.collect {
		key = key.AsCollection()
		if b.lifecycle == Singleton {
			p = newSingletonProvider(p)
		}
	}

	entry := &binding{
		provider:  p,
		priority:  b.priority,
		explicit:  b.explicit,
		lifecycle: b.lifecycle,
	}

	if err := s.registry.getOrCreate(key).add(entry); err != nil {
		return err
	}

	s.container.logger.Debug("binding registered",
		zap.Stringer("key", key),
		zap.Int("priority", entry.priority),
		zap.Stringer("lifecycle", entry.lifecycle),
		zap.String("provider", providerKind(p)),
	)

	return nil
}

// =============================================================================
// TYPED REGISTRATION
// =============================================================================

// BindOption configures a binding made through the typed helpers.
type BindOption func(*BindingBuilder)

// WithPriority sets the binding priority.
func WithPriority(priority int) BindOption {
	return func(b *BindingBuilder) { b.Priority(priority) }
}

// AsSingleton makes the binding a singleton.
func AsSingleton() BindOption {
	return func(b *BindingBuilder) { b.Singleton() }
}

// AsPrototype makes the binding a prototype (default).
func AsPrototype() BindOption {
	return func(b *BindingBuilder) { b.Prototype() }
}

// Named qualifies the bound key.
func Named(name string) BindOption {
	return func(b *BindingBuilder) { b.key = b.key.Named(name) }
}

// Collected adds the binding to the collection of its base key.
func Collected() BindOption {
	return func(b *BindingBuilder) { b.Collect() }
}

func bindTyped[T any](binder Binder, opts []BindOption) *BindingBuilder {
	b := binder.Bind(KeyOf[T]())
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// BindFactory registers a typed factory for T.
//
//	lattice.BindFactory(c, func(r lattice.Resolver) (*Cache, error) {
//	    return NewCache(), nil
//	}, lattice.AsSingleton())
func BindFactory[T any](binder Binder, factory func(Resolver) (T, error), opts ...BindOption) error {
	if factory == nil {
		return newInvalidBinding(KeyOf[T](), "nil factory")
	}

	return bindTyped[T](binder, opts).ToFactory(func(r Resolver) (any, error) {
		return factory(r)
	})
}

// BindInstance registers a pre-built value for T.
func BindInstance[T any](binder Binder, value T, opts ...BindOption) error {
	return bindTyped[T](binder, opts).ToInstance(value)
}

// BindType links interface I to the concrete type T.
func BindType[I, T any](binder Binder, opts ...BindOption) error {
	return bindTyped[I](binder, opts).ToType(reflect.TypeFor[T]())
}

// BindConstructor registers a constructor function for T.
func BindConstructor[T any](binder Binder, constructor any, opts ...BindOption) error {
	return bindTyped[T](binder, opts).ToConstructor(constructor)
}
