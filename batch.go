package lattice

import "fmt"

// Module groups related bindings.
type Module interface {
	Configure(b Binder) error
}

// ModuleFunc adapts a function to Module.
type ModuleFunc func(b Binder) error

// Configure implements Module.
func (f ModuleFunc) Configure(b Binder) error {
	return f(b)
}

// Install configures modules against the root scope, in order. The first
// failing module stops the installation.
//
// Example:
//
//	err := c.Install(
//	    lattice.ModuleFunc(storage.Bind),
//	    lattice.ModuleFunc(http.Bind),
//	)
func (c *Container) Install(modules ...Module) error {
	return c.root.Install(modules...)
}

// Install configures modules against this scope.
func (s *Scope) Install(modules ...Module) error {
	for i, m := range modules {
		if m == nil {
			return fmt.Errorf("%w: module %d is nil", ErrInvalidBinding, i)
		}
		if err := m.Configure(s); err != nil {
			return fmt.Errorf("module %d: %w", i, err)
		}
	}
	return nil
}

// Registration holds configuration for a component to be registered.
type Registration struct {
	Key     ComponentKey
	Factory Factory
	Options []BindOption
}

// Provide creates a Registration for batch registration.
// This is a convenience function for creating Registration structs.
//
// Example:
//
//	lattice.BindAll(c,
//	    lattice.Provide(DBKey, NewDatabase, lattice.AsSingleton()),
//	    lattice.Provide(CacheKey, NewCache, lattice.AsSingleton()),
//	)
func Provide(key ComponentKey, factory Factory, opts ...BindOption) Registration {
	return Registration{
		Key:     key,
		Factory: factory,
		Options: opts,
	}
}

// BindAll registers multiple components in a single call.
// Returns error if any registration fails.
func BindAll(b Binder, registrations ...Registration) error {
	for _, reg := range registrations {
		builder := b.Bind(reg.Key)
		for _, opt := range reg.Options {
			opt(builder)
		}
		if err := builder.ToFactory(reg.Factory); err != nil {
			return err
		}
	}
	return nil
}
