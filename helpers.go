package lattice

import (
	"context"
	"fmt"
)

// Get resolves the unnamed key of T with type safety.
func Get[T any](r Resolver) (T, error) {
	return GetKey[T](r, KeyOf[T]())
}

// GetNamed resolves T under a qualifier.
func GetNamed[T any](r Resolver, name string) (T, error) {
	return GetKey[T](r, KeyOf[T]().Named(name))
}

// GetKey resolves key and asserts the result to T.
func GetKey[T any](r Resolver, key ComponentKey) (T, error) {
	var zero T

	instance, err := r.Get(key)
	if err != nil {
		return zero, err
	}

	typed, ok := instance.(T)
	if !ok {
		return zero, newTypeMismatch(key, instance)
	}

	return typed, nil
}

// GetContext resolves key from s with a context and asserts the result to T.
func GetContext[T any](ctx context.Context, s *Scope, key ComponentKey) (T, error) {
	var zero T

	instance, err := s.GetContext(ctx, key)
	if err != nil {
		return zero, err
	}

	typed, ok := instance.(T)
	if !ok {
		return zero, newTypeMismatch(key, instance)
	}

	return typed, nil
}

// MustGet resolves or panics - use only during startup.
func MustGet[T any](r Resolver) T {
	instance, err := Get[T](r)
	if err != nil {
		panic(fmt.Sprintf("failed to resolve %s: %v", KeyOf[T](), err))
	}

	return instance
}

// Has reports whether key has a binding visible from s.
func Has(s *Scope, key ComponentKey) bool {
	_, b := s.container.locate(key, s)
	return b != nil
}
