package lattice

import (
	"fmt"
	"reflect"
)

// Shape is the container type a collection injection point declares.
type Shape int

const (
	// ShapeList is an ordered slice.
	ShapeList Shape = iota
	// ShapeSet is a map[E]struct{} or map[E]bool holding distinct elements.
	ShapeSet
)

func (s Shape) String() string {
	if s == ShapeSet {
		return "set"
	}
	return "list"
}

// ShapeOf returns the shape and element type of a collection type.
func ShapeOf(t reflect.Type) (Shape, reflect.Type, bool) {
	if t == nil {
		return 0, nil, false
	}

	switch t.Kind() {
	case reflect.Slice:
		return ShapeList, t.Elem(), true
	case reflect.Map:
		v := t.Elem()
		if v.Kind() == reflect.Bool || (v.Kind() == reflect.Struct && v.NumField() == 0) {
			return ShapeSet, t.Key(), true
		}
	}

	return 0, nil, false
}

// ComponentCollection is the resolved value of a collection key: every
// binding collected under the base key, in collection order.
type ComponentCollection struct {
	key   ComponentKey
	items []any
}

// Key returns the collection key.
func (c *ComponentCollection) Key() ComponentKey { return c.key }

// Len returns the number of elements.
func (c *ComponentCollection) Len() int { return len(c.items) }

// Items returns the elements in order.
func (c *ComponentCollection) Items() []any {
	out := make([]any, len(c.items))
	copy(out, c.items)
	return out
}

// At returns the i-th element.
func (c *ComponentCollection) At(i int) any { return c.items[i] }

// As converts the collection to t, a slice or a set type. Sets drop
// elements whose underlying instance is already present.
func (c *ComponentCollection) As(t reflect.Type) (reflect.Value, error) {
	if t == nil {
		return reflect.Value{}, newTypeMismatch(c.key, nil)
	}

	shape, elem, ok := ShapeOf(t)
	if !ok {
		return reflect.Value{}, newTypeMismatch(c.key, reflect.Zero(t).Interface())
	}

	if shape == ShapeList {
		out := reflect.MakeSlice(t, 0, len(c.items))
		for _, item := range c.items {
			v, err := c.element(item, elem)
			if err != nil {
				return reflect.Value{}, err
			}
			out = reflect.Append(out, v)
		}
		return out, nil
	}

	present := reflect.ValueOf(struct{}{})
	if t.Elem().Kind() == reflect.Bool {
		present = reflect.ValueOf(true)
	}

	out := reflect.MakeMapWithSize(t, len(c.items))
	seen := make(map[any]bool, len(c.items))

	for _, item := range c.items {
		v, err := c.element(item, elem)
		if err != nil {
			return reflect.Value{}, err
		}

		if !v.Comparable() {
			return reflect.Value{}, &Error{
				Code:    CodeTypeMismatch,
				Message: fmt.Sprintf("collection %s: %T cannot be a set element", c.key, item),
				Key:     c.key,
			}
		}

		if id := Unwrap(item); reflect.ValueOf(id).Comparable() {
			if seen[id] {
				continue
			}
			seen[id] = true
		}

		out.SetMapIndex(v, present.Convert(t.Elem()))
	}

	return out, nil
}

func (c *ComponentCollection) element(item any, elem reflect.Type) (reflect.Value, error) {
	if item == nil {
		return reflect.Zero(elem), nil
	}

	v := reflect.ValueOf(item)
	if !v.Type().AssignableTo(elem) {
		return reflect.Value{}, newTypeMismatch(c.key.Element(), item)
	}

	return v.Convert(elem), nil
}

// collectionProvider aggregates the elements of a collection hierarchy.
type collectionProvider struct {
	elements []*binding
}

// Provide builds every element through the resolving container.
func (p *collectionProvider) Provide(r *Resolution) (any, error) {
	items := make([]any, 0, len(p.elements))

	for _, b := range p.elements {
		item, err := r.container.element(r, b)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	return &ComponentCollection{key: r.key, items: items}, nil
}

// GetAll resolves the collection of T as a slice.
func GetAll[T any](r Resolver) ([]T, error) {
	v, err := getCollection(r, KeyOf[T]().AsCollection(), reflect.TypeFor[[]T]())
	if err != nil {
		return nil, err
	}
	return v.Interface().([]T), nil
}

// GetSet resolves the collection of T as a set.
func GetSet[T comparable](r Resolver) (map[T]struct{}, error) {
	v, err := getCollection(r, KeyOf[T]().AsCollection(), reflect.TypeFor[map[T]struct{}]())
	if err != nil {
		return nil, err
	}
	return v.Interface().(map[T]struct{}), nil
}

func getCollection(r Resolver, key ComponentKey, t reflect.Type) (reflect.Value, error) {
	instance, err := r.Get(key)
	if err != nil {
		return reflect.Value{}, err
	}

	coll, ok := instance.(*ComponentCollection)
	if !ok {
		return reflect.Value{}, newTypeMismatch(key, instance)
	}

	return coll.As(t)
}
