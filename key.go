package lattice

import (
	"fmt"
	"reflect"
	"strings"
)

// ScopeID identifies a scope. The empty ScopeID means "whatever scope the
// caller resolves from".
type ScopeID string

// ApplicationScope is the identity of every container's root scope.
const ApplicationScope ScopeID = "application"

// ComponentKey identifies a bindable component.
// Keys are immutable values; two keys are equal when their type, name, owning
// scope and collection flag are all equal, so they can be compared with == and
// used as map keys.
//
// Example:
//
//	var PrimaryDB = lattice.KeyOf[*sql.DB]().Named("primary")
//	var Handlers  = lattice.KeyOf[http.Handler]().AsCollection()
type ComponentKey struct {
	typ        reflect.Type
	name       string
	scope      ScopeID
	collection bool
}

// KeyOf returns the unnamed, unscoped key for T.
func KeyOf[T any]() ComponentKey {
	return ComponentKey{typ: reflect.TypeFor[T]()}
}

// KeyFor returns the unnamed, unscoped key for t.
func KeyFor(t reflect.Type) ComponentKey {
	return ComponentKey{typ: t}
}

// Type returns the declared type of the component.
func (k ComponentKey) Type() reflect.Type { return k.typ }

// Name returns the qualifier, empty when unqualified.
func (k ComponentKey) Name() string { return k.name }

// Scope returns the owning scope, empty when unscoped.
func (k ComponentKey) Scope() ScopeID { return k.scope }

// IsCollection reports whether the key names the aggregate of every binding
// collected under its base key.
func (k ComponentKey) IsCollection() bool { return k.collection }

// IsZero reports whether the key has no type.
func (k ComponentKey) IsZero() bool { return k.typ == nil }

// Named returns a copy of the key with the given qualifier.
func (k ComponentKey) Named(name string) ComponentKey {
	return k.Mutable().Name(name).Build()
}

// InScope returns a copy of the key owned by the given scope.
func (k ComponentKey) InScope(id ScopeID) ComponentKey {
	return k.Mutable().Scope(id).Build()
}

// AsCollection returns the collection key for this key's base.
func (k ComponentKey) AsCollection() ComponentKey {
	return k.Mutable().Collection(true).Build()
}

// Element returns the base key of a collection key.
func (k ComponentKey) Element() ComponentKey {
	return k.Mutable().Collection(false).Build()
}

// Mutable returns a builder seeded with this key. The key itself is never
// modified; Build yields a new one.
func (k ComponentKey) Mutable() *KeyBuilder {
	return &KeyBuilder{key: k}
}

// String renders the key for logs and error messages.
func (k ComponentKey) String() string {
	var b strings.Builder

	if k.collection {
		b.WriteString("[]")
	}

	if k.typ == nil {
		b.WriteString("<nil>")
	} else {
		b.WriteString(k.typ.String())
	}

	if k.name != "" {
		fmt.Fprintf(&b, "[name=%s]", k.name)
	}

	if k.scope != "" && k.scope != ApplicationScope {
		fmt.Fprintf(&b, "@%s", k.scope)
	}

	return b.String()
}

// KeyBuilder is the mutable view of a ComponentKey.
type KeyBuilder struct {
	key ComponentKey
}

// Type sets the declared type.
func (b *KeyBuilder) Type(t reflect.Type) *KeyBuilder {
	b.key.typ = t
	return b
}

// Name sets the qualifier.
func (b *KeyBuilder) Name(name string) *KeyBuilder {
	b.key.name = name
	return b
}

// Scope sets the owning scope.
func (b *KeyBuilder) Scope(id ScopeID) *KeyBuilder {
	b.key.scope = id
	return b
}

// Collection sets the collection flag.
func (b *KeyBuilder) Collection(collection bool) *KeyBuilder {
	b.key.collection = collection
	return b
}

// Build returns the new key.
func (b *KeyBuilder) Build() ComponentKey {
	return b.key
}

// isConcrete reports whether t can be auto-constructed: a struct or a pointer
// to a struct.
func isConcrete(t reflect.Type) bool {
	if t == nil {
		return false
	}

	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	return t.Kind() == reflect.Struct
}
