package lattice

import (
	"reflect"
	"strings"
	"sync"
)

// TypeDescriptor is what the metadata collaborator knows about a type.
type TypeDescriptor struct {
	// Constructor is an optional func(deps...) T or func(deps...) (T, error)
	// used to auto-construct the type when it has no binding.
	Constructor any

	// Injectable allows auto-construction from the zero value when there is
	// no constructor.
	Injectable bool

	// Lifecycle applies to auto-constructed instances.
	Lifecycle Lifecycle

	// InjectionPoints are populated after construction, in order.
	InjectionPoints []InjectionPoint
}

// constructible reports whether the descriptor allows auto-construction.
func (d TypeDescriptor) constructible() bool {
	return d.Constructor != nil || d.Injectable
}

// MetadataSource describes types to the container. The container never
// inspects types for injection points itself.
type MetadataSource interface {
	Describe(t reflect.Type) (TypeDescriptor, bool)
}

// MetadataFunc adapts a function to MetadataSource.
type MetadataFunc func(t reflect.Type) (TypeDescriptor, bool)

// Describe implements MetadataSource.
func (f MetadataFunc) Describe(t reflect.Type) (TypeDescriptor, bool) {
	return f(t)
}

// MetadataChain asks each source in turn and returns the first answer.
type MetadataChain []MetadataSource

// Describe implements MetadataSource.
func (c MetadataChain) Describe(t reflect.Type) (TypeDescriptor, bool) {
	for _, source := range c {
		if d, ok := source.Describe(t); ok {
			return d, true
		}
	}
	return TypeDescriptor{}, false
}

// MetadataRegistry is a MetadataSource filled by explicit registration.
type MetadataRegistry struct {
	mu    sync.RWMutex
	types map[reflect.Type]TypeDescriptor
}

// NewMetadataRegistry creates an empty registry.
func NewMetadataRegistry() *MetadataRegistry {
	return &MetadataRegistry{types: make(map[reflect.Type]TypeDescriptor)}
}

// Register records the descriptor of t, replacing any previous one.
func (r *MetadataRegistry) Register(t reflect.Type, d TypeDescriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.types[t] = d
}

// Describe implements MetadataSource.
func (r *MetadataRegistry) Describe(t reflect.Type) (TypeDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.types[t]
	return d, ok
}

// Describe registers the descriptor of T.
//
//	lattice.Describe[*UserService](reg, lattice.TypeDescriptor{
//	    Constructor: NewUserService,
//	    InjectionPoints: []lattice.InjectionPoint{
//	        lattice.Setter("SetAudit", lattice.KeyOf[Audit]()).Optional(),
//	    },
//	})
func Describe[T any](r *MetadataRegistry, d TypeDescriptor) {
	r.Register(reflect.TypeFor[T](), d)
}

// Component is a marker embedded in structs that TagMetadata may
// auto-construct. A `lifecycle:"singleton"` tag on the embedded field makes
// auto-constructed instances singletons.
//
// Example:
//
//	type Handler struct {
//	    lattice.Component `lifecycle:"singleton"`
//
//	    Store  Store        `inject:""`
//	    Cache  Cache        `inject:"name=redis,optional"`
//	    Routes []Route      `inject:"collect"`
//	}
type Component struct{}

var componentType = reflect.TypeOf(Component{})

// TagMetadata is a MetadataSource reading `inject` struct tags of pointer to
// struct types. Supported options, comma separated: name=<qualifier>,
// optional, collect.
type TagMetadata struct{}

var tagCache sync.Map // reflect.Type -> tagEntry

type tagEntry struct {
	descriptor TypeDescriptor
	ok         bool
}

// Describe implements MetadataSource.
func (TagMetadata) Describe(t reflect.Type) (TypeDescriptor, bool) {
	if t == nil {
		return TypeDescriptor{}, false
	}

	if cached, ok := tagCache.Load(t); ok {
		e := cached.(tagEntry)
		return e.descriptor, e.ok
	}

	d, ok := describeTags(t)
	tagCache.Store(t, tagEntry{descriptor: d, ok: ok})

	return d, ok
}

func describeTags(t reflect.Type) (TypeDescriptor, bool) {
	if t.Kind() != reflect.Pointer || t.Elem().Kind() != reflect.Struct {
		return TypeDescriptor{}, false
	}

	st := t.Elem()

	var d TypeDescriptor

	for i := 0; i < st.NumField(); i++ {
		field := st.Field(i)

		if field.Anonymous && field.Type == componentType {
			d.Injectable = true
			if strings.EqualFold(field.Tag.Get("lifecycle"), "singleton") {
				d.Lifecycle = Singleton
			}
			continue
		}

		tag, ok := field.Tag.Lookup("inject")
		if !ok || !field.IsExported() {
			continue
		}

		point := InjectionPoint{
			Kind:     FieldInjection,
			Member:   field.Name,
			Key:      KeyFor(field.Type),
			Required: true,
		}

		for _, opt := range strings.Split(tag, ",") {
			opt = strings.TrimSpace(opt)
			switch {
			case opt == "optional":
				point.Required = false
			case opt == "collect":
				if _, elem, ok := ShapeOf(field.Type); ok {
					point.Key = KeyFor(elem).AsCollection()
				}
			case strings.HasPrefix(opt, "name="):
				point.Key = point.Key.Named(strings.TrimPrefix(opt, "name="))
			}
		}

		d.InjectionPoints = append(d.InjectionPoints, point)
	}

	if len(d.InjectionPoints) > 0 {
		d.Injectable = true
	}

	return d, d.Injectable
}
