package lattice

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// In is a marker type that should be embedded in structs to indicate
// they are parameter objects. Fields of the struct are resolved as
// dependencies of the constructor taking it.
//
// Example:
//
//	type ServiceParams struct {
//	    lattice.In
//
//	    DB       *Database
//	    Logger   *Logger        `optional:"true"`
//	    Cache    Cache          `name:"redis"`
//	    Handlers []http.Handler `collect:"true"`
//	}
type In struct{}

var (
	inType       = reflect.TypeOf(In{})
	errorType    = reflect.TypeOf((*error)(nil)).Elem()
	resolverType = reflect.TypeOf((*Resolver)(nil)).Elem()
	contextType  = reflect.TypeOf((*context.Context)(nil)).Elem()
)

// paramInfo describes a constructor parameter
type paramInfo struct {
	typ      reflect.Type
	name     string      // From `name:"..."` tag
	optional bool        // From `optional:"true"` tag
	collect  bool        // From `collect:"true"` tag, slice or set typed
	index    int         // Struct field index for In fields
	isIn     bool        // Whether this is an In struct
	inFields []paramInfo // Expanded fields if isIn is true
}

// key returns the component key the parameter resolves.
func (p paramInfo) key() ComponentKey {
	if p.collect {
		_, elem, _ := ShapeOf(p.typ)
		return KeyFor(elem).AsCollection()
	}
	return KeyFor(p.typ).Named(p.name)
}

// constructorProvider calls a constructor function with resolved parameters.
type constructorProvider struct {
	fn       reflect.Value
	fnType   reflect.Type
	params   []paramInfo
	hasError bool
}

// newConstructorProvider inspects a constructor function of the form
// func(deps...) T or func(deps...) (T, error).
func newConstructorProvider(constructor any) (*constructorProvider, error) {
	if constructor == nil {
		return nil, errors.New("constructor cannot be nil")
	}

	fnValue := reflect.ValueOf(constructor)
	fnType := fnValue.Type()

	if fnType.Kind() != reflect.Func {
		return nil, fmt.Errorf("constructor must be a function, got %s", fnType)
	}

	p := &constructorProvider{fn: fnValue, fnType: fnType}

	switch fnType.NumOut() {
	case 1:
		if fnType.Out(0) == errorType {
			return nil, errors.New("constructor must return a non-error value")
		}
	case 2:
		if fnType.Out(1) != errorType {
			return nil, errors.New("error must be the last return value")
		}
		p.hasError = true
	default:
		return nil, fmt.Errorf("constructor must return (T) or (T, error), got %d values", fnType.NumOut())
	}

	if fnType.IsVariadic() {
		return nil, errors.New("constructor cannot be variadic")
	}

	for i := 0; i < fnType.NumIn(); i++ {
		param, err := analyzeParam(fnType.In(i))
		if err != nil {
			return nil, fmt.Errorf("parameter %d: %w", i, err)
		}
		p.params = append(p.params, param)
	}

	return p, nil
}

func (p *constructorProvider) resultType() reflect.Type {
	return p.fnType.Out(0)
}

// Provide implements Provider.
func (p *constructorProvider) Provide(r *Resolution) (any, error) {
	args := make([]reflect.Value, len(p.params))

	for i, param := range p.params {
		arg, err := resolveParam(r, param)
		if err != nil {
			return nil, err
		}
		args[i] = arg
	}

	results := p.fn.Call(args)

	if p.hasError && !results[1].IsNil() {
		return nil, results[1].Interface().(error)
	}

	return results[0].Interface(), nil
}

// analyzeParam analyzes a single parameter type
func analyzeParam(t reflect.Type) (paramInfo, error) {
	param := paramInfo{typ: t}

	if isInStruct(t) {
		if t.Kind() == reflect.Pointer {
			return param, errors.New("In parameter objects must be passed by value")
		}

		param.isIn = true

		fields, err := expandInStruct(t)
		if err != nil {
			return param, err
		}

		param.inFields = fields
	}

	return param, nil
}

// isInStruct checks if a type embeds lattice.In
func isInStruct(t reflect.Type) bool {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	if t.Kind() != reflect.Struct {
		return false
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Anonymous && field.Type == inType {
			return true
		}
	}

	return false
}

// expandInStruct expands an In struct into its field dependencies
func expandInStruct(t reflect.Type) ([]paramInfo, error) {
	var params []paramInfo

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		if field.Anonymous && field.Type == inType {
			continue
		}

		if !field.IsExported() {
			continue
		}

		param := paramInfo{
			typ:      field.Type,
			index:    i,
			name:     field.Tag.Get("name"),
			optional: strings.EqualFold(field.Tag.Get("optional"), "true"),
			collect:  strings.EqualFold(field.Tag.Get("collect"), "true"),
		}

		if param.collect {
			if _, _, ok := ShapeOf(field.Type); !ok {
				return nil, fmt.Errorf("field %s with collect tag must be a slice or set type", field.Name)
			}
		}

		params = append(params, param)
	}

	return params, nil
}

// resolveParam produces the argument value for one parameter.
func resolveParam(r *Resolution, param paramInfo) (reflect.Value, error) {
	switch {
	case param.typ == resolverType:
		return reflect.ValueOf(Resolver(r)), nil
	case param.typ == contextType:
		return reflect.ValueOf(r.Context()), nil
	case param.isIn:
		return resolveInStruct(r, param)
	}

	return resolveValue(r, param.key(), param.typ, param.optional)
}

// resolveInStruct fills an In parameter object field by field.
func resolveInStruct(r *Resolution, param paramInfo) (reflect.Value, error) {
	out := reflect.New(param.typ).Elem()

	for _, field := range param.inFields {
		v, err := resolveParam(r, field)
		if err != nil {
			return reflect.Value{}, err
		}
		out.Field(field.index).Set(v)
	}

	return out, nil
}

// resolveValue resolves key and converts the result to want. Absent optional
// dependencies yield the zero value.
func resolveValue(r *Resolution, key ComponentKey, want reflect.Type, optional bool) (reflect.Value, error) {
	var (
		instance any
		err      error
	)

	if optional {
		var found bool
		instance, found, err = GetOptional(r, key)
		if err == nil && !found {
			return reflect.Zero(want), nil
		}
	} else {
		instance, err = r.Get(key)
	}

	if err != nil {
		return reflect.Value{}, err
	}

	if coll, ok := instance.(*ComponentCollection); ok && key.collection {
		return coll.As(want)
	}

	v := reflect.ValueOf(instance)
	if !v.Type().AssignableTo(want) {
		return reflect.Value{}, newTypeMismatch(key, instance)
	}

	return v, nil
}
