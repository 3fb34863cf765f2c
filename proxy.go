package lattice

import (
	"fmt"
	"reflect"
)

// Phase is the point of an intercepted call an advice runs at.
type Phase int

const (
	// Before runs ahead of the call. An error aborts the call.
	Before Phase = iota
	// Overwrite may supply the results instead of the real method.
	Overwrite
	// After runs when the call succeeded.
	After
	// AfterThrowing runs when the call failed.
	AfterThrowing
)

func (p Phase) String() string {
	switch p {
	case Before:
		return "before"
	case Overwrite:
		return "overwrite"
	case After:
		return "after"
	case AfterThrowing:
		return "after-throwing"
	default:
		return "unknown"
	}
}

// AdviceFunc is interception logic run for one call.
type AdviceFunc func(inv *Invocation) error

// Advice attaches an AdviceFunc to a method. An empty Method matches every
// method of the advised type. Lower priorities run first within a phase.
type Advice struct {
	Method   string
	Phase    Phase
	Priority int
	Fn       AdviceFunc
}

// Invocation is the record of one intercepted call, shared by every advice
// run for it.
type Invocation struct {
	// Method is the name of the called method.
	Method string

	// Args are the call arguments. Before advice may replace them.
	Args []any

	// Target is the advised instance.
	Target any

	// Results are the return values without the trailing error.
	Results []any

	// Err is the failure of the call, set before AfterThrowing advice runs.
	Err error

	overwritten bool
	recovered   bool
	values      map[any]any
}

// Overwrite supplies the results of the call. When more than one Overwrite
// advice supplies results, the last one to run wins.
func (inv *Invocation) Overwrite(results ...any) {
	inv.Results = results
	inv.overwritten = true
}

// Overwritten reports whether an advice supplied the results.
func (inv *Invocation) Overwritten() bool { return inv.overwritten }

// Recover swallows the failure of the call and substitutes results.
// Only meaningful in AfterThrowing advice.
func (inv *Invocation) Recover(results ...any) {
	inv.Results = results
	inv.recovered = true
}

// Set attaches a value visible to later advice of the same call.
func (inv *Invocation) Set(key, value any) {
	if inv.values == nil {
		inv.values = make(map[any]any)
	}
	inv.values[key] = value
}

// Value returns a value set by earlier advice of the same call.
func (inv *Invocation) Value(key any) any {
	return inv.values[key]
}

// Proxy routes calls to an advised instance through its advice chain.
// Typed wrappers embed *Proxy and implement each method of the advised
// interface with Call or Call0:
//
//	type greeterProxy struct{ *lattice.Proxy }
//
//	func (p greeterProxy) Greet(name string) (string, error) {
//	    return lattice.Call[string](p.Proxy, "Greet", name)
//	}
type Proxy struct {
	key    ComponentKey
	target any
	value  reflect.Value
	chain  *adviceChain
}

func newProxy(key ComponentKey, target any, chain *adviceChain) *Proxy {
	return &Proxy{
		key:    key,
		target: target,
		value:  reflect.ValueOf(target),
		chain:  chain,
	}
}

// Key returns the key the proxy was built for.
func (p *Proxy) Key() ComponentKey { return p.key }

// Unwrap returns the advised instance.
func (p *Proxy) Unwrap() any { return p.target }

// Invoke calls method on the advised instance with the advice phases of the
// method applied in order: Before, Overwrite, the real method (unless
// overwritten), then After on success or AfterThrowing on failure.
func (p *Proxy) Invoke(method string, args ...any) ([]any, error) {
	if method == "Equal" || method == "Equals" {
		unwrapped := make([]any, len(args))
		for i, arg := range args {
			unwrapped[i] = Unwrap(arg)
		}
		args = unwrapped
	}

	inv := &Invocation{
		Method: method,
		Args:   args,
		Target: p.target,
	}

	phases := p.chain.forMethod(method)

	for _, a := range phases[Before] {
		if err := a.Fn(inv); err != nil {
			return nil, err
		}
	}

	var err error

	for _, a := range phases[Overwrite] {
		if err = a.Fn(inv); err != nil {
			break
		}
	}

	if err == nil && !inv.overwritten {
		inv.Results, err = p.call(method, inv.Args)
	}

	if err == nil {
		for _, a := range phases[After] {
			if err = a.Fn(inv); err != nil {
				return nil, err
			}
		}
		return inv.Results, nil
	}

	inv.Err = err
	for _, a := range phases[AfterThrowing] {
		if aerr := a.Fn(inv); aerr != nil {
			inv.Err = aerr
			inv.recovered = false
		}
		if inv.recovered {
			return inv.Results, nil
		}
	}

	return nil, inv.Err
}

// call invokes the real method. A trailing error result is split off.
func (p *Proxy) call(method string, args []any) (results []any, err error) {
	m := p.value.MethodByName(method)
	if !m.IsValid() {
		return nil, newAdviceBinding(p.key, "%T has no method %s", p.target, method)
	}

	mt := m.Type()
	if mt.IsVariadic() || mt.NumIn() != len(args) {
		return nil, newAdviceBinding(p.key, "method %s called with %d arguments", method, len(args))
	}

	in := make([]reflect.Value, len(args))
	for i, arg := range args {
		want := mt.In(i)
		if arg == nil {
			in[i] = reflect.Zero(want)
			continue
		}
		v := reflect.ValueOf(arg)
		if !v.Type().AssignableTo(want) {
			return nil, newAdviceBinding(p.key, "argument %d of %s: %s is not assignable to %s", i, method, v.Type(), want)
		}
		in[i] = v
	}

	defer func() {
		if rec := recover(); rec != nil {
			results, err = nil, &PanicError{Value: rec}
		}
	}()

	out := m.Call(in)

	n := len(out)
	if n > 0 && mt.Out(n-1) == errorType {
		if !out[n-1].IsNil() {
			err = out[n-1].Interface().(error)
		}
		out = out[:n-1]
	}

	results = make([]any, len(out))
	for i, v := range out {
		results[i] = v.Interface()
	}

	return results, err
}

// Call invokes a method returning one value (and optionally an error)
// through p.
func Call[R any](p *Proxy, method string, args ...any) (R, error) {
	var zero R

	results, err := p.Invoke(method, args...)
	if err != nil {
		return zero, err
	}

	if len(results) == 0 || results[0] == nil {
		return zero, nil
	}

	r, ok := results[0].(R)
	if !ok {
		return zero, fmt.Errorf("%w: %s returned %T", ErrTypeMismatch, method, results[0])
	}

	return r, nil
}

// Call0 invokes a method returning nothing or only an error through p.
func Call0(p *Proxy, method string, args ...any) error {
	_, err := p.Invoke(method, args...)
	return err
}

// MustCall is Call for methods without an error result. A failure panics.
func MustCall[R any](p *Proxy, method string, args ...any) R {
	r, err := Call[R](p, method, args...)
	if err != nil {
		panic(err)
	}
	return r
}

// Unwrap returns the instance behind proxies and deferred handles.
func Unwrap(v any) any {
	for {
		u, ok := v.(interface{ Unwrap() any })
		if !ok {
			return v
		}

		next := u.Unwrap()
		if next == nil {
			return v
		}
		v = next
	}
}

// Same reports whether a and b are the same underlying instance.
func Same(a, b any) bool {
	a, b = Unwrap(a), Unwrap(b)

	if a == nil || b == nil {
		return a == b
	}

	if !reflect.TypeOf(a).Comparable() || !reflect.TypeOf(b).Comparable() {
		return false
	}

	return a == b
}
