package lattice

import (
	"context"
	"io"

	"go.uber.org/multierr"
)

// Lifecycle controls how many instances a binding produces.
type Lifecycle int

const (
	// Prototype creates a new instance per request.
	Prototype Lifecycle = iota
	// Singleton creates at most one instance per owning scope, lazily, and
	// releases it when the scope is closed.
	Singleton
)

func (l Lifecycle) String() string {
	switch l {
	case Singleton:
		return "singleton"
	case Prototype:
		return "prototype"
	default:
		return "unknown"
	}
}

// Callback is a post-construct callback.
type Callback struct {
	Name string
	Fn   func(ctx context.Context) error
}

// LifecycleSource returns the ordered post-construct callbacks of an instance.
type LifecycleSource interface {
	Callbacks(instance any) []Callback
}

// Initializer is implemented by components with a post-construct hook.
type Initializer interface {
	PostConstruct(ctx context.Context) error
}

// Starter is implemented by components that start work once constructed.
type Starter interface {
	Start(ctx context.Context) error
}

// Stopper is implemented by components that stop work on teardown.
type Stopper interface {
	Stop(ctx context.Context) error
}

// Disposable is implemented by components that release resources on teardown.
type Disposable interface {
	Dispose() error
}

// InterfaceLifecycle is the default LifecycleSource. It runs PostConstruct
// and then Start for instances implementing Initializer and Starter.
type InterfaceLifecycle struct{}

// Callbacks implements LifecycleSource.
func (InterfaceLifecycle) Callbacks(instance any) []Callback {
	var callbacks []Callback

	if i, ok := instance.(Initializer); ok {
		callbacks = append(callbacks, Callback{Name: "PostConstruct", Fn: i.PostConstruct})
	}

	if s, ok := instance.(Starter); ok {
		callbacks = append(callbacks, Callback{Name: "Start", Fn: s.Start})
	}

	return callbacks
}

// LifecycleFunc adapts a function to LifecycleSource.
type LifecycleFunc func(instance any) []Callback

// Callbacks implements LifecycleSource.
func (f LifecycleFunc) Callbacks(instance any) []Callback {
	return f(instance)
}

// teardown releases a cached instance, running every hook it implements.
func teardown(ctx context.Context, instance any) error {
	var err error

	if v, ok := instance.(Stopper); ok {
		err = multierr.Append(err, v.Stop(ctx))
	}

	if v, ok := instance.(Disposable); ok {
		err = multierr.Append(err, v.Dispose())
	}

	if v, ok := instance.(io.Closer); ok {
		err = multierr.Append(err, v.Close())
	}

	return err
}
