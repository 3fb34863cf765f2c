package lattice

import (
	"context"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestConcurrency_SingletonCollapsesFirstUse(t *testing.T) {
	const goroutines = 64

	c := New()

	var invocations atomic.Int32
	release := make(chan struct{})

	err := BindFactory(c, func(Resolver) (*greeter, error) {
		invocations.Add(1)
		<-release
		return &greeter{}, nil
	}, AsSingleton())
	require.NoError(t, err)

	results := make([]*greeter, goroutines)

	var g errgroup.Group
	for i := 0; i < goroutines; i++ {
		g.Go(func() error {
			v, err := Get[*greeter](c)
			results[i] = v
			return err
		})
	}

	// Let every goroutine reach the store before the provider finishes.
	time.Sleep(50 * time.Millisecond)
	close(release)

	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), invocations.Load())
	for _, v := range results {
		assert.Same(t, results[0], v)
	}
}

func TestConcurrency_ChildScopesResolveIndependently(t *testing.T) {
	c := New()

	var invocations atomic.Int32
	require.NoError(t, BindFactory(c, func(Resolver) (*greeter, error) {
		invocations.Add(1)
		return &greeter{}, nil
	}, AsSingleton()))

	g, ctx := errgroup.WithContext(context.Background())

	for i := 0; i < 16; i++ {
		g.Go(func() error {
			scope := c.NewScope()
			defer func() { _ = scope.Close(ctx) }()

			for j := 0; j < 10; j++ {
				if _, err := GetContext[*greeter](ctx, scope, KeyOf[*greeter]()); err != nil {
					return err
				}
			}
			return nil
		})
	}

	require.NoError(t, g.Wait())
	assert.Equal(t, int32(1), invocations.Load(), "root singleton shared by every child")
}

func TestConcurrency_PrototypesAreNotShared(t *testing.T) {
	c := New()

	var invocations atomic.Int32
	require.NoError(t, BindFactory(c, func(Resolver) (*greeter, error) {
		invocations.Add(1)
		return &greeter{}, nil
	}))

	var g errgroup.Group
	for i := 0; i < 32; i++ {
		g.Go(func() error {
			_, err := Get[*greeter](c)
			return err
		})
	}

	require.NoError(t, g.Wait())
	assert.Equal(t, int32(32), invocations.Load())
}

func TestConcurrency_LostCommitAdoptsWinner(t *testing.T) {
	c := New()
	key := KeyOf[*greeter]()

	started := make(chan struct{})
	release := make(chan struct{})

	require.NoError(t, c.Bind(key).Singleton().ToFactory(func(Resolver) (any, error) {
		close(started)
		<-release
		return &greeter{prefix: "speculative"}, nil
	}))

	done := make(chan *greeter)
	go func() {
		v, _ := Get[*greeter](c)
		done <- v
	}()

	<-started
	winner := &greeter{prefix: "winner"}
	require.NoError(t, c.Root().Put(key, winner))
	close(release)

	assert.Same(t, winner, <-done)
	assert.Equal(t, int64(1), c.Snapshot().Counters[MetricCommitLost])
}

func TestConcurrency_FirstUseFromOppositeEndsOfCycle(t *testing.T) {
	for i := 0; i < 5; i++ {
		slow := &FuncMiddleware{BeforeConstructFunc: func(context.Context, ComponentKey) error {
			time.Sleep(20 * time.Millisecond)
			return nil
		}}

		c := New(WithMiddleware(slow))
		bindInterfaceCycle(t, c)
		registerServiceForwarders(t, c)

		var (
			g errgroup.Group
			a *serviceA
			b *serviceB
		)
		g.Go(func() (err error) {
			a, err = Get[*serviceA](c)
			return err
		})
		g.Go(func() (err error) {
			b, err = Get[*serviceB](c)
			return err
		})

		done := make(chan error, 1)
		go func() { done <- g.Wait() }()

		select {
		case err := <-done:
			require.NoError(t, err, "iteration %d", i)
		case <-time.After(2 * time.Second):
			t.Fatalf("iteration %d: concurrent first use of the cycle did not return", i)
		}

		assert.Equal(t, "b", a.Peer())
		assert.Equal(t, "a", b.Peer())

		cachedA, err := Get[*serviceA](c)
		require.NoError(t, err)
		again, err := Get[*serviceA](c)
		require.NoError(t, err)
		assert.Same(t, cachedA, again, "one instance wins the commit")
	}
}

func firstItemType() reflect.Type {
	type item struct{ n int }
	return reflect.TypeFor[*item]()
}

func secondItemType() reflect.Type {
	type item struct{ n int }
	return reflect.TypeFor[*item]()
}

func TestConcurrency_SameNamedTypesConstructIndependently(t *testing.T) {
	first, second := firstItemType(), secondItemType()
	require.NotEqual(t, first, second)
	require.Equal(t, first.String(), second.String())

	c := New()

	started := make(chan struct{}, 2)
	release := make(chan struct{})
	defer func() {
		select {
		case <-release:
		default:
			close(release)
		}
	}()

	for _, typ := range []reflect.Type{first, second} {
		require.NoError(t, c.Bind(KeyFor(typ)).Singleton().ToFactory(func(Resolver) (any, error) {
			started <- struct{}{}
			<-release
			return reflect.New(typ.Elem()).Interface(), nil
		}))
	}

	results := make([]any, 2)

	var g errgroup.Group
	for i, typ := range []reflect.Type{first, second} {
		g.Go(func() (err error) {
			results[i], err = c.Get(KeyFor(typ))
			return err
		})
	}

	for range 2 {
		select {
		case <-started:
		case <-time.After(2 * time.Second):
			t.Fatal("constructions of distinct keys were collapsed")
		}
	}
	close(release)

	require.NoError(t, g.Wait())
	assert.Equal(t, first, reflect.TypeOf(results[0]))
	assert.Equal(t, second, reflect.TypeOf(results[1]))
}
