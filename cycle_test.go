package lattice

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func bindConcreteCycle(t *testing.T, c *Container) {
	t.Helper()

	require.NoError(t, BindConstructor[*cycleA](c, func(b *cycleB) *cycleA { return &cycleA{b: b} }, AsSingleton()))
	require.NoError(t, BindConstructor[*cycleB](c, func(a *cycleA) *cycleB { return &cycleB{a: a} }, AsSingleton()))
}

func bindInterfaceCycle(t *testing.T, c *Container) {
	t.Helper()

	require.NoError(t, BindConstructor[*serviceA](c, newServiceA, AsSingleton()))
	require.NoError(t, BindConstructor[*serviceB](c, newServiceB, AsSingleton()))
	require.NoError(t, BindType[ServiceA, *serviceA](c, AsSingleton()))
	require.NoError(t, BindType[ServiceB, *serviceB](c, AsSingleton()))
}

func registerServiceForwarders(t *testing.T, c *Container) {
	t.Helper()

	require.NoError(t, RegisterForwarder(c, func(h *Deferred) ServiceA { return serviceAForwarder{h} }))
	require.NoError(t, RegisterForwarder(c, func(h *Deferred) ServiceB { return serviceBForwarder{h} }))
}

func TestCycle_ConcreteCycleFailsWithChain(t *testing.T) {
	c := New()
	bindConcreteCycle(t, c)

	_, err := Get[*cycleA](c)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCircularDependency))

	e, ok := Find(err, CodeCircularDependency)
	require.True(t, ok)
	require.Len(t, e.Chain, 3)
	assert.Equal(t, KeyOf[*cycleA](), e.Chain[0].InScope(""))
	assert.Equal(t, KeyOf[*cycleB](), e.Chain[1].InScope(""))
	assert.Equal(t, KeyOf[*cycleA](), e.Chain[2].InScope(""))

	assert.Contains(t, err.Error(), "cycleA")
	assert.Contains(t, err.Error(), "cycleB")
}

func TestCycle_GuardIsReleasedAfterFailure(t *testing.T) {
	c := New()
	bindConcreteCycle(t, c)

	for i := 0; i < 3; i++ {
		_, err := Get[*cycleB](c)
		assert.True(t, errors.Is(err, ErrCircularDependency), "attempt %d", i)
	}

	assert.Equal(t, 0, c.Root().Len(), "no partially built singleton is cached")
}

func TestCycle_InterfaceCycleWithoutForwarderFails(t *testing.T) {
	c := New()
	bindInterfaceCycle(t, c)

	_, err := Get[ServiceA](c)
	require.Error(t, err)

	e, ok := Find(err, CodeCircularDependency)
	require.True(t, ok)
	assert.Contains(t, e.Message, "register a forwarder")
}

func TestCycle_InterfaceCycleResolvesThroughDeferredHandle(t *testing.T) {
	c := New()
	bindInterfaceCycle(t, c)
	registerServiceForwarders(t, c)

	a, err := Get[*serviceA](c)
	require.NoError(t, err)

	// A -> ServiceB(B) -> ServiceA(A): B holds a forwarder settled with A.
	assert.Equal(t, "b", a.Peer())

	b, err := Get[*serviceB](c)
	require.NoError(t, err)
	assert.Same(t, a.b, b)
	assert.Equal(t, "a", b.Peer())

	fwd, ok := b.a.(serviceAForwarder)
	require.True(t, ok)
	assert.True(t, fwd.Ready())
	assert.True(t, Same(fwd, a))

	assert.Equal(t, int64(1), c.Snapshot().Counters[MetricDeferred])
}

func TestCycle_InterfaceEntryPoint(t *testing.T) {
	c := New()
	bindInterfaceCycle(t, c)
	registerServiceForwarders(t, c)

	a, err := Get[ServiceA](c)
	require.NoError(t, err)
	assert.Equal(t, "a", a.Name())
	assert.Equal(t, "b", a.Peer())

	b, err := Get[ServiceB](c)
	require.NoError(t, err)
	assert.Equal(t, "a", b.Peer())
}

func TestCycle_HandleUsedDuringConstructionIsNotReady(t *testing.T) {
	c := New()
	registerServiceForwarders(t, c)

	require.NoError(t, BindConstructor[*serviceA](c, newServiceA, AsSingleton()))
	require.NoError(t, BindType[ServiceA, *serviceA](c))
	require.NoError(t, BindType[ServiceB, *serviceB](c))

	// B calls into its peer while the peer is still being built.
	require.NoError(t, BindConstructor[*serviceB](c, func(a ServiceA) *serviceB {
		_ = a.Name()
		return &serviceB{a: a}
	}))

	_, err := Get[*serviceA](c)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProviderInvocation))

	var pe *PanicError
	require.True(t, errors.As(err, &pe))

	notReady, ok := pe.Value.(*Error)
	require.True(t, ok)
	assert.Equal(t, CodeHandleNotReady, notReady.Code)
}

func TestCycle_DeferredHandleIsLogged(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)

	c := New(WithLogger(zap.New(core)))
	bindInterfaceCycle(t, c)
	registerServiceForwarders(t, c)

	_, err := Get[ServiceA](c)
	require.NoError(t, err)

	entries := logs.FilterMessage("cycle broken with deferred handle").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(5), entries[0].ContextMap()["length"])
}

func TestCycle_ForwarderRegistrationRejectsConcreteTypes(t *testing.T) {
	c := New()

	err := c.RegisterForwarder(KeyOf[*serviceA]().Type(), func(h *Deferred) any { return nil })
	assert.True(t, errors.Is(err, ErrInvalidBinding))

	err = RegisterForwarder[ServiceA](c, nil)
	assert.True(t, errors.Is(err, ErrInvalidBinding))
}

// getWithin resolves key on another goroutine and fails the test when the
// resolution does not return in time.
func getWithin(t *testing.T, c *Container, key ComponentKey) error {
	t.Helper()

	done := make(chan error, 1)
	go func() {
		_, err := c.Get(key)
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatalf("resolving %s did not return", key)
		return nil
	}
}

func activeRequests(c *Container) int {
	n := 0
	c.active.Range(func(any, any) bool {
		n++
		return true
	})
	return n
}

func TestCycle_SingletonReentryThroughContainerFails(t *testing.T) {
	c := New()

	require.NoError(t, BindFactory(c, func(Resolver) (*cycleA, error) {
		b, err := Get[*cycleB](c)
		if err != nil {
			return nil, err
		}
		return &cycleA{b: b}, nil
	}, AsSingleton()))
	require.NoError(t, BindFactory(c, func(Resolver) (*cycleB, error) {
		a, err := Get[*cycleA](c)
		if err != nil {
			return nil, err
		}
		return &cycleB{a: a}, nil
	}, AsSingleton()))

	for i := 0; i < 2; i++ {
		err := getWithin(t, c, KeyOf[*cycleA]())
		assert.True(t, errors.Is(err, ErrCircularDependency), "attempt %d: got %v", i, err)
	}

	assert.Equal(t, 0, c.Root().Len())
	assert.Equal(t, 0, activeRequests(c))
}

func TestCycle_PrototypeSelfReentryFails(t *testing.T) {
	c := New()

	require.NoError(t, BindFactory(c, func(Resolver) (*cycleA, error) {
		if _, err := Get[*cycleA](c); err != nil {
			return nil, err
		}
		return &cycleA{}, nil
	}))

	err := getWithin(t, c, KeyOf[*cycleA]())
	require.True(t, errors.Is(err, ErrCircularDependency), "got %v", err)

	e, ok := Find(err, CodeCircularDependency)
	require.True(t, ok)
	assert.Len(t, e.Chain, 2)
	assert.Equal(t, 0, activeRequests(c))
}

func TestCycle_ReentryWithoutCycleSharesRequest(t *testing.T) {
	c := New()
	require.NoError(t, BindInstance(c, &greeter{prefix: "hi "}))
	require.NoError(t, BindFactory(c, func(Resolver) (*needsStore, error) {
		g, err := Get[*greeter](c)
		if err != nil {
			return nil, err
		}
		return &needsStore{Store: &memoryStore{data: map[string]string{"prefix": g.prefix}}}, nil
	}, AsSingleton()))

	require.NoError(t, getWithin(t, c, KeyOf[*needsStore]()))
	assert.Equal(t, 0, activeRequests(c))
}
