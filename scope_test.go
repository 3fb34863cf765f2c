package lattice

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScope_ChildSeesParentBindings(t *testing.T) {
	c := New()
	require.NoError(t, BindFactory(c, func(Resolver) (*greeter, error) {
		return &greeter{}, nil
	}, AsSingleton()))

	child := c.NewScope()

	fromChild, err := Get[*greeter](child)
	require.NoError(t, err)

	fromRoot, err := Get[*greeter](c)
	require.NoError(t, err)

	assert.Same(t, fromRoot, fromChild)
	assert.Equal(t, 1, c.Root().Len(), "owned by the scope that bound it")
	assert.Equal(t, 0, child.Len())
}

func TestScope_ParentCannotSeeChildBindings(t *testing.T) {
	c := New()
	child := c.NewScope()
	sibling := c.NewScope()

	require.NoError(t, BindInstance(child, "child only"))

	v, err := Get[string](child)
	require.NoError(t, err)
	assert.Equal(t, "child only", v)

	_, err = Get[string](c)
	assert.True(t, errors.Is(err, ErrUnresolvedComponent))

	_, err = Get[string](sibling)
	assert.True(t, errors.Is(err, ErrUnresolvedComponent))
}

func TestScope_SingletonPerOwningScope(t *testing.T) {
	c := New()
	first := c.NewScope()
	second := c.NewScope()

	factory := func(Resolver) (*greeter, error) { return &greeter{}, nil }
	require.NoError(t, BindFactory(first, factory, AsSingleton()))
	require.NoError(t, BindFactory(second, factory, AsSingleton()))

	a1, err := Get[*greeter](first)
	require.NoError(t, err)
	a2, err := Get[*greeter](first)
	require.NoError(t, err)
	b1, err := Get[*greeter](second)
	require.NoError(t, err)

	assert.Same(t, a1, a2)
	assert.NotSame(t, a1, b1)
	assert.Equal(t, 0, c.Root().Len())
}

func TestScope_ChildOverridesParent(t *testing.T) {
	c := New()
	require.NoError(t, BindInstance(c, "root"))

	child := c.NewScope()
	require.NoError(t, BindInstance(child, "child"))

	v, err := Get[string](child)
	require.NoError(t, err)
	assert.Equal(t, "child", v)

	v, err = Get[string](c)
	require.NoError(t, err)
	assert.Equal(t, "root", v)
}

func TestScope_ExplicitScopeKey(t *testing.T) {
	c := New()
	require.NoError(t, BindInstance(c, "root"))

	child := c.NewScope()
	require.NoError(t, BindInstance(child, "child"))

	v, err := child.Get(KeyOf[string]().InScope(ApplicationScope))
	require.NoError(t, err)
	assert.Equal(t, "root", v)
}

func TestScope_PutAndCached(t *testing.T) {
	c := New()
	key := KeyOf[*greeter]()

	require.NoError(t, c.Bind(key).Singleton().ToFactory(func(Resolver) (any, error) {
		return &greeter{prefix: "built"}, nil
	}))

	seeded := &greeter{prefix: "seeded"}
	require.NoError(t, c.Root().Put(key, seeded))

	cached, ok := c.Root().Cached(key)
	require.True(t, ok)
	assert.Same(t, seeded, cached)

	g, err := Get[*greeter](c)
	require.NoError(t, err)
	assert.Same(t, seeded, g)

	err = c.Root().Put(key, &greeter{})
	assert.True(t, errors.Is(err, ErrInvalidBinding), "store never holds two instances under one key")
}

func TestScope_PutRejectsPrototype(t *testing.T) {
	c := New()
	key := KeyOf[*greeter]()

	require.NoError(t, c.Bind(key).ToFactory(func(Resolver) (any, error) {
		return &greeter{}, nil
	}))

	err := c.Root().Put(key, &greeter{})
	assert.True(t, errors.Is(err, ErrNotSingleton))

	_, ok := c.Root().Cached(key)
	assert.False(t, ok)
}

func TestScope_CloseTearsDownDependentsFirst(t *testing.T) {
	c := New()
	rec := &recorder{}

	type database struct{ *lifecycleService }
	type repository struct {
		*lifecycleService
		db *database
	}

	require.NoError(t, BindFactory(c, func(Resolver) (*database, error) {
		return &database{&lifecycleService{name: "db", rec: rec}}, nil
	}, AsSingleton()))

	require.NoError(t, BindConstructor[*repository](c, func(db *database) *repository {
		return &repository{lifecycleService: &lifecycleService{name: "repo", rec: rec}, db: db}
	}, AsSingleton()))

	_, err := Get[*repository](c)
	require.NoError(t, err)

	require.NoError(t, c.Close(context.Background()))

	events := rec.list()
	assert.Equal(t, []string{
		"db:post", "db:start",
		"repo:post", "repo:start",
		"repo:stop", "repo:close",
		"db:stop", "db:close",
	}, events)
}

func TestScope_CloseAggregatesErrors(t *testing.T) {
	c := New()
	rec := &recorder{}

	require.NoError(t, BindInstance(c, &lifecycleService{name: "a", rec: rec, stopErr: errors.New("a stop")}, Named("a")))
	require.NoError(t, BindInstance(c, &lifecycleService{name: "b", rec: rec, stopErr: errors.New("b stop")}, Named("b")))

	_, err := GetNamed[*lifecycleService](c, "a")
	require.NoError(t, err)
	_, err = GetNamed[*lifecycleService](c, "b")
	require.NoError(t, err)

	err = c.Close(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a stop")
	assert.Contains(t, err.Error(), "b stop")
}

func TestScope_ClosedScopeRejectsUse(t *testing.T) {
	c := New()
	child := c.NewScope()

	require.NoError(t, child.Close(context.Background()))
	assert.True(t, child.Closed())

	_, err := child.Get(KeyOf[string]())
	assert.True(t, errors.Is(err, ErrScopeClosed))

	err = BindInstance(child, "late")
	assert.True(t, errors.Is(err, ErrScopeClosed))

	err = child.Close(context.Background())
	assert.True(t, errors.Is(err, ErrScopeClosed))
}

func TestScope_CloseClosesChildren(t *testing.T) {
	c := New()
	rec := &recorder{}

	child := c.NewScope()
	grandchild := child.NewScope()

	require.NoError(t, BindInstance(grandchild, &lifecycleService{name: "leaf", rec: rec}))
	_, err := Get[*lifecycleService](grandchild)
	require.NoError(t, err)

	require.NoError(t, c.Close(context.Background()))

	assert.True(t, child.Closed())
	assert.True(t, grandchild.Closed())
	assert.Contains(t, rec.list(), "leaf:stop")

	late := child.NewScope()
	assert.True(t, late.Closed(), "children of a closed scope are born closed")
}

func TestScope_ChildIDsAreUnique(t *testing.T) {
	c := New()

	a := c.NewScope()
	b := c.NewScope()

	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, ApplicationScope, c.Root().ID())
	assert.Same(t, c.Root(), a.Parent())
	assert.Nil(t, c.Root().Parent())
	assert.Same(t, c, a.Container())
}
