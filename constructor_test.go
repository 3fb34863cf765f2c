package lattice

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reportService struct {
	primary Store
	replica Store
	greeter Greeter
}

type reportParams struct {
	In

	Primary Store   `name:"primary"`
	Replica Store   `name:"replica" optional:"true"`
	Greeter Greeter `optional:"true"`
}

func TestConstructor_InStructNamedAndOptional(t *testing.T) {
	c := New()
	primary := &memoryStore{data: map[string]string{"role": "primary"}}

	require.NoError(t, BindInstance[Store](c, primary, Named("primary")))
	require.NoError(t, BindConstructor[*reportService](c, func(p reportParams) *reportService {
		return &reportService{primary: p.Primary, replica: p.Replica, greeter: p.Greeter}
	}))

	svc, err := Get[*reportService](c)
	require.NoError(t, err)
	assert.Same(t, primary, svc.primary)
	assert.Nil(t, svc.replica)
	assert.Nil(t, svc.greeter)
}

func TestConstructor_MissingRequiredParameter(t *testing.T) {
	c := New()
	require.NoError(t, BindConstructor[*reportService](c, func(p reportParams) *reportService {
		return &reportService{primary: p.Primary}
	}))

	_, err := Get[*reportService](c)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProviderInvocation))
	assert.True(t, errors.Is(err, ErrUnresolvedComponent))
}

func TestConstructor_ResolverAndContextParameters(t *testing.T) {
	type ctxKey struct{}

	c := New()
	require.NoError(t, BindInstance(c, &greeter{prefix: "hi "}))

	var (
		seenCtx any
		seen    *greeter
	)
	require.NoError(t, BindConstructor[Store](c, func(ctx context.Context, r Resolver) (Store, error) {
		seenCtx = ctx.Value(ctxKey{})

		g, err := Get[*greeter](r)
		if err != nil {
			return nil, err
		}
		seen = g
		return &memoryStore{}, nil
	}))

	ctx := context.WithValue(context.Background(), ctxKey{}, "request-7")
	_, err := GetContext[Store](ctx, c.Root(), KeyOf[Store]())
	require.NoError(t, err)

	assert.Equal(t, "request-7", seenCtx)
	require.NotNil(t, seen)
	assert.Equal(t, "hi ", seen.prefix)
}

func TestConstructor_ErrorResult(t *testing.T) {
	c := New()
	cause := errors.New("dial failed")

	require.NoError(t, BindConstructor[Store](c, func() (Store, error) { return nil, cause }))

	_, err := Get[Store](c)
	assert.True(t, errors.Is(err, ErrProviderInvocation))
	assert.True(t, errors.Is(err, cause))
}

func TestConstructor_PlainParameters(t *testing.T) {
	c := New()
	require.NoError(t, BindInstance[Store](c, &memoryStore{}))
	require.NoError(t, BindConstructor[*needsStore](c, func(s Store) *needsStore {
		return &needsStore{Store: s}
	}, AsSingleton()))

	first, err := Get[*needsStore](c)
	require.NoError(t, err)
	second, err := Get[*needsStore](c)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.NotNil(t, first.Store)
}

func TestConstructor_Validation(t *testing.T) {
	type badCollect struct {
		In
		Plugins Plugin `collect:"true"`
	}

	tests := []struct {
		name        string
		constructor any
	}{
		{"nil", nil},
		{"not a function", 42},
		{"only error", func() error { return nil }},
		{"error not last", func() (error, *greeter) { return nil, nil }},
		{"too many results", func() (*greeter, int, error) { return nil, 0, nil }},
		{"no results", func() {}},
		{"variadic", func(...Store) *greeter { return nil }},
		{"in by pointer", func(*reportParams) *greeter { return nil }},
		{"collect on non collection", func(badCollect) *greeter { return nil }},
		{"wrong result type", func() *memoryStore { return nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New()
			err := BindConstructor[*greeter](c, tt.constructor)
			assert.True(t, errors.Is(err, ErrInvalidBinding), "got %v", err)
		})
	}
}
