package lattice

import (
	"reflect"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// AdviceDescriptor tells the container how to advise a concrete type.
type AdviceDescriptor struct {
	// Wrap builds the typed wrapper around the proxy. The result must
	// implement the interface the component is resolved through.
	Wrap func(p *Proxy) any

	// Advices are attached to the methods they name.
	Advices []Advice
}

// AdviceSource describes which concrete types are advised and how.
type AdviceSource interface {
	AdviceFor(t reflect.Type) (AdviceDescriptor, bool)
}

// AdviceRegistry is an AdviceSource filled by explicit registration.
type AdviceRegistry struct {
	mu    sync.RWMutex
	types map[reflect.Type]AdviceDescriptor
}

// NewAdviceRegistry creates an empty registry.
func NewAdviceRegistry() *AdviceRegistry {
	return &AdviceRegistry{types: make(map[reflect.Type]AdviceDescriptor)}
}

// Register adds advice for the concrete type t. A non-nil Wrap replaces the
// previous one; advices accumulate in registration order.
func (r *AdviceRegistry) Register(t reflect.Type, d AdviceDescriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing := r.types[t]
	if d.Wrap != nil {
		existing.Wrap = d.Wrap
	}
	existing.Advices = append(existing.Advices, d.Advices...)

	r.types[t] = existing
}

// AdviceFor implements AdviceSource.
func (r *AdviceRegistry) AdviceFor(t reflect.Type) (AdviceDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.types[t]
	return d, ok
}

// Advise registers advice for the concrete type T.
//
//	lattice.Advise[*greeter](reg, func(p *lattice.Proxy) any { return greeterProxy{p} },
//	    lattice.Advice{Method: "Greet", Phase: lattice.Before, Fn: audit},
//	)
func Advise[T any](r *AdviceRegistry, wrap func(p *Proxy) any, advices ...Advice) {
	r.Register(reflect.TypeFor[T](), AdviceDescriptor{Wrap: wrap, Advices: advices})
}

// adviceChain holds the sorted advice of one concrete type.
type adviceChain struct {
	wrap    func(p *Proxy) any
	methods map[string][4][]Advice
	any     [4][]Advice
}

// forMethod returns the advice run for method, per phase.
func (c *adviceChain) forMethod(method string) [4][]Advice {
	if phases, ok := c.methods[method]; ok {
		return phases
	}
	return c.any
}

// newAdviceChain validates d against t and sorts its advice. Wildcard advice
// is merged into every named method.
func newAdviceChain(t reflect.Type, d AdviceDescriptor) (*adviceChain, error) {
	type entry struct {
		Advice
		seq int
	}

	key := KeyFor(t)

	if d.Wrap == nil {
		return nil, newAdviceBinding(key, "no wrapper for %s", t)
	}

	var wildcard []entry
	named := make(map[string][]entry)

	for i, a := range d.Advices {
		if a.Fn == nil {
			return nil, newAdviceBinding(key, "advice %d has no function", i)
		}
		if a.Phase < Before || a.Phase > AfterThrowing {
			return nil, newAdviceBinding(key, "advice %d has unknown phase %d", i, a.Phase)
		}

		e := entry{Advice: a, seq: i}

		if a.Method == "" {
			wildcard = append(wildcard, e)
			continue
		}

		if _, ok := t.MethodByName(a.Method); !ok {
			return nil, newAdviceBinding(key, "%s has no method %s", t, a.Method)
		}
		named[a.Method] = append(named[a.Method], e)
	}

	split := func(entries []entry) [4][]Advice {
		sort.SliceStable(entries, func(i, j int) bool {
			if entries[i].Priority != entries[j].Priority {
				return entries[i].Priority < entries[j].Priority
			}
			return entries[i].seq < entries[j].seq
		})

		var phases [4][]Advice
		for _, e := range entries {
			phases[e.Phase] = append(phases[e.Phase], e.Advice)
		}
		return phases
	}

	chain := &adviceChain{
		wrap:    d.Wrap,
		methods: make(map[string][4][]Advice, len(named)),
		any:     split(append([]entry(nil), wildcard...)),
	}

	for method, entries := range named {
		merged := append(append([]entry(nil), wildcard...), entries...)
		chain.methods[method] = split(merged)
	}

	return chain, nil
}

// advisor wraps instances resolved through interface keys.
type advisor struct {
	source AdviceSource
	logger *zap.Logger
	chains sync.Map // reflect.Type -> chainEntry
}

type chainEntry struct {
	chain *adviceChain
	err   error
}

func newAdvisor(source AdviceSource, logger *zap.Logger) *advisor {
	return &advisor{source: source, logger: logger}
}

func (a *advisor) chainFor(t reflect.Type) (*adviceChain, error) {
	if cached, ok := a.chains.Load(t); ok {
		e := cached.(chainEntry)
		return e.chain, e.err
	}

	var e chainEntry
	if d, ok := a.source.AdviceFor(t); ok && len(d.Advices) > 0 {
		e.chain, e.err = newAdviceChain(t, d)
	}

	actual, _ := a.chains.LoadOrStore(t, e)
	e = actual.(chainEntry)

	return e.chain, e.err
}

// advise returns the instance to hand out for key: a wrapper when the key is
// an interface and the instance's concrete type is advised, the instance
// itself otherwise.
func (a *advisor) advise(key ComponentKey, instance any) (any, error) {
	if a == nil || a.source == nil || key.typ == nil || key.typ.Kind() != reflect.Interface {
		return instance, nil
	}

	t := reflect.TypeOf(instance)

	chain, err := a.chainFor(t)
	if err != nil {
		return nil, &Error{Code: CodeAdviceBinding, Message: "cannot advise " + key.String(), Key: key, Cause: err}
	}
	if chain == nil {
		return instance, nil
	}

	wrapped := chain.wrap(newProxy(key, instance, chain))
	if wrapped == nil {
		return nil, newAdviceBinding(key, "wrapper for %s returned nil", t)
	}

	if !reflect.TypeOf(wrapped).Implements(key.typ) {
		return nil, newAdviceBinding(key, "wrapper %T does not implement %s", wrapped, key.typ)
	}

	a.logger.Debug("component advised",
		zap.Stringer("key", key),
		zap.Stringer("type", t),
	)

	return wrapped, nil
}
