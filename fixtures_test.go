package lattice

import (
	"context"
	"errors"
	"sync"
)

// Greeter is the advised capability used across tests.
type Greeter interface {
	Greet(name string) (string, error)
}

type greeter struct {
	prefix string
	calls  int
}

func (g *greeter) Greet(name string) (string, error) {
	g.calls++
	return g.prefix + name, nil
}

type failingGreeter struct{}

func (failingGreeter) Greet(string) (string, error) {
	return "", errors.New("boom")
}

type panickingGreeter struct{}

func (panickingGreeter) Greet(string) (string, error) {
	panic("greeter exploded")
}

type greeterProxy struct{ *Proxy }

func (p greeterProxy) Greet(name string) (string, error) {
	return Call[string](p.Proxy, "Greet", name)
}

func wrapGreeter(p *Proxy) any { return greeterProxy{p} }

// Comparer exercises identity calls through proxies.
type Comparer interface {
	Equal(other any) bool
}

type point struct{ x, y int }

func (p *point) Equal(other any) bool {
	q, ok := other.(*point)
	return ok && q == p
}

type comparerProxy struct{ *Proxy }

func (p comparerProxy) Equal(other any) bool {
	return MustCall[bool](p.Proxy, "Equal", other)
}

// ServiceA and ServiceB depend on each other through interfaces.
type ServiceA interface {
	Name() string
	Peer() string
}

type ServiceB interface {
	Name() string
	Peer() string
}

type serviceA struct{ b ServiceB }

func newServiceA(b ServiceB) *serviceA { return &serviceA{b: b} }

func (a *serviceA) Name() string { return "a" }
func (a *serviceA) Peer() string { return a.b.Name() }

type serviceB struct{ a ServiceA }

func newServiceB(a ServiceA) *serviceB { return &serviceB{a: a} }

func (b *serviceB) Name() string { return "b" }
func (b *serviceB) Peer() string { return b.a.Name() }

type serviceAForwarder struct{ *Deferred }

func (f serviceAForwarder) Name() string { return Forward[ServiceA](f.Deferred).Name() }
func (f serviceAForwarder) Peer() string { return Forward[ServiceA](f.Deferred).Peer() }

type serviceBForwarder struct{ *Deferred }

func (f serviceBForwarder) Name() string { return Forward[ServiceB](f.Deferred).Name() }
func (f serviceBForwarder) Peer() string { return Forward[ServiceB](f.Deferred).Peer() }

// cycleA and cycleB form a concrete cycle.
type cycleA struct{ b *cycleB }
type cycleB struct{ a *cycleA }

// Plugin is collected in collection tests.
type Plugin interface {
	ID() string
}

type plugin struct{ id string }

func (p *plugin) ID() string { return p.id }

// Store is an interface nothing binds unless a test does.
type Store interface {
	Load(key string) string
}

type memoryStore struct{ data map[string]string }

func (s *memoryStore) Load(key string) string { return s.data[key] }

// Auto-constructed types read through TagMetadata.
type autoDep struct {
	Component
}

type autoService struct {
	Component `lifecycle:"singleton"`

	Dep     *autoDep `inject:""`
	Store   Store    `inject:"optional"`
	Plugins []Plugin `inject:"collect"`
}

type needsStore struct {
	Store Store `inject:""`
}

// recorder collects ordered events from lifecycle hooks.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, event)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.events...)
}

type lifecycleService struct {
	name    string
	rec     *recorder
	failOn  string
	stopErr error
}

func (s *lifecycleService) PostConstruct(context.Context) error {
	s.rec.add(s.name + ":post")
	if s.failOn == "post" {
		return errors.New("post construct failed")
	}
	return nil
}

func (s *lifecycleService) Start(context.Context) error {
	s.rec.add(s.name + ":start")
	return nil
}

func (s *lifecycleService) Stop(context.Context) error {
	s.rec.add(s.name + ":stop")
	return s.stopErr
}

func (s *lifecycleService) Close() error {
	s.rec.add(s.name + ":close")
	return nil
}
