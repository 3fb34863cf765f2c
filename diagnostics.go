package lattice

import (
	"sort"

	"gopkg.in/yaml.v3"
)

// BindingInfo describes the winning binding of one key.
type BindingInfo struct {
	Key        ComponentKey `yaml:"-"`
	Name       string       `yaml:"key"`
	Scope      ScopeID      `yaml:"scope"`
	Collection bool         `yaml:"collection,omitempty"`
	Priority   int          `yaml:"priority"`
	Priorities []int        `yaml:"priorities,flow"`
	Provider   string       `yaml:"provider"`
	Lifecycle  string       `yaml:"lifecycle"`
	Cached     bool         `yaml:"cached"`
}

// ScopeInfo describes one scope and its population.
type ScopeInfo struct {
	ID         ScopeID  `yaml:"id"`
	Parent     ScopeID  `yaml:"parent,omitempty"`
	Closed     bool     `yaml:"closed,omitempty"`
	Population int      `yaml:"population"`
	Cached     []string `yaml:"cached,omitempty"`
}

// Snapshot is a read-only view of the container. Taking one has no effect on
// resolution.
type Snapshot struct {
	Bindings     []BindingInfo       `yaml:"bindings"`
	Scopes       []ScopeInfo         `yaml:"scopes"`
	Dependencies map[string][]string `yaml:"dependencies,omitempty"`
	Counters     map[string]int64    `yaml:"counters"`
}

// YAML renders the snapshot for external reporting.
func (s Snapshot) YAML() ([]byte, error) {
	return yaml.Marshal(s)
}

// Binding returns the info of key, matched on the normalised key.
func (s Snapshot) Binding(key ComponentKey) (BindingInfo, bool) {
	for _, b := range s.Bindings {
		if b.Key == key || (key.scope == "" && b.Key.InScope("") == key) {
			return b, true
		}
	}
	return BindingInfo{}, false
}

// Scope returns the info of the scope id.
func (s Snapshot) Scope(id ScopeID) (ScopeInfo, bool) {
	for _, sc := range s.Scopes {
		if sc.ID == id {
			return sc, true
		}
	}
	return ScopeInfo{}, false
}

// Snapshot collects the bindings and the population of every scope.
func (c *Container) Snapshot() Snapshot {
	snap := Snapshot{
		Dependencies: make(map[string][]string),
		Counters:     c.metrics.counters(),
	}

	var walk func(s *Scope)
	walk = func(s *Scope) {
		snap.Scopes = append(snap.Scopes, scopeInfo(s))
		snap.Bindings = append(snap.Bindings, bindingInfos(s)...)

		for from, deps := range s.Graph().edges() {
			snap.Dependencies[from] = append(snap.Dependencies[from], deps...)
		}

		children := s.childScopes()
		sort.Slice(children, func(i, j int) bool { return children[i].id < children[j].id })

		for _, child := range children {
			walk(child)
		}
	}

	walk(c.root)

	return snap
}

func scopeInfo(s *Scope) ScopeInfo {
	info := ScopeInfo{
		ID:         s.id,
		Closed:     s.isClosed(),
		Population: s.store.len(),
	}

	if s.parent != nil {
		info.Parent = s.parent.id
	}

	for _, key := range s.store.keys() {
		info.Cached = append(info.Cached, key.String())
	}

	return info
}

func bindingInfos(s *Scope) []BindingInfo {
	var out []BindingInfo

	for _, h := range s.registry.all() {
		b := h.highest()
		if b == nil {
			continue
		}

		info := BindingInfo{
			Key:        h.key,
			Name:       h.key.String(),
			Scope:      s.id,
			Collection: h.key.collection,
			Priority:   b.priority,
			Priorities: h.Priorities(),
			Provider:   providerKind(b.provider),
			Lifecycle:  b.lifecycle.String(),
		}

		if h.key.collection {
			info.Provider = providerKind(&collectionProvider{elements: h.ordered()})
		} else {
			_, info.Cached = s.store.load(h.key)
		}

		out = append(out, info)
	}

	return out
}
