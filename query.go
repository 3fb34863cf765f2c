package lattice

import (
	"reflect"
	"strings"
)

// BindingQuery defines criteria for querying bindings.
type BindingQuery struct {
	// Lifecycle filters by lifecycle ("singleton", "prototype").
	// Empty string matches all lifecycles.
	Lifecycle string

	// Scope filters by owning scope.
	// Empty matches all scopes.
	Scope ScopeID

	// Type filters by declared key type.
	// nil matches all types.
	Type reflect.Type

	// Provider filters by provider kind prefix ("factory", "type:", "collection").
	Provider string

	// Collection filters collection keys in or out.
	// nil matches both.
	Collection *bool

	// Cached filters by whether a singleton instance is cached.
	// nil matches all bindings.
	Cached *bool
}

// Query returns the bindings matching the query criteria.
//
// Example:
//
//	// Find every singleton already built in the application scope
//	cached := true
//	results := lattice.Query(c, lattice.BindingQuery{
//	    Lifecycle: "singleton",
//	    Scope:     lattice.ApplicationScope,
//	    Cached:    &cached,
//	})
func Query(c *Container, query BindingQuery) []BindingInfo {
	var results []BindingInfo

	for _, info := range c.Snapshot().Bindings {
		if query.Lifecycle != "" && info.Lifecycle != query.Lifecycle {
			continue
		}

		if query.Scope != "" && info.Scope != query.Scope {
			continue
		}

		if query.Type != nil && info.Key.typ != query.Type {
			continue
		}

		if query.Provider != "" && !strings.HasPrefix(info.Provider, query.Provider) {
			continue
		}

		if query.Collection != nil && info.Collection != *query.Collection {
			continue
		}

		if query.Cached != nil && info.Cached != *query.Cached {
			continue
		}

		results = append(results, info)
	}

	return results
}

// QueryKeys returns the keys of bindings matching the query criteria.
func QueryKeys(c *Container, query BindingQuery) []ComponentKey {
	results := Query(c, query)
	keys := make([]ComponentKey, len(results))
	for i, info := range results {
		keys[i] = info.Key
	}
	return keys
}

// FindByLifecycle returns all bindings with a specific lifecycle.
func FindByLifecycle(c *Container, lifecycle Lifecycle) []BindingInfo {
	return Query(c, BindingQuery{Lifecycle: lifecycle.String()})
}

// FindByScope returns all bindings owned by a scope.
func FindByScope(c *Container, id ScopeID) []BindingInfo {
	return Query(c, BindingQuery{Scope: id})
}

// FindCollections returns all collection bindings.
func FindCollections(c *Container) []BindingInfo {
	collection := true
	return Query(c, BindingQuery{Collection: &collection})
}

// FindCached returns all singletons that have been built.
func FindCached(c *Container) []BindingInfo {
	cached := true
	return Query(c, BindingQuery{Cached: &cached})
}
