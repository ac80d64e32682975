// Package fetchcache implements the content-addressed cache the executor
// reads and writes between rounds: a logical mapping from
// fetchsource.Identity to an arbitrary response value, with pure update
// semantics — every mutation returns a new logical Cache value, the
// original is untouched.
//
// Values are stored type-erased. Type safety is preserved by construction:
// the executor only ever reads a value back inside the same DataSource
// scope that wrote it, so the caller always knows the concrete type to
// assert back to.
package fetchcache

import (
	fetchsource "github.com/gitter-badger/fetch-2/internal/fetchsource"
)

// Cache is an immutable, content-addressed store keyed by
// fetchsource.Identity. The zero value behaves as an empty cache, the same
// as Empty.
type Cache struct {
	entries map[fetchsource.Identity]any
}

// Empty returns a cache with no entries.
func Empty() Cache {
	return Cache{entries: map[fetchsource.Identity]any{}}
}

// From builds a cache pre-populated with entries, useful for seeding a run
// with results kept from a previous one (run_with_cache).
func From(entries map[fetchsource.Identity]any) Cache {
	c := Empty()
	for k, v := range entries {
		c.entries[k] = v
	}
	return c
}

// Get returns the value stored at identity, if any.
func (c Cache) Get(identity fetchsource.Identity) (any, bool) {
	v, ok := c.entries[identity]
	return v, ok
}

// Has reports whether identity is present, without retrieving the value.
func (c Cache) Has(identity fetchsource.Identity) bool {
	_, ok := c.entries[identity]
	return ok
}

// Update returns a new Cache with identity set to value; c is untouched,
// and every other key in c is carried over unchanged.
func (c Cache) Update(identity fetchsource.Identity, value any) Cache {
	next := make(map[fetchsource.Identity]any, len(c.entries)+1)
	for k, v := range c.entries {
		next[k] = v
	}
	next[identity] = value
	return Cache{entries: next}
}

// Len reports the number of entries currently cached.
func (c Cache) Len() int { return len(c.entries) }

// BatchUpdate returns a new Cache with every (identity, value) pair in
// updates applied atomically: either the whole batch is reflected in the
// result, or — since this is a pure function — none of it leaks into c.
func (c Cache) BatchUpdate(updates map[fetchsource.Identity]any) Cache {
	if len(updates) == 0 {
		return c
	}
	next := make(map[fetchsource.Identity]any, len(c.entries)+len(updates))
	for k, v := range c.entries {
		next[k] = v
	}
	for k, v := range updates {
		next[k] = v
	}
	return Cache{entries: next}
}

// CacheResults merges a freshly-fetched response map into c under ds's
// identity scheme, the bulk update operation spec.md §4.2 calls
// cache_results. Req must be the same comparable request type ds.Identity
// expects.
func CacheResults[Req comparable, Resp any](c Cache, results map[Req]Resp, source Identifier[Req]) Cache {
	if len(results) == 0 {
		return c
	}
	updates := make(map[fetchsource.Identity]any, len(results))
	for req, resp := range results {
		updates[fetchsource.Identity{Source: source.Name(), Key: source.Identity(req)}] = resp
	}
	return c.BatchUpdate(updates)
}

// Identifier is the narrow slice of fetchsource.DataSource that
// CacheResults needs: a name and a request-to-key mapping. DataSource
// implementations satisfy it for free.
type Identifier[Req comparable] interface {
	Name() string
	Identity(req Req) any
}
