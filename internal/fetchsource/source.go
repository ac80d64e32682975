// Package fetchsource declares the contract a backend must satisfy to be
// driven by the executor: a stable name, a way to turn a request into a
// cache key, and a batch fetch operation.
package fetchsource

import (
	"context"

	effect "github.com/gitter-badger/fetch-2/internal/effect"
)

// Identity is the cache key for one request against one data source: the
// pair (source name, request). Two equal Identities MUST resolve to the
// same response.
type Identity struct {
	Source string
	Key    any
}

// DataSource is a capability object exposing one backend. Req and Resp are
// opaque to the executor; Req MUST be comparable so it can be used as a
// Go map key and deduplicated by value equality.
//
// Invariants (enforced by callers, not by this interface):
//   - Fetch is only ever called with a distinct, non-empty slice of reqs.
//   - The returned map MUST NOT contain a key absent from reqs.
//   - A key missing from the returned map signals "not found" for that
//     request and fails the enclosing Fetch, it does not fail the batch.
//   - Fetch MUST NOT perform hidden caching of its own.
//   - Fetch MUST be safe to call concurrently, including concurrently with
//     itself and with other DataSources.
type DataSource[Req comparable, Resp any] interface {
	// Name returns a string unique to this data source, used both for
	// cache-key identity and for fusing Blocked nodes into one batch.
	Name() string

	// Identity turns a request into the value half of the cache key.
	Identity(req Req) any

	// Fetch resolves a batch of distinct requests. The returned Task yields
	// a map containing the response for every req it could find.
	Fetch(ctx context.Context, reqs []Req) effect.Task[map[Req]Resp]
}
