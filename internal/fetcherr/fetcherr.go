// Package fetcherr defines the three failure kinds a run can surface and
// the FetchFailure value that carries the environment at the point of
// failure. None of these are recoverable by the executor: they abort the
// run with no retry and no partial result.
package fetcherr

import (
	"fmt"

	round "github.com/gitter-badger/fetch-2/internal/round"
)

// FetchFailure is what a run returns on failure: the environment — round
// log and cache — as of the failing round's attempt, plus the underlying
// cause. The cache in Env is exactly the pre-round cache: a failed
// Concurrent round never partially commits.
type FetchFailure struct {
	Env   round.Env
	Cause error
}

func (f *FetchFailure) Error() string {
	return fmt.Sprintf("fetch failed after %d round(s): %v", f.Env.Log.Len(), f.Cause)
}

func (f *FetchFailure) Unwrap() error { return f.Cause }

// MissingIdentity reports that a data source's batch response omitted one
// or more of the keys the executor asked for.
type MissingIdentity struct {
	SourceName string
	Req        any
}

func (e *MissingIdentity) Error() string {
	return fmt.Sprintf("%s: no response for request %v", e.SourceName, e.Req)
}

// SourceFailure wraps an error returned by a data source's Fetch effect.
type SourceFailure struct {
	SourceName string
	Cause      error
}

func (e *SourceFailure) Error() string {
	return fmt.Sprintf("%s: fetch failed: %v", e.SourceName, e.Cause)
}

func (e *SourceFailure) Unwrap() error { return e.Cause }

// UserError wraps an error value an AST explicitly carried via fetch.Error.
type UserError struct {
	Cause error
}

func (e *UserError) Error() string { return e.Cause.Error() }

func (e *UserError) Unwrap() error { return e.Cause }
