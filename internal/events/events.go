// Package events defines the values published on the eventbus while a run
// executes, for telemetry and tests to observe without coupling to the
// executor's internals.
package events

import (
	"net/http"
	"time"

	round "github.com/gitter-badger/fetch-2/internal/round"
)

// HTTPStart is emitted when the HTTP front door begins handling a request.
type HTTPStart struct {
	Request *http.Request
}

// HTTPFinish is emitted once the HTTP front door has written a response.
type HTTPFinish struct {
	Request  *http.Request
	Status   int
	Duration time.Duration
}

// RunStart is emitted once, before a run begins reducing its Fetch value.
type RunStart struct {
	RunID int64
}

// RunFinish is emitted once, after a run reaches Pure or fails.
type RunFinish struct {
	RunID    int64
	Rounds   int
	Duration time.Duration
	Err      error
}

// RoundStart is emitted before the executor resolves one round's groups,
// whether that resolution ends up cache-served or backend-served.
type RoundStart struct {
	RunID int64
	Kind  round.DescriptionKind
}

// RoundFinish is emitted after a round is appended to the log, whether it
// succeeded or the run is about to fail because of it.
type RoundFinish struct {
	RunID           int64
	Kind            round.DescriptionKind
	ServedFromCache bool
	Duration        time.Duration
	Err             error
}
