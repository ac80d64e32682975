// Package round implements the executor's diagnostics: the ordered history
// of rounds issued during a run, and the environment (cache plus round log)
// a run threads through and returns. The failure value a run surfaces when
// it cannot complete lives in package fetcherr.
package round

import (
	"time"

	fetchcache "github.com/gitter-badger/fetch-2/internal/fetchcache"
)

// DescriptionKind tags which of the three round shapes a Round records.
type DescriptionKind int

const (
	// OneRound is a single request against a single data source.
	OneRound DescriptionKind = iota
	// ManyRound is a batch of requests against a single data source.
	ManyRound
	// ConcurrentRound is a fan-out across several data sources issued in
	// the same round.
	ConcurrentRound
)

// Description describes what a Round asked for.
type Description struct {
	Kind DescriptionKind

	// SourceName is set for OneRound and ManyRound.
	SourceName string
	// Req is set for OneRound.
	Req any
	// Reqs is set for ManyRound.
	Reqs []any
	// BySource is set for ConcurrentRound: source name to the requests
	// issued against it, in construction order.
	BySource map[string][]any
	// SourceOrder preserves the construction order of BySource's keys,
	// since Go map iteration order is not deterministic.
	SourceOrder []string
}

// Round is one observable unit of execution: a batch call to a data
// source, a cache-served acknowledgement, or a concurrent fan-out.
type Round struct {
	PrevCache      fetchcache.Cache
	Description    Description
	StartNS        int64
	EndNS          int64
	ServedFromCache bool
}

// Log is the append-only history of rounds for one run.
type Log struct {
	rounds []Round
}

// Append records r, returning the round's index in the log.
func (l *Log) Append(r Round) int {
	l.rounds = append(l.rounds, r)
	return len(l.rounds) - 1
}

// Rounds returns the recorded rounds in issue order.
func (l *Log) Rounds() []Round {
	return l.rounds
}

// Len reports how many rounds have been recorded.
func (l *Log) Len() int { return len(l.rounds) }

// Clock is a monotonic nanosecond clock, satisfied by MonotonicClock or a
// fake in tests that need deterministic timestamps.
type Clock func() int64

// processEpoch anchors MonotonicClock's readings. Every call measures
// elapsed time against it with time.Since, which — because both values
// trace back to time.Now() — carries the monotonic reading the Go runtime
// attaches to wall-clock time, rather than the wall clock itself. UnixNano
// strips that reading, so subtracting two UnixNano values can go backwards
// across an NTP correction or manual clock change; time.Since cannot.
var processEpoch = time.Now()

// MonotonicClock returns nanoseconds since an arbitrary, process-local
// epoch, suitable for ordering round timestamps but not for wall-clock
// comparisons across processes.
func MonotonicClock() int64 {
	return time.Since(processEpoch).Nanoseconds()
}

// Env is the executor-private state threaded through one run: the current
// cache and the round log accumulated so far. It exists only for the
// duration of a single run; callers may keep its Cache for a later run.
type Env struct {
	Cache fetchcache.Cache
	Log   *Log
}

// NewEnv starts a fresh environment from cache, with an empty round log.
func NewEnv(cache fetchcache.Cache) Env {
	return Env{Cache: cache, Log: &Log{}}
}
