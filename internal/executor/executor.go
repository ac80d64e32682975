// Package executor reduces a fetch.Node to a final value, issuing rounds
// against data sources as its Blocked frontiers demand them. It is the only
// package that ever calls a DataSource's Fetch.
package executor

import (
	"context"
	"time"

	effect "github.com/gitter-badger/fetch-2/internal/effect"
	"github.com/gitter-badger/fetch-2/internal/eventbus"
	"github.com/gitter-badger/fetch-2/internal/events"
	"github.com/gitter-badger/fetch-2/internal/fetch"
	fetchcache "github.com/gitter-badger/fetch-2/internal/fetchcache"
	"github.com/gitter-badger/fetch-2/internal/fetcherr"
	fetchsource "github.com/gitter-badger/fetch-2/internal/fetchsource"
	"github.com/gitter-badger/fetch-2/internal/reqid"
	round "github.com/gitter-badger/fetch-2/internal/round"
)

// Run reduces f against a fresh cache and returns its value.
func Run[A any](ctx context.Context, f fetch.Fetch[A]) (A, error) {
	_, a, err := RunWithCache(ctx, f, fetchcache.Empty())
	return a, err
}

// RunWithEnv is Run, but also returns the environment — cache and round
// log — as of the end of the run, so callers can inspect diagnostics or
// seed a later run's cache.
func RunWithEnv[A any](ctx context.Context, f fetch.Fetch[A]) (round.Env, A, error) {
	return RunWithCache(ctx, f, fetchcache.Empty())
}

// RunWithCache is RunWithEnv, seeded with a caller-supplied cache rather
// than an empty one. On failure the returned Env's Cache is exactly the
// last cache committed before the failing round: a failed round never
// partially commits.
func RunWithCache[A any](ctx context.Context, f fetch.Fetch[A], cache fetchcache.Cache) (round.Env, A, error) {
	var zero A
	env := round.NewEnv(cache)

	ctx, runID := reqid.NewContext(ctx)
	eventbus.Publish(ctx, events.RunStart{RunID: runID})
	start := time.Now()

	v, err := resolve(ctx, &env, f.Node(), runID)

	eventbus.Publish(ctx, events.RunFinish{RunID: runID, Rounds: env.Log.Len(), Duration: time.Since(start), Err: err})
	if err != nil {
		return env, zero, err
	}
	return env, v.(A), nil
}

// RunEnvOnly runs f to completion for its effect on the cache and round
// log, discarding the value. Useful for a warm-up pass whose only purpose
// is to populate a cache for a later RunWithCache.
func RunEnvOnly[A any](ctx context.Context, f fetch.Fetch[A]) (round.Env, error) {
	env, _, err := RunWithEnv(ctx, f)
	return env, err
}

// resolve drives n to a Pure value or a terminal failure, looping rather
// than recursing across rounds so the number of rounds a run takes does not
// grow the call stack.
func resolve(ctx context.Context, env *round.Env, n fetch.Node, runID int64) (any, error) {
	for {
		switch n.Kind {
		case fetch.KindPure:
			return n.Value, nil
		case fetch.KindError:
			return nil, &fetcherr.FetchFailure{Env: *env, Cause: &fetcherr.UserError{Cause: n.Err}}
		case fetch.KindBlocked:
			resp, err := resolveGroups(ctx, env, n.Groups, runID)
			if err != nil {
				return nil, err
			}
			n = n.Cont(resp)
		default:
			return nil, &fetcherr.FetchFailure{Env: *env, Cause: &fetcherr.UserError{Cause: errUnreachableKind}}
		}
	}
}

type unreachableKindError struct{}

func (unreachableKindError) Error() string { return "fetch: node has no recognized kind" }

var errUnreachableKind error = unreachableKindError{}

// resolveGroups issues exactly one round for groups — OneRound or ManyRound
// if there is a single group, ConcurrentRound if there are several — and
// returns the per-group response lists aligned to each group's Reqs.
func resolveGroups(ctx context.Context, env *round.Env, groups []fetch.Group, runID int64) ([][]any, error) {
	start := round.MonotonicClock()
	if len(groups) == 1 {
		return resolveSingleGroup(ctx, env, groups[0], start, runID)
	}
	return resolveConcurrentGroups(ctx, env, groups, start, runID)
}

func emitRoundStart(ctx context.Context, runID int64, kind round.DescriptionKind) {
	eventbus.Publish(ctx, events.RoundStart{RunID: runID, Kind: kind})
}

func emitRoundFinish(ctx context.Context, runID int64, kind round.DescriptionKind, servedFromCache bool, startNS int64, err error) {
	eventbus.Publish(ctx, events.RoundFinish{
		RunID:           runID,
		Kind:            kind,
		ServedFromCache: servedFromCache,
		Duration:        time.Duration(round.MonotonicClock() - startNS),
		Err:             err,
	})
}

// singleGroupKind picks OneRound or ManyRound from the group's shape alone:
// a group with exactly one request slot, however it was constructed, reads
// as a single request; anything with more than one slot — including a join
// of two requests for the same key — reads as a batch.
func singleGroupKind(g fetch.Group) round.DescriptionKind {
	if len(g.Reqs) == 1 {
		return round.OneRound
	}
	return round.ManyRound
}

func identityOf(g fetch.Group, req any) fetchsource.Identity {
	return fetchsource.Identity{Source: g.Source.Name, Key: g.Source.Identity(req)}
}

func resolveSingleGroup(ctx context.Context, env *round.Env, g fetch.Group, startNS int64, runID int64) ([][]any, error) {
	kind := singleGroupKind(g)
	distinct := dedupe(g.Reqs)

	var miss []any
	for _, r := range distinct {
		if !env.Cache.Has(identityOf(g, r)) {
			miss = append(miss, r)
		}
	}

	desc := round.Description{Kind: kind, SourceName: g.Source.Name}
	if kind == round.OneRound {
		desc.Req = g.Reqs[0]
	} else {
		desc.Reqs = append([]any{}, g.Reqs...)
	}

	emitRoundStart(ctx, runID, kind)
	prevCache := env.Cache

	if len(miss) == 0 {
		resp := respFromCache(env, g)
		env.Log.Append(round.Round{PrevCache: prevCache, Description: desc, StartNS: startNS, EndNS: round.MonotonicClock(), ServedFromCache: true})
		emitRoundFinish(ctx, runID, kind, true, startNS, nil)
		return [][]any{resp}, nil
	}

	result, err := g.Source.Fetch(ctx, miss).Run(ctx)
	if err != nil {
		failure := &fetcherr.SourceFailure{SourceName: g.Source.Name, Cause: err}
		env.Log.Append(round.Round{PrevCache: prevCache, Description: desc, StartNS: startNS, EndNS: round.MonotonicClock(), ServedFromCache: false})
		emitRoundFinish(ctx, runID, kind, false, startNS, failure)
		return nil, &fetcherr.FetchFailure{Env: *env, Cause: failure}
	}
	for _, r := range miss {
		if _, ok := result[r]; !ok {
			failure := &fetcherr.MissingIdentity{SourceName: g.Source.Name, Req: r}
			env.Log.Append(round.Round{PrevCache: prevCache, Description: desc, StartNS: startNS, EndNS: round.MonotonicClock(), ServedFromCache: false})
			emitRoundFinish(ctx, runID, kind, false, startNS, failure)
			return nil, &fetcherr.FetchFailure{Env: *env, Cause: failure}
		}
	}

	updates := make(map[fetchsource.Identity]any, len(result))
	for r, v := range result {
		updates[identityOf(g, r)] = v
	}
	env.Cache = env.Cache.BatchUpdate(updates)

	env.Log.Append(round.Round{PrevCache: prevCache, Description: desc, StartNS: startNS, EndNS: round.MonotonicClock(), ServedFromCache: false})
	emitRoundFinish(ctx, runID, kind, false, startNS, nil)

	return [][]any{respFromCache(env, g)}, nil
}

type groupPlan struct {
	group    fetch.Group
	distinct []any
	miss     []any
}

func resolveConcurrentGroups(ctx context.Context, env *round.Env, groups []fetch.Group, startNS int64, runID int64) ([][]any, error) {
	plans := make([]groupPlan, len(groups))
	anyMiss := false
	for i, g := range groups {
		distinct := dedupe(g.Reqs)
		var miss []any
		for _, r := range distinct {
			if !env.Cache.Has(identityOf(g, r)) {
				miss = append(miss, r)
			}
		}
		plans[i] = groupPlan{group: g, distinct: distinct, miss: miss}
		if len(miss) > 0 {
			anyMiss = true
		}
	}

	desc := round.Description{Kind: round.ConcurrentRound, BySource: map[string][]any{}}
	emitRoundStart(ctx, runID, round.ConcurrentRound)
	prevCache := env.Cache

	if !anyMiss {
		for _, p := range plans {
			desc.BySource[p.group.Source.Name] = p.distinct
			desc.SourceOrder = append(desc.SourceOrder, p.group.Source.Name)
		}
		env.Log.Append(round.Round{PrevCache: prevCache, Description: desc, StartNS: startNS, EndNS: round.MonotonicClock(), ServedFromCache: true})
		emitRoundFinish(ctx, runID, round.ConcurrentRound, true, startNS, nil)
		return respFromCacheAll(env, groups), nil
	}

	type job struct {
		plan groupPlan
		task effect.Task[map[any]any]
	}
	var jobs []job
	for _, p := range plans {
		if len(p.miss) == 0 {
			continue
		}
		desc.BySource[p.group.Source.Name] = p.miss
		desc.SourceOrder = append(desc.SourceOrder, p.group.Source.Name)
		jobs = append(jobs, job{plan: p, task: p.group.Source.Fetch(ctx, p.miss)})
	}

	tasks := make([]effect.Task[map[any]any], len(jobs))
	for i, j := range jobs {
		tasks[i] = j.task
	}

	results, err := effect.Parallel(tasks).Run(ctx)
	if err != nil {
		failure := &fetcherr.SourceFailure{SourceName: "Concurrent", Cause: err}
		env.Log.Append(round.Round{PrevCache: prevCache, Description: desc, StartNS: startNS, EndNS: round.MonotonicClock(), ServedFromCache: false})
		emitRoundFinish(ctx, runID, round.ConcurrentRound, false, startNS, failure)
		return nil, &fetcherr.FetchFailure{Env: *env, Cause: failure}
	}

	for i, j := range jobs {
		for _, r := range j.plan.miss {
			if _, ok := results[i][r]; !ok {
				failure := &fetcherr.MissingIdentity{SourceName: j.plan.group.Source.Name, Req: r}
				env.Log.Append(round.Round{PrevCache: prevCache, Description: desc, StartNS: startNS, EndNS: round.MonotonicClock(), ServedFromCache: false})
				emitRoundFinish(ctx, runID, round.ConcurrentRound, false, startNS, failure)
				return nil, &fetcherr.FetchFailure{Env: *env, Cause: failure}
			}
		}
	}

	updates := make(map[fetchsource.Identity]any)
	for i, j := range jobs {
		for _, r := range j.plan.miss {
			updates[identityOf(j.plan.group, r)] = results[i][r]
		}
	}
	env.Cache = env.Cache.BatchUpdate(updates)

	env.Log.Append(round.Round{PrevCache: prevCache, Description: desc, StartNS: startNS, EndNS: round.MonotonicClock(), ServedFromCache: false})
	emitRoundFinish(ctx, runID, round.ConcurrentRound, false, startNS, nil)

	return respFromCacheAll(env, groups), nil
}

func respFromCache(env *round.Env, g fetch.Group) []any {
	out := make([]any, len(g.Reqs))
	for i, r := range g.Reqs {
		v, _ := env.Cache.Get(identityOf(g, r))
		out[i] = v
	}
	return out
}

func respFromCacheAll(env *round.Env, groups []fetch.Group) [][]any {
	out := make([][]any, len(groups))
	for i, g := range groups {
		out[i] = respFromCache(env, g)
	}
	return out
}

func dedupe(reqs []any) []any {
	seen := make(map[any]bool, len(reqs))
	out := make([]any, 0, len(reqs))
	for _, r := range reqs {
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	return out
}
