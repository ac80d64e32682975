package executor_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	effect "github.com/gitter-badger/fetch-2/internal/effect"
	"github.com/gitter-badger/fetch-2/internal/executor"
	"github.com/gitter-badger/fetch-2/internal/executor/executortest"
	"github.com/gitter-badger/fetch-2/internal/fetch"
	fetchcache "github.com/gitter-badger/fetch-2/internal/fetchcache"
	"github.com/gitter-badger/fetch-2/internal/fetcherr"
	round "github.com/gitter-badger/fetch-2/internal/round"
)

func TestPureRunsInZeroRounds(t *testing.T) {
	env, v, err := executor.RunWithEnv(context.Background(), fetch.Pure(42))
	require.NoError(t, err)
	require.Equal(t, 42, v)
	require.Equal(t, 0, env.Log.Len())
}

func TestErrorSurfacesAsUserError(t *testing.T) {
	wantErr := errors.New("boom")
	_, _, err := executor.RunWithEnv(context.Background(), fetch.Error[int](wantErr))
	require.Error(t, err)
	var ff *fetcherr.FetchFailure
	require.ErrorAs(t, err, &ff)
	var ue *fetcherr.UserError
	require.ErrorAs(t, err, &ue)
	require.ErrorIs(t, err, wantErr)
}

func TestOneRequestIssuesOneOneRound(t *testing.T) {
	src := executortest.New("Article")
	v, err := executor.Run(context.Background(), fetch.FetchOne(1, src))
	require.NoError(t, err)
	require.Equal(t, "1", v)
	require.Equal(t, 1, src.CallCount())
	require.Equal(t, []int{1}, src.Calls()[0].Reqs)
}

func TestJoinFusesSameSourceRequestsIntoOneBatch(t *testing.T) {
	src := executortest.New("Article")
	j := fetch.Join(fetch.FetchOne(1, src), fetch.FetchOne(2, src))
	env, v, err := executor.RunWithEnv(context.Background(), j)
	require.NoError(t, err)
	require.Equal(t, "1", v.First)
	require.Equal(t, "2", v.Second)
	require.Equal(t, 1, src.CallCount(), "batching law: one round for the whole join")
	require.Equal(t, []int{1, 2}, src.Calls()[0].Reqs)
	require.Equal(t, 1, env.Log.Len())
	require.Equal(t, round.ManyRound, env.Log.Rounds()[0].Description.Kind)
}

func TestJoinOfDuplicateRequestsDedupsTheBatch(t *testing.T) {
	src := executortest.New("Article")
	j := fetch.Join(fetch.FetchOne(1, src), fetch.FetchOne(1, src))
	_, _, err := executor.RunWithEnv(context.Background(), j)
	require.NoError(t, err)
	require.Equal(t, 1, src.CallCount())
	require.Equal(t, []int{1}, src.Calls()[0].Reqs, "dedup law: equal requests fetched once per round")
}

func TestDistinctSourcesFanOutConcurrently(t *testing.T) {
	articles := executortest.New("Article")
	authors := executortest.New("Author")
	j := fetch.Join(fetch.FetchOne(1, articles), fetch.FetchOne(7, authors))
	env, _, err := executor.RunWithEnv(context.Background(), j)
	require.NoError(t, err)
	require.Equal(t, 1, articles.CallCount())
	require.Equal(t, 1, authors.CallCount())
	require.Len(t, env.Log.Rounds(), 1)
	require.Equal(t, round.ConcurrentRound, env.Log.Rounds()[0].Description.Kind)
}

func TestFlatMapSequencesRoundsAcrossTwoBatches(t *testing.T) {
	articles := executortest.New("Article")
	authors := executortest.New("Author")
	f := fetch.FlatMap(fetch.FetchOne(1, articles), func(string) fetch.Fetch[string] {
		return fetch.FetchOne(7, authors)
	})
	env, v, err := executor.RunWithEnv(context.Background(), f)
	require.NoError(t, err)
	require.Equal(t, "7", v)
	require.Equal(t, 2, env.Log.Len(), "FlatMap is a sequencing barrier: two separate rounds")
	require.Equal(t, round.OneRound, env.Log.Rounds()[0].Description.Kind)
	require.Equal(t, round.OneRound, env.Log.Rounds()[1].Description.Kind)
}

func TestSecondRunWithWarmCacheIssuesNoBackendCall(t *testing.T) {
	src := executortest.New("Article")
	f := fetch.FetchOne(1, src)
	env, _, err := executor.RunWithEnv(context.Background(), f)
	require.NoError(t, err)
	require.Equal(t, 1, src.CallCount())

	env2, v2, err := executor.RunWithCache(context.Background(), f, env.Cache)
	require.NoError(t, err)
	require.Equal(t, "1", v2)
	require.Equal(t, 1, src.CallCount(), "idempotence law: a warm cache serves without a new backend call")
	require.Equal(t, 1, env2.Log.Len())
	require.True(t, env2.Log.Rounds()[0].ServedFromCache)
}

func TestCollectPreservesInputOrderRegardlessOfBatchOrder(t *testing.T) {
	src := executortest.New("Article")
	fs := []fetch.Fetch[string]{
		fetch.FetchOne(3, src),
		fetch.FetchOne(1, src),
		fetch.FetchOne(2, src),
	}
	v, err := executor.Run(context.Background(), fetch.Collect(fs))
	require.NoError(t, err)
	require.Equal(t, []string{"3", "1", "2"}, v)
}

func TestMissingResponseKeyFailsTheRunAndLeavesCacheUntouched(t *testing.T) {
	src := executortest.New("Article")
	src.Answer = func(reqs []int) (map[int]string, error) {
		return map[int]string{}, nil
	}
	seed := fetchcache.Empty()
	_, _, err := executor.RunWithCache(context.Background(), fetch.FetchOne(1, src), seed)
	require.Error(t, err)
	var ff *fetcherr.FetchFailure
	require.ErrorAs(t, err, &ff)
	var missing *fetcherr.MissingIdentity
	require.ErrorAs(t, err, &missing)
	require.Equal(t, seed, ff.Env.Cache, "failure atomicity: cache is exactly the pre-round cache")
}

func TestSourceFailureAbortsTheRunWithoutPartialCommit(t *testing.T) {
	wantErr := errors.New("unreachable backend")
	src := executortest.New("Article")
	src.Answer = func(reqs []int) (map[int]string, error) { return nil, wantErr }
	seed := fetchcache.Empty()
	_, _, err := executor.RunWithCache(context.Background(), fetch.FetchOne(1, src), seed)
	require.Error(t, err)
	var sf *fetcherr.SourceFailure
	require.ErrorAs(t, err, &sf)
	require.ErrorIs(t, err, wantErr)
}

func TestConcurrentFailureNeverPartiallyCommitsEitherSource(t *testing.T) {
	articles := executortest.New("Article")
	authors := executortest.New("Author")
	authors.Answer = func(reqs []int) (map[int]string, error) {
		return nil, errors.New("author backend down")
	}
	seed := fetchcache.Empty()
	j := fetch.Join(fetch.FetchOne(1, articles), fetch.FetchOne(7, authors))
	_, _, err := executor.RunWithCache(context.Background(), j, seed)
	require.Error(t, err)
	var ff *fetcherr.FetchFailure
	require.ErrorAs(t, err, &ff)
	require.Equal(t, seed, ff.Env.Cache, "a failed Concurrent round commits neither source's batch")
}

func TestTaskFailureInsideFetchPropagatesAsSourceFailure(t *testing.T) {
	failing := effect.FromFunc(func(ctx context.Context) (map[int]string, error) {
		return nil, errors.New("task-level failure")
	})
	ds := &taskFailureSource{task: failing}
	_, _, err := executor.RunWithEnv(context.Background(), fetch.FetchOne(1, ds))
	require.Error(t, err)
	var sf *fetcherr.SourceFailure
	require.ErrorAs(t, err, &sf)
}

type taskFailureSource struct {
	task effect.Task[map[int]string]
}

func (s *taskFailureSource) Name() string        { return "Failing" }
func (s *taskFailureSource) Identity(r int) any   { return r }
func (s *taskFailureSource) Fetch(ctx context.Context, reqs []int) effect.Task[map[int]string] {
	return s.task
}
