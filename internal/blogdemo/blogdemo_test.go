package blogdemo_test

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/gitter-badger/fetch-2/internal/blogdemo"
	"github.com/gitter-badger/fetch-2/internal/executor"
	"github.com/gitter-badger/fetch-2/internal/fetch"
	round "github.com/gitter-badger/fetch-2/internal/round"
)

func fixtures() (*blogdemo.ArticleSource, *blogdemo.AuthorSource, *blogdemo.ViewCountSource) {
	articles := blogdemo.NewArticleSource([]blogdemo.Article{
		{ID: 1, Title: "Batching 101", AuthorID: 100},
		{ID: 2, Title: "Caching Explained", AuthorID: 100},
		{ID: 3, Title: "Concurrent Fan-out", AuthorID: 200},
	})
	authors := blogdemo.NewAuthorSource([]blogdemo.Author{
		{ID: 100, Name: "Ada"},
		{ID: 200, Name: "Grace"},
	})
	views := blogdemo.NewViewCountSource(map[int]int{1: 10, 2: 20, 3: 30})
	return articles, authors, views
}

func TestFetchArticleWithAuthorTakesTwoRounds(t *testing.T) {
	articles, authors, _ := fixtures()
	f := blogdemo.FetchArticleWithAuthor(1, articles, authors)
	env, v, err := executor.RunWithEnv(context.Background(), f)
	require.NoError(t, err)
	require.Equal(t, "Batching 101", v.Article.Title)
	require.Equal(t, "Ada", v.Author.Name)
	require.Equal(t, 2, env.Log.Len())
	require.Equal(t, round.OneRound, env.Log.Rounds()[0].Description.Kind)
	require.Equal(t, round.OneRound, env.Log.Rounds()[1].Description.Kind)
}

func TestFetchFeedBatchesArticlesThenFansOutConcurrently(t *testing.T) {
	articles, authors, views := fixtures()
	f := blogdemo.FetchFeed([]int{1, 2, 3}, articles, authors, views)
	env, v, err := executor.RunWithEnv(context.Background(), f)
	require.NoError(t, err)

	ada := blogdemo.Author{ID: 100, Name: "Ada"}
	grace := blogdemo.Author{ID: 200, Name: "Grace"}
	want := []blogdemo.FeedEntry{
		{Article: blogdemo.Article{ID: 1, Title: "Batching 101", AuthorID: 100}, Author: ada, ViewCount: 10},
		{Article: blogdemo.Article{ID: 2, Title: "Caching Explained", AuthorID: 100}, Author: ada, ViewCount: 20},
		{Article: blogdemo.Article{ID: 3, Title: "Concurrent Fan-out", AuthorID: 200}, Author: grace, ViewCount: 30},
	}
	if diff := cmp.Diff(want, v); diff != "" {
		t.Fatalf("feed entries differ from expected (-want +got):\n%s", diff)
	}

	require.Equal(t, 2, env.Log.Len(), "one batch round for articles, one concurrent round for author+viewcount")
	require.Equal(t, round.ManyRound, env.Log.Rounds()[0].Description.Kind)
	require.Equal(t, round.ConcurrentRound, env.Log.Rounds()[1].Description.Kind)
}

func TestFetchFeedDedupsRepeatedAuthor(t *testing.T) {
	articles, authors, views := fixtures()
	f := blogdemo.FetchFeed([]int{1, 2}, articles, authors, views)
	env, _, err := executor.RunWithEnv(context.Background(), f)
	require.NoError(t, err)
	require.Equal(t, 2, env.Log.Len())
	concurrent := env.Log.Rounds()[1].Description
	if diff := cmp.Diff([]any{100}, concurrent.BySource["Author"]); diff != "" {
		t.Fatalf("authors requested in the concurrent round differ from expected (-want +got):\n%s", diff)
	}
}

func TestFetchOneOfUnknownArticleFailsTheRun(t *testing.T) {
	articles, _, _ := fixtures()
	f := fetch.FetchOne(999, articles)
	_, err := executor.Run(context.Background(), f)
	require.Error(t, err, "an id absent from the source's response map fails the run rather than resolving to a zero value")
}
