// Package blogdemo is a small in-memory data set — articles, their
// authors, and view counts — used to exercise and demonstrate the fetch
// engine end to end: a single request, a batch, a concurrent fan-out
// across sources, and a two-round FlatMap chain.
package blogdemo

import (
	"context"
	"fmt"

	effect "github.com/gitter-badger/fetch-2/internal/effect"
	"github.com/gitter-badger/fetch-2/internal/fetch"
	fetchsource "github.com/gitter-badger/fetch-2/internal/fetchsource"
)

// Article is one blog post.
type Article struct {
	ID       int
	Title    string
	AuthorID int
}

// Author is one blog contributor.
type Author struct {
	ID   int
	Name string
}

// ArticleSource answers batches of article IDs from an in-memory table.
type ArticleSource struct {
	byID map[int]Article
}

var _ fetchsource.DataSource[int, Article] = (*ArticleSource)(nil)

// NewArticleSource builds a source over articles, indexed by ID.
func NewArticleSource(articles []Article) *ArticleSource {
	byID := make(map[int]Article, len(articles))
	for _, a := range articles {
		byID[a.ID] = a
	}
	return &ArticleSource{byID: byID}
}

func (s *ArticleSource) Name() string     { return "Article" }
func (s *ArticleSource) Identity(id int) any { return id }

func (s *ArticleSource) Fetch(ctx context.Context, ids []int) effect.Task[map[int]Article] {
	return effect.FromFunc(func(ctx context.Context) (map[int]Article, error) {
		out := make(map[int]Article, len(ids))
		for _, id := range ids {
			if a, ok := s.byID[id]; ok {
				out[id] = a
			}
		}
		return out, nil
	})
}

// AuthorSource answers batches of author IDs from an in-memory table.
type AuthorSource struct {
	byID map[int]Author
}

var _ fetchsource.DataSource[int, Author] = (*AuthorSource)(nil)

// NewAuthorSource builds a source over authors, indexed by ID.
func NewAuthorSource(authors []Author) *AuthorSource {
	byID := make(map[int]Author, len(authors))
	for _, a := range authors {
		byID[a.ID] = a
	}
	return &AuthorSource{byID: byID}
}

func (s *AuthorSource) Name() string     { return "Author" }
func (s *AuthorSource) Identity(id int) any { return id }

func (s *AuthorSource) Fetch(ctx context.Context, ids []int) effect.Task[map[int]Author] {
	return effect.FromFunc(func(ctx context.Context) (map[int]Author, error) {
		out := make(map[int]Author, len(ids))
		for _, id := range ids {
			if a, ok := s.byID[id]; ok {
				out[id] = a
			}
		}
		return out, nil
	})
}

// ViewCountSource answers batches of article IDs with a view count. It
// represents a third, independent backend so a feed fetch can demonstrate
// a Concurrent round that fans out to Author and ViewCount together.
type ViewCountSource struct {
	byID map[int]int
}

var _ fetchsource.DataSource[int, int] = (*ViewCountSource)(nil)

// NewViewCountSource builds a source over view counts, indexed by article ID.
func NewViewCountSource(counts map[int]int) *ViewCountSource {
	return &ViewCountSource{byID: counts}
}

func (s *ViewCountSource) Name() string     { return "ViewCount" }
func (s *ViewCountSource) Identity(id int) any { return id }

func (s *ViewCountSource) Fetch(ctx context.Context, ids []int) effect.Task[map[int]int] {
	return effect.FromFunc(func(ctx context.Context) (map[int]int, error) {
		out := make(map[int]int, len(ids))
		for _, id := range ids {
			if c, ok := s.byID[id]; ok {
				out[id] = c
			}
		}
		return out, nil
	})
}

// ArticleWithAuthor is the result of resolving one article alongside the
// author it belongs to.
type ArticleWithAuthor struct {
	Article Article
	Author  Author
}

// FetchArticleWithAuthor resolves one article, then — once its AuthorID is
// known — the author it belongs to. The second fetch depends on data the
// first produced, so this necessarily takes two rounds: it is the
// canonical example of FlatMap's sequencing barrier.
func FetchArticleWithAuthor(id int, articles *ArticleSource, authors *AuthorSource) fetch.Fetch[ArticleWithAuthor] {
	return fetch.FlatMap(fetch.FetchOne(id, articles), func(a Article) fetch.Fetch[ArticleWithAuthor] {
		return fetch.Map(fetch.FetchOne(a.AuthorID, authors), func(author Author) ArticleWithAuthor {
			return ArticleWithAuthor{Article: a, Author: author}
		})
	})
}

// FeedEntry is one row of a rendered feed: an article, its author, and its
// view count, each potentially from a different backend.
type FeedEntry struct {
	Article   Article
	Author    Author
	ViewCount int
}

// FetchFeed resolves every article in ids, its author, and its view count.
// Every article's Author and ViewCount fetches are independent of every
// other article's, so the whole feed — however many articles — resolves in
// two rounds: one ManyRound batch against Article, then one Concurrent
// round fanning out to Author and ViewCount together.
func FetchFeed(ids []int, articles *ArticleSource, authors *AuthorSource, views *ViewCountSource) fetch.Fetch[[]FeedEntry] {
	return fetch.FlatMap(fetch.FetchMany(ids, articles), func(as []Article) fetch.Fetch[[]FeedEntry] {
		return fetch.Traverse(as, func(a Article) fetch.Fetch[FeedEntry] {
			return fetch.Map(
				fetch.Join(fetch.FetchOne(a.AuthorID, authors), fetch.FetchOne(a.ID, views)),
				func(p fetch.Pair[Author, int]) FeedEntry {
					return FeedEntry{Article: a, Author: p.First, ViewCount: p.Second}
				},
			)
		})
	})
}

// String renders a FeedEntry for human-readable output, e.g. in cmd/fetchdemo.
func (e FeedEntry) String() string {
	return fmt.Sprintf("%q by %s (%d views)", e.Article.Title, e.Author.Name, e.ViewCount)
}
