package fetchcache_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	fetchcache "github.com/gitter-badger/fetch-2/internal/fetchcache"
	fetchsource "github.com/gitter-badger/fetch-2/internal/fetchsource"
)

type stubSource struct{ name string }

func (s stubSource) Name() string          { return s.name }
func (s stubSource) Identity(req int) any  { return req }

func TestGetAfterUpdateReturnsUpdatedValue(t *testing.T) {
	c := fetchcache.Empty()
	id := fetchsource.Identity{Source: "Article", Key: 1}
	c2 := c.Update(id, "hello")

	v, ok := c2.Get(id)
	require.True(t, ok)
	require.Equal(t, "hello", v)

	// original cache is untouched
	_, ok = c.Get(id)
	require.False(t, ok)
}

func TestUpdateLeavesUnrelatedKeysUntouched(t *testing.T) {
	c := fetchcache.Empty()
	idA := fetchsource.Identity{Source: "Article", Key: 1}
	idB := fetchsource.Identity{Source: "Article", Key: 2}

	c = c.Update(idA, "a")
	c = c.Update(idB, "b")

	va, _ := c.Get(idA)
	vb, _ := c.Get(idB)
	require.Equal(t, "a", va)
	require.Equal(t, "b", vb)
}

func TestCacheResultsMergesByIdentity(t *testing.T) {
	c := fetchcache.Empty()
	src := stubSource{name: "Article"}
	results := map[int]string{1: "one", 2: "two"}

	c = fetchcache.CacheResults[int, string](c, results, src)

	v1, ok1 := c.Get(fetchsource.Identity{Source: "Article", Key: 1})
	v2, ok2 := c.Get(fetchsource.Identity{Source: "Article", Key: 2})
	require.True(t, ok1)
	require.True(t, ok2)
	require.Equal(t, "one", v1)
	require.Equal(t, "two", v2)
}

func TestFromSeedsEntries(t *testing.T) {
	id := fetchsource.Identity{Source: "Article", Key: 1}
	c := fetchcache.From(map[fetchsource.Identity]any{id: "seed"})
	v, ok := c.Get(id)
	require.True(t, ok)
	require.Equal(t, "seed", v)
}
