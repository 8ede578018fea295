package graph_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/graph"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/store"
	"github.com/starford/ansuz/internal/testutil"
)

// webEnv builds a small chain a -> b -> c -> d plus a hub linking b and c.
func webEnv(t *testing.T) (*store.DB, *graph.Graph, map[string]string) {
	t.Helper()
	db, _, g := testutil.TestCore(t)
	repo, err := db.AddRepo(t.TempDir(), "", models.RepoSettings{})
	require.NoError(t, err)

	bodies := map[string]string{
		"d":   "leaf",
		"c":   "links to [[d]]",
		"b":   "links to [[c]]",
		"a":   "links to [[b]]",
		"hub": "links to [[b]] and [[c]]",
	}
	// Create targets before the docs linking to them so every edge resolves.
	ids := make(map[string]string)
	for _, slug := range []string{"d", "c", "b", "a", "hub"} {
		doc, err := db.CreateDoc(repo.ID, slug, slug, bodies[slug], "")
		require.NoError(t, err)
		ids[slug] = doc.ID
	}
	db.Feed().Wait()
	return db, g, ids
}

func slugs(docs []models.GraphDoc) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Slug)
	}
	return out
}

func TestBacklinks(t *testing.T) {
	_, g, ids := webEnv(t)

	back, err := g.Backlinks(ids["b"])
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "hub"}, slugs(back))

	back, err = g.Backlinks(ids["a"])
	require.NoError(t, err)
	assert.Empty(t, back)
}

func TestUnresolvedTargetsAreDropped(t *testing.T) {
	db, _, g := testutil.TestCore(t)
	repo, err := db.AddRepo(t.TempDir(), "", models.RepoSettings{})
	require.NoError(t, err)

	real, err := db.CreateDoc(repo.ID, "real", "Real", "no links", "")
	require.NoError(t, err)
	_, err = db.CreateDoc(repo.ID, "src", "Src", "[[real]] and [[phantom]]", "")
	require.NoError(t, err)
	db.Feed().Wait()

	back, err := g.Backlinks(real.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"src"}, slugs(back))
}

func TestLinksDoNotCrossRepos(t *testing.T) {
	db, _, g := testutil.TestCore(t)
	repoA, err := db.AddRepo(t.TempDir(), "a", models.RepoSettings{})
	require.NoError(t, err)
	repoB, err := db.AddRepo(t.TempDir(), "b", models.RepoSettings{})
	require.NoError(t, err)

	target, err := db.CreateDoc(repoA.ID, "target", "Target", "x", "")
	require.NoError(t, err)
	_, err = db.CreateDoc(repoB.ID, "other", "Other", "[[target]]", "")
	require.NoError(t, err)
	db.Feed().Wait()

	back, err := g.Backlinks(target.ID)
	require.NoError(t, err)
	assert.Empty(t, back, "links resolve within the owning repository only")
}

func TestNeighborsDepth(t *testing.T) {
	_, g, ids := webEnv(t)

	one, err := g.Neighbors(ids["a"], 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, slugs(one))

	two, err := g.Neighbors(ids["a"], 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "hub"}, slugs(two))

	// Depth widens monotonically.
	three, err := g.Neighbors(ids["a"], 3)
	require.NoError(t, err)
	assert.Subset(t, slugs(three), slugs(two))
	assert.Contains(t, slugs(three), "d")
}

func TestNeighborsDepthIsClamped(t *testing.T) {
	_, g, ids := webEnv(t)

	low, err := g.Neighbors(ids["a"], 0)
	require.NoError(t, err)
	one, err := g.Neighbors(ids["a"], 1)
	require.NoError(t, err)
	assert.Equal(t, slugs(one), slugs(low))

	high, err := g.Neighbors(ids["a"], 50)
	require.NoError(t, err)
	three, err := g.Neighbors(ids["a"], 3)
	require.NoError(t, err)
	assert.Equal(t, slugs(three), slugs(high))
}

func TestRelatedRanksBySharedReferrers(t *testing.T) {
	db, _, g := testutil.TestCore(t)
	repo, err := db.AddRepo(t.TempDir(), "", models.RepoSettings{})
	require.NoError(t, err)

	mk := func(slug, body string) *models.Document {
		doc, err := db.CreateDoc(repo.ID, slug, slug, body, "")
		require.NoError(t, err)
		return doc
	}
	target := mk("target", "x")
	twin := mk("twin", "x")
	distant := mk("distant", "x")
	mk("r1", "[[target]] [[twin]]")
	mk("r2", "[[target]] [[twin]]")
	mk("r3", "[[target]] [[distant]]")
	db.Feed().Wait()

	related, err := g.Related(target.ID)
	require.NoError(t, err)
	require.Len(t, related, 2)
	assert.Equal(t, twin.ID, related[0].ID, "twin shares two referrers, distant shares one")
	assert.Equal(t, distant.ID, related[1].ID)
}

func TestPath(t *testing.T) {
	_, g, ids := webEnv(t)

	path, err := g.Path(ids["a"], ids["d"])
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, slugs(path))
}

func TestPathSameEndpoints(t *testing.T) {
	_, g, ids := webEnv(t)
	path, err := g.Path(ids["a"], ids["a"])
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, slugs(path))
}

func TestPathDisconnected(t *testing.T) {
	db, g, ids := webEnv(t)
	repo2, err := db.AddRepo(t.TempDir(), "island", models.RepoSettings{})
	require.NoError(t, err)
	lonely, err := db.CreateDoc(repo2.ID, "lonely", "Lonely", "x", "")
	require.NoError(t, err)
	db.Feed().Wait()

	path, err := g.Path(ids["a"], lonely.ID)
	require.NoError(t, err)
	assert.Empty(t, path)
}

func TestPathIsUndirected(t *testing.T) {
	_, g, ids := webEnv(t)
	path, err := g.Path(ids["d"], ids["a"])
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "c", "b", "a"}, slugs(path))
}

func TestDeleteRemovesEdges(t *testing.T) {
	db, g, ids := webEnv(t)

	_, err := db.DeleteDoc(ids["b"])
	require.NoError(t, err)
	db.Feed().Wait()

	_, err = g.Backlinks(ids["b"])
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	// c lost its referrer b but keeps hub.
	back, err := g.Backlinks(ids["c"])
	require.NoError(t, err)
	assert.Equal(t, []string{"hub"}, slugs(back))
}

func TestQueriesRejectUnknownDoc(t *testing.T) {
	_, _, g := testutil.TestCore(t)
	_, err := g.Backlinks("missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = g.Neighbors("missing", 1)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = g.Related("missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
