package search_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/store"
	"github.com/starford/ansuz/internal/testutil"
)

func seedDoc(t *testing.T, db *store.DB, repoID, slug, title, body string) {
	t.Helper()
	_, err := db.CreateDoc(repoID, slug, title, body, "")
	require.NoError(t, err)
}

func TestQueryRanksTitleAboveBody(t *testing.T) {
	db, index, _ := testutil.TestCore(t)
	repo, err := db.AddRepo(t.TempDir(), "", models.RepoSettings{})
	require.NoError(t, err)

	seedDoc(t, db, repo.ID, "body-hit", "Unrelated Title", "all about kubernetes clusters")
	seedDoc(t, db, repo.ID, "title-hit", "Kubernetes Guide", "nothing else here")
	db.Feed().Wait()

	hits, err := index.Query("kubernetes", "", 10, 0)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "title-hit", hits[0].Slug)
	assert.Equal(t, "body-hit", hits[1].Slug)
}

func TestQueryScopesToRepo(t *testing.T) {
	db, index, _ := testutil.TestCore(t)
	repoA, err := db.AddRepo(t.TempDir(), "alpha", models.RepoSettings{})
	require.NoError(t, err)
	repoB, err := db.AddRepo(t.TempDir(), "beta", models.RepoSettings{})
	require.NoError(t, err)

	seedDoc(t, db, repoA.ID, "a", "Shared Topic", "content")
	seedDoc(t, db, repoB.ID, "b", "Shared Topic", "content")
	db.Feed().Wait()

	all, err := index.Query("shared", "", 10, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	scoped, err := index.Query("shared", repoA.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, "a", scoped[0].Slug)
}

func TestQueryHighlightsSnippets(t *testing.T) {
	db, index, _ := testutil.TestCore(t)
	repo, err := db.AddRepo(t.TempDir(), "", models.RepoSettings{})
	require.NoError(t, err)

	seedDoc(t, db, repo.ID, "doc", "Sourdough Notes", "keep the sourdough starter warm")
	db.Feed().Wait()

	hits, err := index.Query("sourdough", "", 10, 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Contains(t, hits[0].TitleSnip, "<b>")
	assert.Contains(t, hits[0].BodySnip, "<b>")
}

func TestQueryEscapesDocumentMarkup(t *testing.T) {
	db, index, _ := testutil.TestCore(t)
	repo, err := db.AddRepo(t.TempDir(), "", models.RepoSettings{})
	require.NoError(t, err)

	seedDoc(t, db, repo.ID, "doc", "Injection <script>", "bold <script>alert(1)</script> injection text")
	db.Feed().Wait()

	hits, err := index.Query("injection", "", 10, 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.NotContains(t, hits[0].BodySnip, "<script>")
	assert.Contains(t, hits[0].BodySnip, "&lt;script&gt;")
}

func TestDeleteRemovesFromIndex(t *testing.T) {
	db, index, _ := testutil.TestCore(t)
	repo, err := db.AddRepo(t.TempDir(), "", models.RepoSettings{})
	require.NoError(t, err)

	doc, err := db.CreateDoc(repo.ID, "gone", "Ephemeral Note", "body", "")
	require.NoError(t, err)
	db.Feed().Wait()

	hits, err := index.Query("ephemeral", "", 10, 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)

	_, err = db.DeleteDoc(doc.ID)
	require.NoError(t, err)
	db.Feed().Wait()

	hits, err = index.Query("ephemeral", "", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestUpdateReindexes(t *testing.T) {
	db, index, _ := testutil.TestCore(t)
	repo, err := db.AddRepo(t.TempDir(), "", models.RepoSettings{})
	require.NoError(t, err)

	doc, err := db.CreateDoc(repo.ID, "doc", "Doc", "mentions zephyr once", "")
	require.NoError(t, err)
	db.Feed().Wait()

	_, _, err = db.UpdateDoc(doc.ID, "no mention anymore", "edit")
	require.NoError(t, err)
	db.Feed().Wait()

	hits, err := index.Query("zephyr", "", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestQueryLimitAndOffset(t *testing.T) {
	db, index, _ := testutil.TestCore(t)
	repo, err := db.AddRepo(t.TempDir(), "", models.RepoSettings{})
	require.NoError(t, err)

	for _, slug := range []string{"p1", "p2", "p3", "p4"} {
		seedDoc(t, db, repo.ID, slug, "Paging "+strings.ToUpper(slug), "paging body")
	}
	db.Feed().Wait()

	page1, err := index.Query("paging", "", 2, 0)
	require.NoError(t, err)
	page2, err := index.Query("paging", "", 2, 2)
	require.NoError(t, err)
	require.Len(t, page1, 2)
	require.Len(t, page2, 2)
	assert.NotEqual(t, page1[0].DocID, page2[0].DocID)
}
