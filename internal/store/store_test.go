package store

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "ansuz-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func addTestRepo(t *testing.T, db *DB) *models.Repository {
	t.Helper()
	repo, err := db.AddRepo(t.TempDir(), "", models.RepoSettings{})
	require.NoError(t, err)
	return repo
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	for _, table := range []string{"repo", "doc", "doc_version", "anchor", "link", "provider", "plugin", "app_setting", "scan_job", "ai_trace"} {
		var count int
		if err := db.conn.QueryRow(`SELECT count(*) FROM ` + table).Scan(&count); err != nil {
			t.Fatalf("%s table missing: %v", table, err)
		}
	}
}

func TestAddRepoValidation(t *testing.T) {
	db := testDB(t)

	_, err := db.AddRepo("relative/path", "", models.RepoSettings{})
	assert.ErrorIs(t, err, apperr.ErrInvalidPath)

	_, err = db.AddRepo("/does/not/exist-ansuz", "", models.RepoSettings{})
	assert.ErrorIs(t, err, apperr.ErrInvalidPath)

	dir := t.TempDir()
	repo, err := db.AddRepo(dir, "", models.RepoSettings{})
	require.NoError(t, err)
	assert.NotEmpty(t, repo.ID)
	assert.Equal(t, dir, repo.Path)

	_, err = db.AddRepo(dir, "again", models.RepoSettings{})
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestGetRepoByIDOrName(t *testing.T) {
	db := testDB(t)
	repo, err := db.AddRepo(t.TempDir(), "notes", models.RepoSettings{})
	require.NoError(t, err)

	byID, err := db.GetRepo(repo.ID)
	require.NoError(t, err)
	assert.Equal(t, repo.ID, byID.ID)

	byName, err := db.GetRepo("notes")
	require.NoError(t, err)
	assert.Equal(t, repo.ID, byName.ID)

	_, err = db.GetRepo("nope")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCreateDoc(t *testing.T) {
	db := testDB(t)
	repo := addTestRepo(t, db)

	doc, err := db.CreateDoc(repo.ID, "intro", "Intro", "# Intro\nhello", "")
	require.NoError(t, err)
	assert.Equal(t, "intro", doc.Slug)
	assert.NotEmpty(t, doc.Checksum)

	versions, err := db.ListVersions(doc.ID)
	require.NoError(t, err)
	assert.Len(t, versions, 1)

	_, err = db.CreateDoc(repo.ID, "intro", "Intro", "other", "")
	assert.ErrorIs(t, err, apperr.ErrConflict)

	_, err = db.CreateDoc("missing-repo", "x", "X", "b", "")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUpdateDocAppendsVersions(t *testing.T) {
	db := testDB(t)
	repo := addTestRepo(t, db)
	doc, err := db.CreateDoc(repo.ID, "a", "A", "v1", "")
	require.NoError(t, err)

	v2, skipped, err := db.UpdateDoc(doc.ID, "v2", "second")
	require.NoError(t, err)
	assert.False(t, skipped)

	v3, skipped, err := db.UpdateDoc(doc.ID, "v3", "third")
	require.NoError(t, err)
	assert.False(t, skipped)
	assert.NotEqual(t, v2, v3)

	versions, err := db.ListVersions(doc.ID)
	require.NoError(t, err)
	require.Len(t, versions, 3)
	// History is append-only, oldest first; the latest id matches v3.
	assert.Equal(t, v3, versions[2].ID)

	live, err := db.GetDoc(doc.ID, true)
	require.NoError(t, err)
	assert.Equal(t, "v3", live.Body)
}

func TestUpdateDocSkipsIdenticalBody(t *testing.T) {
	db := testDB(t)
	repo := addTestRepo(t, db)
	doc, err := db.CreateDoc(repo.ID, "a", "A", "same", "")
	require.NoError(t, err)

	v2, skipped, err := db.UpdateDoc(doc.ID, "changed", "")
	require.NoError(t, err)
	require.False(t, skipped)

	got, skipped, err := db.UpdateDoc(doc.ID, "changed", "noop")
	require.NoError(t, err)
	assert.True(t, skipped)
	assert.Equal(t, v2, got, "skip must return the current version id")

	versions, err := db.ListVersions(doc.ID)
	require.NoError(t, err)
	assert.Len(t, versions, 2)
}

func TestGetDocWithoutContent(t *testing.T) {
	db := testDB(t)
	repo := addTestRepo(t, db)
	doc, err := db.CreateDoc(repo.ID, "a", "A", "secret body", "")
	require.NoError(t, err)

	meta, err := db.GetDoc(doc.ID, false)
	require.NoError(t, err)
	assert.Empty(t, meta.Body)
	assert.Equal(t, doc.Checksum, meta.Checksum)
}

func TestDeleteDoc(t *testing.T) {
	db := testDB(t)
	repo := addTestRepo(t, db)
	doc, err := db.CreateDoc(repo.ID, "a", "A", "b", "")
	require.NoError(t, err)

	deleted, err := db.DeleteDoc(doc.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = db.DeleteDoc(doc.ID)
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = db.GetDoc(doc.ID, false)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRemoveRepoCascades(t *testing.T) {
	db := testDB(t)
	repo := addTestRepo(t, db)
	doc, err := db.CreateDoc(repo.ID, "a", "A", "b", "")
	require.NoError(t, err)

	removed, err := db.RemoveRepo(repo.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	_, err = db.GetDoc(doc.ID, false)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	removed, err = db.RemoveRepo(repo.ID)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestAnchorUpsertIsIdempotent(t *testing.T) {
	db := testDB(t)
	repo := addTestRepo(t, db)
	doc, err := db.CreateDoc(repo.ID, "a", "A", "b", "")
	require.NoError(t, err)

	require.NoError(t, db.UpsertAnchor(doc.ID, "anc_1", 5))
	require.NoError(t, db.UpsertAnchor(doc.ID, "anc_1", 9))

	anchors, err := db.ListAnchors(doc.ID)
	require.NoError(t, err)
	require.Len(t, anchors, 1)
	assert.Equal(t, 9, anchors[0].Line)

	err = db.UpsertAnchor("missing", "anc_2", 1)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestProviderSeeding(t *testing.T) {
	db := testDB(t)
	providers, err := db.ListProviders()
	require.NoError(t, err)
	require.Len(t, providers, 4)

	local, err := db.GetProvider("local")
	require.NoError(t, err)
	assert.True(t, local.Enabled)
	assert.Equal(t, models.ProviderLocal, local.Kind)

	or, err := db.GetProvider("openrouter")
	require.NoError(t, err)
	assert.False(t, or.Enabled)
	assert.Equal(t, models.ProviderRemote, or.Kind)
	assert.False(t, or.HasKey)
}

func TestProviderKeyIsWriteOnly(t *testing.T) {
	db := testDB(t)
	updated, err := db.SetProviderKey("openrouter", "sk-secret")
	require.NoError(t, err)
	assert.True(t, updated)

	p, err := db.GetProvider("openrouter")
	require.NoError(t, err)
	assert.True(t, p.HasKey)

	// Raw material is reachable only through the internal accessor.
	key, err := db.ProviderKey("openrouter")
	require.NoError(t, err)
	assert.Equal(t, "sk-secret", key)
}

func TestSettings(t *testing.T) {
	db := testDB(t)
	v, err := db.GetSetting("default_provider")
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, db.SetSetting("default_provider", "openrouter"))
	require.NoError(t, db.SetSetting("default_provider", "local"))

	v, err = db.GetSetting("default_provider")
	require.NoError(t, err)
	assert.Equal(t, "local", v)
}

func TestPluginRegistry(t *testing.T) {
	db := testDB(t)
	require.NoError(t, db.UpsertPlugin("summarizer", "1.0", "core", `{"core":{"call":true}}`, true))
	require.NoError(t, db.UpsertPlugin("summarizer", "1.1", "core", `{"core":{"call":true}}`, false))

	p, err := db.GetPlugin("summarizer")
	require.NoError(t, err)
	assert.Equal(t, "1.1", p.Version)
	assert.False(t, p.Enabled)

	updated, err := db.SetPluginEnabled("summarizer", true)
	require.NoError(t, err)
	assert.True(t, updated)

	removed, err := db.RemovePlugin("summarizer")
	require.NoError(t, err)
	assert.True(t, removed)

	_, err = db.GetPlugin("summarizer")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestNewIDsAreSortable(t *testing.T) {
	db := testDB(t)
	prev := ""
	for i := 0; i < 100; i++ {
		id := db.NewID()
		if prev != "" && id <= prev {
			t.Fatalf("ids not monotonic: %s then %s", prev, id)
		}
		prev = id
	}
}
