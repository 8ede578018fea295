package scanner

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/store"
	"github.com/starford/ansuz/internal/testutil"
)

func scanEnv(t *testing.T) (*store.DB, *Scanner, *models.Repository, string) {
	t.Helper()
	db := testutil.TestDB(t)
	sc := New(db, nil, testutil.TestLogger(t))
	dir := t.TempDir()
	repo, err := db.AddRepo(dir, "", models.RepoSettings{})
	require.NoError(t, err)
	return db, sc, repo, dir
}

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestScanImportsMarkdownTree(t *testing.T) {
	db, sc, repo, dir := scanEnv(t)
	writeFile(t, dir, "intro.md", "# Intro\nhello")
	writeFile(t, dir, "guides/setup.md", "# Setup\nsteps")
	writeFile(t, dir, "ignored.txt", "not markdown")
	writeFile(t, dir, ".hidden/secret.md", "# Secret")

	report, err := sc.Scan(context.Background(), repo.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, report.FilesScanned)
	assert.Equal(t, 2, report.DocsAdded)
	assert.NotEmpty(t, report.JobID)

	doc, err := db.GetDocBySlug(repo.ID, "guides__setup")
	require.NoError(t, err)
	assert.Equal(t, "Setup", doc.Title)
	assert.Equal(t, filepath.Join("guides", "setup.md"), doc.SrcPath)
}

func TestScanIsIdempotent(t *testing.T) {
	_, sc, repo, dir := scanEnv(t)
	writeFile(t, dir, "a.md", "# A\nbody")

	first, err := sc.Scan(context.Background(), repo.ID)
	require.NoError(t, err)
	require.Equal(t, 1, first.DocsAdded)

	second, err := sc.Scan(context.Background(), repo.ID)
	require.NoError(t, err)
	assert.Zero(t, second.DocsAdded)
	assert.Zero(t, second.DocsUpdated)
	assert.Zero(t, second.DocsDeleted)
}

func TestScanDetectsChanges(t *testing.T) {
	db, sc, repo, dir := scanEnv(t)
	writeFile(t, dir, "a.md", "# A\nv1")
	_, err := sc.Scan(context.Background(), repo.ID)
	require.NoError(t, err)

	writeFile(t, dir, "a.md", "# A\nv2")
	report, err := sc.Scan(context.Background(), repo.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.DocsUpdated)

	doc, err := db.GetDocBySlug(repo.ID, "a")
	require.NoError(t, err)
	versions, err := db.ListVersions(doc.ID)
	require.NoError(t, err)
	assert.Len(t, versions, 2)
}

func TestScanTombstonesDeletedFiles(t *testing.T) {
	db, sc, repo, dir := scanEnv(t)
	writeFile(t, dir, "a.md", "# A")
	writeFile(t, dir, "b.md", "# B")
	_, err := sc.Scan(context.Background(), repo.ID)
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(dir, "b.md")))
	report, err := sc.Scan(context.Background(), repo.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.DocsDeleted)

	_, err = db.GetDocBySlug(repo.ID, "b")
	assert.Error(t, err)
	_, err = db.GetDocBySlug(repo.ID, "a")
	assert.NoError(t, err)
}

func TestScanNeverTombstonesAPIDocs(t *testing.T) {
	db, sc, repo, _ := scanEnv(t)
	// API-created doc: no backing file, empty src_path.
	_, err := db.CreateDoc(repo.ID, "api-only", "API Only", "body", "")
	require.NoError(t, err)

	report, err := sc.Scan(context.Background(), repo.ID)
	require.NoError(t, err)
	assert.Zero(t, report.DocsDeleted)

	_, err = db.GetDocBySlug(repo.ID, "api-only")
	assert.NoError(t, err)
}

func TestScanRespectsRepoFilters(t *testing.T) {
	db := testutil.TestDB(t)
	sc := New(db, nil, testutil.TestLogger(t))
	dir := t.TempDir()
	repo, err := db.AddRepo(dir, "", models.RepoSettings{Exclude: []string{"drafts/**"}})
	require.NoError(t, err)

	writeFile(t, dir, "keep.md", "# Keep")
	writeFile(t, dir, "drafts/wip.md", "# WIP")

	report, err := sc.Scan(context.Background(), repo.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.DocsAdded)

	_, err = db.GetDocBySlug(repo.ID, "drafts__wip")
	assert.Error(t, err)
}

func TestScanCountsPerFileErrors(t *testing.T) {
	_, sc, repo, dir := scanEnv(t)
	writeFile(t, dir, "good.md", "# Good")
	// A dangling symlink is listed by the walk but fails to read.
	require.NoError(t, os.Symlink(filepath.Join(dir, "gone"), filepath.Join(dir, "bad.md")))

	report, err := sc.Scan(context.Background(), repo.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.DocsAdded)
	assert.Equal(t, 1, report.Errors)
}

func TestScanProgressCallback(t *testing.T) {
	db := testutil.TestDB(t)
	var mu sync.Mutex
	var calls int
	sc := New(db, func(jobID, repoID string, files int) {
		mu.Lock()
		calls++
		mu.Unlock()
	}, testutil.TestLogger(t))

	dir := t.TempDir()
	repo, err := db.AddRepo(dir, "", models.RepoSettings{})
	require.NoError(t, err)
	writeFile(t, dir, "a.md", "# A")

	_, err = sc.Scan(context.Background(), repo.ID)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, calls, 1, "final progress update must fire")
}

func TestWatchPicksUpNewFiles(t *testing.T) {
	db, sc, repo, dir := scanEnv(t)
	require.NoError(t, sc.Watch(repo.ID))
	t.Cleanup(func() { sc.Stop(dir) })

	// Starting a second watch on the same repo conflicts.
	assert.Error(t, sc.Watch(repo.ID))

	writeFile(t, dir, "live.md", "# Live\nwatched")
	testutil.Eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		_, err := db.GetDocBySlug(repo.ID, "live")
		return err == nil
	}, "watched file was not imported")

	assert.True(t, sc.Stop(dir))
	assert.False(t, sc.Stop(dir))
}
