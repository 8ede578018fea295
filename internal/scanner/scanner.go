// Package scanner reconciles registered repository trees into the document
// store. A scan walks the tree, imports new and changed Markdown files, and
// tombstones documents whose backing file disappeared. Concurrent scans of
// the same repository collapse into one run.
package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/starford/ansuz/internal/checksum"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/parser"
	"github.com/starford/ansuz/internal/store"
)

// progressEvery controls how often the progress callback fires during a walk.
const progressEvery = 25

// Progress receives scan progress updates for event fan-out. May be nil.
type Progress func(jobID, repoID string, filesScanned int)

// Scanner imports repository trees into the store.
type Scanner struct {
	db       *store.DB
	logger   *slog.Logger
	progress Progress

	group singleflight.Group

	mu       sync.Mutex
	watchers map[string]*watchSession // keyed by cleaned repo path
}

// New creates a scanner over the store.
func New(db *store.DB, progress Progress, logger *slog.Logger) *Scanner {
	return &Scanner{
		db:       db,
		logger:   logger,
		progress: progress,
		watchers: make(map[string]*watchSession),
	}
}

// Scan runs a full reconciliation of one repository. Concurrent calls for
// the same repository path share a single run and its report.
func (s *Scanner) Scan(ctx context.Context, repoIDOrName string) (*models.ScanReport, error) {
	repo, err := s.db.GetRepo(repoIDOrName)
	if err != nil {
		return nil, err
	}
	key := filepath.Clean(repo.Path)
	v, err, _ := s.group.Do(key, func() (any, error) {
		return s.scanRepo(ctx, repo)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.ScanReport), nil
}

func (s *Scanner) scanRepo(ctx context.Context, repo *models.Repository) (*models.ScanReport, error) {
	report := &models.ScanReport{JobID: uuid.NewString()}
	if err := s.db.StartScanJob(report.JobID, repo.ID); err != nil {
		return nil, err
	}
	s.logger.Info("scan started", "job_id", report.JobID, "repo", repo.Name)

	err := s.walk(ctx, repo, report)
	if err == nil {
		err = s.tombstone(repo, report)
	}

	status := "done"
	if err != nil {
		status = "failed"
	}
	if ferr := s.db.FinishScanJob(report.JobID, status, *report); ferr != nil {
		s.logger.Warn("scan job row update failed", "job_id", report.JobID, "error", ferr)
	}
	if err != nil {
		return nil, fmt.Errorf("scanner: scan %s: %w", repo.Name, err)
	}

	if s.progress != nil {
		s.progress(report.JobID, repo.ID, report.FilesScanned)
	}
	s.logger.Info("scan finished", "job_id", report.JobID, "repo", repo.Name,
		"files", report.FilesScanned, "added", report.DocsAdded,
		"updated", report.DocsUpdated, "deleted", report.DocsDeleted,
		"errors", report.Errors)
	return report, nil
}

// walk imports every eligible file under the repo root. Per-file failures
// are counted and skipped so one unreadable file cannot abort the scan.
func (s *Scanner) walk(ctx context.Context, repo *models.Repository, report *models.ScanReport) error {
	return filepath.WalkDir(repo.Path, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			report.Errors++
			s.logger.Warn("walk error", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if hiddenName(d.Name()) && path != repo.Path {
				return filepath.SkipDir
			}
			return nil
		}

		rel, relErr := filepath.Rel(repo.Path, path)
		if relErr != nil {
			return nil
		}
		if !eligible(rel, repo.Settings) {
			return nil
		}

		report.FilesScanned++
		if s.progress != nil && report.FilesScanned%progressEvery == 0 {
			s.progress(report.JobID, repo.ID, report.FilesScanned)
		}

		if err := s.importFile(repo, path, rel, report); err != nil {
			report.Errors++
			s.logger.Warn("import failed", "path", path, "error", err)
		}
		return nil
	})
}

// importFile upserts one file into the store when its content changed.
func (s *Scanner) importFile(repo *models.Repository, absPath, rel string, report *models.ScanReport) error {
	data, err := os.ReadFile(absPath)
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}
	body := string(data)
	slug := SlugFromPath(rel)

	cur, err := s.db.DocChecksum(repo.ID, slug)
	if err != nil {
		return err
	}
	if cur == checksum.Sum(data) {
		return nil
	}

	res := parser.Parse(body)
	title := res.Title
	if title == "" {
		title = slug
	}

	if cur == "" {
		if _, err := s.db.CreateDoc(repo.ID, slug, title, body, rel); err != nil {
			return err
		}
		report.DocsAdded++
		return nil
	}

	doc, err := s.db.GetDocBySlug(repo.ID, slug)
	if err != nil {
		return err
	}
	if _, skipped, err := s.db.UpdateDoc(doc.ID, body, "scan: "+rel); err != nil {
		return err
	} else if !skipped {
		report.DocsUpdated++
	}
	return nil
}

// tombstone removes scanner-managed docs whose backing file is gone.
// Docs created through the API carry no source path and are never touched.
func (s *Scanner) tombstone(repo *models.Repository, report *models.ScanReport) error {
	sources, err := s.db.RepoDocSources(repo.ID)
	if err != nil {
		return err
	}
	for slug, src := range sources {
		if _, err := os.Stat(filepath.Join(repo.Path, src)); err == nil {
			continue
		} else if !os.IsNotExist(err) {
			report.Errors++
			s.logger.Warn("tombstone stat failed", "src", src, "error", err)
			continue
		}
		doc, err := s.db.GetDocBySlug(repo.ID, slug)
		if err != nil {
			continue
		}
		if ok, err := s.db.DeleteDoc(doc.ID); err != nil {
			report.Errors++
			s.logger.Warn("tombstone delete failed", "slug", slug, "error", err)
		} else if ok {
			report.DocsDeleted++
		}
	}
	return nil
}

func hiddenName(name string) bool {
	return len(name) > 1 && name[0] == '.'
}
