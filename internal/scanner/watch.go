package scanner

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/models"
)

// debounceWindow coalesces filesystem event bursts into one reconciliation.
const debounceWindow = 500 * time.Millisecond

type watchSession struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Watch starts continuous scanning of a repository: an initial full scan
// followed by debounced rescans on filesystem changes. Returns ErrConflict
// when the repository is already being watched.
func (s *Scanner) Watch(repoIDOrName string) error {
	repo, err := s.db.GetRepo(repoIDOrName)
	if err != nil {
		return err
	}
	key := filepath.Clean(repo.Path)

	s.mu.Lock()
	if _, running := s.watchers[key]; running {
		s.mu.Unlock()
		return apperr.ErrConflict
	}
	ctx, cancel := context.WithCancel(context.Background())
	sess := &watchSession{cancel: cancel, done: make(chan struct{})}
	s.watchers[key] = sess
	s.mu.Unlock()

	w, err := fsnotify.NewWatcher()
	if err != nil {
		s.dropWatcher(key)
		cancel()
		return err
	}
	if err := addTree(w, repo.Path); err != nil {
		w.Close()
		s.dropWatcher(key)
		cancel()
		return err
	}

	go s.watchLoop(ctx, w, repo, key, sess)
	return nil
}

// Stop cancels a running watch. Returns false when none is active.
func (s *Scanner) Stop(repoPath string) bool {
	key := filepath.Clean(repoPath)
	s.mu.Lock()
	sess, ok := s.watchers[key]
	s.mu.Unlock()
	if !ok {
		return false
	}
	sess.cancel()
	<-sess.done
	return true
}

// StopAll cancels every active watch. Called on shutdown.
func (s *Scanner) StopAll() {
	s.mu.Lock()
	sessions := make([]*watchSession, 0, len(s.watchers))
	for _, sess := range s.watchers {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()
	for _, sess := range sessions {
		sess.cancel()
		<-sess.done
	}
}

func (s *Scanner) dropWatcher(key string) {
	s.mu.Lock()
	delete(s.watchers, key)
	s.mu.Unlock()
}

// watchLoop owns the fsnotify watcher. Events arm a debounce timer; when it
// fires, a full reconciliation runs. New directories are added to the watch
// set as they appear.
func (s *Scanner) watchLoop(ctx context.Context, w *fsnotify.Watcher, repo *models.Repository, key string, sess *watchSession) {
	defer close(sess.done)
	defer s.dropWatcher(key)
	defer w.Close()

	if _, err := s.Scan(ctx, repo.ID); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("initial watch scan failed", "repo", repo.Name, "error", err)
	}

	debounce := time.NewTimer(debounceWindow)
	if !debounce.Stop() {
		<-debounce.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if ev.Op.Has(fsnotify.Create) {
				// New subdirectories must join the watch set before the
				// rescan or later events under them would be missed.
				if err := addTree(w, ev.Name); err != nil {
					s.logger.Debug("watch add failed", "path", ev.Name, "error", err)
				}
			}
			debounce.Reset(debounceWindow)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			s.logger.Warn("watcher error", "repo", repo.Name, "error", err)
		case <-debounce.C:
			if _, err := s.Scan(ctx, repo.ID); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Warn("watch rescan failed", "repo", repo.Name, "error", err)
			}
		}
	}
}

// addTree registers root and all non-hidden subdirectories with the watcher.
// Non-directory paths are ignored.
func addTree(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // vanished between event and walk
		}
		if !d.IsDir() {
			return nil
		}
		if hiddenName(d.Name()) && path != root {
			return filepath.SkipDir
		}
		if err := w.Add(path); err != nil {
			slog.Debug("watch add", "path", path, "error", err)
		}
		return nil
	})
}
