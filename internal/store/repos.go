package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/models"
)

// AddRepo registers a repository. The path must be an absolute existing
// directory and unique per store. When name is empty the directory base name
// is used.
func (db *DB) AddRepo(path, name string, settings models.RepoSettings) (*models.Repository, error) {
	if !filepath.IsAbs(path) {
		return nil, fmt.Errorf("store: %w: %s is not absolute", apperr.ErrInvalidPath, path)
	}
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("store: %w: %s is not an existing directory", apperr.ErrInvalidPath, path)
	}
	if name == "" {
		name = filepath.Base(path)
	}

	var exists int
	if err := db.conn.QueryRow(`SELECT count(*) FROM repo WHERE path = ?`, path).Scan(&exists); err != nil {
		return nil, fmt.Errorf("store: check repo path: %w", err)
	}
	if exists > 0 {
		return nil, fmt.Errorf("store: %w: path %s already registered", apperr.ErrConflict, path)
	}

	settingsJSON, _ := json.Marshal(settings)
	id := db.NewID()
	now := time.Now().UTC()
	_, err = db.conn.Exec(
		`INSERT INTO repo (id, name, path, settings, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, name, path, string(settingsJSON), now, now)
	if err != nil {
		return nil, fmt.Errorf("store: insert repo: %w", err)
	}
	return &models.Repository{ID: id, Name: name, Path: path, Settings: settings, CreatedAt: now, UpdatedAt: now}, nil
}

// GetRepoByPath returns the repository registered at path, or ErrNotFound.
func (db *DB) GetRepoByPath(path string) (*models.Repository, error) {
	return db.repoQuery(`SELECT id, name, path, settings, created_at, updated_at FROM repo WHERE path = ?`, path)
}

// GetRepo resolves a repository by id or name.
func (db *DB) GetRepo(idOrName string) (*models.Repository, error) {
	return db.repoQuery(`SELECT id, name, path, settings, created_at, updated_at FROM repo WHERE id = ? OR name = ?`, idOrName, idOrName)
}

func (db *DB) repoQuery(query string, args ...any) (*models.Repository, error) {
	var r models.Repository
	var settingsJSON string
	err := db.conn.QueryRow(query, args...).Scan(&r.ID, &r.Name, &r.Path, &settingsJSON, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get repo: %w", err)
	}
	if err := json.Unmarshal([]byte(settingsJSON), &r.Settings); err != nil {
		r.Settings = models.RepoSettings{}
	}
	return &r, nil
}

// ListRepos returns all registered repositories, newest first.
func (db *DB) ListRepos() ([]models.Repository, error) {
	rows, err := db.conn.Query(`SELECT id, name, path, settings, created_at, updated_at FROM repo ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: list repos: %w", err)
	}
	defer rows.Close()

	var out []models.Repository
	for rows.Next() {
		var r models.Repository
		var settingsJSON string
		if err := rows.Scan(&r.ID, &r.Name, &r.Path, &settingsJSON, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(settingsJSON), &r.Settings)
		out = append(out, r)
	}
	return out, rows.Err()
}

// RemoveRepo deletes a repository and cascades document deletion. Every
// owned document is enqueued for index/graph removal before the cascade so
// the derived caches cannot retain stale entries.
func (db *DB) RemoveRepo(idOrName string) (bool, error) {
	repo, err := db.GetRepo(idOrName)
	if errors.Is(err, apperr.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	rows, err := db.conn.Query(`SELECT id, slug FROM doc WHERE repo_id = ?`, repo.ID)
	if err != nil {
		return false, fmt.Errorf("store: list repo docs: %w", err)
	}
	type docRef struct{ id, slug string }
	var docs []docRef
	for rows.Next() {
		var d docRef
		if err := rows.Scan(&d.id, &d.slug); err != nil {
			rows.Close()
			return false, err
		}
		docs = append(docs, d)
	}
	rows.Close()

	if _, err := db.conn.Exec(`DELETE FROM repo WHERE id = ?`, repo.ID); err != nil {
		return false, fmt.Errorf("store: delete repo: %w", err)
	}
	for _, d := range docs {
		db.feed.Append(Change{Op: OpDelete, DocID: d.id, RepoID: repo.ID, Slug: d.slug})
	}
	return true, nil
}

// SetRepoDefaultProvider updates the per-repo default AI provider.
func (db *DB) SetRepoDefaultProvider(idOrName, provider string) (bool, error) {
	repo, err := db.GetRepo(idOrName)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	repo.Settings.DefaultProvider = provider
	settingsJSON, _ := json.Marshal(repo.Settings)
	_, err = db.conn.Exec(`UPDATE repo SET settings = ?, updated_at = ? WHERE id = ?`,
		string(settingsJSON), time.Now().UTC(), repo.ID)
	if err != nil {
		return false, fmt.Errorf("store: set default provider: %w", err)
	}
	return true, nil
}
