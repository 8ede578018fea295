package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/models"
)

// UpsertPlugin registers or updates a plugin row with its permission grants.
func (db *DB) UpsertPlugin(name, version, kind, permissions string, enabled bool) error {
	if permissions == "" {
		permissions = "{}"
	}
	_, err := db.conn.Exec(`
		INSERT INTO plugin (name, version, kind, permissions, enabled, installed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			version     = excluded.version,
			kind        = excluded.kind,
			permissions = excluded.permissions,
			enabled     = excluded.enabled
	`, name, version, kind, permissions, enabled, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("store: upsert plugin: %w", err)
	}
	return nil
}

// ListPlugins returns all registered plugins.
func (db *DB) ListPlugins() ([]models.Plugin, error) {
	rows, err := db.conn.Query(
		`SELECT name, version, kind, permissions, enabled, installed_at FROM plugin ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("store: list plugins: %w", err)
	}
	defer rows.Close()

	var out []models.Plugin
	for rows.Next() {
		var p models.Plugin
		if err := rows.Scan(&p.Name, &p.Version, &p.Kind, &p.Permissions, &p.Enabled, &p.InstalledAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetPlugin returns one plugin row by name.
func (db *DB) GetPlugin(name string) (*models.Plugin, error) {
	var p models.Plugin
	err := db.conn.QueryRow(
		`SELECT name, version, kind, permissions, enabled, installed_at FROM plugin WHERE name = ?`, name).
		Scan(&p.Name, &p.Version, &p.Kind, &p.Permissions, &p.Enabled, &p.InstalledAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: %w: plugin %s", apperr.ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get plugin: %w", err)
	}
	return &p, nil
}

// SetPluginEnabled toggles a plugin registry row.
func (db *DB) SetPluginEnabled(name string, enabled bool) (bool, error) {
	res, err := db.conn.Exec(`UPDATE plugin SET enabled = ? WHERE name = ?`, enabled, name)
	if err != nil {
		return false, fmt.Errorf("store: set plugin enabled: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// RemovePlugin deletes a plugin registry row.
func (db *DB) RemovePlugin(name string) (bool, error) {
	res, err := db.conn.Exec(`DELETE FROM plugin WHERE name = ?`, name)
	if err != nil {
		return false, fmt.Errorf("store: remove plugin: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
