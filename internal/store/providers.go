package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/models"
)

// ListProviders returns all providers. Keys are reported as presence only.
func (db *DB) ListProviders() ([]models.Provider, error) {
	rows, err := db.conn.Query(
		`SELECT name, kind, enabled, api_key != '', model, plugin FROM provider ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("store: list providers: %w", err)
	}
	defer rows.Close()

	var out []models.Provider
	for rows.Next() {
		var p models.Provider
		if err := rows.Scan(&p.Name, &p.Kind, &p.Enabled, &p.HasKey, &p.Model, &p.Plugin); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetProvider returns one provider row by name.
func (db *DB) GetProvider(name string) (*models.Provider, error) {
	var p models.Provider
	err := db.conn.QueryRow(
		`SELECT name, kind, enabled, api_key != '', model, plugin FROM provider WHERE name = ?`, name).
		Scan(&p.Name, &p.Kind, &p.Enabled, &p.HasKey, &p.Model, &p.Plugin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: %w: provider %s", apperr.ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get provider: %w", err)
	}
	return &p, nil
}

// SetProviderEnabled toggles a provider.
func (db *DB) SetProviderEnabled(name string, enabled bool) (bool, error) {
	res, err := db.conn.Exec(
		`UPDATE provider SET enabled = ?, updated_at = ? WHERE name = ?`, enabled, time.Now().UTC(), name)
	if err != nil {
		return false, fmt.Errorf("store: set provider enabled: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// SetProviderKey stores an API key opaquely. The key is never returned in
// full; only its presence is observable through HasKey.
func (db *DB) SetProviderKey(name, key string) (bool, error) {
	res, err := db.conn.Exec(
		`UPDATE provider SET api_key = ?, updated_at = ? WHERE name = ?`, key, time.Now().UTC(), name)
	if err != nil {
		return false, fmt.Errorf("store: set provider key: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ProviderKey returns the raw key for provider execution. Internal use only;
// the API surface exposes presence, never the material.
func (db *DB) ProviderKey(name string) (string, error) {
	var key string
	err := db.conn.QueryRow(`SELECT api_key FROM provider WHERE name = ?`, name).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("store: %w: provider %s", apperr.ErrNotFound, name)
	}
	if err != nil {
		return "", fmt.Errorf("store: provider key: %w", err)
	}
	return key, nil
}

// SetProviderModel stores the per-provider default model override.
func (db *DB) SetProviderModel(name, model string) (bool, error) {
	res, err := db.conn.Exec(
		`UPDATE provider SET model = ?, updated_at = ? WHERE name = ?`, model, time.Now().UTC(), name)
	if err != nil {
		return false, fmt.Errorf("store: set provider model: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// SetProviderPlugin points a provider at a supervised core plugin that
// handles ai.invoke for it.
func (db *DB) SetProviderPlugin(name, plugin string) (bool, error) {
	res, err := db.conn.Exec(
		`UPDATE provider SET plugin = ?, updated_at = ? WHERE name = ?`, plugin, time.Now().UTC(), name)
	if err != nil {
		return false, fmt.Errorf("store: set provider plugin: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
