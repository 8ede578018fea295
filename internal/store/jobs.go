package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/starford/ansuz/internal/models"
)

// StartScanJob records a running scan job row.
func (db *DB) StartScanJob(jobID, repoID string) error {
	_, err := db.conn.Exec(
		`INSERT INTO scan_job (id, repo_id, status) VALUES (?, ?, 'running')`, jobID, repoID)
	if err != nil {
		return fmt.Errorf("store: start scan job: %w", err)
	}
	return nil
}

// FinishScanJob marks a scan job done and stores its stats.
func (db *DB) FinishScanJob(jobID, status string, report models.ScanReport) error {
	stats, _ := json.Marshal(report)
	_, err := db.conn.Exec(
		`UPDATE scan_job SET status = ?, stats = ?, finished_at = ? WHERE id = ?`,
		status, string(stats), time.Now().UTC(), jobID)
	if err != nil {
		return fmt.Errorf("store: finish scan job: %w", err)
	}
	return nil
}

// InsertTrace persists an AI invocation trace. The trace survives backend
// failures so the trace id stays usable for diagnostics.
func (db *DB) InsertTrace(traceID, repoID, docID, anchorID, provider, request, response string) error {
	_, err := db.conn.Exec(
		`INSERT INTO ai_trace (id, repo_id, doc_id, anchor_id, provider, request, response) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		traceID, repoID, docID, anchorID, provider, request, response)
	if err != nil {
		return fmt.Errorf("store: insert trace: %w", err)
	}
	return nil
}
