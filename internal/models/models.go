// Package models defines the domain types for Ansuz.
package models

import "time"

// RepoSettings holds per-repository settings stored as JSON.
type RepoSettings struct {
	DefaultProvider string   `json:"default_provider,omitempty"`
	Include         []string `json:"include,omitempty"`
	Exclude         []string `json:"exclude,omitempty"`
}

// Repository is a registered filesystem tree owning a set of documents.
type Repository struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Path      string       `json:"path"`
	Settings  RepoSettings `json:"settings"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Document is the live row of a versioned document. Body always reflects
// the latest version's content.
type Document struct {
	ID        string    `json:"id"`
	RepoID    string    `json:"repo_id"`
	Slug      string    `json:"slug"`
	Title     string    `json:"title"`
	Body      string    `json:"body,omitempty"`
	Checksum  string    `json:"checksum,omitempty"`
	SrcPath   string    `json:"src_path,omitempty"` // backing file relative to repo root; empty for API-created docs
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Version is one immutable entry in a document's linear history.
type Version struct {
	ID        string    `json:"id"`
	DocID     string    `json:"doc_id"`
	Body      string    `json:"body,omitempty"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Anchor is a stable content-embedded bookmark. ID is identity; Line is an
// advisory last-known position and may drift after edits.
type Anchor struct {
	ID        string    `json:"id"`
	DocID     string    `json:"doc_id"`
	Line      int       `json:"line"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Provider kinds.
const (
	ProviderLocal  = "local"
	ProviderRemote = "remote"
)

// Provider is an AI backend. A remote provider is usable only when enabled
// and a key is present; the key itself is never echoed back.
type Provider struct {
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	Enabled bool   `json:"enabled"`
	HasKey  bool   `json:"has_key"`
	Model   string `json:"model,omitempty"`
	Plugin  string `json:"plugin,omitempty"` // core plugin handle to delegate ai.invoke to
}

// ResolvedProvider is the effective provider for a document after applying
// explicit > per-repo > global default resolution.
type ResolvedProvider struct {
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	Enabled bool   `json:"enabled"`
	HasKey  bool   `json:"has_key"`
	Allowed bool   `json:"allowed"`
}

// Plugin is a registry row describing an installed plugin and its grants.
type Plugin struct {
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	Kind        string    `json:"kind"`
	Permissions string    `json:"permissions"` // JSON grant document
	Enabled     bool      `json:"enabled"`
	InstalledAt time.Time `json:"installed_at"`
}

// CoreProcess is the identity of a supervised helper process. Not persisted
// across restarts.
type CoreProcess struct {
	Name    string `json:"name"`
	PID     int    `json:"pid"`
	Running bool   `json:"running"`
}

// SearchHit is one ranked full-text result.
type SearchHit struct {
	DocID       string  `json:"doc_id"`
	Slug        string  `json:"slug"`
	TitleSnip   string  `json:"title_snip"`
	BodySnip    string  `json:"body_snip"`
	Rank        float64 `json:"rank"`
}

// GraphDoc is the lightweight document shape returned by graph queries.
type GraphDoc struct {
	ID    string `json:"id"`
	Slug  string `json:"slug"`
	Title string `json:"title"`
}

// ScanReport summarizes one scan job.
type ScanReport struct {
	JobID        string `json:"job_id"`
	FilesScanned int    `json:"files_scanned"`
	DocsAdded    int    `json:"docs_added"`
	DocsUpdated  int    `json:"docs_updated"`
	DocsDeleted  int    `json:"docs_deleted"`
	Errors       int    `json:"errors"`
}
