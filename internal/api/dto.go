package api

import "github.com/starford/ansuz/internal/models"

// AddRepoRequest registers a repository root.
type AddRepoRequest struct {
	Path     string              `json:"path"`
	Name     string              `json:"name,omitempty"`
	Settings models.RepoSettings `json:"settings"`
}

// CreateDocRequest creates a document from API content.
type CreateDocRequest struct {
	Repo    string `json:"repo"`
	Slug    string `json:"slug"`
	Content string `json:"content"`
}

// UpdateDocRequest appends a new document version.
type UpdateDocRequest struct {
	Content string `json:"content"`
	Message string `json:"message,omitempty"`
}

// UpdateDocResponse reports the resulting version.
type UpdateDocResponse struct {
	VersionID string `json:"version_id"`
	Skipped   bool   `json:"skipped"`
}

// UpsertAnchorRequest records an anchor position.
type UpsertAnchorRequest struct {
	Line int `json:"line"`
}

// SetKeyRequest stores provider key material. Write-only.
type SetKeyRequest struct {
	Key string `json:"key"`
}

// SetModelRequest stores a provider model override.
type SetModelRequest struct {
	Model string `json:"model"`
}

// SetProviderRequest names a provider.
type SetProviderRequest struct {
	Provider string `json:"provider"`
}

// TestProviderRequest runs a provider connectivity check.
type TestProviderRequest struct {
	Prompt string `json:"prompt,omitempty"`
}

// SetSettingRequest stores one app setting value.
type SetSettingRequest struct {
	Value string `json:"value"`
}

// UpsertPluginRequest registers a plugin with its grants.
type UpsertPluginRequest struct {
	Name        string `json:"name"`
	Version     string `json:"version,omitempty"`
	Kind        string `json:"kind,omitempty"`
	Permissions string `json:"permissions,omitempty"`
	Enabled     *bool  `json:"enabled,omitempty"`
}

// SpawnCoreRequest starts a core plugin process.
type SpawnCoreRequest struct {
	Exec string   `json:"exec"`
	Args []string `json:"args,omitempty"`
}

// CallCoreRequest forwards one raw JSON-RPC line to a core plugin.
type CallCoreRequest struct {
	Line string `json:"line"`
}
