// Package service is the operation facade over the core: it composes the
// store, scanner, search index, link graph, AI gateway, and plugin
// supervisor into the surface the API and MCP layers expose.
package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/starford/ansuz/internal/ai"
	"github.com/starford/ansuz/internal/graph"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/parser"
	"github.com/starford/ansuz/internal/plugins"
	"github.com/starford/ansuz/internal/scanner"
	"github.com/starford/ansuz/internal/search"
	"github.com/starford/ansuz/internal/store"
)

// Service coordinates all core components behind one call surface.
type Service struct {
	db      *store.DB
	index   *search.Index
	graph   *graph.Graph
	scanner *scanner.Scanner
	gateway *ai.Gateway
	super   *plugins.Supervisor
	logger  *slog.Logger
}

// New wires the facade.
func New(db *store.DB, index *search.Index, g *graph.Graph, sc *scanner.Scanner,
	gw *ai.Gateway, super *plugins.Supervisor, logger *slog.Logger) *Service {
	return &Service{
		db: db, index: index, graph: g, scanner: sc,
		gateway: gw, super: super, logger: logger,
	}
}

// ---- Repositories ----

// AddRepo registers a repository root.
func (s *Service) AddRepo(_ context.Context, path, name string, settings models.RepoSettings) (*models.Repository, error) {
	return s.db.AddRepo(path, name, settings)
}

// ListRepos returns all registered repositories.
func (s *Service) ListRepos(_ context.Context) ([]models.Repository, error) {
	return s.db.ListRepos()
}

// GetRepo resolves a repository by id or name.
func (s *Service) GetRepo(_ context.Context, idOrName string) (*models.Repository, error) {
	return s.db.GetRepo(idOrName)
}

// RemoveRepo unregisters a repository and deletes its documents. Any active
// watch on the repository path is stopped first so a late rescan cannot
// resurrect deleted rows.
func (s *Service) RemoveRepo(_ context.Context, idOrName string) (bool, error) {
	repo, err := s.db.GetRepo(idOrName)
	if err != nil {
		return false, nil //nolint:nilerr // absent repo removes nothing
	}
	s.scanner.Stop(repo.Path)
	return s.db.RemoveRepo(repo.ID)
}

// SetRepoDefaultProvider updates the per-repo default AI provider.
func (s *Service) SetRepoDefaultProvider(_ context.Context, idOrName, provider string) (bool, error) {
	return s.db.SetRepoDefaultProvider(idOrName, provider)
}

// ---- Scanning ----

// ScanRepo runs one full reconciliation of a repository tree.
func (s *Service) ScanRepo(ctx context.Context, idOrName string) (*models.ScanReport, error) {
	return s.scanner.Scan(ctx, idOrName)
}

// WatchRepo starts continuous scanning of a repository.
func (s *Service) WatchRepo(_ context.Context, idOrName string) error {
	return s.scanner.Watch(idOrName)
}

// StopWatch stops a running watch by repository id or name.
func (s *Service) StopWatch(_ context.Context, idOrName string) (bool, error) {
	repo, err := s.db.GetRepo(idOrName)
	if err != nil {
		return false, err
	}
	return s.scanner.Stop(repo.Path), nil
}

// ---- Documents ----

// CreateDoc creates a document from API content. The title derives from the
// first heading, falling back to the slug.
func (s *Service) CreateDoc(_ context.Context, repoIDOrName, slug, body string) (*models.Document, error) {
	repo, err := s.db.GetRepo(repoIDOrName)
	if err != nil {
		return nil, err
	}
	title := parser.Parse(body).Title
	if title == "" {
		title = slug
	}
	return s.db.CreateDoc(repo.ID, slug, title, body, "")
}

// UpdateDoc appends a version. When the body is byte-identical to the
// current version no new version is written and skipped is true.
func (s *Service) UpdateDoc(_ context.Context, docID, body, message string) (versionID string, skipped bool, err error) {
	return s.db.UpdateDoc(docID, body, message)
}

// GetDoc fetches a document, optionally with its body.
func (s *Service) GetDoc(_ context.Context, docID string, withContent bool) (*models.Document, error) {
	return s.db.GetDoc(docID, withContent)
}

// DeleteDoc removes a document.
func (s *Service) DeleteDoc(_ context.Context, docID string) (bool, error) {
	return s.db.DeleteDoc(docID)
}

// ListVersions returns a document's history, oldest first.
func (s *Service) ListVersions(_ context.Context, docID string) ([]models.Version, error) {
	return s.db.ListVersions(docID)
}

// ---- Search ----

// Search runs a ranked full-text query, optionally scoped to one repo.
func (s *Service) Search(_ context.Context, text, repoIDOrName string, limit, offset int) ([]models.SearchHit, error) {
	repoID := ""
	if repoIDOrName != "" {
		repo, err := s.db.GetRepo(repoIDOrName)
		if err != nil {
			return nil, err
		}
		repoID = repo.ID
	}
	return s.index.Query(text, repoID, limit, offset)
}

// ---- Graph ----

// Backlinks returns documents linking to docID.
func (s *Service) Backlinks(_ context.Context, docID string) ([]models.GraphDoc, error) {
	return s.graph.Backlinks(docID)
}

// Neighbors returns documents within depth undirected hops of docID.
func (s *Service) Neighbors(_ context.Context, docID string, depth int) ([]models.GraphDoc, error) {
	return s.graph.Neighbors(docID, depth)
}

// Related returns documents co-cited with docID.
func (s *Service) Related(_ context.Context, docID string) ([]models.GraphDoc, error) {
	return s.graph.Related(docID)
}

// Path returns one shortest undirected path between two documents.
func (s *Service) Path(_ context.Context, startID, endID string) ([]models.GraphDoc, error) {
	return s.graph.Path(startID, endID)
}

// ---- Anchors ----

// UpsertAnchor records an anchor position, idempotently by anchor id.
func (s *Service) UpsertAnchor(_ context.Context, docID, anchorID string, line int) error {
	return s.db.UpsertAnchor(docID, anchorID, line)
}

// ListAnchors returns a document's anchors.
func (s *Service) ListAnchors(_ context.Context, docID string) ([]models.Anchor, error) {
	return s.db.ListAnchors(docID)
}

// DeleteAnchor removes an anchor.
func (s *Service) DeleteAnchor(_ context.Context, anchorID string) (bool, error) {
	return s.db.DeleteAnchor(anchorID)
}

// ---- AI providers ----

// ListProviders returns all providers with key presence flags.
func (s *Service) ListProviders(_ context.Context) ([]models.Provider, error) {
	return s.db.ListProviders()
}

// SetProviderEnabled toggles a provider.
func (s *Service) SetProviderEnabled(_ context.Context, name string, enabled bool) (bool, error) {
	return s.db.SetProviderEnabled(name, enabled)
}

// SetProviderKey stores an API key. The key is write-only.
func (s *Service) SetProviderKey(_ context.Context, name, key string) (bool, error) {
	return s.db.SetProviderKey(name, key)
}

// GetProvider returns one provider row without key material.
func (s *Service) GetProvider(_ context.Context, name string) (*models.Provider, error) {
	return s.db.GetProvider(name)
}

// SetProviderModel stores a per-provider model override.
func (s *Service) SetProviderModel(_ context.Context, name, model string) (bool, error) {
	return s.db.SetProviderModel(name, model)
}

// ResolveProvider reports the effective provider for a document and whether
// execution would be allowed.
func (s *Service) ResolveProvider(_ context.Context, docIDOrSlug, explicit string) (*models.ResolvedProvider, error) {
	return s.gateway.Resolve(docIDOrSlug, explicit)
}

// TestProvider runs a deterministic connectivity check.
func (s *Service) TestProvider(_ context.Context, name, prompt string) (*ai.TestResult, error) {
	return s.gateway.Test(name, prompt)
}

// RunAI executes a prompt against the resolved provider for a document.
func (s *Service) RunAI(ctx context.Context, req ai.RunRequest) (*ai.RunResult, error) {
	return s.gateway.Run(ctx, req)
}

// ---- App settings ----

// GetSetting returns an app-wide setting value, empty when unset.
func (s *Service) GetSetting(_ context.Context, key string) (string, error) {
	return s.db.GetSetting(key)
}

// SetSetting stores an app-wide setting.
func (s *Service) SetSetting(_ context.Context, key, value string) error {
	return s.db.SetSetting(key, value)
}

// ---- Plugins ----

// ListPlugins returns the plugin registry.
func (s *Service) ListPlugins(_ context.Context) ([]models.Plugin, error) {
	return s.db.ListPlugins()
}

// GetPlugin returns one plugin registry row.
func (s *Service) GetPlugin(_ context.Context, name string) (*models.Plugin, error) {
	return s.db.GetPlugin(name)
}

// UpsertPlugin registers or updates a plugin with its permission grants.
func (s *Service) UpsertPlugin(_ context.Context, name, version, kind, permissions string, enabled bool) error {
	return s.db.UpsertPlugin(name, version, kind, permissions, enabled)
}

// SetPluginEnabled toggles a plugin registry row.
func (s *Service) SetPluginEnabled(_ context.Context, name string, enabled bool) (bool, error) {
	return s.db.SetPluginEnabled(name, enabled)
}

// RemovePlugin deletes a plugin registry row.
func (s *Service) RemovePlugin(_ context.Context, name string) (bool, error) {
	return s.db.RemovePlugin(name)
}

// SpawnCore starts a supervised core plugin process.
func (s *Service) SpawnCore(_ context.Context, name, execPath string, args []string) (*models.CoreProcess, error) {
	return s.super.Spawn(name, execPath, args)
}

// ShutdownCore stops a supervised core plugin process.
func (s *Service) ShutdownCore(_ context.Context, name string) (bool, error) {
	return s.super.Shutdown(name)
}

// ListCore returns the live core process table.
func (s *Service) ListCore(_ context.Context) []models.CoreProcess {
	return s.super.List()
}

// CallCore forwards a raw JSON-RPC line to a core plugin process.
func (s *Service) CallCore(ctx context.Context, name, line string) (json.RawMessage, error) {
	return s.super.Call(ctx, name, line)
}
