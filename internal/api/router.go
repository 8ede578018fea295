package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/ansuz/internal/service"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *service.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Repositories and scanning.
	r.Route("/repos", func(r chi.Router) {
		r.Get("/", h.ListRepos)
		r.Post("/", h.AddRepo)
		r.Get("/{repo}", h.GetRepo)
		r.Delete("/{repo}", h.RemoveRepo)
		r.Put("/{repo}/default_provider", h.SetRepoDefaultProvider)
		r.Post("/{repo}/scan", h.ScanRepo)
		r.Delete("/{repo}/scan", h.StopWatch)
	})

	// Documents, versions, anchors, and per-document graph queries.
	r.Route("/docs", func(r chi.Router) {
		r.Post("/", h.CreateDoc)
		r.Get("/{id}", h.GetDoc)
		r.Put("/{id}", h.UpdateDoc)
		r.Delete("/{id}", h.DeleteDoc)
		r.Get("/{id}/versions", h.ListVersions)
		r.Get("/{id}/backlinks", h.Backlinks)
		r.Get("/{id}/neighbors", h.Neighbors)
		r.Get("/{id}/related", h.Related)
		r.Get("/{id}/anchors", h.ListAnchors)
		r.Put("/{id}/anchors/{anchor}", h.UpsertAnchor)
	})
	r.Delete("/anchors/{anchor}", h.DeleteAnchor)

	// Search and graph paths.
	r.Get("/search", h.Search)
	r.Get("/graph/path", h.GraphPath)

	// AI providers and execution.
	r.Route("/providers", func(r chi.Router) {
		r.Get("/", h.ListProviders)
		r.Get("/resolve", h.ResolveProvider)
		r.Get("/{name}", h.GetProvider)
		r.Post("/{name}/enable", h.EnableProvider)
		r.Post("/{name}/disable", h.DisableProvider)
		r.Put("/{name}/key", h.SetProviderKey)
		r.Put("/{name}/model", h.SetProviderModel)
		r.Post("/{name}/test", h.TestProvider)
	})
	r.Post("/ai/run", h.RunAI)

	// App settings.
	r.Get("/settings/{key}", h.GetSetting)
	r.Put("/settings/{key}", h.SetSetting)

	// Plugin registry and core process lifecycle.
	r.Route("/plugins", func(r chi.Router) {
		r.Get("/", h.ListPlugins)
		r.Post("/", h.UpsertPlugin)
		r.Get("/core", h.ListCore)
		r.Post("/core/{name}/spawn", h.SpawnCore)
		r.Delete("/core/{name}", h.ShutdownCore)
		r.Post("/core/{name}/call", h.CallCore)
		r.Get("/{name}", h.GetPlugin)
		r.Post("/{name}/enable", h.EnablePlugin)
		r.Post("/{name}/disable", h.DisablePlugin)
		r.Delete("/{name}", h.RemovePlugin)
	})

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
