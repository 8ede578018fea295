package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/ansuz/internal/service"
)

// Handler holds API route handlers.
type Handler struct {
	svc *service.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// ListRepos handles GET /api/repos.
func (h *Handler) ListRepos(w http.ResponseWriter, r *http.Request) {
	repos, err := h.svc.ListRepos(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"repos": repos})
}

// AddRepo handles POST /api/repos.
func (h *Handler) AddRepo(w http.ResponseWriter, r *http.Request) {
	var req AddRepoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	repo, err := h.svc.AddRepo(r.Context(), req.Path, req.Name, req.Settings)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, repo)
}

// GetRepo handles GET /api/repos/{repo}.
func (h *Handler) GetRepo(w http.ResponseWriter, r *http.Request) {
	repo, err := h.svc.GetRepo(r.Context(), chi.URLParam(r, "repo"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, repo)
}

// RemoveRepo handles DELETE /api/repos/{repo}.
func (h *Handler) RemoveRepo(w http.ResponseWriter, r *http.Request) {
	removed, err := h.svc.RemoveRepo(r.Context(), chi.URLParam(r, "repo"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
}

// SetRepoDefaultProvider handles PUT /api/repos/{repo}/default_provider.
func (h *Handler) SetRepoDefaultProvider(w http.ResponseWriter, r *http.Request) {
	var req SetProviderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	updated, err := h.svc.SetRepoDefaultProvider(r.Context(), chi.URLParam(r, "repo"), req.Provider)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": updated})
}

// ScanRepo handles POST /api/repos/{repo}/scan. With ?watch=true the scan
// keeps running on filesystem changes until stopped.
func (h *Handler) ScanRepo(w http.ResponseWriter, r *http.Request) {
	repo := chi.URLParam(r, "repo")
	if r.URL.Query().Get("watch") == "true" {
		if err := h.svc.WatchRepo(r.Context(), repo); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"watching": true})
		return
	}
	report, err := h.svc.ScanRepo(r.Context(), repo)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// StopWatch handles DELETE /api/repos/{repo}/scan.
func (h *Handler) StopWatch(w http.ResponseWriter, r *http.Request) {
	stopped, err := h.svc.StopWatch(r.Context(), chi.URLParam(r, "repo"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stopped": stopped})
}
