package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// CreateDoc handles POST /api/docs.
func (h *Handler) CreateDoc(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	var req CreateDocRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Repo == "" || req.Slug == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("repo and slug are required"))
		return
	}
	doc, err := h.svc.CreateDoc(r.Context(), req.Repo, req.Slug, req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

// GetDoc handles GET /api/docs/{id}. Body is included only with ?content=true.
func (h *Handler) GetDoc(w http.ResponseWriter, r *http.Request) {
	withContent := r.URL.Query().Get("content") == "true"
	doc, err := h.svc.GetDoc(r.Context(), chi.URLParam(r, "id"), withContent)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// UpdateDoc handles PUT /api/docs/{id}.
func (h *Handler) UpdateDoc(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	var req UpdateDocRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	versionID, skipped, err := h.svc.UpdateDoc(r.Context(), chi.URLParam(r, "id"), req.Content, req.Message)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, UpdateDocResponse{VersionID: versionID, Skipped: skipped})
}

// DeleteDoc handles DELETE /api/docs/{id}.
func (h *Handler) DeleteDoc(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.svc.DeleteDoc(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}

// ListVersions handles GET /api/docs/{id}/versions.
func (h *Handler) ListVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := h.svc.ListVersions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"versions": versions})
}

// ListAnchors handles GET /api/docs/{id}/anchors.
func (h *Handler) ListAnchors(w http.ResponseWriter, r *http.Request) {
	anchors, err := h.svc.ListAnchors(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"anchors": anchors})
}

// UpsertAnchor handles PUT /api/docs/{id}/anchors/{anchor}.
func (h *Handler) UpsertAnchor(w http.ResponseWriter, r *http.Request) {
	var req UpsertAnchorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	err := h.svc.UpsertAnchor(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "anchor"), req.Line)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"upserted": true})
}

// DeleteAnchor handles DELETE /api/anchors/{anchor}.
func (h *Handler) DeleteAnchor(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.svc.DeleteAnchor(r.Context(), chi.URLParam(r, "anchor"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}
