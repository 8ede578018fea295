package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/ansuz/internal/ai"
)

// ListProviders handles GET /api/providers.
func (h *Handler) ListProviders(w http.ResponseWriter, r *http.Request) {
	providers, err := h.svc.ListProviders(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"providers": providers})
}

// GetProvider handles GET /api/providers/{name}.
func (h *Handler) GetProvider(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.GetProvider(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// EnableProvider handles POST /api/providers/{name}/enable.
func (h *Handler) EnableProvider(w http.ResponseWriter, r *http.Request) {
	h.toggleProvider(w, r, true)
}

// DisableProvider handles POST /api/providers/{name}/disable.
func (h *Handler) DisableProvider(w http.ResponseWriter, r *http.Request) {
	h.toggleProvider(w, r, false)
}

func (h *Handler) toggleProvider(w http.ResponseWriter, r *http.Request, enabled bool) {
	updated, err := h.svc.SetProviderEnabled(r.Context(), chi.URLParam(r, "name"), enabled)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": updated})
}

// SetProviderKey handles PUT /api/providers/{name}/key. The key is accepted
// and stored; it is never echoed back by any endpoint.
func (h *Handler) SetProviderKey(w http.ResponseWriter, r *http.Request) {
	var req SetKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	updated, err := h.svc.SetProviderKey(r.Context(), chi.URLParam(r, "name"), req.Key)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": updated})
}

// SetProviderModel handles PUT /api/providers/{name}/model.
func (h *Handler) SetProviderModel(w http.ResponseWriter, r *http.Request) {
	var req SetModelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	updated, err := h.svc.SetProviderModel(r.Context(), chi.URLParam(r, "name"), req.Model)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": updated})
}

// ResolveProvider handles GET /api/providers/resolve.
func (h *Handler) ResolveProvider(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resolved, err := h.svc.ResolveProvider(r.Context(), q.Get("doc"), q.Get("provider"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resolved)
}

// TestProvider handles POST /api/providers/{name}/test.
func (h *Handler) TestProvider(w http.ResponseWriter, r *http.Request) {
	var req TestProviderRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	res, err := h.svc.TestProvider(r.Context(), chi.URLParam(r, "name"), req.Prompt)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// RunAI handles POST /api/ai/run.
func (h *Handler) RunAI(w http.ResponseWriter, r *http.Request) {
	var req ai.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.DocID == "" || req.Prompt == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("doc_id and prompt are required"))
		return
	}
	res, err := h.svc.RunAI(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GetSetting handles GET /api/settings/{key}.
func (h *Handler) GetSetting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	value, err := h.svc.GetSetting(r.Context(), key)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"key": key, "value": value})
}

// SetSetting handles PUT /api/settings/{key}.
func (h *Handler) SetSetting(w http.ResponseWriter, r *http.Request) {
	var req SetSettingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := h.svc.SetSetting(r.Context(), chi.URLParam(r, "key"), req.Value); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": true})
}
