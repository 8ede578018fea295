package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// ListPlugins handles GET /api/plugins.
func (h *Handler) ListPlugins(w http.ResponseWriter, r *http.Request) {
	plugins, err := h.svc.ListPlugins(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"plugins": plugins})
}

// GetPlugin handles GET /api/plugins/{name}.
func (h *Handler) GetPlugin(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.GetPlugin(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// UpsertPlugin handles POST /api/plugins.
func (h *Handler) UpsertPlugin(w http.ResponseWriter, r *http.Request) {
	var req UpsertPluginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("name is required"))
		return
	}
	version := req.Version
	if version == "" {
		version = "dev"
	}
	kind := req.Kind
	if kind == "" {
		kind = "core"
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	if err := h.svc.UpsertPlugin(r.Context(), req.Name, version, kind, req.Permissions, enabled); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"upserted": true})
}

// EnablePlugin handles POST /api/plugins/{name}/enable.
func (h *Handler) EnablePlugin(w http.ResponseWriter, r *http.Request) {
	h.togglePlugin(w, r, true)
}

// DisablePlugin handles POST /api/plugins/{name}/disable.
func (h *Handler) DisablePlugin(w http.ResponseWriter, r *http.Request) {
	h.togglePlugin(w, r, false)
}

func (h *Handler) togglePlugin(w http.ResponseWriter, r *http.Request, enabled bool) {
	updated, err := h.svc.SetPluginEnabled(r.Context(), chi.URLParam(r, "name"), enabled)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": updated})
}

// RemovePlugin handles DELETE /api/plugins/{name}.
func (h *Handler) RemovePlugin(w http.ResponseWriter, r *http.Request) {
	removed, err := h.svc.RemovePlugin(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
}

// ListCore handles GET /api/plugins/core.
func (h *Handler) ListCore(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"processes": h.svc.ListCore(r.Context())})
}

// SpawnCore handles POST /api/plugins/core/{name}/spawn.
func (h *Handler) SpawnCore(w http.ResponseWriter, r *http.Request) {
	var req SpawnCoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Exec == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("exec is required"))
		return
	}
	proc, err := h.svc.SpawnCore(r.Context(), chi.URLParam(r, "name"), req.Exec, req.Args)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, proc)
}

// ShutdownCore handles DELETE /api/plugins/core/{name}.
func (h *Handler) ShutdownCore(w http.ResponseWriter, r *http.Request) {
	stopped, err := h.svc.ShutdownCore(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stopped": stopped})
}

// CallCore handles POST /api/plugins/core/{name}/call.
func (h *Handler) CallCore(w http.ResponseWriter, r *http.Request) {
	var req CallCoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Line == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("line is required"))
		return
	}
	result, err := h.svc.CallCore(r.Context(), chi.URLParam(r, "name"), req.Line)
	if err != nil {
		writeError(w, err)
		return
	}
	if result == nil {
		writeJSON(w, http.StatusAccepted, map[string]any{"notified": true})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": result})
}
