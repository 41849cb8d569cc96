package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"shipyard/internal/store"
	"shipyard/pkg/api"
)

// ListSessions handles GET /sessions.
func (h *Handlers) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.Sessions.List(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	resp := make([]api.SessionResponse, 0, len(sessions))
	for _, s := range sessions {
		resp = append(resp, toSessionResponse(s))
	}
	h.respondJSON(w, http.StatusOK, resp)
}

// GetSession handles GET /sessions/{id}.
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.Sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, toSessionResponse(s))
}

// DeleteSession handles DELETE /sessions/{id}.
func (h *Handlers) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.Sessions.Delete(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// History handles GET /sessions/{id}/history.
func (h *Handlers) History(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	filter := store.HistoryFilter{}

	q := r.URL.Query()
	if v := q.Get("exec_type"); v != "" {
		et := store.ExecType(v)
		filter.ExecType = &et
	}
	if v := q.Get("success"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			filter.SuccessOnly = &b
		}
	}
	if v := q.Get("tags"); v != "" {
		filter.Tags = strings.Split(v, ",")
	}
	if v := q.Get("has_notes"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			filter.HasNotes = &b
		}
	}
	if v := q.Get("has_description"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			filter.HasDescription = &b
		}
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	items, total, err := h.Sessions.History(r.Context(), sessionID, filter)
	if err != nil {
		h.writeError(w, err)
		return
	}
	resp := api.HistoryListResponse{Items: make([]api.HistoryEntryResponse, 0, len(items)), Total: total}
	for _, item := range items {
		resp.Items = append(resp.Items, toHistoryResponse(item))
	}
	h.respondJSON(w, http.StatusOK, resp)
}

// HistoryByID handles GET /sessions/{id}/history/{execId}.
func (h *Handlers) HistoryByID(w http.ResponseWriter, r *http.Request) {
	entry, err := h.Sessions.HistoryByID(r.Context(), r.PathValue("execId"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, toHistoryResponse(entry))
}

// LastHistory handles GET /sessions/{id}/history/last.
func (h *Handlers) LastHistory(w http.ResponseWriter, r *http.Request) {
	var execType *store.ExecType
	if v := r.URL.Query().Get("exec_type"); v != "" {
		et := store.ExecType(v)
		execType = &et
	}
	entry, err := h.Sessions.LastHistory(r.Context(), r.PathValue("id"), execType)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, toHistoryResponse(entry))
}

// AnnotateHistory handles PATCH /sessions/{id}/history/{execId}.
func (h *Handlers) AnnotateHistory(w http.ResponseWriter, r *http.Request) {
	var req api.AnnotateHistoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var tags []string
	if req.Tags != nil {
		if *req.Tags == "" {
			tags = []string{}
		} else {
			tags = strings.Split(*req.Tags, ",")
		}
	}

	entry, err := h.Sessions.Annotate(r.Context(), r.PathValue("execId"), req.Description, req.Notes, tags)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, toHistoryResponse(entry))
}
