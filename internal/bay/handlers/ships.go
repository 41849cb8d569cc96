package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"shipyard/internal/shiperr"
	"shipyard/internal/shipservice"
	"shipyard/internal/store"
	"shipyard/pkg/api"
)

// AcquireShip handles POST /ship. The session id is supplied via
// X-SESSION-ID, matching how Ships themselves identify callers.
func (h *Handlers) AcquireShip(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get("X-SESSION-ID")
	if sessionID == "" {
		h.httpError(w, http.StatusBadRequest, "missing X-SESSION-ID header")
		return
	}

	var req api.CreateShipRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.httpError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	ship, err := h.Ships.Acquire(r.Context(), shipservice.AcquireRequest{
		SessionID:  sessionID,
		TTLSeconds: req.TTLSeconds,
		Spec: store.ShipSpec{
			CPUs:   req.Spec.CPUs,
			Memory: req.Spec.Memory,
			Disk:   req.Spec.Disk,
		},
		ForceCreate: req.ForceCreate,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, toShipResponse(ship))
}

// GetShip handles GET /ship/{id}.
func (h *Handlers) GetShip(w http.ResponseWriter, r *http.Request) {
	ship, err := h.Store.GetShip(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, toShipResponse(ship))
}

// StopShip handles DELETE /ship/{id}: stops the container, keeps the row.
func (h *Handlers) StopShip(w http.ResponseWriter, r *http.Request) {
	if err := h.Ships.Stop(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteShipPermanent handles DELETE /ship/{id}/permanent.
func (h *Handlers) DeleteShipPermanent(w http.ResponseWriter, r *http.Request) {
	if err := h.Ships.DeletePermanent(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// StartShip handles POST /ship/{id}/start: on-demand Stopped-ship recovery.
func (h *Handlers) StartShip(w http.ResponseWriter, r *http.Request) {
	ship, err := h.Ships.StartShip(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, toShipResponse(ship))
}

// ExtendTTL handles POST /ship/{id}/extend-ttl.
func (h *Handlers) ExtendTTL(w http.ResponseWriter, r *http.Request) {
	var req api.ExtendTTLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TTLSeconds <= 0 {
		h.httpError(w, http.StatusBadRequest, "ttl must be positive")
		return
	}

	ship, err := h.Ships.ExtendTTL(r.Context(), r.PathValue("id"), req.TTLSeconds)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, toShipResponse(ship))
}

// Exec handles POST /ship/{id}/exec.
func (h *Handlers) Exec(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get("X-SESSION-ID")
	if sessionID == "" {
		h.httpError(w, http.StatusBadRequest, "missing X-SESSION-ID header")
		return
	}

	var req api.ExecRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	execType, err := parseExecType(req.Type)
	if err != nil {
		h.httpError(w, http.StatusBadRequest, err.Error())
		return
	}

	code, _ := req.Payload["code"].(string)

	result, err := h.Ships.Execute(r.Context(), shipservice.ExecuteRequest{
		ShipID:    r.PathValue("id"),
		SessionID: sessionID,
		ExecType:  execType,
		RawType:   req.Type,
		Code:      code,
		Payload:   req.Payload,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := api.ExecResponse{
		Success:         result.Success,
		Error:           result.Error,
		ExecutionID:     result.ExecutionID,
		ExecutionTimeMs: result.ExecutionTimeMs,
	}
	if len(result.Data) > 0 {
		_ = json.Unmarshal(result.Data, &resp.Data)
	}
	h.respondJSON(w, http.StatusOK, resp)
}

// parseExecType classifies a Ship operation type into the coarse history
// bucket it's recorded under. The raw type string itself, not this
// classification, is what actually reaches the Ship over the wire.
func parseExecType(t string) (store.ExecType, error) {
	switch t {
	case "python", "ipython/exec":
		return store.ExecTypePython, nil
	case "shell", "shell/exec", "shell/processes", "shell/cwd",
		"fs/create_file", "fs/read_file", "fs/write_file", "fs/delete_file", "fs/list_dir":
		return store.ExecTypeShell, nil
	default:
		return "", shiperr.New(shiperr.KindInvalidRequest, "unknown exec type "+t)
	}
}

// Logs handles GET /ship/logs/{id}.
func (h *Handlers) Logs(w http.ResponseWriter, r *http.Request) {
	ship, err := h.Store.GetShip(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if ship.ContainerID == "" {
		h.httpError(w, http.StatusServiceUnavailable, "ship has no running container")
		return
	}

	tail := 200
	if v := r.URL.Query().Get("tail"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			tail = n
		}
	}

	logs, err := h.Driver.Logs(r.Context(), ship.ContainerID, tail)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"logs": logs})
}

// Upload handles POST /ship/{id}/upload, proxying multipart content into
// the Ship's own file endpoint.
func (h *Handlers) Upload(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get("X-SESSION-ID")
	if sessionID == "" {
		h.httpError(w, http.StatusBadRequest, "missing X-SESSION-ID header")
		return
	}

	ship, err := h.Store.GetShip(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if ship.Status != store.ShipStatusRunning {
		h.httpError(w, http.StatusServiceUnavailable, "ship is not running")
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		h.httpError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	filePath := r.FormValue("file_path")
	file, _, err := r.FormFile("file")
	if err != nil {
		h.httpError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		h.httpError(w, http.StatusBadRequest, "read upload body")
		return
	}

	stored, err := shipClientFor(ship.Endpoint).Upload(r.Context(), sessionID, filePath, content)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, api.UploadFileResponse{Success: true, FilePath: stored})
}

// Download handles GET /ship/{id}/download.
func (h *Handlers) Download(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get("X-SESSION-ID")
	if sessionID == "" {
		h.httpError(w, http.StatusBadRequest, "missing X-SESSION-ID header")
		return
	}

	filePath := r.URL.Query().Get("file_path")
	if filePath == "" {
		h.httpError(w, http.StatusBadRequest, "missing file_path")
		return
	}

	ship, err := h.Store.GetShip(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if ship.Status != store.ShipStatusRunning {
		h.httpError(w, http.StatusServiceUnavailable, "ship is not running")
		return
	}

	content, err := shipClientFor(ship.Endpoint).Download(r.Context(), sessionID, filePath)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(content)
}

// Stat handles GET /stat and GET /stat/overview.
func (h *Handlers) Stat(w http.ResponseWriter, r *http.Request) {
	counts, err := h.Store.CountByStatus(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	pool, err := h.Store.ListWarmPoolShips(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := api.StatResponse{ByStatus: map[string]int{}, WarmPool: len(pool)}
	for status, n := range counts {
		resp.ByStatus[string(status)] = n
		resp.Total += n
	}
	h.respondJSON(w, http.StatusOK, resp)
}
