// Package handlers implements the Bay HTTP API: Ship lifecycle, exec, file
// transfer, terminal proxying, and session/history queries.
package handlers

import (
	"encoding/json"
	"net/http"

	"shipyard/internal/driver"
	"shipyard/internal/shiperr"
	"shipyard/internal/sessionservice"
	"shipyard/internal/shipclient"
	"shipyard/internal/shipservice"
	"shipyard/internal/store"
	"shipyard/pkg/api"
)

// Handlers holds every dependency the API surface needs.
type Handlers struct {
	Store       store.Store
	Ships       *shipservice.Service
	Sessions    *sessionservice.Service
	Driver      driver.Driver
	AccessToken string // checked directly by Terminal, which authenticates after upgrading
}

func New(st store.Store, ships *shipservice.Service, sessions *sessionservice.Service, drv driver.Driver, accessToken string) *Handlers {
	return &Handlers{Store: st, Ships: ships, Sessions: sessions, Driver: drv, AccessToken: accessToken}
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

func (h *Handlers) httpError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, api.ErrorResponse{Error: message, Code: http.StatusText(status)})
}

// writeError maps a store/shiperr failure to the HTTP status table: not
// found -> 404, invalid/forbidden -> 400/403, capacity reject -> 409,
// capacity wait timeout -> 504, backend unreachable/image pull/quota -> 502,
// ship unready -> 503, backend timeout -> 504, anything else -> 500.
func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	if err == store.ErrNotFound {
		h.httpError(w, http.StatusNotFound, "not found")
		return
	}

	se, ok := shiperr.As(err)
	if !ok {
		h.httpError(w, http.StatusInternalServerError, "internal error")
		return
	}

	switch se.Kind {
	case shiperr.KindNotFound:
		h.httpError(w, http.StatusNotFound, se.Message)
	case shiperr.KindUnauthorized:
		h.httpError(w, http.StatusUnauthorized, se.Message)
	case shiperr.KindForbidden:
		h.httpError(w, http.StatusForbidden, se.Message)
	case shiperr.KindInvalidRequest:
		h.httpError(w, http.StatusBadRequest, se.Message)
	case shiperr.KindCapacityReject:
		h.httpError(w, http.StatusConflict, se.Message)
	case shiperr.KindCapacityWaitTimeout:
		h.httpError(w, http.StatusGatewayTimeout, se.Message)
	case shiperr.KindBackendUnreachable, shiperr.KindImagePullFailed, shiperr.KindQuotaExceeded:
		h.httpError(w, http.StatusBadGateway, se.Message)
	case shiperr.KindShipUnready:
		h.httpError(w, http.StatusServiceUnavailable, se.Message)
	case shiperr.KindBackendTimeout:
		h.httpError(w, http.StatusGatewayTimeout, se.Message)
	default:
		h.httpError(w, http.StatusInternalServerError, se.Message)
	}
}

func toShipResponse(s *store.Ship) api.ShipResponse {
	return api.ShipResponse{
		ID:       s.ID,
		Status:   string(s.Status),
		Endpoint: s.Endpoint,
		Spec: api.ShipSpecDTO{
			CPUs:   s.Spec.CPUs,
			Memory: s.Spec.Memory,
			Disk:   s.Spec.Disk,
		},
		TTLSeconds: s.TTLSeconds,
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  s.UpdatedAt,
		ExpiresAt:  s.ExpiresAt,
		WarmPool:   s.WarmPool,
	}
}

func toSessionResponse(s *store.Session) api.SessionResponse {
	return api.SessionResponse{
		SessionID:    s.SessionID,
		ShipID:       s.ShipID,
		CreatedAt:    s.CreatedAt,
		LastActivity: s.LastActivity,
		ExpiresAt:    s.ExpiresAt,
		InitialTTL:   s.InitialTTL,
	}
}

func toHistoryResponse(h *store.ExecutionHistory) api.HistoryEntryResponse {
	return api.HistoryEntryResponse{
		ID:              h.ID,
		SessionID:       h.SessionID,
		ShipID:          h.ShipID,
		ExecType:        string(h.ExecType),
		Code:            h.Code,
		Success:         h.Success,
		ExecutionTimeMs: h.ExecutionTimeMs,
		Output:          h.Output,
		Error:           h.Error,
		Description:     h.Description,
		Tags:            h.Tags,
		Notes:           h.Notes,
		CreatedAt:       h.CreatedAt,
	}
}

func shipClientFor(endpoint string) *shipclient.Client {
	return shipclient.New(endpoint)
}
