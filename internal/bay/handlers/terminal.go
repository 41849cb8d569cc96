package handlers

import (
	"net/http"

	"shipyard/internal/auth"
	"shipyard/internal/shipclient"
	"shipyard/internal/store"

	"github.com/gorilla/websocket"
)

// WebSocket close codes for the terminal handshake. A browser's native
// WebSocket client can't inspect a pre-upgrade HTTP status, so every
// rejection here is reported as a close code sent after upgrading rather
// than an HTTP error response.
const (
	wsCloseUnauthorized = 4001
	wsCloseNoSession    = 4003
	wsCloseUnknownShip  = 4004
)

// Terminal handles GET /ship/{id}/term, upgrading to a WebSocket and
// proxying it into the Ship's own terminal endpoint. The Authorization
// header a normal API caller sends can't be set by a browser opening a
// WebSocket directly, so this route also accepts the access token as a
// ?token= query parameter and authenticates it here rather than in the
// bearer-token middleware every other route goes through.
func (h *Handlers) Terminal(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("Authorization")
	if len(token) > 7 && token[:7] == "Bearer " {
		token = token[7:]
	} else {
		token = ""
	}
	if token == "" {
		token = r.URL.Query().Get("token")
	}

	sessionID := r.Header.Get("X-SESSION-ID")
	if sessionID == "" {
		sessionID = r.URL.Query().Get("session_id")
	}

	ship, shipErr := h.Store.GetShip(r.Context(), r.PathValue("id"))

	conn, err := shipclient.UpgradeTerminal(w, r)
	if err != nil {
		return
	}

	if !auth.CheckToken(h.AccessToken, token) {
		shipclient.CloseWithCode(conn, wsCloseUnauthorized, "unauthorized")
		return
	}
	if sessionID == "" {
		shipclient.CloseWithCode(conn, wsCloseNoSession, "missing session id")
		return
	}
	if shipErr != nil {
		code := wsCloseUnknownShip
		if shipErr != store.ErrNotFound {
			code = websocket.CloseInternalServerErr
		}
		shipclient.CloseWithCode(conn, code, "unknown ship")
		return
	}
	if ship.Status != store.ShipStatusRunning {
		shipclient.CloseWithCode(conn, wsCloseUnknownShip, "ship is not running")
		return
	}

	proxy := &shipclient.TerminalProxy{Endpoint: ship.Endpoint}
	proxy.Proxy(r.Context(), conn, sessionID)
}
