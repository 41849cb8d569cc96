package shipclient

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = 54 * time.Second // 90% of wsPongWait
	wsMaxMessageSize = 1 << 20
	wsSendBuffer     = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// TerminalProxy relays a caller's WebSocket connection to a Ship's own
// terminal WebSocket endpoint, so a browser can open one socket to Bay and
// have it bridged transparently to the Ship.
type TerminalProxy struct {
	Endpoint string // ship's "host:port"
}

// UpgradeTerminal upgrades the inbound HTTP connection to a WebSocket
// before any auth/session/ship validation runs, so a rejection can be
// reported with a WebSocket close code instead of a pre-upgrade HTTP
// status a browser's native WebSocket client can't see.
func UpgradeTerminal(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	return upgrader.Upgrade(w, r, nil)
}

// CloseWithCode sends a close control frame carrying an application-level
// code and reason, then closes the connection.
func CloseWithCode(conn *websocket.Conn, code int, reason string) {
	conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(wsWriteWait))
	conn.Close()
}

// Proxy dials the Ship's terminal socket and pumps bytes between it and an
// already-upgraded client connection until either side closes. Backpressure
// on either direction is bounded: once a send queue is full the connection
// is torn down rather than spilling memory buffering for a side that isn't
// keeping up.
func (p *TerminalProxy) Proxy(ctx context.Context, clientConn *websocket.Conn, sessionID string) error {
	shipURL := "ws://" + p.Endpoint + "/terminal"
	header := http.Header{"X-SESSION-ID": []string{sessionID}}
	shipConn, _, err := websocket.DefaultDialer.DialContext(ctx, shipURL, header)
	if err != nil {
		CloseWithCode(clientConn, websocket.CloseTryAgainLater, "ship unreachable")
		return err
	}
	defer shipConn.Close()

	pumpCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	toClient := make(chan []byte, wsSendBuffer)
	toShip := make(chan []byte, wsSendBuffer)

	go pumpRead(pumpCtx, cancel, shipConn, toClient)
	go pumpRead(pumpCtx, cancel, clientConn, toShip)
	go pumpWrite(pumpCtx, cancel, clientConn, toClient)
	pumpWrite(pumpCtx, cancel, shipConn, toShip)

	return nil
}

func pumpRead(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, out chan<- []byte) {
	defer cancel()

	conn.SetReadLimit(wsMaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return
		}
		select {
		case out <- message:
		case <-ctx.Done():
			return
		default:
			// The other side's send queue is full; it isn't keeping up, so
			// drop the connection rather than buffer unboundedly for it.
			return
		}
	}
}

func pumpWrite(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, in <-chan []byte) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		cancel()
	}()

	for {
		select {
		case <-ctx.Done():
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case message := <-in:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
