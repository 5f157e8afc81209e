package gateway

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Gateway is the Session Gateway: it upgrades HTTP connections to
// WebSocket and wires each one to the Dispatcher, grounded on the
// teacher's websocket.Handler + Hub split (internal/websocket/handler.go).
type Gateway struct {
	dispatcher *Dispatcher
	logger     *slog.Logger
}

// NewGateway constructs a Gateway bound to dispatcher.
func NewGateway(dispatcher *Dispatcher, logger *slog.Logger) *Gateway {
	return &Gateway{dispatcher: dispatcher, logger: logger.With("component", "gateway")}
}

// ServeHTTP upgrades the request and runs the connection's read/write
// pumps until it closes.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	sessionID := uuid.NewString()
	client := newClient(conn, sessionID, g.logger)

	ctx, cancel := context.WithCancel(context.Background())
	client.setCancel(cancel)

	g.dispatcher.OnConnect(ctx, client)
	defer g.dispatcher.OnDisconnect(client)

	go client.WritePump(ctx)
	client.ReadPump(ctx, g.dispatcher.Dispatch) // blocks until the connection closes
}
