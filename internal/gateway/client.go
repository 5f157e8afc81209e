package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/syncroom/server/internal/pubsub"
	"github.com/syncroom/server/internal/room"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 65536
)

// Client is one connected WebSocket session, grounded on the teacher's
// internal/websocket.Client — same ReadPump/WritePump split, ping/pong
// deadlines, and bounded send buffer, generalized from a chat-room
// subscriber to a SyncRoom session.
type Client struct {
	conn   *websocket.Conn
	send   chan []byte
	logger *slog.Logger
	cancel context.CancelFunc

	mu        sync.RWMutex
	sessionID string
	identity  string
	name      string
	avatar    string
	roomCode  string

	userSub pubsub.Subscription
	roomSub pubsub.Subscription

	// syncLimiter throttles this session's sync_request calls to 1/sec, a
	// per-connection concern the gateway owns rather than the room actor.
	syncLimiter *rate.Limiter
}

func newClient(conn *websocket.Conn, sessionID string, logger *slog.Logger) *Client {
	return &Client{
		conn:        conn,
		send:        make(chan []byte, 256),
		logger:      logger,
		sessionID:   sessionID,
		syncLimiter: room.NewSyncLimiter(),
	}
}

func (c *Client) setCancel(cancel context.CancelFunc) { c.cancel = cancel }

func (c *Client) SessionID() string { return c.sessionID }

func (c *Client) setIdentity(identity, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.identity = identity
	c.name = name
}

func (c *Client) Identity() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identity
}

func (c *Client) authenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identity != ""
}

// setProfile records the display name/avatar a client supplied on
// create_room/join_room, used by subsequent chat events from the same
// connection.
func (c *Client) setProfile(name, avatar string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if name != "" {
		c.name = name
	}
	c.avatar = avatar
}

func (c *Client) displayName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.name
}

func (c *Client) avatarURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.avatar
}

func (c *Client) setRoomCode(code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roomCode = code
}

func (c *Client) RoomCode() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.roomCode
}

func (c *Client) setUserSub(sub pubsub.Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userSub = sub
}

func (c *Client) setRoomSub(sub pubsub.Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.roomSub != nil {
		_ = c.roomSub.Unsubscribe()
	}
	c.roomSub = sub
}

// closeSubscriptions tears down both bus subscriptions; called once on
// disconnect.
func (c *Client) closeSubscriptions() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.userSub != nil {
		_ = c.userSub.Unsubscribe()
		c.userSub = nil
	}
	if c.roomSub != nil {
		_ = c.roomSub.Unsubscribe()
		c.roomSub = nil
	}
}

// writeJSON enqueues an envelope for delivery, dropping it if the send
// buffer is full rather than blocking the write pump (teacher's client.go
// does the same on its send channel).
func (c *Client) writeJSON(env outboundEnvelope) {
	data, err := json.Marshal(env)
	if err != nil {
		c.logger.Error("marshal outbound envelope", "type", env.Type, "error", err)
		return
	}
	select {
	case c.send <- data:
	default:
		c.logger.Warn("client send buffer full, dropping message", "session_id", c.sessionID, "type", env.Type)
	}
}

func (c *Client) ack(reqID string, payload interface{}) {
	c.writeJSON(outboundEnvelope{RequestID: reqID, OK: boolPtr(true), Payload: payload})
}

func (c *Client) ackError(reqID string, code, message string) {
	c.writeJSON(outboundEnvelope{RequestID: reqID, OK: boolPtr(false), Error: &errorPayload{Code: code, Message: message}})
}

// ReadPump pumps inbound frames to the dispatcher until the connection
// closes.
func (c *Client) ReadPump(ctx context.Context, dispatch func(*Client, inboundEnvelope)) {
	defer func() {
		if c.cancel != nil {
			c.cancel()
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, message, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					c.logger.Warn("websocket read error", "session_id", c.sessionID, "error", err)
				}
				return
			}

			var env inboundEnvelope
			if err := json.Unmarshal(message, &env); err != nil {
				c.writeJSON(outboundEnvelope{OK: boolPtr(false), Error: &errorPayload{Code: "bad_request", Message: "malformed envelope"}})
				continue
			}
			dispatch(c, env)
		}
	}
}

// WritePump pumps queued frames and pings to the WebSocket connection.
func (c *Client) WritePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)

			n := len(c.send)
			for i := 0; i < n; i++ {
				_, _ = w.Write([]byte{'\n'})
				_, _ = w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
