package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/matchcore/matchcore/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler is the application boundary a Client dispatches inbound
// transport events to. Implemented by the match service so the
// transport package stays ignorant of matchmaking, session, and store
// internals.
type Handler interface {
	JoinQueue(ctx context.Context, sessionTag, playerID string, mode domain.Mode, prefs domain.Preferences) error
	LeaveQueue(ctx context.Context, sessionTag, playerID string, mode domain.Mode) error
	GameAction(ctx context.Context, sessionTag, matchID, action string, payload json.RawMessage) error
	Disconnect(ctx context.Context, sessionTag string)
}

// Client is one connected WebSocket peer. Its session tag is the
// addressing identity used by the Event Fan-Out and by Queue Store
// cancellation on disconnect.
type Client struct {
	sessionTag string
	hub        *Hub
	handler    Handler
	conn       *websocket.Conn
	send       chan []byte
	logger     *slog.Logger
}

// NewClient allocates a client with a freshly minted session tag.
func NewClient(hub *Hub, handler Handler, conn *websocket.Conn, logger *slog.Logger) *Client {
	return &Client{
		sessionTag: uuid.New().String(),
		hub:        hub,
		handler:    handler,
		conn:       conn,
		send:       make(chan []byte, 256),
		logger:     logger,
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.handler.Disconnect(context.Background(), c.sessionTag)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("websocket error", "error", err)
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.sendError("invalid message format")
			continue
		}
		c.dispatch(&msg)
	}
}

func (c *Client) dispatch(msg *ClientMessage) {
	ctx := context.Background()
	switch msg.Type {
	case EventJoinQueue:
		mode := domain.Mode(msg.GameMode)
		if msg.PlayerID == "" || !domain.IsValidMode(mode) {
			c.sendError("invalid join_queue request")
			return
		}
		if err := c.handler.JoinQueue(ctx, c.sessionTag, msg.PlayerID, mode, msg.Preferences); err != nil {
			c.sendError(err.Error())
			return
		}
		c.sendMessage(NewAck(EventQueueJoined, string(mode)))

	case EventLeaveQueue:
		mode := domain.Mode(msg.GameMode)
		if msg.PlayerID == "" || !domain.IsValidMode(mode) {
			c.sendError("invalid leave_queue request")
			return
		}
		if err := c.handler.LeaveQueue(ctx, c.sessionTag, msg.PlayerID, mode); err != nil {
			c.sendError(err.Error())
			return
		}
		c.sendMessage(NewAck(EventQueueLeft, string(mode)))

	case EventGameAction:
		if msg.GameID == "" || msg.Action == "" {
			c.sendError("invalid game_action request")
			return
		}
		if err := c.handler.GameAction(ctx, c.sessionTag, msg.GameID, msg.Action, msg.Payload); err != nil {
			c.sendError(err.Error())
		}

	default:
		c.logger.Debug("unknown transport event type", "type", msg.Type)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) sendError(message string) {
	c.sendMessage(NewError(message))
}

func (c *Client) sendMessage(msg ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("failed to marshal message", "error", err)
		return
	}
	select {
	case c.send <- data:
	default:
		c.logger.Warn("client send buffer full, dropping message", "session_tag", c.sessionTag)
	}
}

// ServeWs upgrades r to a WebSocket connection, registers the resulting
// client with hub, and starts its read/write pumps.
func ServeWs(hub *Hub, handler Handler, logger *slog.Logger, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := NewClient(hub, handler, conn, logger)
	hub.Register(client)

	go client.writePump()
	go client.readPump()

	logger.Debug("new websocket connection", "session_tag", client.sessionTag)
}
