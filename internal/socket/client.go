package socket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/PabloG6/medscan-intellibus/internal/logger"
)

const (
	OutboundChanBuffer = 256

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Client is one websocket connection. It may only listen on its own user channel.
type Client struct {
	ID       uuid.UUID
	UserID   uuid.UUID
	Conn     *websocket.Conn
	Hub      *Hub
	Log      *logger.Logger
	cancelFn context.CancelFunc
	Outbound chan Message

	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
}

// NewClient builds a client. cancel comes from the handler so the sibling pump
// stops when either loop exits.
func NewClient(conn *websocket.Conn, hub *Hub, userID uuid.UUID, cancel context.CancelFunc, log *logger.Logger) *Client {
	id := uuid.New()
	return &Client{
		ID:       id,
		UserID:   userID,
		Conn:     conn,
		Hub:      hub,
		Log:      log.With("client", id, "userID", userID),
		cancelFn: cancel,
		Outbound: make(chan Message, OutboundChanBuffer),
	}
}

func (c *Client) ReadLoop(ctx context.Context)  { c.readLoop(ctx) }
func (c *Client) WriteLoop(ctx context.Context) { c.writeLoop(ctx) }

func (c *Client) readLoop(ctx context.Context) {
	defer c.close()

	c.Conn.SetReadLimit(1 << 16)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if ctx.Err() != nil {
			return
		}
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			c.Log.Debug("websocket read error, closing client", "error", err)
			return
		}
		var inbound InboundMessage
		if err := json.Unmarshal(data, &inbound); err != nil {
			c.Log.Debug("failed to unmarshal inbound message", "error", err)
			continue
		}
		c.handleInbound(inbound)
	}
}

func (c *Client) handleInbound(inbound InboundMessage) {
	own := UserChannel(c.UserID)
	switch inbound.Action {
	case "subscribe":
		if inbound.Channel != own {
			c.Log.Warn("refusing subscription to foreign channel", "channel", inbound.Channel)
			return
		}
		c.Hub.Subscribe(c, []string{own})
	case "unsubscribe":
		if inbound.Channel == own {
			c.Hub.UnsubscribeFromChannel(c, own)
		}
	case "ping":
		c.Send(Message{Channel: own, Action: "pong"})
	default:
		c.Log.Debug("inbound WS message unhandled", "action", inbound.Action)
	}
}

func (c *Client) writeLoop(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-ctx.Done():
			c.Log.Debug("writeLoop ctx done, shutting down")
			return

		case msg, ok := <-c.Outbound:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteJSON(msg); err != nil {
				c.Log.Warn("failed writing JSON", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Log.Debug("ping error, shutting down", "error", err)
				return
			}
		}
	}
}

// Send queues msg without blocking. It reports false when the client is
// closed or its buffer is full. Every write to Outbound goes through here.
func (c *Client) Send(msg Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Outbound <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// close is safe to call from both pumps and from concurrent senders.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		c.Log.Debug("closing client connection")
		c.mu.Lock()
		c.closed = true
		close(c.Outbound)
		c.mu.Unlock()

		if c.cancelFn != nil {
			c.cancelFn()
		}
		c.Hub.Unsubscribe(c)
		if c.Conn != nil {
			_ = c.Conn.Close()
		}
	})
}
