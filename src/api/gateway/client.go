package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 256
)

// Client is one authenticated websocket connection. The hub holds the only
// references to it; per-event authorization is re-derived, nothing beyond
// UserID is cached from the handshake.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	UserID uint64

	send   chan []byte
	mu     sync.Mutex
	closed bool
}

func NewClient(hub *Hub, conn *websocket.Conn, userID uint64) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		UserID: userID,
		send:   make(chan []byte, sendBuffer),
	}
}

// trySend queues a frame without blocking. Frames to slow or closed
// connections are dropped; the pumps tear those down.
func (c *Client) trySend(raw []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- raw:
	default:
	}
}

func (c *Client) sendEnvelope(env Envelope) {
	raw, err := json.Marshal(env)
	if err != nil {
		return
	}
	c.trySend(raw)
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// detach hands the connection back to the hub for cleanup, unless the hub
// has already stopped.
func (c *Client) detach() {
	select {
	case c.hub.Unregister <- c:
	case <-c.hub.done:
		c.closeSend()
	}
}

// ReadPump reads client events until the connection drops, then unregisters.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.detach()
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
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Debugw("websocket read error", "user", c.UserID, "err", err)
			}
			return
		}
		c.handleEvent(ctx, raw)
	}
}

func (c *Client) handleEvent(ctx context.Context, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.sendEnvelope(Envelope{Event: EvError, Error: "malformed event"})
		return
	}
	if env.ChannelID == 0 {
		c.sendEnvelope(Envelope{Event: EvError, Error: "channelId is required"})
		return
	}

	var err error
	switch env.Event {
	case evJoinChannel:
		err = c.hub.JoinChannel(ctx, c, env.ChannelID)
	case evLeaveChannel:
		c.hub.LeaveChannel(c, env.ChannelID)
	case evTypingStart:
		err = c.hub.TypingStart(ctx, c, env.ChannelID)
	case evTypingStop:
		err = c.hub.TypingStop(ctx, c, env.ChannelID)
	default:
		c.sendEnvelope(Envelope{Event: EvError, Error: "unknown event " + env.Event})
	}
	if err != nil {
		c.hub.log.Warnw("event handling failed", "user", c.UserID, "event", env.Event, "err", err)
		c.sendEnvelope(Envelope{Event: EvError, ChannelID: env.ChannelID, Error: "internal error"})
	}
}

// WritePump drains the send queue and keeps the connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case raw, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
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
