// Package gateway fans stored messages out to live websocket connections and
// tracks ephemeral typing presence. All state here is process-local; durable
// truth stays with the directory and the store.
package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/meridian-apps/casecomms/src/api/directory"
)

// Client→server event names.
const (
	evJoinChannel  = "join_channel"
	evLeaveChannel = "leave_channel"
	evTypingStart  = "typing_start"
	evTypingStop   = "typing_stop"
)

// Server→client event names.
const (
	EvNewMessage        = "new_message"
	EvUserTyping        = "user_typing"
	EvUserStoppedTyping = "user_stopped_typing"
	EvJoined            = "joined"
	EvLeft              = "left"
	EvError             = "error"
)

type Envelope struct {
	Event     string          `json:"event"`
	ChannelID uint64          `json:"channelId,omitempty"`
	UserID    uint64          `json:"userId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
}

type typingKey struct {
	channelID uint64
	userID    uint64
}

type Hub struct {
	dir *directory.Service
	log *zap.SugaredLogger

	Register   chan *Client
	Unregister chan *Client
	done       chan struct{}

	mu     sync.RWMutex
	rooms  map[uint64]map[*Client]bool
	typing map[typingKey]time.Time
}

func NewHub(dir *directory.Service, log *zap.SugaredLogger) *Hub {
	return &Hub{
		dir:        dir,
		log:        log.With("component", "gateway"),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		done:       make(chan struct{}),
		rooms:      make(map[uint64]map[*Client]bool),
		typing:     make(map[typingKey]time.Time),
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.Register:
			h.subscribeInitial(ctx, client)
		case client := <-h.Unregister:
			h.dropClient(client)
		case <-ctx.Done():
			// Read pumps of surviving connections select on Done so their
			// teardown never blocks on an undrained Unregister.
			close(h.done)
			return
		}
	}
}

// Done is closed when the hub stops processing registrations.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// subscribeInitial joins the connection to every channel the directory
// currently resolves for the user.
func (h *Hub) subscribeInitial(ctx context.Context, c *Client) {
	channels, err := h.dir.ListForUser(ctx, c.UserID)
	if err != nil {
		h.log.Warnw("initial subscription failed", "user", c.UserID, "err", err)
		return
	}
	h.mu.Lock()
	for _, ch := range channels {
		h.addToRoom(ch.ID, c)
	}
	h.mu.Unlock()
	h.log.Infow("client connected", "user", c.UserID, "channels", len(channels))
}

// dropClient purges the connection from every room and clears its typing
// presence, notifying the rooms it was typing in.
func (h *Hub) dropClient(c *Client) {
	h.mu.Lock()
	var stopped []uint64
	for key := range h.typing {
		if key.userID == c.UserID && h.soleConnection(key.channelID, c) {
			delete(h.typing, key)
			stopped = append(stopped, key.channelID)
		}
	}
	for chID, clients := range h.rooms {
		if clients[c] {
			delete(clients, c)
			if len(clients) == 0 {
				delete(h.rooms, chID)
			}
		}
	}
	h.mu.Unlock()

	for _, chID := range stopped {
		h.relay(chID, c, Envelope{Event: EvUserStoppedTyping, ChannelID: chID, UserID: c.UserID})
	}
	c.closeSend()
	h.log.Infow("client disconnected", "user", c.UserID)
}

// soleConnection reports whether c is the user's only connection in a room.
// Caller holds h.mu.
func (h *Hub) soleConnection(channelID uint64, c *Client) bool {
	for other := range h.rooms[channelID] {
		if other != c && other.UserID == c.UserID {
			return false
		}
	}
	return true
}

// addToRoom requires h.mu.
func (h *Hub) addToRoom(channelID uint64, c *Client) {
	if h.rooms[channelID] == nil {
		h.rooms[channelID] = make(map[*Client]bool)
	}
	h.rooms[channelID][c] = true
}

// JoinChannel re-checks access with the directory before adding the
// connection to the room.
func (h *Hub) JoinChannel(ctx context.Context, c *Client, channelID uint64) error {
	ok, err := h.dir.CanAccess(ctx, channelID, c.UserID)
	if err != nil {
		return err
	}
	if !ok {
		c.sendEnvelope(Envelope{Event: EvError, ChannelID: channelID, Error: "cannot join this channel"})
		return nil
	}
	h.mu.Lock()
	h.addToRoom(channelID, c)
	h.mu.Unlock()
	c.sendEnvelope(Envelope{Event: EvJoined, ChannelID: channelID})
	return nil
}

// LeaveChannel is an unconditional local removal.
func (h *Hub) LeaveChannel(c *Client, channelID uint64) {
	h.mu.Lock()
	if clients := h.rooms[channelID]; clients != nil {
		delete(clients, c)
		if len(clients) == 0 {
			delete(h.rooms, channelID)
		}
	}
	h.mu.Unlock()
	c.sendEnvelope(Envelope{Event: EvLeft, ChannelID: channelID})
}

// TypingStart records presence and notifies the other members of the room.
// There is no server-side expiry; termination relies on typing_stop or
// disconnect cleanup.
func (h *Hub) TypingStart(ctx context.Context, c *Client, channelID uint64) error {
	ok, err := h.dir.CanAccess(ctx, channelID, c.UserID)
	if err != nil {
		return err
	}
	if !ok {
		c.sendEnvelope(Envelope{Event: EvError, ChannelID: channelID, Error: "cannot access this channel"})
		return nil
	}
	h.mu.Lock()
	h.typing[typingKey{channelID, c.UserID}] = time.Now()
	h.mu.Unlock()
	h.relay(channelID, c, Envelope{Event: EvUserTyping, ChannelID: channelID, UserID: c.UserID})
	return nil
}

func (h *Hub) TypingStop(ctx context.Context, c *Client, channelID uint64) error {
	ok, err := h.dir.CanAccess(ctx, channelID, c.UserID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	h.mu.Lock()
	delete(h.typing, typingKey{channelID, c.UserID})
	h.mu.Unlock()
	h.relay(channelID, c, Envelope{Event: EvUserStoppedTyping, ChannelID: channelID, UserID: c.UserID})
	return nil
}

// TypingUsers returns the users currently marked typing in a channel.
func (h *Hub) TypingUsers(channelID uint64) []uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var ids []uint64
	for key := range h.typing {
		if key.channelID == channelID {
			ids = append(ids, key.userID)
		}
	}
	return ids
}

// BroadcastMessage relays a stored message to every connection currently in
// the channel's room. Delivery is at-most-once and never replayed; clients
// backfill through the history endpoint.
func (h *Hub) BroadcastMessage(channelID uint64, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.log.Warnw("broadcast marshal failed", "channel", channelID, "err", err)
		return
	}
	h.relay(channelID, nil, Envelope{Event: EvNewMessage, ChannelID: channelID, Data: data})
}

// relay sends an envelope to every room member except the origin connection.
// Slow consumers are skipped; the write pump's deadline reaps them.
func (h *Hub) relay(channelID uint64, origin *Client, env Envelope) {
	raw, err := json.Marshal(env)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[channelID] {
		if c == origin {
			continue
		}
		c.trySend(raw)
	}
}

// InRoom reports whether the connection is currently in the channel's room.
func (h *Hub) InRoom(channelID uint64, c *Client) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rooms[channelID][c]
}
