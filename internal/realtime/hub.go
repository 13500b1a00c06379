// ABOUTME: In-memory websocket hub keyed by logical channels (org/project/list)
// ABOUTME: Tracks subscriptions and fans events out to subscribed connections

package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
)

// defaultWriteTimeout bounds how long a single fanout write may block.
const defaultWriteTimeout = 5 * time.Second

// connection is one live websocket bound to an org.
type connection struct {
	id       uuid.UUID
	userID   uuid.UUID
	orgID    uuid.UUID
	sock     *websocket.Conn
	channels map[string]struct{}
}

// Hub is the process-local registry of live connections and their channel
// subscriptions. All bookkeeping happens under one lock; writes to sockets
// happen outside it.
type Hub struct {
	mu             sync.Mutex
	conns          map[uuid.UUID]*connection
	channelMembers map[string]map[uuid.UUID]struct{}
	logger         *slog.Logger
	writeTimeout   time.Duration
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		conns:          make(map[uuid.UUID]*connection),
		channelMembers: make(map[string]map[uuid.UUID]struct{}),
		logger:         logger.With("component", "realtime"),
		writeTimeout:   defaultWriteTimeout,
	}
}

// AddConnection registers a socket and subscribes it to initialChannels.
// Returns the connection ID used for later bookkeeping calls.
func (h *Hub) AddConnection(userID, orgID uuid.UUID, sock *websocket.Conn, initialChannels []string) uuid.UUID {
	id := uuid.New()

	h.mu.Lock()
	defer h.mu.Unlock()

	conn := &connection{
		id:       id,
		userID:   userID,
		orgID:    orgID,
		sock:     sock,
		channels: make(map[string]struct{}, len(initialChannels)),
	}
	for _, c := range initialChannels {
		conn.channels[c] = struct{}{}
		h.addMemberLocked(c, id)
	}
	h.conns[id] = conn

	h.logger.Debug("connection added", "conn_id", id, "user_id", userID, "org_id", orgID)
	return id
}

// RemoveConnection drops a connection and all its subscriptions. Safe to
// call for an already-removed ID.
func (h *Hub) RemoveConnection(id uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeConnectionLocked(id)
}

func (h *Hub) removeConnectionLocked(id uuid.UUID) {
	conn, ok := h.conns[id]
	if !ok {
		return
	}
	delete(h.conns, id)
	for c := range conn.channels {
		h.removeMemberLocked(c, id)
	}
	h.logger.Debug("connection removed", "conn_id", id)
}

// Subscribe adds channels to an existing connection.
func (h *Hub) Subscribe(id uuid.UUID, channels []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn, ok := h.conns[id]
	if !ok {
		return
	}
	for _, c := range channels {
		if _, already := conn.channels[c]; already {
			continue
		}
		conn.channels[c] = struct{}{}
		h.addMemberLocked(c, id)
	}
}

// Unsubscribe removes channels from an existing connection.
func (h *Hub) Unsubscribe(id uuid.UUID, channels []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn, ok := h.conns[id]
	if !ok {
		return
	}
	for _, c := range channels {
		if _, subscribed := conn.channels[c]; !subscribed {
			continue
		}
		delete(conn.channels, c)
		h.removeMemberLocked(c, id)
	}
}

func (h *Hub) addMemberLocked(channel string, id uuid.UUID) {
	members, ok := h.channelMembers[channel]
	if !ok {
		members = make(map[uuid.UUID]struct{})
		h.channelMembers[channel] = members
	}
	members[id] = struct{}{}
}

func (h *Hub) removeMemberLocked(channel string, id uuid.UUID) {
	members, ok := h.channelMembers[channel]
	if !ok {
		return
	}
	delete(members, id)
	if len(members) == 0 {
		delete(h.channelMembers, channel)
	}
}

// Subscriptions returns the channels a connection is currently subscribed
// to. Returns nil for unknown connections.
func (h *Hub) Subscriptions(id uuid.UUID) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn, ok := h.conns[id]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(conn.channels))
	for c := range conn.channels {
		out = append(out, c)
	}
	return out
}

// ConnectionCount returns the number of live connections.
func (h *Hub) ConnectionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Broadcast delivers an event to every connection subscribed to channel.
// Socket writes happen outside the hub lock with a per-write timeout; a
// connection that fails its write is closed and dropped.
func (h *Hub) Broadcast(ctx context.Context, channel string, event Event) {
	h.mu.Lock()
	targets := make([]*connection, 0, len(h.channelMembers[channel]))
	for id := range h.channelMembers[channel] {
		if conn, ok := h.conns[id]; ok {
			targets = append(targets, conn)
		}
	}
	h.mu.Unlock()

	for _, conn := range targets {
		writeCtx, cancel := context.WithTimeout(ctx, h.writeTimeout)
		err := wsjson.Write(writeCtx, conn.sock, event)
		cancel()
		if err != nil {
			h.logger.Warn("dropping unwritable connection",
				"conn_id", conn.id, "channel", channel, "error", err)
			_ = conn.sock.Close(websocket.StatusNormalClosure, "write failed")
			h.RemoveConnection(conn.id)
		}
	}
}

// CloseAll closes every connection, used during shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	conns := make([]*connection, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.conns = make(map[uuid.UUID]*connection)
	h.channelMembers = make(map[string]map[uuid.UUID]struct{})
	h.mu.Unlock()

	for _, c := range conns {
		_ = c.sock.Close(websocket.StatusGoingAway, "server shutting down")
	}
}
