// ABOUTME: Websocket endpoint that authenticates, binds to one org, and serves
// ABOUTME: subscribe/unsubscribe/ping control messages from clients

package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/taskvine/vine-gateway/internal/auth"
	"github.com/taskvine/vine-gateway/internal/store"
)

// clientMessage is the control message clients send over the socket.
type clientMessage struct {
	Action   string   `json:"action"`
	Channels []string `json:"channels,omitempty"`
}

// Handler upgrades authenticated requests to websocket connections bound to
// a single organization. Authentication and membership are checked before
// the upgrade so failures surface as plain HTTP statuses.
type Handler struct {
	verifier    auth.TokenVerifier
	memberships auth.MembershipSource
	hub         *Hub
	logger      *slog.Logger
}

// NewHandler creates a websocket handler backed by the given hub.
func NewHandler(verifier auth.TokenVerifier, memberships auth.MembershipSource, hub *Hub, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		verifier:    verifier,
		memberships: memberships,
		hub:         hub,
		logger:      logger.With("component", "realtime"),
	}
}

// extractToken pulls the credential from the Authorization header, falling
// back to the token query parameter for clients that cannot set headers on
// websocket dials.
func extractToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := extractToken(r)
	if token == "" {
		http.Error(w, `{"error":"invalid or expired credential"}`, http.StatusUnauthorized)
		return
	}
	principal, err := h.verifier.Verify(token)
	if err != nil {
		h.logger.Warn("ws auth failure", "error", err, "remote_addr", r.RemoteAddr)
		http.Error(w, `{"error":"invalid or expired credential"}`, http.StatusUnauthorized)
		return
	}

	orgID, err := uuid.Parse(r.URL.Query().Get("org_id"))
	if err != nil {
		http.Error(w, `{"error":"missing or invalid org_id"}`, http.StatusBadRequest)
		return
	}

	// Membership is the tenant-isolation gate; verified before the upgrade.
	if _, err := h.memberships.GetMembership(r.Context(), orgID, principal.UserID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, `{"error":"you do not have access to this workspace"}`, http.StatusForbidden)
			return
		}
		http.Error(w, `{"error":"membership lookup failed"}`, http.StatusInternalServerError)
		return
	}

	sock, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("ws accept failed", "error", err)
		return
	}

	connID := h.hub.AddConnection(principal.UserID, orgID, sock, []string{OrgChannel(orgID)})
	defer h.hub.RemoveConnection(connID)

	h.readLoop(r.Context(), sock, connID, orgID)
	_ = sock.Close(websocket.StatusNormalClosure, "closed")
}

// readLoop services control messages until the client goes away. Malformed
// messages are dropped without tearing down the connection.
func (h *Handler) readLoop(ctx context.Context, sock *websocket.Conn, connID, orgID uuid.UUID) {
	for {
		_, data, err := sock.Read(ctx)
		if err != nil {
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		switch msg.Action {
		case "ping":
			_ = sock.Write(ctx, websocket.MessageText, []byte(`{"type":"pong"}`))
		case "subscribe":
			h.hub.Subscribe(connID, allowedChannels(msg.Channels, orgID))
		case "unsubscribe":
			h.hub.Unsubscribe(connID, allowedChannels(msg.Channels, orgID))
		}
	}
}

// allowedChannels filters a subscribe request down to channels the
// connection may join. The org channel is restricted to the bound org;
// project and list channels must carry a well-formed entity ID. Whether a
// project or list actually belongs to the org is enforced where events are
// published.
func allowedChannels(channels []string, orgID uuid.UUID) []string {
	allowed := make([]string, 0, len(channels))
	for _, ch := range channels {
		switch {
		case strings.HasPrefix(ch, "org:"):
			if ch == OrgChannel(orgID) {
				allowed = append(allowed, ch)
			}
		case strings.HasPrefix(ch, "project:"):
			if _, err := uuid.Parse(strings.TrimPrefix(ch, "project:")); err == nil {
				allowed = append(allowed, ch)
			}
		case strings.HasPrefix(ch, "list:"):
			if _, err := uuid.Parse(strings.TrimPrefix(ch, "list:")); err == nil {
				allowed = append(allowed, ch)
			}
		}
	}
	return allowed
}
