// ABOUTME: HTTP API handlers for session introspection and member administration
// ABOUTME: All handlers run behind the Authenticate + RequireTenant pipeline

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/taskvine/vine-gateway/internal/auth"
	"github.com/taskvine/vine-gateway/internal/realtime"
	"github.com/taskvine/vine-gateway/internal/store"
)

// MemberResponse is the JSON shape of one org member.
type MemberResponse struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	JoinedAt    string `json:"joined_at"`
}

// ListMembersResponse is the JSON response for GET /api/members.
type ListMembersResponse struct {
	Members []MemberResponse `json:"members"`
}

// AddMemberRequest is the JSON request body for POST /api/members.
type AddMemberRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// UpdateMemberRequest is the JSON request body for PATCH /api/members/{userID}.
type UpdateMemberRequest struct {
	Role string `json:"role"`
}

// PublishEventRequest is the JSON request body for POST /api/events.
type PublishEventRequest struct {
	Type     string            `json:"type"`
	EntityID string            `json:"entity_id"`
	Channel  string            `json:"channel,omitempty"`
	Payload  map[string]string `json:"payload,omitempty"`
}

// PublishEventResponse is the JSON response for POST /api/events.
type PublishEventResponse struct {
	EventID string `json:"event_id"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleHealth is the liveness check.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady is the readiness check; it verifies the store answers.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	// A lookup for a nonexistent org exercises the full store path.
	if _, err := g.store.GetOrganization(r.Context(), uuid.Nil); err != nil && !errors.Is(err, store.ErrNotFound) {
		writeJSONError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleMe returns the resolved session for the caller.
func (g *Gateway) handleMe(w http.ResponseWriter, r *http.Request) {
	session := auth.MustSessionFromContext(r.Context())
	writeJSON(w, http.StatusOK, session)
}

// handleListMembers returns every member of the session's org.
func (g *Gateway) handleListMembers(w http.ResponseWriter, r *http.Request) {
	session := auth.MustSessionFromContext(r.Context())

	members, err := g.store.ListMembers(r.Context(), session.OrgID)
	if err != nil {
		g.logger.Error("listing members failed", "error", err, "org_id", session.OrgID)
		writeJSONError(w, http.StatusInternalServerError, "failed to list members")
		return
	}

	resp := ListMembersResponse{Members: make([]MemberResponse, 0, len(members))}
	for _, m := range members {
		resp.Members = append(resp.Members, MemberResponse{
			UserID:      m.UserID.String(),
			Email:       m.Email,
			DisplayName: m.DisplayName,
			Role:        string(m.Role),
			JoinedAt:    m.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleAddMember adds an existing user to the session's org.
func (g *Gateway) handleAddMember(w http.ResponseWriter, r *http.Request) {
	session := auth.MustSessionFromContext(r.Context())

	var req AddMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid user_id")
		return
	}
	role, err := store.ParseRole(req.Role)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid role")
		return
	}

	if _, err := g.store.GetUser(r.Context(), userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSONError(w, http.StatusNotFound, "user not found")
			return
		}
		writeJSONError(w, http.StatusInternalServerError, "user lookup failed")
		return
	}

	m := &store.Membership{
		OrgID:     session.OrgID,
		UserID:    userID,
		Role:      role,
		CreatedAt: time.Now(),
	}
	if err := g.store.AddMembership(r.Context(), m); err != nil {
		if errors.Is(err, store.ErrDuplicateMembership) {
			writeJSONError(w, http.StatusConflict, "already a member")
			return
		}
		g.logger.Error("adding membership failed", "error", err, "org_id", session.OrgID, "user_id", userID)
		writeJSONError(w, http.StatusInternalServerError, "failed to add member")
		return
	}

	g.logger.Info("member added", "org_id", session.OrgID, "user_id", userID, "role", role, "added_by", session.UserID)
	writeJSON(w, http.StatusCreated, map[string]string{"user_id": userID.String(), "role": string(role)})
}

// handleUpdateMemberRole changes a member's role.
func (g *Gateway) handleUpdateMemberRole(w http.ResponseWriter, r *http.Request) {
	session := auth.MustSessionFromContext(r.Context())

	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	var req UpdateMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	role, err := store.ParseRole(req.Role)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid role")
		return
	}

	if err := g.store.UpdateMembershipRole(r.Context(), session.OrgID, userID, role); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSONError(w, http.StatusNotFound, "membership not found")
			return
		}
		writeJSONError(w, http.StatusInternalServerError, "failed to update role")
		return
	}

	g.logger.Info("member role updated", "org_id", session.OrgID, "user_id", userID, "role", role, "updated_by", session.UserID)
	writeJSON(w, http.StatusOK, map[string]string{"user_id": userID.String(), "role": string(role)})
}

// handleRemoveMember removes a member from the session's org.
func (g *Gateway) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	session := auth.MustSessionFromContext(r.Context())

	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	if err := g.store.DeleteMembership(r.Context(), session.OrgID, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSONError(w, http.StatusNotFound, "membership not found")
			return
		}
		writeJSONError(w, http.StatusInternalServerError, "failed to remove member")
		return
	}

	g.logger.Info("member removed", "org_id", session.OrgID, "user_id", userID, "removed_by", session.UserID)
	w.WriteHeader(http.StatusNoContent)
}

// handlePublishEvent broadcasts an event to one of the org's channels.
// Business services emitting events on writes go through the same hub; this
// endpoint is the operational hook for everything else.
func (g *Gateway) handlePublishEvent(w http.ResponseWriter, r *http.Request) {
	session := auth.MustSessionFromContext(r.Context())

	var req PublishEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Type == "" {
		writeJSONError(w, http.StatusBadRequest, "type required")
		return
	}
	entityID, err := uuid.Parse(req.EntityID)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid entity_id")
		return
	}

	channel := req.Channel
	if channel == "" {
		channel = realtime.OrgChannel(session.OrgID)
	}
	if !validPublishChannel(channel, session.OrgID) {
		writeJSONError(w, http.StatusBadRequest, "invalid channel")
		return
	}

	event := realtime.NewEvent(session.OrgID, req.Type, entityID, req.Payload)
	g.hub.Broadcast(r.Context(), channel, event)

	writeJSON(w, http.StatusAccepted, PublishEventResponse{EventID: event.EventID})
}

// validPublishChannel restricts publishing to the session org's channel or
// a well-formed project/list channel.
func validPublishChannel(channel string, orgID uuid.UUID) bool {
	switch {
	case strings.HasPrefix(channel, "org:"):
		return channel == realtime.OrgChannel(orgID)
	case strings.HasPrefix(channel, "project:"):
		_, err := uuid.Parse(strings.TrimPrefix(channel, "project:"))
		return err == nil
	case strings.HasPrefix(channel, "list:"):
		_, err := uuid.Parse(strings.TrimPrefix(channel, "list:"))
		return err == nil
	default:
		return false
	}
}
