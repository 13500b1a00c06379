// ABOUTME: Tests for the HTTP API through the full middleware pipeline
// ABOUTME: Uses a MockStore and httptest against the gateway's router

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskvine/vine-gateway/internal/auth"
	"github.com/taskvine/vine-gateway/internal/config"
	"github.com/taskvine/vine-gateway/internal/store"
)

const gatewayTestSecret = "0123456789abcdef0123456789abcdef"

type apiFixture struct {
	srv     *httptest.Server
	gw      *Gateway
	store   *store.MockStore
	orgID   uuid.UUID
	ownerID uuid.UUID
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	cfg := &config.Config{}
	cfg.Server.HTTPAddr = "localhost:0"
	cfg.Database.Path = "unused"
	cfg.Auth.JWTSecret = gatewayTestSecret

	s := store.NewMockStore()
	gw, err := NewWithStore(cfg, s, nil)
	require.NoError(t, err)

	ctx := context.Background()
	orgID := uuid.New()
	ownerID := uuid.New()
	require.NoError(t, s.CreateOrganization(ctx, &store.Organization{ID: orgID, Name: "acme", CreatedAt: time.Now()}))
	require.NoError(t, s.CreateUser(ctx, &store.User{ID: ownerID, Email: "owner@example.com", DisplayName: "Owner", CreatedAt: time.Now()}))
	require.NoError(t, s.AddMembership(ctx, &store.Membership{OrgID: orgID, UserID: ownerID, Role: store.RoleOwner, CreatedAt: time.Now()}))

	srv := httptest.NewServer(gw.Handler())
	t.Cleanup(srv.Close)

	return &apiFixture{srv: srv, gw: gw, store: s, orgID: orgID, ownerID: ownerID}
}

func (f *apiFixture) token(t *testing.T, userID uuid.UUID, role store.Role) string {
	t.Helper()
	verifier, err := auth.NewJWTVerifier([]byte(gatewayTestSecret))
	require.NoError(t, err)
	token, err := verifier.Generate(userID, role, time.Hour)
	require.NoError(t, err)
	return token
}

// request performs an authenticated request against the test server.
func (f *apiFixture) request(t *testing.T, method, path, token string, orgID uuid.UUID, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.srv.URL+path, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if orgID != uuid.Nil {
		req.Header.Set("X-Org-Id", orgID.String())
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// addUser creates a user and optionally a membership in the fixture org.
func (f *apiFixture) addUser(t *testing.T, email string, role store.Role, member bool) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	id := uuid.New()
	require.NoError(t, f.store.CreateUser(ctx, &store.User{ID: id, Email: email, DisplayName: email, CreatedAt: time.Now()}))
	if member {
		require.NoError(t, f.store.AddMembership(ctx, &store.Membership{OrgID: f.orgID, UserID: id, Role: role, CreatedAt: time.Now()}))
	}
	return id
}

func TestHealthEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	resp, err := http.Get(f.srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(f.srv.URL + "/health/ready")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMe(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.request(t, http.MethodGet, "/api/me", f.token(t, f.ownerID, store.RoleOwner), f.orgID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var session struct {
		OrgID        uuid.UUID `json:"org_id"`
		UserID       uuid.UUID `json:"user_id"`
		Role         string    `json:"role"`
		Capabilities []string  `json:"capabilities"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&session))
	assert.Equal(t, f.orgID, session.OrgID)
	assert.Equal(t, f.ownerID, session.UserID)
	assert.Equal(t, "owner", session.Role)
	assert.Contains(t, session.Capabilities, "org.delete")
}

func TestMe_RequiresAuthAndTenant(t *testing.T) {
	f := newAPIFixture(t)
	token := f.token(t, f.ownerID, store.RoleOwner)

	// No credential at all.
	resp := f.request(t, http.MethodGet, "/api/me", "", f.orgID, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Credential but no org header.
	resp = f.request(t, http.MethodGet, "/api/me", token, uuid.Nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Credential but org the caller is not a member of.
	resp = f.request(t, http.MethodGet, "/api/me", token, uuid.New(), nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestListMembers(t *testing.T) {
	f := newAPIFixture(t)
	f.addUser(t, "bob@example.com", store.RoleGuest, true)

	resp := f.request(t, http.MethodGet, "/api/members", f.token(t, f.ownerID, store.RoleOwner), f.orgID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body ListMembersResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Len(t, body.Members, 2)
}

func TestAddMember(t *testing.T) {
	f := newAPIFixture(t)
	newUser := f.addUser(t, "new@example.com", "", false)
	token := f.token(t, f.ownerID, store.RoleOwner)

	resp := f.request(t, http.MethodPost, "/api/members", token, f.orgID,
		AddMemberRequest{UserID: newUser.String(), Role: "member"})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	// Adding the same user twice conflicts.
	resp = f.request(t, http.MethodPost, "/api/members", token, f.orgID,
		AddMemberRequest{UserID: newUser.String(), Role: "member"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Unknown users cannot be added.
	resp = f.request(t, http.MethodPost, "/api/members", token, f.orgID,
		AddMemberRequest{UserID: uuid.New().String(), Role: "member"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Made-up roles are rejected.
	another := f.addUser(t, "another@example.com", "", false)
	resp = f.request(t, http.MethodPost, "/api/members", token, f.orgID,
		AddMemberRequest{UserID: another.String(), Role: "superuser"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAddMember_RequiresCapability(t *testing.T) {
	f := newAPIFixture(t)
	memberID := f.addUser(t, "member@example.com", store.RoleMember, true)
	target := f.addUser(t, "target@example.com", "", false)

	// Plain members lack members.invite.
	resp := f.request(t, http.MethodPost, "/api/members", f.token(t, memberID, store.RoleMember), f.orgID,
		AddMemberRequest{UserID: target.String(), Role: "member"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestUpdateMemberRole(t *testing.T) {
	f := newAPIFixture(t)
	memberID := f.addUser(t, "member@example.com", store.RoleMember, true)
	token := f.token(t, f.ownerID, store.RoleOwner)

	resp := f.request(t, http.MethodPatch, "/api/members/"+memberID.String(), token, f.orgID,
		UpdateMemberRequest{Role: "manager"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	m, err := f.store.GetMembership(context.Background(), f.orgID, memberID)
	require.NoError(t, err)
	assert.Equal(t, store.RoleManager, m.Role)

	// Unknown membership is a 404.
	resp = f.request(t, http.MethodPatch, "/api/members/"+uuid.New().String(), token, f.orgID,
		UpdateMemberRequest{Role: "manager"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRemoveMember(t *testing.T) {
	f := newAPIFixture(t)
	memberID := f.addUser(t, "member@example.com", store.RoleMember, true)
	token := f.token(t, f.ownerID, store.RoleOwner)

	resp := f.request(t, http.MethodDelete, "/api/members/"+memberID.String(), token, f.orgID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, err := f.store.GetMembership(context.Background(), f.orgID, memberID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	resp = f.request(t, http.MethodDelete, "/api/members/"+memberID.String(), token, f.orgID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPublishEvent(t *testing.T) {
	f := newAPIFixture(t)
	token := f.token(t, f.ownerID, store.RoleOwner)

	resp := f.request(t, http.MethodPost, "/api/events", token, f.orgID,
		PublishEventRequest{Type: "task.updated", EntityID: uuid.New().String()})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var body PublishEventResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.NotEmpty(t, body.EventID)

	// Publishing into another org's channel is rejected.
	resp = f.request(t, http.MethodPost, "/api/events", token, f.orgID,
		PublishEventRequest{Type: "task.updated", EntityID: uuid.New().String(), Channel: "org:" + uuid.New().String()})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Type is required.
	resp = f.request(t, http.MethodPost, "/api/events", token, f.orgID,
		PublishEventRequest{EntityID: uuid.New().String()})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPublishEvent_RequiresCapability(t *testing.T) {
	f := newAPIFixture(t)
	memberID := f.addUser(t, "member@example.com", store.RoleMember, true)

	resp := f.request(t, http.MethodPost, "/api/events", f.token(t, memberID, store.RoleMember), f.orgID,
		PublishEventRequest{Type: "task.updated", EntityID: uuid.New().String()})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
