// ABOUTME: Tests for the tenant authorization middleware
// ABOUTME: Membership is the isolation boundary; non-members always get 403

package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskvine/vine-gateway/internal/store"
)

// failingMemberships returns a fixed error from every lookup.
type failingMemberships struct {
	err error
}

func (f *failingMemberships) GetMembership(ctx context.Context, orgID, userID uuid.UUID) (*store.Membership, error) {
	return nil, f.err
}

func tenantTestSetup(t *testing.T) (*store.MockStore, uuid.UUID, uuid.UUID) {
	t.Helper()
	s := store.NewMockStore()
	orgID := uuid.New()
	userID := uuid.New()

	ctx := context.Background()
	require.NoError(t, s.CreateOrganization(ctx, &store.Organization{ID: orgID, Name: "acme", CreatedAt: time.Now()}))
	require.NoError(t, s.CreateUser(ctx, &store.User{ID: userID, Email: "a@example.com", DisplayName: "A", CreatedAt: time.Now()}))
	require.NoError(t, s.AddMembership(ctx, &store.Membership{OrgID: orgID, UserID: userID, Role: store.RoleManager, CreatedAt: time.Now()}))
	return s, orgID, userID
}

func sessionCapture(captured **Session) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*captured = SessionFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func requestWithPrincipal(method, target string, principal *Principal) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	if principal != nil {
		req = req.WithContext(WithPrincipal(req.Context(), principal))
	}
	return req
}

func TestRequireTenant_Success(t *testing.T) {
	s, orgID, userID := tenantTestSetup(t)

	var session *Session
	handler := RequireTenant(s, nil)(sessionCapture(&session))

	req := requestWithPrincipal(http.MethodGet, "/api/me", &Principal{UserID: userID, Role: store.RoleManager})
	req.Header.Set(TenantHeader, orgID.String())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, session)
	assert.Equal(t, orgID, session.OrgID)
	assert.Equal(t, userID, session.UserID)
	assert.Equal(t, store.RoleManager, session.Role)
	assert.True(t, session.Has(CapProjectsCreate))
	assert.False(t, session.Has(CapOrgDelete))
}

func TestRequireTenant_MissingHeader(t *testing.T) {
	s, _, userID := tenantTestSetup(t)

	var session *Session
	handler := RequireTenant(s, nil)(sessionCapture(&session))

	req := requestWithPrincipal(http.MethodGet, "/api/me", &Principal{UserID: userID})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, session)
}

func TestRequireTenant_MalformedHeader(t *testing.T) {
	s, _, userID := tenantTestSetup(t)

	var session *Session
	handler := RequireTenant(s, nil)(sessionCapture(&session))

	req := requestWithPrincipal(http.MethodGet, "/api/me", &Principal{UserID: userID})
	req.Header.Set(TenantHeader, "not-a-uuid")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, session)
}

func TestRequireTenant_NonMember(t *testing.T) {
	s, _, userID := tenantTestSetup(t)

	var session *Session
	handler := RequireTenant(s, nil)(sessionCapture(&session))

	// A valid org the user does not belong to.
	otherOrg := uuid.New()
	req := requestWithPrincipal(http.MethodGet, "/api/me", &Principal{UserID: userID, Role: store.RoleOwner})
	req.Header.Set(TenantHeader, otherOrg.String())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Nil(t, session)
}

func TestRequireTenant_NoPrincipal(t *testing.T) {
	s, orgID, _ := tenantTestSetup(t)

	var session *Session
	handler := RequireTenant(s, nil)(sessionCapture(&session))

	req := requestWithPrincipal(http.MethodGet, "/api/me", nil)
	req.Header.Set(TenantHeader, orgID.String())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Nil(t, session)
}

func TestRequireTenant_LookupFailure(t *testing.T) {
	memberships := &failingMemberships{err: errors.New("disk on fire")}

	var session *Session
	handler := RequireTenant(memberships, nil)(sessionCapture(&session))

	req := requestWithPrincipal(http.MethodGet, "/api/me", &Principal{UserID: uuid.New()})
	req.Header.Set(TenantHeader, uuid.New().String())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Nil(t, session)
}

func TestRequireCapabilityHTTP(t *testing.T) {
	session := &Session{
		OrgID:        uuid.New(),
		UserID:       uuid.New(),
		Role:         store.RoleGuest,
		Capabilities: DefaultCapabilities(store.RoleGuest),
	}

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("granted", func(t *testing.T) {
		handler := RequireCapabilityHTTP(CapTasksRead)(ok)
		req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
		req = req.WithContext(WithSession(req.Context(), session))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("denied", func(t *testing.T) {
		handler := RequireCapabilityHTTP(CapMembersInvite)(ok)
		req := httptest.NewRequest(http.MethodPost, "/api/members", nil)
		req = req.WithContext(WithSession(req.Context(), session))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("no session", func(t *testing.T) {
		handler := RequireCapabilityHTTP(CapTasksRead)(ok)
		req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
