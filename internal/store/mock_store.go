// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu          sync.RWMutex
	orgs        map[uuid.UUID]*Organization
	users       map[uuid.UUID]*User
	usersByMail map[string]uuid.UUID
	memberships map[membershipKey]*Membership
}

type membershipKey struct {
	orgID  uuid.UUID
	userID uuid.UUID
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		orgs:        make(map[uuid.UUID]*Organization),
		users:       make(map[uuid.UUID]*User),
		usersByMail: make(map[string]uuid.UUID),
		memberships: make(map[membershipKey]*Membership),
	}
}

// CreateOrganization stores a new organization.
func (m *MockStore) CreateOrganization(ctx context.Context, org *Organization) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Copy to avoid external modification
	o := *org
	m.orgs[o.ID] = &o
	return nil
}

// GetOrganization retrieves an organization by ID.
func (m *MockStore) GetOrganization(ctx context.Context, id uuid.UUID) (*Organization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.orgs[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := *o
	return &result, nil
}

// CreateUser stores a new user.
func (m *MockStore) CreateUser(ctx context.Context, user *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, taken := m.usersByMail[user.Email]; taken {
		return ErrDuplicateUser
	}
	u := *user
	m.users[u.ID] = &u
	m.usersByMail[u.Email] = u.ID
	return nil
}

// GetUser retrieves a user by ID.
func (m *MockStore) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := *u
	return &result, nil
}

// GetUserByEmail retrieves a user by email address.
func (m *MockStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.usersByMail[email]
	if !ok {
		return nil, ErrNotFound
	}
	result := *m.users[id]
	return &result, nil
}

// AddMembership binds a user to an organization.
func (m *MockStore) AddMembership(ctx context.Context, mem *Membership) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := membershipKey{mem.OrgID, mem.UserID}
	if _, exists := m.memberships[key]; exists {
		return ErrDuplicateMembership
	}
	cp := *mem
	m.memberships[key] = &cp
	return nil
}

// GetMembership retrieves the membership for (orgID, userID).
func (m *MockStore) GetMembership(ctx context.Context, orgID, userID uuid.UUID) (*Membership, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	mem, ok := m.memberships[membershipKey{orgID, userID}]
	if !ok {
		return nil, ErrNotFound
	}
	result := *mem
	return &result, nil
}

// ListMembers returns every member of an organization.
func (m *MockStore) ListMembers(ctx context.Context, orgID uuid.UUID) ([]*Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var members []*Member
	for key, mem := range m.memberships {
		if key.orgID != orgID {
			continue
		}
		member := &Member{
			UserID:    mem.UserID,
			Role:      mem.Role,
			CreatedAt: mem.CreatedAt,
		}
		if u, ok := m.users[mem.UserID]; ok {
			member.Email = u.Email
			member.DisplayName = u.DisplayName
		}
		members = append(members, member)
	}
	return members, nil
}

// UpdateMembershipRole changes the role on an existing membership.
func (m *MockStore) UpdateMembershipRole(ctx context.Context, orgID, userID uuid.UUID, role Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	mem, ok := m.memberships[membershipKey{orgID, userID}]
	if !ok {
		return ErrNotFound
	}
	mem.Role = role
	return nil
}

// DeleteMembership removes a user from an organization.
func (m *MockStore) DeleteMembership(ctx context.Context, orgID, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := membershipKey{orgID, userID}
	if _, ok := m.memberships[key]; !ok {
		return ErrNotFound
	}
	delete(m.memberships, key)
	return nil
}

// Close is a no-op for the mock store.
func (m *MockStore) Close() error {
	return nil
}
