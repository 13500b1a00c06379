// ABOUTME: Store interface and data types for vine-gateway persistence
// ABOUTME: Defines Organization, User, Membership and the Store interface

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateUser is returned when creating a user whose email is taken.
var ErrDuplicateUser = errors.New("user already exists")

// ErrDuplicateMembership is returned when adding a membership that already
// exists for the (org, user) pair.
var ErrDuplicateMembership = errors.New("membership already exists")

// Organization is an isolated workspace. All domain data and realtime
// events are scoped to one.
type Organization struct {
	ID        uuid.UUID
	Name      string
	CreatedAt time.Time
}

// User is a registered account. Users may belong to multiple organizations.
type User struct {
	ID          uuid.UUID
	Email       string
	DisplayName string
	CreatedAt   time.Time
}

// Membership binds a user to an organization with a role. It is the fact
// the tenant authorization stage checks on every request.
type Membership struct {
	OrgID     uuid.UUID
	UserID    uuid.UUID
	Role      Role
	CreatedAt time.Time
}

// Member is a membership joined with its user's profile, as returned by
// ListMembers.
type Member struct {
	UserID      uuid.UUID
	Email       string
	DisplayName string
	Role        Role
	CreatedAt   time.Time
}

// Store defines the interface for organization and membership persistence.
type Store interface {
	// Organizations
	CreateOrganization(ctx context.Context, org *Organization) error
	GetOrganization(ctx context.Context, id uuid.UUID) (*Organization, error)

	// Users
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// Memberships
	AddMembership(ctx context.Context, m *Membership) error
	GetMembership(ctx context.Context, orgID, userID uuid.UUID) (*Membership, error)
	ListMembers(ctx context.Context, orgID uuid.UUID) ([]*Member, error)
	UpdateMembershipRole(ctx context.Context, orgID, userID uuid.UUID, role Role) error
	DeleteMembership(ctx context.Context, orgID, userID uuid.UUID) error

	Close() error
}
