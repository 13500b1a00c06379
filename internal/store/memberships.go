// ABOUTME: Membership store methods backing the tenant authorization stage
// ABOUTME: Rows bind (org, user) pairs to a role; lookups are never cached

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AddMembership binds a user to an organization with a role. Returns
// ErrDuplicateMembership if the pair already exists.
func (s *SQLiteStore) AddMembership(ctx context.Context, m *Membership) error {
	query := `INSERT INTO memberships (org_id, user_id, role, created_at) VALUES (?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		m.OrgID.String(),
		m.UserID.String(),
		string(m.Role),
		m.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateMembership
		}
		return fmt.Errorf("adding membership: %w", err)
	}

	s.logger.Debug("added membership", "org_id", m.OrgID, "user_id", m.UserID, "role", m.Role)
	return nil
}

// GetMembership retrieves the membership row for (orgID, userID). Returns
// ErrNotFound when the user is not a member of the organization.
func (s *SQLiteStore) GetMembership(ctx context.Context, orgID, userID uuid.UUID) (*Membership, error) {
	query := `SELECT role, created_at FROM memberships WHERE org_id = ? AND user_id = ?`

	var roleRaw, createdAt string
	err := s.db.QueryRowContext(ctx, query, orgID.String(), userID.String()).Scan(&roleRaw, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting membership: %w", err)
	}

	role, err := ParseRole(roleRaw)
	if err != nil {
		return nil, fmt.Errorf("parsing membership role: %w", err)
	}

	m := &Membership{OrgID: orgID, UserID: userID, Role: role}
	if m.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing membership created_at: %w", err)
	}
	return m, nil
}

// ListMembers returns every member of an organization joined with their
// user profile, ordered by join time.
func (s *SQLiteStore) ListMembers(ctx context.Context, orgID uuid.UUID) ([]*Member, error) {
	query := `
		SELECT m.user_id, u.email, u.display_name, m.role, m.created_at
		FROM memberships m
		JOIN users u ON u.id = m.user_id
		WHERE m.org_id = ?
		ORDER BY m.created_at, m.user_id
	`

	rows, err := s.db.QueryContext(ctx, query, orgID.String())
	if err != nil {
		return nil, fmt.Errorf("listing members: %w", err)
	}
	defer rows.Close()

	var members []*Member
	for rows.Next() {
		var m Member
		var userIDRaw, roleRaw, createdAt string
		if err := rows.Scan(&userIDRaw, &m.Email, &m.DisplayName, &roleRaw, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning member: %w", err)
		}
		if m.UserID, err = uuid.Parse(userIDRaw); err != nil {
			return nil, fmt.Errorf("parsing member user_id: %w", err)
		}
		if m.Role, err = ParseRole(roleRaw); err != nil {
			return nil, fmt.Errorf("parsing member role: %w", err)
		}
		if m.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing member created_at: %w", err)
		}
		members = append(members, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating members: %w", err)
	}
	return members, nil
}

// UpdateMembershipRole changes the role on an existing membership. Returns
// ErrNotFound if the membership does not exist.
func (s *SQLiteStore) UpdateMembershipRole(ctx context.Context, orgID, userID uuid.UUID, role Role) error {
	query := `UPDATE memberships SET role = ? WHERE org_id = ? AND user_id = ?`

	res, err := s.db.ExecContext(ctx, query, string(role), orgID.String(), userID.String())
	if err != nil {
		return fmt.Errorf("updating membership role: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating membership role: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	s.logger.Debug("updated membership role", "org_id", orgID, "user_id", userID, "role", role)
	return nil
}

// DeleteMembership removes a user from an organization. Returns ErrNotFound
// if the membership does not exist.
func (s *SQLiteStore) DeleteMembership(ctx context.Context, orgID, userID uuid.UUID) error {
	query := `DELETE FROM memberships WHERE org_id = ? AND user_id = ?`

	res, err := s.db.ExecContext(ctx, query, orgID.String(), userID.String())
	if err != nil {
		return fmt.Errorf("deleting membership: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting membership: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	s.logger.Debug("deleted membership", "org_id", orgID, "user_id", userID)
	return nil
}
