// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides org/user/membership persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path. The schema is
// automatically created if it doesn't exist. Parent directories are created
// if needed. Pass ":memory:" for an ephemeral store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0700); err != nil {
				return nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Serialize writers; the modernc driver does not support concurrent
	// write transactions on a single file.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("store opened", "path", path)
	return s, nil
}

// createSchema creates the tables if they don't exist.
func (s *SQLiteStore) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS organizations (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS memberships (
		org_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		role TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (org_id, user_id),
		FOREIGN KEY (org_id) REFERENCES organizations(id),
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE INDEX IF NOT EXISTS idx_memberships_user ON memberships(user_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateOrganization stores a new organization.
func (s *SQLiteStore) CreateOrganization(ctx context.Context, org *Organization) error {
	query := `INSERT INTO organizations (id, name, created_at) VALUES (?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		org.ID.String(),
		org.Name,
		org.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("creating organization: %w", err)
	}

	s.logger.Debug("created organization", "org_id", org.ID, "name", org.Name)
	return nil
}

// GetOrganization retrieves an organization by ID.
func (s *SQLiteStore) GetOrganization(ctx context.Context, id uuid.UUID) (*Organization, error) {
	query := `SELECT id, name, created_at FROM organizations WHERE id = ?`

	var org Organization
	var idRaw, createdAt string
	err := s.db.QueryRowContext(ctx, query, id.String()).Scan(&idRaw, &org.Name, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting organization: %w", err)
	}

	if org.ID, err = uuid.Parse(idRaw); err != nil {
		return nil, fmt.Errorf("parsing organization id: %w", err)
	}
	if org.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing organization created_at: %w", err)
	}
	return &org, nil
}

// CreateUser stores a new user. Returns ErrDuplicateUser if the email is
// already registered.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *User) error {
	query := `INSERT INTO users (id, email, display_name, created_at) VALUES (?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		user.ID.String(),
		user.Email,
		user.DisplayName,
		user.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateUser
		}
		return fmt.Errorf("creating user: %w", err)
	}

	s.logger.Debug("created user", "user_id", user.ID, "email", user.Email)
	return nil
}

// GetUser retrieves a user by ID.
func (s *SQLiteStore) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	query := `SELECT id, email, display_name, created_at FROM users WHERE id = ?`
	return s.scanUser(s.db.QueryRowContext(ctx, query, id.String()))
}

// GetUserByEmail retrieves a user by email address.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	query := `SELECT id, email, display_name, created_at FROM users WHERE email = ?`
	return s.scanUser(s.db.QueryRowContext(ctx, query, email))
}

func (s *SQLiteStore) scanUser(row *sql.Row) (*User, error) {
	var user User
	var idRaw, createdAt string
	err := row.Scan(&idRaw, &user.Email, &user.DisplayName, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting user: %w", err)
	}

	if user.ID, err = uuid.Parse(idRaw); err != nil {
		return nil, fmt.Errorf("parsing user id: %w", err)
	}
	if user.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing user created_at: %w", err)
	}
	return &user, nil
}
