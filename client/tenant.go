// ABOUTME: Active-org cell with optional persistence across restarts
// ABOUTME: A file-backed Persistence implementation covers the common case

package client

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Persistence stores the active org ID across process restarts.
// Implementations must tolerate Load being called before any Save.
type Persistence interface {
	// Save records the active org ID. An empty string clears it.
	Save(orgID string) error
	// Load returns the recorded org ID, or "" if none was saved.
	Load() (string, error)
}

// TenantContext tracks which org the client is currently operating in.
// With a nil Persistence the active org lives only in memory.
type TenantContext struct {
	mu      sync.RWMutex
	orgID   uuid.UUID
	set     bool
	persist Persistence
}

// NewTenantContext creates a TenantContext. If persist is non-nil, the
// previously saved org is restored; a corrupt or unreadable saved value is
// discarded rather than failing construction.
func NewTenantContext(persist Persistence) *TenantContext {
	tc := &TenantContext{persist: persist}
	if persist != nil {
		if saved, err := persist.Load(); err == nil && saved != "" {
			if id, err := uuid.Parse(saved); err == nil {
				tc.orgID = id
				tc.set = true
			}
		}
	}
	return tc
}

// Get returns the active org ID, or false if none is set.
func (tc *TenantContext) Get() (uuid.UUID, bool) {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.orgID, tc.set
}

// Set makes orgID the active org and persists it if a Persistence is
// configured. The in-memory value is updated even when persisting fails.
func (tc *TenantContext) Set(orgID uuid.UUID) error {
	tc.mu.Lock()
	tc.orgID = orgID
	tc.set = true
	persist := tc.persist
	tc.mu.Unlock()

	if persist != nil {
		if err := persist.Save(orgID.String()); err != nil {
			return fmt.Errorf("persisting active org: %w", err)
		}
	}
	return nil
}

// Clear unsets the active org.
func (tc *TenantContext) Clear() error {
	tc.mu.Lock()
	tc.orgID = uuid.Nil
	tc.set = false
	persist := tc.persist
	tc.mu.Unlock()

	if persist != nil {
		if err := persist.Save(""); err != nil {
			return fmt.Errorf("clearing persisted org: %w", err)
		}
	}
	return nil
}

// FilePersistence stores the active org ID in a plain text file.
type FilePersistence struct {
	path string
}

// NewFilePersistence creates a FilePersistence writing to path. Parent
// directories are created on first Save.
func NewFilePersistence(path string) *FilePersistence {
	return &FilePersistence{path: path}
}

// Save writes the org ID to the file, or removes the file when orgID is
// empty.
func (p *FilePersistence) Save(orgID string) error {
	if orgID == "" {
		if err := os.Remove(p.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("removing org file: %w", err)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(p.path), 0700); err != nil {
		return fmt.Errorf("creating org file directory: %w", err)
	}
	if err := os.WriteFile(p.path, []byte(orgID+"\n"), 0600); err != nil {
		return fmt.Errorf("writing org file: %w", err)
	}
	return nil
}

// Load reads the saved org ID. A missing file is not an error.
func (p *FilePersistence) Load() (string, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("reading org file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
