// ABOUTME: Tests for the active-org cell and its file persistence

package client

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTenantContext_MemoryOnly(t *testing.T) {
	tc := NewTenantContext(nil)

	_, ok := tc.Get()
	assert.False(t, ok)

	orgID := uuid.New()
	require.NoError(t, tc.Set(orgID))

	got, ok := tc.Get()
	require.True(t, ok)
	assert.Equal(t, orgID, got)

	require.NoError(t, tc.Clear())
	_, ok = tc.Get()
	assert.False(t, ok)
}

func TestTenantContext_RestoresFromPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "active-org")
	orgID := uuid.New()

	first := NewTenantContext(NewFilePersistence(path))
	require.NoError(t, first.Set(orgID))

	// A fresh context restores the saved org, matching a cold start.
	second := NewTenantContext(NewFilePersistence(path))
	got, ok := second.Get()
	require.True(t, ok)
	assert.Equal(t, orgID, got)
}

func TestTenantContext_ClearRemovesPersistedValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "active-org")

	tc := NewTenantContext(NewFilePersistence(path))
	require.NoError(t, tc.Set(uuid.New()))
	require.NoError(t, tc.Clear())

	restored := NewTenantContext(NewFilePersistence(path))
	_, ok := restored.Get()
	assert.False(t, ok)
}

func TestTenantContext_IgnoresCorruptPersistedValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "active-org")
	require.NoError(t, os.WriteFile(path, []byte("not-a-uuid\n"), 0600))

	tc := NewTenantContext(NewFilePersistence(path))
	_, ok := tc.Get()
	assert.False(t, ok)
}

func TestFilePersistence_LoadMissingFile(t *testing.T) {
	p := NewFilePersistence(filepath.Join(t.TempDir(), "nope"))
	got, err := p.Load()
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFilePersistence_CreatesParentDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "active-org")
	p := NewFilePersistence(path)
	require.NoError(t, p.Save(uuid.New().String()))

	_, err := os.Stat(path)
	assert.NoError(t, err)
}
