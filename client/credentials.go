// ABOUTME: In-memory credential cell for the signed-in user's bearer token
// ABOUTME: Reads and writes are atomic so callers never observe a torn value

package client

import (
	"sync"

	"github.com/google/uuid"
)

// Credential is the signed-in user's bearer token plus the identity it was
// issued for.
type Credential struct {
	Token  string
	UserID uuid.UUID
}

// CredentialStore holds at most one credential. A zero CredentialStore is
// empty and ready to use.
type CredentialStore struct {
	mu   sync.RWMutex
	cred *Credential
}

// NewCredentialStore returns an empty store.
func NewCredentialStore() *CredentialStore {
	return &CredentialStore{}
}

// Get returns a copy of the current credential, or false if signed out.
func (s *CredentialStore) Get() (Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cred == nil {
		return Credential{}, false
	}
	return *s.cred, true
}

// Set replaces the stored credential.
func (s *CredentialStore) Set(cred Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := cred
	s.cred = &c
}

// Clear removes the stored credential.
func (s *CredentialStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = nil
}
