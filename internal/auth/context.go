// ABOUTME: Context plumbing for the authenticated principal and resolved session
// ABOUTME: Middlewares write these values; downstream handlers read them

package auth

import (
	"context"

	"github.com/google/uuid"

	"github.com/taskvine/vine-gateway/internal/store"
)

// Session is the fully resolved tenant context for a request: the caller is
// authenticated and confirmed to be a member of OrgID. Capabilities are
// computed from the membership role, never from the token's role claim
// alone, and are immutable for the lifetime of the request.
type Session struct {
	OrgID        uuid.UUID     `json:"org_id"`
	UserID       uuid.UUID     `json:"user_id"`
	Role         store.Role    `json:"role"`
	Capabilities CapabilitySet `json:"capabilities"`
}

// Has reports whether the session grants the capability.
func (s *Session) Has(c Capability) bool {
	return s.Capabilities.Has(c)
}

type principalContextKey struct{}

type sessionContextKey struct{}

// WithPrincipal returns a new context with the Principal attached.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext retrieves the Principal, returning nil if not present.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalContextKey{}).(*Principal)
	return p
}

// WithSession returns a new context with the resolved Session attached.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, s)
}

// SessionFromContext retrieves the Session, returning nil if not present.
func SessionFromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(sessionContextKey{}).(*Session)
	return s
}

// MustSessionFromContext retrieves the Session, panicking if not present.
// Only call from handlers mounted behind RequireTenant.
func MustSessionFromContext(ctx context.Context) *Session {
	s := SessionFromContext(ctx)
	if s == nil {
		panic("auth: Session not found in context")
	}
	return s
}
