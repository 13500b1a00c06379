// ABOUTME: HTTP middleware for the tenant authorization stage of the pipeline
// ABOUTME: Resolves X-Org-Id membership into a Session with capabilities

package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/taskvine/vine-gateway/internal/store"
)

// TenantHeader is the canonical header carrying the tenant identifier.
const TenantHeader = "X-Org-Id"

// MembershipSource looks up the membership binding a user to an
// organization. Lookups happen on every request; results are never cached
// across requests.
type MembershipSource interface {
	GetMembership(ctx context.Context, orgID, userID uuid.UUID) (*store.Membership, error)
}

// RequireTenant creates middleware that resolves the claimed tenant into a
// Session. It must run after Authenticate. A missing or malformed
// X-Org-Id header is a 400; an authenticated caller with no membership row
// for the claimed org is a 403 — this is the tenant-isolation boundary.
// Capabilities are derived from the membership role via the static table.
func RequireTenant(memberships MembershipSource, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			orgHeader := r.Header.Get(TenantHeader)
			if orgHeader == "" {
				writeError(w, http.StatusBadRequest, "missing X-Org-Id header")
				return
			}
			orgID, err := uuid.Parse(orgHeader)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid X-Org-Id header")
				return
			}

			principal := PrincipalFromContext(r.Context())
			if principal == nil {
				writeError(w, http.StatusUnauthorized, "not authenticated")
				return
			}

			membership, err := memberships.GetMembership(r.Context(), orgID, principal.UserID)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					logAuthFailure(logger, r, "not a member of claimed org",
						"user_id", principal.UserID, "org_id", orgID)
					writeError(w, http.StatusForbidden, "you do not have access to this workspace")
					return
				}
				if logger != nil {
					logger.Error("membership lookup failed", "error", err, "org_id", orgID)
				}
				writeError(w, http.StatusInternalServerError, "membership lookup failed")
				return
			}

			session := &Session{
				OrgID:        orgID,
				UserID:       principal.UserID,
				Role:         membership.Role,
				Capabilities: DefaultCapabilities(membership.Role),
			}
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), session)))
		})
	}
}

// RequireCapabilityHTTP creates middleware that rejects sessions lacking the
// capability with 403. Must be mounted behind RequireTenant.
func RequireCapabilityHTTP(c Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := SessionFromContext(r.Context())
			if session == nil {
				writeError(w, http.StatusUnauthorized, "not authenticated")
				return
			}
			if !session.Has(c) {
				writeError(w, http.StatusForbidden,
					"you do not have permission to perform this action ("+string(c)+")")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
