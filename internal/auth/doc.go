// Package auth provides the two-stage request pipeline for vine-gateway.
//
// # Authentication
//
// Requests authenticate with an HS256-signed JWT carried in the
// Authorization header:
//
//	Authorization: Bearer <token>
//
// The Authenticate middleware verifies the signature and expiry and attaches
// a Principal (user ID plus role claim) to the request context. A missing,
// malformed, expired, or badly signed token is rejected with 401; the
// response does not distinguish which check failed.
//
// # Tenant authorization
//
// The RequireTenant middleware runs after Authenticate. It reads the
// X-Org-Id header, looks up the caller's membership in that organization,
// and attaches a resolved Session (org, user, role, capabilities) to the
// context. A missing or malformed header is a 400; a valid credential
// without a membership row is a 403 — a real user gets no access to a
// workspace they do not belong to. Membership is looked up fresh on every
// request.
//
// # Capabilities
//
// Each role maps to a fixed capability set via DefaultCapabilities. Business
// handlers gate actions with RequireCapabilityHTTP or Session.Has:
//
//	r.With(auth.RequireCapabilityHTTP(auth.CapMembersInvite)).Post("/members", h)
package auth
