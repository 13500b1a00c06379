// Package client is the Go SDK for vine-gateway.
//
// It bundles the pieces a caller needs to talk to a gateway as a signed-in
// user of one org at a time:
//
//   - CredentialStore holds the bearer token for the signed-in user.
//   - TenantContext holds the active org and optionally persists it across
//     restarts.
//   - OperationRegistry tracks in-flight requests per org so that switching
//     orgs can cancel the old org's work.
//   - RealtimeSync maintains the websocket event stream for the active org,
//     reconnecting with exponential backoff and deduplicating replayed
//     events.
//   - Client ties them together: it decorates outgoing requests with the
//     Authorization and X-Org-Id headers and implements the org-switch and
//     sign-out sequences.
//
// All types are safe for concurrent use.
package client
