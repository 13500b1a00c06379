// Package realtime implements the server side of the tenant-scoped event
// stream.
//
// Clients connect to GET /ws with their credential in the Authorization
// header (or a token query parameter) and the tenant in the org_id query
// parameter. Membership is verified before the upgrade completes; a
// connection is born subscribed to its org channel and may subscribe to
// further channels with:
//
//	{"action":"subscribe","channels":["project:<uuid>"]}
//
// Events are fanned out by the Hub to every connection subscribed to the
// event's channel. Delivery is best-effort: a connection that cannot be
// written to within the write timeout is dropped and must reconnect.
package realtime
