// Package gateway orchestrates the vine-gateway server components.
//
// The Gateway struct owns the store, the JWT verifier, the realtime hub,
// and the HTTP server, and wires the request pipeline:
//
//	Authenticate -> RequireTenant -> capability-gated handlers
//
// # HTTP API
//
//   - GET  /health            - liveness check
//   - GET  /health/ready      - readiness check
//   - GET  /ws                - realtime event stream (org_id query param)
//   - GET  /api/me            - resolved session for the caller
//   - GET  /api/members       - list org members (members.view)
//   - POST /api/members       - add a member (members.invite)
//   - PATCH /api/members/{id} - change a member's role (members.manage)
//   - DELETE /api/members/{id} - remove a member (members.remove)
//   - POST /api/events        - publish a realtime event (org.settings)
//
// All /api routes require Authorization and X-Org-Id headers.
//
// # Lifecycle
//
//	gw, err := gateway.New(cfg)
//	ctx, cancel := context.WithCancel(context.Background())
//	go gw.Run(ctx)
//	...
//	cancel()
//	gw.Shutdown(shutdownCtx)
//
// When tailscale is enabled in config, the gateway listens on the tailnet
// via tsnet instead of a local TCP address.
package gateway
