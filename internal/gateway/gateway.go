// ABOUTME: Gateway orchestrator that wires the store, auth pipeline, and hub
// ABOUTME: Manages HTTP/tsnet listeners and graceful shutdown

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"tailscale.com/tsnet"

	"github.com/taskvine/vine-gateway/internal/auth"
	"github.com/taskvine/vine-gateway/internal/config"
	"github.com/taskvine/vine-gateway/internal/realtime"
	"github.com/taskvine/vine-gateway/internal/store"
)

// Gateway orchestrates the vine-gateway server components.
type Gateway struct {
	config      *config.Config
	store       store.Store
	verifier    *auth.JWTVerifier
	hub         *realtime.Hub
	httpServer  *http.Server
	tsnetServer *tsnet.Server
	logger      *slog.Logger
}

// New creates a gateway from config, opening the SQLite store at the
// configured path.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return NewWithStore(cfg, s, logger)
}

// NewWithStore creates a gateway with an externally constructed store.
// Tests use this with a MockStore.
func NewWithStore(cfg *config.Config, s store.Store, logger *slog.Logger) (*Gateway, error) {
	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("initializing token verifier: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "gateway")
	g := &Gateway{
		config:   cfg,
		store:    s,
		verifier: verifier,
		hub:      realtime.NewHub(logger),
		logger:   logger,
	}
	g.httpServer = &http.Server{
		Handler:           g.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return g, nil
}

// Hub exposes the realtime hub for event producers.
func (g *Gateway) Hub() *realtime.Hub {
	return g.hub
}

// Handler returns the HTTP handler, used directly by httptest servers.
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}

// router builds the HTTP route tree and middleware pipeline.
func (g *Gateway) router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", g.handleHealth)
	r.Get("/health/ready", g.handleReady)

	wsHandler := realtime.NewHandler(g.verifier, g.store, g.hub, g.logger)
	r.Method(http.MethodGet, "/ws", wsHandler)

	r.Route("/api", func(r chi.Router) {
		r.Use(auth.Authenticate(g.verifier, g.logger))
		r.Use(auth.RequireTenant(g.store, g.logger))

		r.Get("/me", g.handleMe)
		r.With(auth.RequireCapabilityHTTP(auth.CapMembersView)).Get("/members", g.handleListMembers)
		r.With(auth.RequireCapabilityHTTP(auth.CapMembersInvite)).Post("/members", g.handleAddMember)
		r.With(auth.RequireCapabilityHTTP(auth.CapMembersManage)).Patch("/members/{userID}", g.handleUpdateMemberRole)
		r.With(auth.RequireCapabilityHTTP(auth.CapMembersRemove)).Delete("/members/{userID}", g.handleRemoveMember)
		r.With(auth.RequireCapabilityHTTP(auth.CapOrgSettings)).Post("/events", g.handlePublishEvent)
	})

	return r
}

// Run starts the gateway and blocks until ctx is cancelled or the server
// fails.
func (g *Gateway) Run(ctx context.Context) error {
	var ln net.Listener
	var err error

	if g.config.Tailscale.Enabled {
		ln, err = g.setupTailscaleListener(ctx)
		if err != nil {
			return err
		}
	} else {
		ln, err = net.Listen("tcp", g.config.Server.HTTPAddr)
		if err != nil {
			return fmt.Errorf("listening on %s: %w", g.config.Server.HTTPAddr, err)
		}
	}

	g.logger.Info("gateway listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}
}

// Shutdown gracefully stops the server, closes all realtime connections,
// and closes the store.
func (g *Gateway) Shutdown(ctx context.Context) error {
	var firstErr error

	if err := g.httpServer.Shutdown(ctx); err != nil {
		firstErr = fmt.Errorf("shutting down http server: %w", err)
	}

	g.hub.CloseAll()

	if g.tsnetServer != nil {
		if err := g.tsnetServer.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing tailscale node: %w", err)
		}
	}

	if err := g.store.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing store: %w", err)
	}

	g.logger.Info("gateway stopped")
	return firstErr
}

// resolveTailscaleStateDir returns the tsnet state directory, defaulting to
// a per-user data dir.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "vine", "tsnet"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set auth_key in config or TS_AUTHKEY environment variable")
	}
	return authKey, nil
}

// setupTailscaleListener creates a tsnet server and returns its HTTP
// listener.
func (g *Gateway) setupTailscaleListener(ctx context.Context) (net.Listener, error) {
	tsCfg := g.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, err
	}

	g.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	g.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := g.tsnetServer.Up(ctx)
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}

	if len(status.TailscaleIPs) > 0 {
		g.logger.Info("tailscale node ready", "hostname", tsCfg.Hostname, "tailscale_ip", status.TailscaleIPs[0].String())
	} else {
		g.logger.Warn("tailscale node has no IP addresses assigned")
	}

	ln, err := g.tsnetServer.Listen("tcp", ":80")
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
	}
	return ln, nil
}
