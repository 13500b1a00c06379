// ABOUTME: Gateway SDK client tying credentials, org context, and realtime together
// ABOUTME: Implements the org-switch and sign-out sequences

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrCancelled reports that an operation was cancelled before completing,
	// for example by an org switch. It is a distinct outcome, not a server
	// or transport failure.
	ErrCancelled = errors.New("operation cancelled")

	// ErrNoCredential reports that the client is signed out.
	ErrNoCredential = errors.New("no credential stored")

	// ErrNoTenant reports that no active org is selected.
	ErrNoTenant = errors.New("no active org selected")
)

// APIError is a non-2xx response from the gateway.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway returned %d: %s", e.StatusCode, e.Message)
}

// Session mirrors the gateway's GET /api/me response.
type Session struct {
	OrgID        uuid.UUID `json:"org_id"`
	UserID       uuid.UUID `json:"user_id"`
	Role         string    `json:"role"`
	Capabilities []string  `json:"capabilities"`
}

// Member mirrors one entry of the gateway's GET /api/members response.
type Member struct {
	UserID      uuid.UUID `json:"user_id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
	JoinedAt    time.Time `json:"joined_at"`
}

// Client is the high-level SDK entry point. Requests carry the stored
// credential and the active org; in-flight requests are registered so an org
// switch cancels them.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	Credentials *CredentialStore
	Tenant      *TenantContext
	Operations  *OperationRegistry
	Realtime    *RealtimeSync
}

// Options configures New.
type Options struct {
	// HTTPClient overrides the default HTTP client.
	HTTPClient *http.Client
	// Persistence stores the active org across restarts. Nil keeps it in
	// memory only.
	Persistence Persistence
	// OnEvent receives realtime events for the active org.
	OnEvent EventHandler
	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// New creates a Client for the gateway at baseURL.
func New(baseURL string, opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	creds := NewCredentialStore()
	c := &Client{
		baseURL:     baseURL,
		httpClient:  httpClient,
		logger:      logger.With("component", "vine-client"),
		Credentials: creds,
		Tenant:      NewTenantContext(opts.Persistence),
		Operations:  NewOperationRegistry(),
	}
	c.Realtime = NewRealtimeSync(baseURL, creds, opts.OnEvent, logger)
	return c
}

// SignIn stores the credential and, if an active org was restored from
// persistence, starts the realtime stream for it.
func (c *Client) SignIn(cred Credential) {
	c.Credentials.Set(cred)
	if orgID, ok := c.Tenant.Get(); ok {
		c.Realtime.Connect(orgID)
	}
}

// SignOut clears the credential and active org, cancels all in-flight
// operations across every org, and stops the realtime stream.
func (c *Client) SignOut() error {
	c.Credentials.Clear()
	err := c.Tenant.Clear()
	c.Operations.CancelAllTenants()
	c.Realtime.Disconnect()
	return err
}

// SwitchTenant makes orgID the active org. The sequence is fixed: the org
// context updates first so new work lands in the new org, then the old
// org's in-flight operations are cancelled, then the realtime stream
// reconnects. Switching to the already-active org is a no-op.
func (c *Client) SwitchTenant(orgID uuid.UUID) error {
	previous, hadPrevious := c.Tenant.Get()
	if hadPrevious && previous == orgID {
		return nil
	}

	if err := c.Tenant.Set(orgID); err != nil {
		return err
	}
	if hadPrevious {
		c.Operations.CancelAll(previous)
	}
	c.Realtime.Connect(orgID)
	return nil
}

// Me fetches the caller's resolved session in the active org.
func (c *Client) Me(ctx context.Context) (*Session, error) {
	var session Session
	if err := c.do(ctx, http.MethodGet, "/api/me", nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// ListMembers fetches the active org's member list.
func (c *Client) ListMembers(ctx context.Context) ([]Member, error) {
	var resp struct {
		Members []Member `json:"members"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/members", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Members, nil
}

// AddMember adds an existing user to the active org.
func (c *Client) AddMember(ctx context.Context, userID uuid.UUID, role string) error {
	body := map[string]string{"user_id": userID.String(), "role": role}
	return c.do(ctx, http.MethodPost, "/api/members", body, nil)
}

// UpdateMemberRole changes a member's role in the active org.
func (c *Client) UpdateMemberRole(ctx context.Context, userID uuid.UUID, role string) error {
	body := map[string]string{"role": role}
	return c.do(ctx, http.MethodPatch, "/api/members/"+userID.String(), body, nil)
}

// RemoveMember removes a member from the active org.
func (c *Client) RemoveMember(ctx context.Context, userID uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, "/api/members/"+userID.String(), nil, nil)
}

// PublishEvent broadcasts an event on the active org's stream and returns
// the assigned event ID.
func (c *Client) PublishEvent(ctx context.Context, eventType string, entityID uuid.UUID, payload map[string]string) (string, error) {
	body := map[string]any{
		"type":      eventType,
		"entity_id": entityID.String(),
		"payload":   payload,
	}
	var resp struct {
		EventID string `json:"event_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/events", body, &resp); err != nil {
		return "", err
	}
	return resp.EventID, nil
}

// do performs one authenticated request against the active org. The request
// is registered as an operation for the org; if the org switches away while
// the request is in flight, the request is cancelled and do returns
// ErrCancelled.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	cred, ok := c.Credentials.Get()
	if !ok {
		return ErrNoCredential
	}
	orgID, ok := c.Tenant.Get()
	if !ok {
		return ErrNoTenant
	}

	opCtx, op, finish := NewOperation(ctx)
	defer finish()
	c.Operations.Register(orgID, op)

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(opCtx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cred.Token)
	req.Header.Set("X-Org-Id", orgID.String())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if opCtx.Err() != nil {
			return ErrCancelled
		}
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		msg := resp.Status
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
