// ABOUTME: Websocket event stream for the active org with automatic reconnect
// ABOUTME: Replayed and duplicate events are filtered before reaching the handler

package client

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/taskvine/vine-gateway/internal/dedupe"
	"github.com/taskvine/vine-gateway/internal/realtime"
)

const (
	// maxReconnectDelay caps the backoff between connection attempts.
	maxReconnectDelay = 30 * time.Second
	// maxBackoffExponent caps the doubling so the computed delay cannot
	// overflow on long outages.
	maxBackoffExponent = 5
)

// EventHandler receives events from the stream. Handlers run on the stream's
// goroutine; slow handlers delay subsequent events.
type EventHandler func(event realtime.Event)

// RealtimeSync maintains the websocket connection to the gateway's /ws
// endpoint for one org at a time. Transport failures are retried with
// exponential backoff until Disconnect is called or the org changes; each
// event is delivered to the handler at most once per connection window.
type RealtimeSync struct {
	baseURL string
	creds   *CredentialStore
	handler EventHandler
	logger  *slog.Logger

	mu      sync.Mutex
	orgID   uuid.UUID
	cancel  context.CancelFunc
	attempt int
	seen    *dedupe.Window
	conn    *websocket.Conn
	subs    map[string]struct{}
}

// controlMessage is the subscribe/unsubscribe frame sent to the gateway.
type controlMessage struct {
	Action   string   `json:"action"`
	Channels []string `json:"channels,omitempty"`
}

// NewRealtimeSync creates a RealtimeSync dialing the gateway at baseURL
// (e.g. "http://gateway.example:8080") with credentials from creds.
func NewRealtimeSync(baseURL string, creds *CredentialStore, handler EventHandler, logger *slog.Logger) *RealtimeSync {
	if logger == nil {
		logger = slog.Default()
	}
	return &RealtimeSync{
		baseURL: baseURL,
		creds:   creds,
		handler: handler,
		logger:  logger.With("component", "realtime-sync"),
	}
}

// Connect starts (or restarts) the stream for orgID. Any previous stream is
// torn down first and its retry loop stops. Without a stored credential
// Connect is a no-op; call it again after sign-in.
func (rs *RealtimeSync) Connect(orgID uuid.UUID) {
	rs.mu.Lock()
	if rs.cancel != nil {
		rs.cancel()
		rs.cancel = nil
	}
	if _, ok := rs.creds.Get(); !ok {
		rs.orgID = uuid.Nil
		rs.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	rs.orgID = orgID
	rs.cancel = cancel
	rs.attempt = 0
	rs.seen = dedupe.NewWindow(dedupe.DefaultCapacity)
	rs.subs = make(map[string]struct{})
	rs.mu.Unlock()

	go rs.run(ctx, orgID)
}

// Disconnect stops the stream and any pending reconnect.
func (rs *RealtimeSync) Disconnect() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.cancel != nil {
		rs.cancel()
		rs.cancel = nil
	}
	rs.orgID = uuid.Nil
	rs.conn = nil
	rs.subs = nil
}

// Subscribe adds channels (e.g. "project:<id>") to the stream. Subscriptions
// survive reconnects: they are replayed after every successful dial.
func (rs *RealtimeSync) Subscribe(ctx context.Context, channels ...string) error {
	rs.mu.Lock()
	if rs.subs == nil {
		rs.mu.Unlock()
		return nil
	}
	for _, ch := range channels {
		rs.subs[ch] = struct{}{}
	}
	conn := rs.conn
	rs.mu.Unlock()

	if conn == nil {
		return nil
	}
	return wsjson.Write(ctx, conn, controlMessage{Action: "subscribe", Channels: channels})
}

// Unsubscribe removes channels from the stream.
func (rs *RealtimeSync) Unsubscribe(ctx context.Context, channels ...string) error {
	rs.mu.Lock()
	for _, ch := range channels {
		delete(rs.subs, ch)
	}
	conn := rs.conn
	rs.mu.Unlock()

	if conn == nil {
		return nil
	}
	return wsjson.Write(ctx, conn, controlMessage{Action: "unsubscribe", Channels: channels})
}

// run dials, reads until failure, and backs off before redialing. It exits
// only when ctx is cancelled.
func (rs *RealtimeSync) run(ctx context.Context, orgID uuid.UUID) {
	for {
		if ctx.Err() != nil {
			return
		}

		err := rs.streamOnce(ctx, orgID)
		if ctx.Err() != nil {
			return
		}

		rs.mu.Lock()
		rs.attempt++
		delay := reconnectDelay(rs.attempt)
		rs.mu.Unlock()

		rs.logger.Warn("stream disconnected, reconnecting",
			"org_id", orgID, "error", err, "retry_in", delay)

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// streamOnce performs a single dial-and-read cycle. A nil error means the
// server closed the connection cleanly.
func (rs *RealtimeSync) streamOnce(ctx context.Context, orgID uuid.UUID) error {
	cred, ok := rs.creds.Get()
	if !ok {
		// Signed out mid-stream; stop quietly.
		rs.Disconnect()
		return nil
	}

	wsURL, err := rs.streamURL(orgID)
	if err != nil {
		return err
	}

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + cred.Token}},
	})
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// A successful dial resets the backoff schedule and replays extra
	// channel subscriptions (the server binds the org channel on accept).
	rs.mu.Lock()
	rs.attempt = 0
	rs.conn = conn
	replay := make([]string, 0, len(rs.subs))
	for ch := range rs.subs {
		replay = append(replay, ch)
	}
	rs.mu.Unlock()

	defer func() {
		rs.mu.Lock()
		if rs.conn == conn {
			rs.conn = nil
		}
		rs.mu.Unlock()
	}()

	if len(replay) > 0 {
		if err := wsjson.Write(ctx, conn, controlMessage{Action: "subscribe", Channels: replay}); err != nil {
			return err
		}
	}

	rs.logger.Info("stream connected", "org_id", orgID)

	for {
		var event realtime.Event
		if err := wsjson.Read(ctx, conn, &event); err != nil {
			return err
		}
		rs.deliver(orgID, event)
	}
}

// deliver applies the org filter and dedup window before invoking the
// handler. Events for any other org are dropped without logging; duplicates
// within the window are dropped once per ID.
func (rs *RealtimeSync) deliver(orgID uuid.UUID, event realtime.Event) {
	if event.OrgID != orgID {
		return
	}
	if event.EventID != "" {
		rs.mu.Lock()
		seen := rs.seen
		rs.mu.Unlock()
		if seen != nil && !seen.Admit(event.EventID) {
			return
		}
	}
	if rs.handler != nil {
		rs.handler(event)
	}
}

// streamURL builds the websocket URL for orgID from the configured base.
func (rs *RealtimeSync) streamURL(orgID uuid.UUID) (string, error) {
	u, err := url.Parse(rs.baseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws"
	q := u.Query()
	q.Set("org_id", orgID.String())
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// reconnectDelay returns the backoff before attempt n (1-based): the delay
// doubles from 2s and is capped at maxReconnectDelay.
func reconnectDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	exp := attempt
	if exp > maxBackoffExponent {
		exp = maxBackoffExponent
	}
	delay := time.Duration(1<<uint(exp)) * time.Second
	if delay > maxReconnectDelay {
		delay = maxReconnectDelay
	}
	return delay
}
