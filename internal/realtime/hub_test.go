// ABOUTME: Tests for hub subscription bookkeeping and event fanout
// ABOUTME: Fanout tests use real websocket pairs over httptest

package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_SubscriptionBookkeeping(t *testing.T) {
	h := NewHub(nil)
	orgID := uuid.New()

	id := h.AddConnection(uuid.New(), orgID, nil, []string{OrgChannel(orgID)})
	assert.Equal(t, 1, h.ConnectionCount())
	assert.ElementsMatch(t, []string{OrgChannel(orgID)}, h.Subscriptions(id))

	project := "project:" + uuid.New().String()
	h.Subscribe(id, []string{project})
	assert.ElementsMatch(t, []string{OrgChannel(orgID), project}, h.Subscriptions(id))

	// Subscribing twice is idempotent.
	h.Subscribe(id, []string{project})
	assert.Len(t, h.Subscriptions(id), 2)

	h.Unsubscribe(id, []string{project})
	assert.ElementsMatch(t, []string{OrgChannel(orgID)}, h.Subscriptions(id))

	h.RemoveConnection(id)
	assert.Equal(t, 0, h.ConnectionCount())
	assert.Nil(t, h.Subscriptions(id))

	// Removing again is harmless.
	h.RemoveConnection(id)
}

func TestHub_UnknownConnectionIgnored(t *testing.T) {
	h := NewHub(nil)
	h.Subscribe(uuid.New(), []string{"org:x"})
	h.Unsubscribe(uuid.New(), []string{"org:x"})
	assert.Equal(t, 0, h.ConnectionCount())
}

// dialTestSocket establishes a real websocket pair: the server half is handed
// to register, the client half is returned.
func dialTestSocket(t *testing.T, register func(*websocket.Conn)) *websocket.Conn {
	t.Helper()

	accepted := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sock, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		accepted <- sock
		// Keep the server goroutine alive while the test runs.
		ctx := r.Context()
		for {
			if _, _, err := sock.Read(ctx); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close(websocket.StatusNormalClosure, "") })

	select {
	case sock := <-accepted:
		register(sock)
	case <-ctx.Done():
		t.Fatal("server never accepted the connection")
	}
	return client
}

func TestHub_BroadcastReachesSubscribers(t *testing.T) {
	h := NewHub(nil)
	orgID := uuid.New()

	client := dialTestSocket(t, func(sock *websocket.Conn) {
		h.AddConnection(uuid.New(), orgID, sock, []string{OrgChannel(orgID)})
	})

	event := NewEvent(orgID, "task.updated", uuid.New(), map[string]string{"title": "ship it"})
	h.Broadcast(context.Background(), OrgChannel(orgID), event)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var got Event
	require.NoError(t, wsjson.Read(ctx, client, &got))
	assert.Equal(t, event.EventID, got.EventID)
	assert.Equal(t, orgID, got.OrgID)
	assert.Equal(t, "task.updated", got.Type)
	assert.Equal(t, "ship it", got.Payload["title"])
}

func TestHub_BroadcastSkipsOtherChannels(t *testing.T) {
	h := NewHub(nil)
	orgID := uuid.New()

	client := dialTestSocket(t, func(sock *websocket.Conn) {
		h.AddConnection(uuid.New(), orgID, sock, []string{OrgChannel(orgID)})
	})

	otherOrg := uuid.New()
	h.Broadcast(context.Background(), OrgChannel(otherOrg), NewEvent(otherOrg, "task.updated", uuid.New(), nil))

	// Then deliver one on the right channel; it must be the first thing the
	// client sees.
	marker := NewEvent(orgID, "task.created", uuid.New(), nil)
	h.Broadcast(context.Background(), OrgChannel(orgID), marker)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var got Event
	require.NoError(t, wsjson.Read(ctx, client, &got))
	assert.Equal(t, marker.EventID, got.EventID)
}

func TestHub_CloseAll(t *testing.T) {
	h := NewHub(nil)
	orgID := uuid.New()

	client := dialTestSocket(t, func(sock *websocket.Conn) {
		h.AddConnection(uuid.New(), orgID, sock, []string{OrgChannel(orgID)})
	})

	h.CloseAll()
	assert.Equal(t, 0, h.ConnectionCount())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err := client.Read(ctx)
	assert.Error(t, err, "closed connection should fail reads")
}
