package socket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// serve registers every incoming connection under the ?user= query value.
func serve(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		user := r.URL.Query().Get("user")
		hub.Register(user, conn)
		go func() {
			defer hub.Unregister(user, conn)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, user string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=" + user
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var m Message
	require.NoError(t, json.Unmarshal(raw, &m))
	return m
}

func waitFor(t *testing.T, hub *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.Count() == n }, 2*time.Second, 10*time.Millisecond)
}

func TestBroadcastReachesEveryone(t *testing.T) {
	hub := NewHub()
	srv := serve(t, hub)
	a := dial(t, srv, "vol-a")
	b := dial(t, srv, "vol-b")
	waitFor(t, hub, 2)

	hub.Broadcast("request_created", map[string]any{"request_id": "r1"})

	for _, conn := range []*websocket.Conn{a, b} {
		m := read(t, conn)
		assert.Equal(t, "request_created", m.Event)
		assert.Equal(t, "r1", m.Data.(map[string]any)["request_id"])
	}
}

func TestSendTargetsOneUser(t *testing.T) {
	hub := NewHub()
	srv := serve(t, hub)
	a := dial(t, srv, "vol-a")
	waitFor(t, hub, 1)

	require.NoError(t, hub.Send("vol-a", "request_claimed", "r1"))
	assert.Equal(t, "request_claimed", read(t, a).Event)

	assert.NoError(t, hub.Send("nobody", "request_claimed", "r1"))
}

func TestReconnectReplacesOldConnection(t *testing.T) {
	hub := NewHub()
	srv := serve(t, hub)
	first := dial(t, srv, "vol-a")
	waitFor(t, hub, 1)
	second := dial(t, srv, "vol-a")

	require.NoError(t, first.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := first.ReadMessage()
	require.Error(t, err)

	require.NoError(t, hub.Send("vol-a", "ping", nil))
	assert.Equal(t, 1, hub.Count())
	assert.Equal(t, "ping", read(t, second).Event)
}

func TestStalledClientDoesNotBlockBroadcast(t *testing.T) {
	hub := NewHub()
	srv := serve(t, hub)
	_ = dial(t, srv, "stalled") // never reads
	waitFor(t, hub, 1)

	big := strings.Repeat("x", 256<<10)
	start := time.Now()
	for i := 0; i < 200; i++ {
		hub.Broadcast("request_created", map[string]any{"blob": big})
	}
	assert.Less(t, time.Since(start), writeWait)

	// Once its queue overflows the stalled client is disconnected.
	waitFor(t, hub, 0)
}

func TestSendAfterUnregisterIsNoop(t *testing.T) {
	hub := NewHub()
	srv := serve(t, hub)
	conn := dial(t, srv, "vol-a")
	waitFor(t, hub, 1)

	require.NoError(t, conn.Close())
	waitFor(t, hub, 0)
	assert.NoError(t, hub.Send("vol-a", "request_claimed", "r1"))
}
