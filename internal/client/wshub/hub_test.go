package wshub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	photosync "github.com/openmined/photosync/internal/client/sync"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestHub(t *testing.T, opts ...Option) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(func() photosync.Status {
		return photosync.Status{IsSyncing: true, TotalPhotos: 4}
	}, opts...)

	r := gin.New()
	r.GET("/ws", hub.Handler)
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		hub.Shutdown(ctx)
		srv.Close()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m), string(data))
	return m
}

func TestHub_SendsStatusOnConnect(t *testing.T) {
	_, srv := newTestHub(t)
	conn := dial(t, srv)

	m := readEvent(t, conn)
	assert.Equal(t, "status", m["type"])
	data, ok := m["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, data["is_syncing"])
	assert.EqualValues(t, 4, data["total_photos"])
}

func TestHub_BroadcastsToEverySocket(t *testing.T) {
	hub, srv := newTestHub(t)
	a, b := dial(t, srv), dial(t, srv)
	readEvent(t, a)
	readEvent(t, b)
	require.Eventually(t, func() bool { return hub.Len() == 2 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Notify(photosync.Event{Type: photosync.EventPhotosFound, Count: 3}))

	for _, conn := range []*websocket.Conn{a, b} {
		m := readEvent(t, conn)
		assert.Equal(t, "photos_found", m["type"])
		assert.EqualValues(t, 3, m["count"])
	}
}

func TestHub_AnswersPing(t *testing.T) {
	_, srv := newTestHub(t)
	conn := dial(t, srv)
	readEvent(t, conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("ping")))

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "pong", string(data))
}

func TestHub_HeartbeatAfterSilence(t *testing.T) {
	_, srv := newTestHub(t, WithHeartbeat(50*time.Millisecond))
	conn := dial(t, srv)
	readEvent(t, conn)

	m := readEvent(t, conn)
	assert.Equal(t, "heartbeat", m["type"])
}

func TestHub_DroppedSocketDoesNotAffectOthers(t *testing.T) {
	hub, srv := newTestHub(t)
	a, b := dial(t, srv), dial(t, srv)
	readEvent(t, a)
	readEvent(t, b)
	require.Eventually(t, func() bool { return hub.Len() == 2 }, 5*time.Second, 10*time.Millisecond)

	a.Close(websocket.StatusNormalClosure, "bye")
	require.Eventually(t, func() bool { return hub.Len() == 1 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Notify(photosync.Event{Type: photosync.EventSyncStarted, RunID: "r1"}))
	m := readEvent(t, b)
	assert.Equal(t, "sync_started", m["type"])
	assert.Equal(t, "r1", m["run_id"])
}

func TestHub_Shutdown(t *testing.T) {
	hub, srv := newTestHub(t)
	conn := dial(t, srv)
	readEvent(t, conn)
	require.Eventually(t, func() bool { return hub.Len() == 1 }, 5*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, hub.Shutdown(ctx))
	assert.Equal(t, 0, hub.Len())

	_, _, err := conn.Read(ctx)
	assert.Error(t, err)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/ws", nil)
	hub.Handler(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestClient_SendIsNonBlocking(t *testing.T) {
	c := newClient(nil, "127.0.0.1", time.Minute, clockwork.NewFakeClock())
	for i := 0; i < sendBuffer; i++ {
		require.True(t, c.Send([]byte("x")))
	}
	assert.False(t, c.Send([]byte("overflow")))
}
